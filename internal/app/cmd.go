package app

import (
	"fmt"
	"strings"

	"github.com/hitoshi/rollcall/internal/database"
)

// Command は rollcall バイナリのサブコマンド。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はシェルのないdistrolessイメージからのヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// Invocation は解析済みのコマンドライン。
type Invocation struct {
	Command Command
	// Direction は migrate のときだけ意味を持つ。
	Direction database.Direction
}

// ParseCommand は os.Args[1:] を解析する。引数なしは serve。
// 未知のサブコマンドは打ち間違いでサーバーが起動しないようエラーにする。
func ParseCommand(args []string) (Invocation, error) {
	if len(args) == 0 {
		return Invocation{Command: CommandServe}, nil
	}

	cmd := Command(args[0])
	switch cmd {
	case CommandServe, CommandWorker, CommandHealthcheck:
		return Invocation{Command: cmd}, nil
	case CommandMigrate:
		var arg string
		if len(args) > 1 {
			arg = args[1]
		}
		dir, err := database.ParseDirection(arg)
		if err != nil {
			return Invocation{}, err
		}
		return Invocation{Command: cmd, Direction: dir}, nil
	}

	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return Invocation{}, fmt.Errorf("unknown command %q (%s)", args[0], strings.Join(names, ", "))
}
