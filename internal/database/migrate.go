// Package database はPostgreSQL接続とスキーマのマイグレーションを扱う。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Direction はマイグレーションの適用方向。
type Direction string

const (
	// Up は未適用のマイグレーションをすべて適用する。
	Up Direction = "up"
	// Down は直近のマイグレーションを1つだけ戻す。
	Down Direction = "down"
	// Version は適用済みバージョンの確認のみ行う。
	Version Direction = "version"
)

// ParseDirection は migrate サブコマンドの引数を解釈する。空文字列は Up。
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", Up:
		return Up, nil
	case Down, Version:
		return Direction(s), nil
	}
	return "", fmt.Errorf("unknown migration direction %q (up, down, version)", s)
}

// Status はマイグレーション実行後のスキーマ状態。
type Status struct {
	// Version は適用済みの最新バージョン。未適用なら0。
	Version uint
	Dirty   bool
	// Changed はこの実行でスキーマが変化したかどうか。
	Changed bool
}

// NewMigrator は埋め込みSQLをソースにしたmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// Migrate は指定方向にマイグレーションを実行し、実行後の状態を返す。
// 前回の実行が途中で失敗して dirty になっている場合は何もせずにエラーを返す。
func Migrate(databaseURL string, dir Direction) (Status, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return Status{}, err
	}
	defer m.Close()

	before, err := currentStatus(m)
	if err != nil {
		return Status{}, err
	}
	if before.Dirty {
		return before, fmt.Errorf("schema version %d is dirty; fix it manually before migrating", before.Version)
	}

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		if before.Version == 0 {
			return before, nil
		}
		err = m.Steps(-1)
	case Version:
		return before, nil
	default:
		return before, fmt.Errorf("unknown migration direction %q", dir)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return Status{}, fmt.Errorf("failed to run migrations (%s): %w", dir, err)
	}

	after, err := currentStatus(m)
	if err != nil {
		return Status{}, err
	}
	after.Changed = after.Version != before.Version
	return after, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用する。最新なら何もしない。
func RunMigrations(databaseURL string) error {
	_, err := Migrate(databaseURL, Up)
	return err
}

func currentStatus(m *migrate.Migrate) (Status, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return Status{Version: v, Dirty: dirty}, nil
}
