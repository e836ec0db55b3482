// Package app はサブコマンドごとの起動処理と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/rollcall/internal/config"
	"github.com/hitoshi/rollcall/internal/database"
	"github.com/hitoshi/rollcall/internal/logger"
	"github.com/hitoshi/rollcall/internal/metrics"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/revocation"
	"github.com/hitoshi/rollcall/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .env と環境変数から設定を読み込み、JSON構造化ログをグローバルに設定する。
func Init(w io.Writer) (*config.Config, error) {
	// ログは設定読み込みの失敗も出力できるよう先に初期化する
	if err := config.LoadDotEnv(); err != nil {
		logger.SetupDefault(w, slog.LevelInfo)
		return nil, err
	}
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	inv, err := ParseCommand(args)
	if err != nil {
		return err
	}
	cmd := inv.Command

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, inv.Direction)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	revoked, closeRevoked, err := revocation.NewFromURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer closeRevoked()
	if cfg.RedisURL != "" {
		slog.Info("refresh token revocation cache enabled")
	}

	api := NewAPI(cfg, db, revoked, slog.Default())
	defer api.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      api.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はリフレッシュトークンのクリーンアップを起動直後と TOKEN_CLEANUP_INTERVAL ごとに実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(repository.NewPostgresRefreshTokenRepo(db), slog.Default(), metrics.Nop{})
	if cfg.TokenRetentionDays > 0 {
		job.RetentionDays = cfg.TokenRetentionDays
	}

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.TokenCleanupInterval),
		slog.Int("retention_days", job.RetentionDays),
	)
	job.Start(ctx, cfg.TokenCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate は埋め込みマイグレーションを指定方向に実行し、結果のバージョンを記録する。
func runMigrate(cfg *config.Config, dir database.Direction) error {
	slog.Info("running database migrations",
		slog.String("direction", string(dir)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	st, err := database.Migrate(cfg.DatabaseURL, dir)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed",
		slog.Uint64("version", uint64(st.Version)),
		slog.Bool("dirty", st.Dirty),
		slog.Bool("changed", st.Changed),
	)
	return nil
}

// runHealthcheck は /health にHTTPリクエストを送り、200以外ならエラーを返す。
// distroless環境でのDockerヘルスチェック用。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(endpoint string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードを伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
