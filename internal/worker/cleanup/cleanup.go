// Package cleanup はリフレッシュトークン発行記録の自動削除ジョブを提供する。
// 有効期限切れ、または失効から保持期間（デフォルト30日）を超えた行を削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/rollcall/internal/metrics"
)

// DefaultRetentionDays は発行記録のデフォルト保持日数。
const DefaultRetentionDays = 30

// TokenPurger は基準時刻より古い発行記録を削除する。
// repository.RefreshTokenRepository の部分集合。
type TokenPurger interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は期限切れ・失効済みリフレッシュトークンの削除ジョブ。
// 削除は冪等で、対象が無くてもエラーにならない。
type CleanupJob struct {
	tokens        TokenPurger
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	now           func() time.Time
	RetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。collectorがnilの場合は記録しない。
func NewCleanupJob(tokens TokenPurger, logger *slog.Logger, collector metrics.MetricsCollector) *CleanupJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &CleanupJob{
		tokens:        tokens,
		logger:        logger,
		metrics:       collector,
		now:           time.Now,
		RetentionDays: DefaultRetentionDays,
	}
}

// Run は保持期間を超過した発行記録を1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	before := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.tokens.DeleteStale(ctx, before)
	if err != nil {
		j.logger.Error("refresh token cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("リフレッシュトークンの削除に失敗しました: %w", err)
	}

	j.metrics.RecordTokensPurged(deleted)
	j.logger.Info("refresh token cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("before", before),
	)
	return nil
}

// Start は起動直後に1回実行し、その後 interval ごとに実行する。
// ctxがキャンセルされるまでブロックする。個々の失敗はログに残して継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	run := func() {
		if err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("cleanup job will retry on next tick", slog.String("error", err.Error()))
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
