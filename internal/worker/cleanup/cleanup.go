// Package cleanup は失効済みセッション記録の定期削除ジョブを提供する。
// 失効記録は元トークンの有効期限を過ぎれば判定に不要となるため、
// 一定間隔で期限切れのものをまとめて削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/rentals/internal/metrics"
)

// Purger は期限切れ失効記録の削除を抽象化するインターフェース。
// repository.RevocationRepository が満たす。
type Purger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PurgeJob は期限切れの失効記録を削除するジョブ。
type PurgeJob struct {
	store   Purger
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time

	Interval time.Duration // 実行間隔（デフォルト: 1時間）
}

// NewPurgeJob は新しいPurgeJobを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewPurgeJob(store Purger, collector metrics.MetricsCollector, logger *slog.Logger) *PurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeJob{
		store:    store,
		metrics:  metrics.OrNop(collector),
		logger:   logger,
		now:      time.Now,
		Interval: time.Hour,
	}
}

// Run は期限切れの失効記録を1回削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *PurgeJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.store.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("失効記録の削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("失効記録の削除に失敗: %w", err)
	}

	j.metrics.RecordRevocationsPurged(int(deleted))

	j.logger.Info("失効記録の削除が完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行したあと、Intervalごとに Run を繰り返す。
// ctxがキャンセルされるまでブロックする。個々の失敗はログに残して継続する。
func (j *PurgeJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
