package revalidate

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// defaultAttempts は1シグナルあたりの最大送信回数。
	defaultAttempts = 3
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 100 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 2 * time.Second
)

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回100ms、2倍ずつ増加、最大2秒。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// RetryPublisher はブローカーの一時的な失敗に備えて送信を再試行するPublisher。
type RetryPublisher struct {
	next     Publisher
	attempts int
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRetryPublisher はnextをラップしたRetryPublisherを生成する。
// attemptsが0以下の場合はデフォルト値3を使用する。
func NewRetryPublisher(next Publisher, attempts int) *RetryPublisher {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &RetryPublisher{next: next, attempts: attempts, sleep: sleepContext}
}

// Publish は成功するか試行回数を使い切るまで送信を繰り返す。
// ctxがキャンセルされた場合は待機を打ち切ってctxのエラーを返す。
func (p *RetryPublisher) Publish(ctx context.Context, signal Signal) error {
	var err error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(attempt - 1)
			slog.Debug("retrying revalidate signal",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
			if serr := p.sleep(ctx, delay); serr != nil {
				return serr
			}
		}
		if err = p.next.Publish(ctx, signal); err == nil {
			return nil
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", p.attempts, err)
}

// Close はラップしたPublisherを閉じる。
func (p *RetryPublisher) Close() error {
	return p.next.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
