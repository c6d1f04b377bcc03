// Package revalidate はデータ変更時に画面キャッシュの無効化シグナルを発行する。
// 購読側（フロントエンドやCDN）は受け取ったパスのキャッシュを破棄する。
package revalidate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// 無効化対象のパス
const (
	PathHome       = "/"
	PathProperties = "/properties"
	PathAdminUsers = "/admin/users"
)

// ドライバー名
const (
	DriverLog   = "log"
	DriverRedis = "redis"
	DriverKafka = "kafka"
)

// Signal は無効化シグナルを表す。
type Signal struct {
	Reason string    `json:"reason"`
	Paths  []string  `json:"paths"`
	At     time.Time `json:"at"`
}

// NewSignal は現在時刻のSignalを生成する。
func NewSignal(reason string, paths ...string) Signal {
	return Signal{Reason: reason, Paths: paths, At: time.Now().UTC()}
}

func (s Signal) encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signal: %w", err)
	}
	return data, nil
}

// Publisher は無効化シグナルの発行先。
type Publisher interface {
	Publish(ctx context.Context, signal Signal) error
	Close() error
}

// Notify はシグナルを発行し、失敗してもログに残すだけで呼び出し元には返さない。
// データの変更自体は完了しているため、シグナルの失敗で操作を失敗させない。
func Notify(ctx context.Context, p Publisher, reason string, paths ...string) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, NewSignal(reason, paths...)); err != nil {
		slog.Warn("failed to publish revalidate signal",
			slog.String("reason", reason),
			slog.String("paths", strings.Join(paths, ",")),
			slog.String("error", err.Error()),
		)
	}
}

// LogPublisher はシグナルを構造化ログに出力するだけのPublisher。
type LogPublisher struct{}

// Publish はシグナルをログに出力する。
func (LogPublisher) Publish(_ context.Context, signal Signal) error {
	slog.Info("revalidate",
		slog.String("reason", signal.Reason),
		slog.String("paths", strings.Join(signal.Paths, ",")),
	)
	return nil
}

// Close は何もしない。
func (LogPublisher) Close() error { return nil }
