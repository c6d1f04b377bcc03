package revalidate

import (
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Config はPublisherの選択に必要な設定。
type Config struct {
	Driver       string
	Channel      string
	RedisClient  *redis.Client
	KafkaBrokers []string
}

// New はドライバー名に応じたPublisherを生成する。空の場合はログ出力のみ。
// ブローカーを使うドライバーは送信失敗時に再試行する。
func New(cfg Config) (Publisher, error) {
	switch cfg.Driver {
	case "", DriverLog:
		return LogPublisher{}, nil
	case DriverRedis:
		if cfg.RedisClient == nil {
			return nil, fmt.Errorf("revalidate driver %q requires a redis client", cfg.Driver)
		}
		return NewRetryPublisher(NewRedisPublisher(cfg.RedisClient, cfg.Channel), 0), nil
	case DriverKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("revalidate driver %q requires kafka brokers", cfg.Driver)
		}
		return NewRetryPublisher(NewKafkaPublisher(cfg.KafkaBrokers, cfg.Channel), 0), nil
	default:
		return nil, fmt.Errorf("unknown revalidate driver %q", cfg.Driver)
	}
}
