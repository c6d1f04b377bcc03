package revalidate

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultChannel はRedis pub/subのチャンネル名とKafkaのトピック名の既定値。
const DefaultChannel = "rentals.revalidate"

type redisPublishCloser interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher はRedis pub/subにシグナルを発行する。
type RedisPublisher struct {
	client  redisPublishCloser
	channel string
}

// NewRedisPublisher はRedisPublisherを生成する。channelが空の場合は既定値を使用する。
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return newRedisPublisher(client, channel)
}

func newRedisPublisher(client redisPublishCloser, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish はシグナルをJSONでチャンネルに送信する。
func (p *RedisPublisher) Publish(ctx context.Context, signal Signal) error {
	data, err := signal.encode()
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Close はRedisクライアントを閉じる。
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
