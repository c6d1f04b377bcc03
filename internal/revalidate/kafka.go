package revalidate

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaWriteTimeout = 10 * time.Second

// kafka.Writerの既定BatchTimeout(1秒)はリクエストごとの1メッセージ発行をそのまま遅延させる。
const kafkaBatchTimeout = 5 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher はKafkaトピックにシグナルを発行する。
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher はKafkaPublisherを生成する。topicが空の場合は既定値を使用する。
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultChannel
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           kafkaBatchTimeout,
		WriteTimeout:           kafkaWriteTimeout,
		AllowAutoTopicCreation: true,
	}}
}

// Publish はシグナルをJSONで1メッセージとして書き込む。キーは操作名。
func (p *KafkaPublisher) Publish(ctx context.Context, signal Signal) error {
	data, err := signal.encode()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(signal.Reason),
		Value: data,
		Time:  signal.At,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close はライターを閉じる。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
