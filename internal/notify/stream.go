package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/spec-kit/case-service/internal/config"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/outbox"
)

// StreamChannel publishes case events to Kafka, keyed by case id so events of
// one case stay ordered within a partition.
type StreamChannel struct {
	producer sarama.SyncProducer
	topic    string
}

// NewStreamChannel wraps an existing producer.
func NewStreamChannel(producer sarama.SyncProducer, topic string) *StreamChannel {
	return &StreamChannel{producer: producer, topic: topic}
}

// NewSyncProducer dials the configured brokers.
func NewSyncProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	kc := sarama.NewConfig()
	if cfg.ClientID != "" {
		kc.ClientID = cfg.ClientID
	}
	kc.Net.DialTimeout = 10 * time.Second
	kc.Net.ReadTimeout = 15 * time.Second
	kc.Net.WriteTimeout = 15 * time.Second
	kc.Metadata.Retry.Max = 1
	kc.Producer.RequiredAcks = sarama.WaitForAll
	kc.Producer.Return.Successes = true
	kc.Producer.Return.Errors = true
	// the outbox owns retries
	kc.Producer.Retry.Max = 0
	kc.Producer.Timeout = 10 * time.Second
	kc.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// Deliver implements outbox.Channel.
func (s *StreamChannel) Deliver(ctx context.Context, entry domain.OutboxEntry) error {
	payload, err := outbox.Decode[outbox.StreamPayload](entry)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(payload.Key),
		Value: sarama.ByteEncoder(payload.Value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(payload.Event)},
			{Key: []byte("outbox_id"), Value: []byte(entry.ID)},
		},
		Timestamp: entry.CreatedAt,
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", s.topic, err)
	}
	return nil
}
