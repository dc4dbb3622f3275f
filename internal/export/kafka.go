package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"actpipe/internal/model"
)

const publishBatch = 500

// KafkaPublisher publishes enriched records keyed by user id. Pure-Go client
// (segmentio/kafka-go).
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

// NewKafkaPublisherWith is only for tests to inject a fake writer.
func NewKafkaPublisherWith(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish sends records in batches. It returns the number of records acknowledged.
func (k *KafkaPublisher) Publish(ctx context.Context, records []model.EnrichedRecord) (int, error) {
	sent := 0
	batch := make([]kafka.Message, 0, publishBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := k.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("publish records: %w", err)
		}
		sent += len(batch)
		batch = batch[:0]
		return nil
	}
	for i := range records {
		b, err := json.Marshal(&records[i])
		if err != nil {
			return sent, fmt.Errorf("marshal: %w", err)
		}
		batch = append(batch, kafka.Message{Key: []byte(records[i].UserID), Value: b})
		if len(batch) == publishBatch {
			if err := flush(); err != nil {
				return sent, err
			}
		}
	}
	if err := flush(); err != nil {
		return sent, err
	}
	return sent, nil
}

func (k *KafkaPublisher) Close() error {
	if c, ok := k.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
