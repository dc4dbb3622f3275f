package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"actpipe/internal/model"
)

// kafkaConsumer abstracts *ck.Consumer for testability.
type kafkaConsumer interface {
	SubscribeTopics(topics []string, cb ck.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*ck.Message, error)
	Commit() ([]ck.TopicPartition, error)
	Close() error
}

type KafkaConfig struct {
	Brokers     string
	GroupID     string
	Topic       string
	MaxRecords  int
	IdleTimeout time.Duration
}

// Kafka reads one batch of JSON-encoded records from a topic. Offsets are committed
// only through Ack, so an unacknowledged batch is redelivered as a whole.
type Kafka struct {
	cfg        KafkaConfig
	consumer   kafkaConsumer
	log        *slog.Logger
	subscribed bool
	// Skipped counts messages of the last batch that were not JSON objects.
	Skipped int
}

func NewKafka(cfg KafkaConfig, log *slog.Logger) (*Kafka, error) {
	c, err := ck.NewConsumer(&ck.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.GroupID,
		"enable.auto.commit": false,
		"isolation.level":    "read_committed",
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: consumer: %v", ErrSourceUnreadable, err)
	}
	return NewKafkaWith(cfg, c, log), nil
}

// NewKafkaWith is only for tests to inject a fake consumer.
func NewKafkaWith(cfg KafkaConfig, c kafkaConsumer, log *slog.Logger) *Kafka {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Second
	}
	return &Kafka{cfg: cfg, consumer: c, log: log}
}

func (k *Kafka) Name() string { return "kafka:" + k.cfg.Topic }

// Read consumes until MaxRecords messages were read or no message arrived within
// IdleTimeout.
func (k *Kafka) Read(ctx context.Context) ([]model.RawRecord, error) {
	if !k.subscribed {
		if err := k.consumer.SubscribeTopics([]string{k.cfg.Topic}, nil); err != nil {
			return nil, fmt.Errorf("%w: subscribe: %v", ErrSourceUnreadable, err)
		}
		k.subscribed = true
	}
	k.Skipped = 0
	present := map[string]struct{}{}
	var out []model.RawRecord
	for k.cfg.MaxRecords <= 0 || len(out) < k.cfg.MaxRecords {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := k.consumer.ReadMessage(k.cfg.IdleTimeout)
		if err != nil {
			var kerr ck.Error
			if errors.As(err, &kerr) && kerr.Code() == ck.ErrTimedOut {
				break
			}
			return nil, fmt.Errorf("%w: read: %v", ErrSourceUnreadable, err)
		}
		m, err := decodeObject(msg.Value)
		if err != nil {
			k.Skipped++
			k.log.Warn("skipping undecodable message", "topic", k.cfg.Topic, "offset", msg.TopicPartition.Offset.String(), "error", err)
			continue
		}
		for c := range m {
			present[c] = struct{}{}
		}
		out = append(out, model.RawRecordFromMap(m))
	}
	if len(out) > 0 {
		if err := checkColumns(present); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Ack commits the offsets of everything read so far.
func (k *Kafka) Ack(_ context.Context) error {
	if _, err := k.consumer.Commit(); err != nil {
		var kerr ck.Error
		if errors.As(err, &kerr) && kerr.Code() == ck.ErrNoOffset {
			return nil
		}
		return fmt.Errorf("commit offsets: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.consumer.Close() }
