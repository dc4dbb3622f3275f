// Package lineage publishes and reads the manifest describing a completed run.
package lineage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"
)

// LatestFile is the name of the file-backed manifest.
const LatestFile = "manifest.latest.json"

// DefaultKey is the record key of the manifest on a compacted topic.
const DefaultKey = "actpipe-manifest-latest"

// ErrNoManifest is returned when no manifest has been published yet.
var ErrNoManifest = errors.New("no manifest published")

// Output is one persisted artifact of a run.
type Output struct {
	Format string `json:"format"`
	Path   string `json:"path"`
	Rows   int    `json:"rows"`
	SHA256 string `json:"sha256"`
}

type Manifest struct {
	RunID        string    `json:"runId"`
	RunDate      string    `json:"runDate"`
	CreatedAt    time.Time `json:"createdAt"`
	Outputs      []Output  `json:"outputs"`
	MetricsFiles []Output  `json:"metricsFiles"`
	Warnings     []string  `json:"warnings,omitempty"`
}

type Publisher interface {
	PublishLatest(ctx context.Context, m Manifest) error
}

type Reader interface {
	ReadLatest(ctx context.Context) (Manifest, error)
}

// MultiPublisher publishes to every publisher in order and stops at the first error.
type MultiPublisher []Publisher

func (mp MultiPublisher) PublishLatest(ctx context.Context, m Manifest) error {
	for _, p := range mp {
		if err := p.PublishLatest(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

type FilesystemManifest struct {
	baseDir string
}

func NewFilesystemManifest(baseDir string) *FilesystemManifest {
	return &FilesystemManifest{baseDir: baseDir}
}

// PublishLatest replaces the latest manifest atomically.
func (f *FilesystemManifest) PublishLatest(_ context.Context, m Manifest) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(f.baseDir, ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&m); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(f.baseDir, LatestFile)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (f *FilesystemManifest) ReadLatest(_ context.Context) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(f.baseDir, LatestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, ErrNoManifest
		}
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}

// KafkaManifest publishes the latest manifest as a compacted Kafka record.
type KafkaManifest struct {
	writer kafkaMessageWriter
	key    []byte
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafkaManifest(brokers []string, topic string, key string) *KafkaManifest {
	return &KafkaManifest{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}, key: []byte(key)}
}

// NewKafkaManifestWith is only for tests to inject a fake writer.
func NewKafkaManifestWith(w kafkaMessageWriter, key string) *KafkaManifest {
	return &KafkaManifest{writer: w, key: []byte(key)}
}

func (k *KafkaManifest) PublishLatest(ctx context.Context, m Manifest) error {
	b, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: k.key, Value: b}); err != nil {
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}

// Close releases the underlying writer when it holds connections.
func (k *KafkaManifest) Close() error {
	if c, ok := k.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaReader reads the latest manifest from a compacted topic by scanning it from
// the start and keeping the last record with the manifest key.
type KafkaReader struct {
	newReader func() kafkaMessageReader
	key       []byte
	idle      time.Duration
}

func NewKafkaReader(brokers []string, topic string, key string) *KafkaReader {
	return &KafkaReader{
		newReader: func() kafkaMessageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:   brokers,
				Topic:     topic,
				Partition: 0,
				MinBytes:  1,
				MaxBytes:  10e6,
			})
		},
		key:  []byte(key),
		idle: 10 * time.Second,
	}
}

// NewKafkaReaderWith is only for tests to inject a fake reader.
func NewKafkaReaderWith(r kafkaMessageReader, key string, idle time.Duration) *KafkaReader {
	return &KafkaReader{newReader: func() kafkaMessageReader { return r }, key: []byte(key), idle: idle}
}

func (k *KafkaReader) ReadLatest(ctx context.Context) (Manifest, error) {
	r := k.newReader()
	defer r.Close()

	scanCtx, cancel := context.WithTimeout(ctx, k.idle)
	defer cancel()

	var last Manifest
	found := false
	for {
		m, err := r.ReadMessage(scanCtx)
		if err != nil {
			if scanCtx.Err() != nil && ctx.Err() == nil {
				break
			}
			return Manifest{}, fmt.Errorf("read kafka: %w", err)
		}
		if string(m.Key) != string(k.key) {
			continue
		}
		var man Manifest
		if err := json.Unmarshal(m.Value, &man); err != nil {
			return Manifest{}, fmt.Errorf("unmarshal kafka manifest: %w", err)
		}
		last, found = man, true
	}
	if !found {
		return Manifest{}, ErrNoManifest
	}
	return last, nil
}
