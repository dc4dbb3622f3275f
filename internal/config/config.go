// Package config loads the run configuration: defaults, then an optional YAML
// file, then ACTPIPE_ environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"actpipe/internal/model"
)

const EnvPrefix = "ACTPIPE"

type Config struct {
	Batch     Batch     `mapstructure:"batch"`
	Source    Source    `mapstructure:"source"`
	Output    Output    `mapstructure:"output"`
	State     State     `mapstructure:"state"`
	Logging   Logging   `mapstructure:"logging"`
	Storage   Storage   `mapstructure:"storage"`
	Warehouse Warehouse `mapstructure:"warehouse"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Lineage   Lineage   `mapstructure:"lineage"`
	Metrics   Metrics   `mapstructure:"metrics"`
}

// Batch drives the synthetic generator.
type Batch struct {
	Size  int    `mapstructure:"size" validate:"gt=0"`
	Start string `mapstructure:"start" validate:"required"`
	End   string `mapstructure:"end" validate:"required"`
	Seed  int64  `mapstructure:"seed"`
}

// StartTime and EndTime are valid once Load has succeeded.
func (b Batch) StartTime() time.Time {
	t, _ := model.ParseTimestamp(b.Start)
	return t
}

func (b Batch) EndTime() time.Time {
	t, _ := model.ParseTimestamp(b.End)
	return t
}

type Source struct {
	Kind  string      `mapstructure:"kind" validate:"oneof=csv json kafka"`
	Path  string      `mapstructure:"path" validate:"required_unless=Kind kafka"`
	Kafka SourceKafka `mapstructure:"kafka"`
}

type SourceKafka struct {
	Topic       string        `mapstructure:"topic"`
	GroupID     string        `mapstructure:"group_id"`
	MaxRecords  int           `mapstructure:"max_records" validate:"gte=0"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
}

type Output struct {
	DataDir    string   `mapstructure:"data_dir" validate:"required"`
	MetricsDir string   `mapstructure:"metrics_dir" validate:"required"`
	ReportsDir string   `mapstructure:"reports_dir" validate:"required"`
	Formats    []string `mapstructure:"formats" validate:"min=1,dive,oneof=json csv parquet"`
}

type State struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory pebble"`
	Dir     string `mapstructure:"dir" validate:"required_if=Backend pebble"`
}

type Logging struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	File   string `mapstructure:"file"`
}

type Storage struct {
	Enabled   bool     `mapstructure:"enabled"`
	Endpoint  string   `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	AccessKey string   `mapstructure:"access_key" validate:"required_if=Enabled true"`
	SecretKey string   `mapstructure:"secret_key" validate:"required_if=Enabled true"`
	Bucket    string   `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Prefix    string   `mapstructure:"prefix"`
	UseSSL    bool     `mapstructure:"use_ssl"`
	Objects   []string `mapstructure:"objects" validate:"dive,oneof=json csv parquet"`
}

type Warehouse struct {
	Enabled     bool   `mapstructure:"enabled"`
	Path        string `mapstructure:"path"`
	BuildModels bool   `mapstructure:"build_models"`
	ModelTable  string `mapstructure:"model_table" validate:"required"`
}

type Kafka struct {
	Brokers       []string `mapstructure:"brokers"`
	RecordsTopic  string   `mapstructure:"records_topic"`
	ManifestTopic string   `mapstructure:"manifest_topic"`
}

type Lineage struct {
	ManifestSink string `mapstructure:"manifest_sink" validate:"oneof=file kafka both"`
	ManifestDir  string `mapstructure:"manifest_dir" validate:"required_unless=ManifestSink kafka"`
}

type Metrics struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" validate:"omitempty,url"`
	Job            string `mapstructure:"job" validate:"required"`
}

// SetDefaults registers every default value on v. Defaults also make each key
// visible to environment lookup during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("batch.size", 8000)
	v.SetDefault("batch.start", "2022-01-01T10:30:00")
	v.SetDefault("batch.end", "2024-12-31T23:59:00")
	v.SetDefault("batch.seed", 42)

	v.SetDefault("source.kind", "csv")
	v.SetDefault("source.path", "data/user_activity.csv")
	v.SetDefault("source.kafka.topic", "user-activity")
	v.SetDefault("source.kafka.group_id", "actpipe")
	v.SetDefault("source.kafka.max_records", 0)
	v.SetDefault("source.kafka.idle_timeout", 5*time.Second)

	v.SetDefault("output.data_dir", "data/cleaned")
	v.SetDefault("output.metrics_dir", "data/metrics")
	v.SetDefault("output.reports_dir", "data/reports")
	v.SetDefault("output.formats", []string{"json", "csv", "parquet"})

	v.SetDefault("state.backend", "memory")
	v.SetDefault("state.dir", "data/state")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "user-activity")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.objects", []string{"json", "parquet"})

	v.SetDefault("warehouse.enabled", true)
	v.SetDefault("warehouse.path", "")
	v.SetDefault("warehouse.build_models", true)
	v.SetDefault("warehouse.model_table", "product_schema")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.records_topic", "")
	v.SetDefault("kafka.manifest_topic", "actpipe-manifest")

	v.SetDefault("lineage.manifest_sink", "file")
	v.SetDefault("lineage.manifest_dir", "data/lineage")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "actpipe")
}

// BindEnv makes ACTPIPE_SECTION_KEY override section.key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ReadFile reads path, or ./actpipe.yaml when path is empty. A missing default
// file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("actpipe")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if err := c.check(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c Config) check() error {
	start, ok := model.ParseTimestamp(c.Batch.Start)
	if !ok {
		return fmt.Errorf("batch.start: unparsable timestamp %q", c.Batch.Start)
	}
	end, ok := model.ParseTimestamp(c.Batch.End)
	if !ok {
		return fmt.Errorf("batch.end: unparsable timestamp %q", c.Batch.End)
	}
	if !start.Before(end) {
		return fmt.Errorf("batch.start %s must be before batch.end %s", c.Batch.Start, c.Batch.End)
	}
	if c.Source.Kind == "kafka" {
		if len(c.Kafka.Brokers) == 0 || c.Source.Kafka.Topic == "" {
			return errors.New("source.kind kafka needs kafka.brokers and source.kafka.topic")
		}
	}
	if c.Lineage.ManifestSink != "file" && (len(c.Kafka.Brokers) == 0 || c.Kafka.ManifestTopic == "") {
		return fmt.Errorf("lineage.manifest_sink %s needs kafka.brokers and kafka.manifest_topic", c.Lineage.ManifestSink)
	}
	if c.Kafka.RecordsTopic != "" && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.records_topic needs kafka.brokers")
	}
	return nil
}
