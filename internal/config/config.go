// Package config loads process configuration: built-in defaults, then an
// optional YAML file, then a .env file (outside production), then
// environment variables named by `env` struct tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hostelcore/internal/blob"
	"hostelcore/internal/core"
)

// EnvProduction disables .env loading.
const EnvProduction = "prod"

// Config is the full process configuration.
type Config struct {
	Env string `yaml:"env" env:"HOSTELCORE_ENV"`

	Storage struct {
		Driver      string `yaml:"driver" env:"HOSTELCORE_STORAGE_DRIVER" validate:"oneof=memory sqlite postgres"`
		SQLitePath  string `yaml:"sqlite_path" env:"HOSTELCORE_SQLITE_PATH"`
		PostgresDSN string `yaml:"postgres_dsn" env:"HOSTELCORE_POSTGRES_DSN"`
	} `yaml:"storage"`

	Blob struct {
		Driver        string        `yaml:"driver" env:"HOSTELCORE_BLOB_DRIVER" validate:"oneof=fs s3 memory"`
		FSRoot        string        `yaml:"fs_root" env:"HOSTELCORE_BLOB_FS_ROOT"`
		PublicBaseURL string        `yaml:"public_base_url" env:"HOSTELCORE_BLOB_PUBLIC_BASE_URL"`
		S3            blob.S3Config `yaml:"s3"`
	} `yaml:"blob"`

	Workflow struct {
		TransferCapacity string        `yaml:"transfer_capacity" env:"HOSTELCORE_TRANSFER_CAPACITY" validate:"oneof=observed rebalance"`
		AutoDismissAfter time.Duration `yaml:"auto_dismiss_after" env:"HOSTELCORE_AUTO_DISMISS_AFTER" validate:"gt=0"`
		ConflictRetries  int           `yaml:"conflict_retries" env:"HOSTELCORE_CONFLICT_RETRIES" validate:"gte=0,lte=10"`
	} `yaml:"workflow"`

	Logging struct {
		Level  string `yaml:"level" env:"HOSTELCORE_LOG_LEVEL" validate:"oneof=debug info warn error"`
		Pretty bool   `yaml:"pretty" env:"HOSTELCORE_LOG_PRETTY"`
	} `yaml:"logging"`

	HTTP struct {
		Addr            string        `yaml:"addr" env:"HOSTELCORE_HTTP_ADDR" validate:"required"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HOSTELCORE_HTTP_SHUTDOWN_TIMEOUT" validate:"gt=0"`
	} `yaml:"http"`

	Kafka struct {
		Brokers []string `yaml:"brokers" env:"HOSTELCORE_KAFKA_BROKERS"`
		Topic   string   `yaml:"topic" env:"HOSTELCORE_KAFKA_TOPIC"`
	} `yaml:"kafka"`

	Metrics struct {
		Enabled   bool   `yaml:"enabled" env:"HOSTELCORE_METRICS_ENABLED"`
		Namespace string `yaml:"namespace" env:"HOSTELCORE_METRICS_NAMESPACE"`
	} `yaml:"metrics"`
}

// Load builds the configuration. A missing file at path is not an error;
// an unreadable or malformed one is. The .env file is read from the working
// directory unless HOSTELCORE_ENV is "prod".
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if os.Getenv("HOSTELCORE_ENV") != EnvProduction && cfg.Env != EnvProduction {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if err := processStructFields(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg := &Config{Env: "development"}
	cfg.Storage.Driver = string(core.StorageSQLite)
	cfg.Storage.SQLitePath = "./hostelcore.db"
	cfg.Blob.Driver = string(blob.DriverFilesystem)
	cfg.Blob.FSRoot = "./attachments"
	cfg.Blob.PublicBaseURL = "/attachments"
	cfg.Workflow.TransferCapacity = string(core.TransferCapacityObserved)
	cfg.Workflow.AutoDismissAfter = core.DefaultAutoDismissDelay
	cfg.Workflow.ConflictRetries = 2
	cfg.Logging.Level = "info"
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	cfg.Kafka.Topic = "hostel-outcomes"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "hostelcore"
	return cfg
}

// Validate checks field constraints and the cross-field requirements of the
// selected drivers.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	switch {
	case c.Storage.Driver == string(core.StorageSQLite) && c.Storage.SQLitePath == "":
		return errors.New("storage.sqlite_path is required for the sqlite driver")
	case c.Storage.Driver == string(core.StoragePostgres) && c.Storage.PostgresDSN == "":
		return errors.New("storage.postgres_dsn is required for the postgres driver")
	case c.Blob.Driver == string(blob.DriverS3) && c.Blob.S3.Bucket == "":
		return errors.New("blob.s3.bucket is required for the s3 driver")
	case len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) == "":
		return errors.New("kafka.topic is required when brokers are set")
	}
	return nil
}

// StorageOptions returns the persistence backend selection.
func (c *Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig returns the attachment backend selection.
func (c *Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver:        blob.Driver(c.Blob.Driver),
		FSRoot:        c.Blob.FSRoot,
		PublicBaseURL: c.Blob.PublicBaseURL,
		S3:            c.Blob.S3,
	}
}

// ServiceOptions returns the workflow options derived from the configuration.
func (c *Config) ServiceOptions() []core.Option {
	return []core.Option{
		core.WithTransferCapacity(core.TransferCapacityMode(c.Workflow.TransferCapacity)),
		core.WithConflictRetries(c.Workflow.ConflictRetries),
	}
}

// KafkaEnabled reports whether outcome events go to a broker.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
