package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
		}

		expanded := ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}

	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the well-known environment variables.
// These follow the conventions of the deployment tooling and win over
// file values.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Host, "HOST")
	setInt(&cfg.Port, "PORT")
	setString(&cfg.BaseDir, "BASEDIR")

	setString(&cfg.Throttler.Rules, "BREAKPAD_THROTTLER_RULES")
	setString(&cfg.Throttler.Products, "BREAKPAD_THROTTLER_PRODUCTS")

	setInt(&cfg.CrashMover.MaxAttempts, "CRASHMOVER_MAX_ATTEMPTS")
	setSeconds(&cfg.CrashMover.RetrySleep, "CRASHMOVER_RETRY_SLEEP_SECONDS")
	setInt(&cfg.CrashMover.Workers, "CRASHMOVER_WORKERS")
	setInt(&cfg.CrashMover.QueueSize, "CRASHMOVER_QUEUE_SIZE")

	store := &cfg.CrashMover.CrashStorage
	setString(&store.Class, "CRASHMOVER_CRASHSTORAGE_CLASS")
	setString(&store.BucketName, "CRASHMOVER_CRASHSTORAGE_BUCKET_NAME")
	setString(&store.Region, "CRASHMOVER_CRASHSTORAGE_REGION")
	setString(&store.EndpointURL, "CRASHMOVER_CRASHSTORAGE_ENDPOINT_URL")
	setString(&store.AccessKey, "CRASHMOVER_CRASHSTORAGE_ACCESS_KEY")
	setString(&store.SecretAccessKey, "CRASHMOVER_CRASHSTORAGE_SECRET_ACCESS_KEY")

	pub := &cfg.CrashMover.CrashPublish
	setString(&pub.Class, "CRASHMOVER_CRASHPUBLISH_CLASS")
	setString(&pub.ProjectID, "CRASHMOVER_CRASHPUBLISH_PROJECT_ID")
	setString(&pub.TopicName, "CRASHMOVER_CRASHPUBLISH_TOPIC_NAME")
	setString(&pub.URL, "CRASHMOVER_CRASHPUBLISH_URL")
	setString(&pub.QueueName, "CRASHMOVER_CRASHPUBLISH_QUEUE_NAME")
	setSeconds(&pub.Timeout, "CRASHMOVER_CRASHPUBLISH_TIMEOUT")
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		*dst = parsed
	}
}

func setSeconds(dst *Duration, key string) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		dst.Duration = time.Duration(parsed) * time.Second
	}
}
