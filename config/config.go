// Package config handles collector configuration: a YAML file with
// environment expansion, overridden by well-known environment
// variables for containerized deployments.
package config

import (
	"fmt"
	"time"
)

// Config is the root collector configuration.
type Config struct {
	// Host is the HTTP bind address. Empty binds all interfaces.
	Host string `yaml:"host"`
	// Port is the HTTP listen port (default 8000).
	Port int `yaml:"port"`
	// BaseDir is where version.json is looked up (default ".").
	BaseDir string `yaml:"basedir"`
	// Throttler selects the rule set and product allow-list.
	Throttler ThrottlerConfig `yaml:"throttler"`
	// CrashMover configures the save/publish pipeline.
	CrashMover CrashMoverConfig `yaml:"crashmover"`
}

// ThrottlerConfig selects the throttling rule set by name.
type ThrottlerConfig struct {
	// Rules is the rule set name: "mozilla" (default) or "accept_all".
	Rules string `yaml:"rules"`
	// Products is the product allow-list name: "mozilla" (default)
	// or "all".
	Products string `yaml:"products"`
}

// CrashMoverConfig configures the crash mover and its sinks.
type CrashMoverConfig struct {
	// MaxAttempts bounds the save and publish retry loops (default 5).
	MaxAttempts int `yaml:"max_attempts"`
	// RetrySleep is the constant wait between attempts (default 2s).
	RetrySleep Duration `yaml:"retry_sleep"`
	// Workers is the worker pool size (default 1).
	Workers int `yaml:"workers"`
	// QueueSize is the job queue capacity (default 512).
	QueueSize int `yaml:"queue_size"`
	// ShutdownGrace bounds queue draining at shutdown (default 30s).
	ShutdownGrace Duration `yaml:"shutdown_grace"`
	// CrashStorage selects and configures the store backend.
	CrashStorage StorageConfig `yaml:"crashstorage"`
	// CrashPublish selects and configures the publish backend.
	CrashPublish PublishConfig `yaml:"crashpublish"`
}

// StorageConfig configures the object-store backend.
type StorageConfig struct {
	// Class is the backend name: "s3", "gcs", or "noop" (default).
	Class string `yaml:"class"`
	// BucketName is the bucket crash reports are written to.
	BucketName string `yaml:"bucket_name"`
	// Region is the bucket region (S3).
	Region string `yaml:"region"`
	// EndpointURL points at an S3-compatible endpoint (MinIO,
	// localstack). Empty uses the provider default.
	EndpointURL string `yaml:"endpoint_url"`
	// AccessKey and SecretAccessKey are static credentials (S3).
	// Empty uses the provider default credential chain.
	AccessKey       string `yaml:"access_key"`
	SecretAccessKey string `yaml:"secret_access_key"`
	// S3PathStyle forces path-style bucket addressing.
	S3PathStyle bool `yaml:"s3_path_style"`
}

// PublishConfig configures the notification-queue backend.
type PublishConfig struct {
	// Class is the backend name: "pubsub", "nats", "redis",
	// "webhook", or "noop" (default).
	Class string `yaml:"class"`
	// ProjectID and TopicName address a Pub/Sub topic.
	ProjectID string `yaml:"project_id"`
	TopicName string `yaml:"topic_name"`
	// URL is the broker connection URL (NATS, Redis) or the endpoint
	// URL (webhook).
	URL string `yaml:"url"`
	// QueueName is the queue/subject name (NATS, Redis).
	QueueName string `yaml:"queue_name"`
	// Timeout is the per-publish timeout (default 5s).
	Timeout Duration `yaml:"timeout"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		BaseDir: ".",
		CrashMover: CrashMoverConfig{
			CrashStorage: StorageConfig{Class: "noop"},
			CrashPublish: PublishConfig{Class: "noop"},
		},
	}
}

// Validate rejects backend names nothing can be built from.
func (c *Config) Validate() error {
	switch c.CrashMover.CrashStorage.Class {
	case "", "noop", "s3", "gcs":
	default:
		return fmt.Errorf("unknown crash storage class %q", c.CrashMover.CrashStorage.Class)
	}
	switch c.CrashMover.CrashPublish.Class {
	case "", "noop", "pubsub", "nats", "redis", "webhook":
	default:
		return fmt.Errorf("unknown crash publish class %q", c.CrashMover.CrashPublish.Class)
	}
	return nil
}
