// Package gcs implements the object-store client for Google Cloud
// Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"

	gstorage "cloud.google.com/go/storage"

	"github.com/pithecene-io/fissure/storage"
)

// Config holds GCS client configuration.
type Config struct {
	// Bucket is the GCS bucket name (required).
	Bucket string
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("GCS bucket is required")
	}
	return nil
}

// Client is a GCS-backed object-store client. Credentials come from
// the application-default chain.
type Client struct {
	client *gstorage.Client
	bucket *gstorage.BucketHandle
	name   string
}

// New creates a GCS client for the configured bucket.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &Client{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		name:   cfg.Bucket,
	}, nil
}

// PutObject implements storage.Client.
func (c *Client) PutObject(ctx context.Context, key string, body []byte) error {
	writer := c.bucket.Object(key).NewWriter(ctx)
	if _, err := writer.Write(body); err != nil {
		writer.Close()
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	return nil
}

// CheckBucket implements storage.Client.
func (c *Client) CheckBucket(ctx context.Context) error {
	if _, err := c.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %s: %w", c.name, err)
	}
	return nil
}

// Close implements storage.Client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Verify Client implements storage.Client.
var _ storage.Client = (*Client)(nil)
