// Package pubsub implements the crash id publisher for Google Cloud
// Pub/Sub.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	gpubsub "cloud.google.com/go/pubsub"

	"github.com/pithecene-io/fissure/health"
	"github.com/pithecene-io/fissure/publish"
)

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the Pub/Sub publisher.
type Config struct {
	// ProjectID is the GCP project owning the topic (required).
	ProjectID string
	// TopicName is the topic crash ids are published to (required).
	TopicName string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return errors.New("pubsub project id is required")
	}
	if c.TopicName == "" {
		return errors.New("pubsub topic name is required")
	}
	return nil
}

// Publisher posts crash ids to a Pub/Sub topic.
type Publisher struct {
	config Config
	client *gpubsub.Client
	topic  *gpubsub.Topic
}

// New creates a Pub/Sub publisher. The topic must already exist;
// CheckHealth reports when it does not.
func New(ctx context.Context, cfg Config) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := gpubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	return &Publisher{
		config: cfg,
		client: client,
		topic:  client.Topic(cfg.TopicName),
	}, nil
}

// PublishCrashID implements publish.Publisher.
func (p *Publisher) PublishCrashID(ctx context.Context, crashID string) error {
	return p.send(ctx, crashID)
}

// VerifyTopic implements publish.Publisher.
func (p *Publisher) VerifyTopic(ctx context.Context) error {
	return p.send(ctx, publish.ProbeBody)
}

// CheckHealth implements publish.Publisher.
func (p *Publisher) CheckHealth(ctx context.Context, state *health.State) {
	exists, err := p.topic.Exists(ctx)
	if err != nil {
		state.AddError(fmt.Sprintf("crash publish: pubsub: %s", err))
		return
	}
	if !exists {
		state.AddError(fmt.Sprintf(
			"crash publish: pubsub: topic %s does not exist", p.config.TopicName))
	}
}

// send publishes body and waits for the server ack. Publishing is
// fire-and-wait rather than batched; volume is one message per
// accepted crash.
func (p *Publisher) send(ctx context.Context, body string) error {
	sendCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	result := p.topic.Publish(sendCtx, &gpubsub.Message{Data: []byte(body)})
	if _, err := result.Get(sendCtx); err != nil {
		return fmt.Errorf("pubsub publish to %s: %w", p.config.TopicName, err)
	}
	return nil
}

// Close flushes pending publishes and shuts down the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// Verify Publisher implements publish.Publisher.
var _ publish.Publisher = (*Publisher)(nil)
