// Package redis implements a Redis-backed crash id queue.
//
// Crash ids are pushed onto a Redis list; downstream processors pop
// from the other end. Useful for single-node deployments that already
// run Redis and don't want a cloud queue.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/fissure/health"
	"github.com/pithecene-io/fissure/publish"
)

// DefaultQueue is the default list key.
const DefaultQueue = "fissure:crash_ids"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis publisher.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Queue is the list key crash ids are pushed onto.
	Queue string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
}

// Publisher pushes crash ids onto a Redis list with LPUSH.
type Publisher struct {
	config Config
	client *goredis.Client
}

// New creates a Redis publisher from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis publisher requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis publisher: invalid URL: %w", err)
	}

	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Publisher{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// PublishCrashID implements publish.Publisher.
func (p *Publisher) PublishCrashID(ctx context.Context, crashID string) error {
	return p.push(ctx, crashID)
}

// VerifyTopic implements publish.Publisher.
func (p *Publisher) VerifyTopic(ctx context.Context) error {
	return p.push(ctx, publish.ProbeBody)
}

// CheckHealth implements publish.Publisher.
func (p *Publisher) CheckHealth(ctx context.Context, state *health.State) {
	pingCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	if err := p.client.Ping(pingCtx).Err(); err != nil {
		state.AddError(fmt.Sprintf("crash publish: redis: %s", err))
	}
}

func (p *Publisher) push(ctx context.Context, body string) error {
	pushCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	if err := p.client.LPush(pushCtx, p.config.Queue, body).Err(); err != nil {
		return fmt.Errorf("redis: push to %s: %w", p.config.Queue, err)
	}
	return nil
}

// Close releases publisher resources.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Verify Publisher implements publish.Publisher.
var _ publish.Publisher = (*Publisher)(nil)
