// Package nats implements the crash id publisher for NATS JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"

	gonats "github.com/nats-io/nats.go"

	"github.com/pithecene-io/fissure/health"
	"github.com/pithecene-io/fissure/publish"
)

// StreamName is the durable stream that captures crash ids.
const StreamName = "CRASH_IDS"

// DefaultSubject is the default subject crash ids are published to.
const DefaultSubject = "crashids.submitted"

// Config configures the NATS publisher.
type Config struct {
	// URL is the NATS server URL (required).
	URL string
	// Subject is the JetStream subject (default crashids.submitted).
	Subject string
}

// Publisher posts crash ids to a JetStream subject.
type Publisher struct {
	config Config
	conn   *gonats.Conn
	js     gonats.JetStreamContext
}

// New connects to NATS, initialises JetStream, and idempotently
// provisions the crash id stream.
func New(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats publisher requires a URL")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}

	conn, err := gonats.Connect(cfg.URL,
		gonats.RetryOnFailedConnect(true), gonats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	p := &Publisher{config: cfg, conn: conn, js: js}
	if err := p.provisionStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// provisionStream idempotently creates the crash id stream.
func (p *Publisher) provisionStream() error {
	_, err := p.js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gonats.ErrStreamNotFound) {
		return fmt.Errorf("failed to check stream info: %w", err)
	}

	_, err = p.js.AddStream(&gonats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"crashids.>"},
		Storage:   gonats.FileStorage,
		Retention: gonats.LimitsPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
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
func (p *Publisher) CheckHealth(_ context.Context, state *health.State) {
	if !p.conn.IsConnected() {
		state.AddError("crash publish: nats: not connected")
		return
	}
	if _, err := p.js.StreamInfo(StreamName); err != nil {
		state.AddError(fmt.Sprintf("crash publish: nats: %s", err))
	}
}

func (p *Publisher) send(ctx context.Context, body string) error {
	_, err := p.js.Publish(p.config.Subject, []byte(body), gonats.Context(ctx))
	if err != nil {
		return fmt.Errorf("nats publish to %s: %w", p.config.Subject, err)
	}
	return nil
}

// Close drains the connection, flushing pending acknowledgments.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

// Verify Publisher implements publish.Publisher.
var _ publish.Publisher = (*Publisher)(nil)
