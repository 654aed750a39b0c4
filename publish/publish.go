// Package publish announces saved crash ids to downstream processors.
//
// The Publisher interface is what the crash mover consumes after a
// successful store write. Backends live in subpackages: publish/pubsub
// (Google Cloud Pub/Sub), publish/nats (NATS JetStream), publish/redis
// (a Redis list queue), and publish/webhook (HTTP POST).
package publish

import (
	"context"

	"github.com/pithecene-io/fissure/health"
)

// ProbeBody is the message body used by VerifyTopic. Downstream
// consumers must discard it.
const ProbeBody = "test"

// Publisher posts crash ids to a topic or queue.
type Publisher interface {
	// PublishCrashID posts the id as a single message whose body is
	// the UTF-8 bytes of the id, no framing. Transient failures are
	// retried by the caller.
	PublishCrashID(ctx context.Context, crashID string) error

	// VerifyTopic proves the topic is writable by publishing
	// ProbeBody. Invoked once at process start.
	VerifyTopic(ctx context.Context) error

	// CheckHealth appends any reachability problem to state.
	CheckHealth(ctx context.Context, state *health.State)
}

// NoOpPublisher discards crash ids. Used in local development and as
// the default when no backend is configured.
type NoOpPublisher struct{}

// NewNoOpPublisher creates a NoOpPublisher.
func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

// PublishCrashID implements Publisher.
func (*NoOpPublisher) PublishCrashID(context.Context, string) error { return nil }

// VerifyTopic implements Publisher.
func (*NoOpPublisher) VerifyTopic(context.Context) error { return nil }

// CheckHealth implements Publisher.
func (*NoOpPublisher) CheckHealth(context.Context, *health.State) {}

// Verify NoOpPublisher implements Publisher.
var _ Publisher = (*NoOpPublisher)(nil)

// StubPublisher is a test publisher that records published ids.
type StubPublisher struct {
	// Published are the crash ids received, in call order.
	Published []string
	// PublishErr, when set, is returned by every PublishCrashID call.
	PublishErr error
	// HealthErr, when set, is appended to state by CheckHealth.
	HealthErr error
	// Verified reports whether VerifyTopic was called.
	Verified bool
}

// NewStubPublisher creates an empty StubPublisher.
func NewStubPublisher() *StubPublisher {
	return &StubPublisher{}
}

// PublishCrashID implements Publisher.
func (p *StubPublisher) PublishCrashID(_ context.Context, crashID string) error {
	if p.PublishErr != nil {
		return p.PublishErr
	}
	p.Published = append(p.Published, crashID)
	return nil
}

// VerifyTopic implements Publisher.
func (p *StubPublisher) VerifyTopic(context.Context) error {
	p.Verified = true
	return nil
}

// CheckHealth implements Publisher.
func (p *StubPublisher) CheckHealth(_ context.Context, state *health.State) {
	if p.HealthErr != nil {
		state.AddError(p.HealthErr.Error())
	}
}

// Verify StubPublisher implements Publisher.
var _ Publisher = (*StubPublisher)(nil)
