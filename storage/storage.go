// Package storage persists crash reports to an object store.
//
// The Store interface is what the crash mover consumes. CrashStore is
// the one real implementation; it composes an object-store Client
// (S3, GCS) with the fixed key layout in paths.go. Real clients live
// in the storage/s3 and storage/gcs subpackages.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/pithecene-io/fissure/health"
	"github.com/pithecene-io/fissure/types"
)

// Store is a durable home for crash reports.
type Store interface {
	// SaveCrash writes the full crash artifact. Idempotent; dumps are
	// written before the raw-crash document. Transient failures are
	// retried by the caller.
	SaveCrash(ctx context.Context, report *types.CrashReport) error

	// VerifyWrite proves write permission by storing a tiny probe
	// object. Invoked once at process start.
	VerifyWrite(ctx context.Context) error

	// CheckHealth appends any reachability problem to state.
	CheckHealth(ctx context.Context, state *health.State)
}

// Client is a minimal object-store client.
type Client interface {
	// PutObject writes body at key, overwriting any existing object.
	PutObject(ctx context.Context, key string, body []byte) error

	// CheckBucket verifies the bucket is reachable.
	CheckBucket(ctx context.Context) error

	// Close releases client resources.
	Close() error
}

// CrashStore writes crash reports through an object-store client using
// the v1 key layout.
type CrashStore struct {
	client Client
}

// NewCrashStore creates a CrashStore over the given client.
func NewCrashStore(client Client) *CrashStore {
	return &CrashStore{client: client}
}

// SaveCrash implements Store.
//
// Write order: dump-names manifest, each dump in sorted name order,
// then the raw-crash document last. A consumer that sees the raw-crash
// document can rely on every dump already being present.
func (s *CrashStore) SaveCrash(ctx context.Context, report *types.CrashReport) error {
	crashID := report.CrashID

	names := make([]string, 0, len(report.Dumps))
	for name := range report.Dumps {
		names = append(names, name)
	}
	sort.Strings(names)

	manifest, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encode dump names: %w", err)
	}
	if err := s.client.PutObject(ctx, DumpNamesPath(crashID), manifest); err != nil {
		return fmt.Errorf("save dump names: %w", err)
	}

	for _, name := range names {
		if err := s.client.PutObject(ctx, DumpPath(name, crashID), report.Dumps[name]); err != nil {
			return fmt.Errorf("save dump %s: %w", name, err)
		}
	}

	doc, err := json.Marshal(report.RawCrash())
	if err != nil {
		return fmt.Errorf("encode raw crash: %w", err)
	}
	if err := s.client.PutObject(ctx, RawCrashPath(crashID), doc); err != nil {
		return fmt.Errorf("save raw crash: %w", err)
	}
	return nil
}

// VerifyWrite implements Store.
func (s *CrashStore) VerifyWrite(ctx context.Context) error {
	key := ProbePath(uuid.New().String())
	if err := s.client.PutObject(ctx, key, []byte("test")); err != nil {
		return fmt.Errorf("verify write: %w", err)
	}
	return nil
}

// CheckHealth implements Store.
func (s *CrashStore) CheckHealth(ctx context.Context, state *health.State) {
	if err := s.client.CheckBucket(ctx); err != nil {
		state.AddError(fmt.Sprintf("crash storage: %s", err))
	}
}

// Verify CrashStore implements Store.
var _ Store = (*CrashStore)(nil)

// NoOpStore accepts crash reports without persisting them. Used in
// local development and as the default when no backend is configured.
type NoOpStore struct{}

// NewNoOpStore creates a NoOpStore.
func NewNoOpStore() *NoOpStore {
	return &NoOpStore{}
}

// SaveCrash implements Store.
func (*NoOpStore) SaveCrash(context.Context, *types.CrashReport) error { return nil }

// VerifyWrite implements Store.
func (*NoOpStore) VerifyWrite(context.Context) error { return nil }

// CheckHealth implements Store.
func (*NoOpStore) CheckHealth(context.Context, *health.State) {}

// Verify NoOpStore implements Store.
var _ Store = (*NoOpStore)(nil)

// StubClient is a test client that records writes in order.
type StubClient struct {
	// Puts are the recorded writes, in call order.
	Puts []StubPut
	// PutErr, when set, is returned by every PutObject call.
	PutErr error
	// BucketErr, when set, is returned by CheckBucket.
	BucketErr error
	// Closed reports whether Close was called.
	Closed bool
}

// StubPut is one recorded object write.
type StubPut struct {
	Key  string
	Body []byte
}

// NewStubClient creates an empty StubClient.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// PutObject implements Client.
func (c *StubClient) PutObject(_ context.Context, key string, body []byte) error {
	if c.PutErr != nil {
		return c.PutErr
	}
	c.Puts = append(c.Puts, StubPut{Key: key, Body: body})
	return nil
}

// CheckBucket implements Client.
func (c *StubClient) CheckBucket(context.Context) error {
	return c.BucketErr
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
