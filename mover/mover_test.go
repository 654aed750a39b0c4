package mover

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/fissure/health"
	"github.com/pithecene-io/fissure/log"
	"github.com/pithecene-io/fissure/publish"
	"github.com/pithecene-io/fissure/storage"
	"github.com/pithecene-io/fissure/types"
)

// fakeStore counts saves and can fail the first N attempts.
type fakeStore struct {
	mu       sync.Mutex
	saves    []string
	failures int
}

func (s *fakeStore) SaveCrash(_ context.Context, report *types.CrashReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("transient store failure")
	}
	s.saves = append(s.saves, report.CrashID)
	return nil
}

func (s *fakeStore) VerifyWrite(context.Context) error { return nil }

func (s *fakeStore) CheckHealth(context.Context, *health.State) {}

func (s *fakeStore) saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saves...)
}

func testLogger() *log.Logger {
	return log.NewLogger("mover-test").WithOutput(io.Discard)
}

func testReport(crashID string) *types.CrashReport {
	report := types.NewCrashReport()
	report.CrashID = crashID
	report.ReceivedAt = time.Now()
	return report
}

// noSleep replaces retry waits and records them.
func noSleep(slept *[]time.Duration) Option {
	var mu sync.Mutex
	return WithSleep(func(d time.Duration) {
		mu.Lock()
		*slept = append(*slept, d)
		mu.Unlock()
	})
}

func TestMover_SaveAndPublish(t *testing.T) {
	store := &fakeStore{}
	pub := publish.NewStubPublisher()

	m := New(store, pub, testLogger(), Config{})
	m.Start()

	ids := []string{
		"de1bb258-cbbf-4589-a673-34f800160918",
		"de1bb258-cbbf-4589-a673-34f800160919",
		"de1bb258-cbbf-4589-a673-34f800160920",
	}
	for _, id := range ids {
		if !m.Enqueue(testReport(id)) {
			t.Fatalf("Enqueue(%s) = false", id)
		}
	}
	m.Stop(5 * time.Second)

	saved := store.saved()
	if len(saved) != len(ids) {
		t.Fatalf("len(saved) = %d, want %d", len(saved), len(ids))
	}
	// One worker drains the queue in order.
	for i, id := range ids {
		if saved[i] != id {
			t.Errorf("saved[%d] = %s, want %s", i, saved[i], id)
		}
	}
	if len(pub.Published) != len(ids) {
		t.Errorf("len(Published) = %d, want %d", len(pub.Published), len(ids))
	}
	if m.HasWorkToDo() {
		t.Error("HasWorkToDo = true after drain")
	}
}

func TestMover_RetriesSave(t *testing.T) {
	store := &fakeStore{failures: 2}
	pub := publish.NewStubPublisher()

	var slept []time.Duration
	m := New(store, pub, testLogger(), Config{
		Retry: RetryPolicy{MaxAttempts: 5, Sleep: 2 * time.Second},
	}, noSleep(&slept))
	m.Start()

	m.Enqueue(testReport("de1bb258-cbbf-4589-a673-34f800160918"))
	m.Stop(5 * time.Second)

	if len(store.saved()) != 1 {
		t.Fatalf("len(saved) = %d, want 1", len(store.saved()))
	}
	if len(slept) != 2 {
		t.Fatalf("len(slept) = %d, want 2", len(slept))
	}
	for _, d := range slept {
		if d != 2*time.Second {
			t.Errorf("slept %s, want 2s", d)
		}
	}
	if len(pub.Published) != 1 {
		t.Errorf("len(Published) = %d, want 1", len(pub.Published))
	}
}

func TestMover_SaveExhausted(t *testing.T) {
	store := &fakeStore{failures: 10}
	pub := publish.NewStubPublisher()

	var slept []time.Duration
	m := New(store, pub, testLogger(), Config{
		Retry: RetryPolicy{MaxAttempts: 3, Sleep: time.Second},
	}, noSleep(&slept))
	m.Start()

	m.Enqueue(testReport("de1bb258-cbbf-4589-a673-34f800160918"))
	m.Stop(5 * time.Second)

	if len(store.saved()) != 0 {
		t.Errorf("len(saved) = %d, want 0", len(store.saved()))
	}
	// No publish after a dropped save.
	if len(pub.Published) != 0 {
		t.Errorf("len(Published) = %d, want 0", len(pub.Published))
	}
	if len(slept) != 2 {
		t.Errorf("len(slept) = %d, want 2", len(slept))
	}
}

func TestMover_PublishExhausted(t *testing.T) {
	store := &fakeStore{}
	pub := publish.NewStubPublisher()
	pub.PublishErr = errors.New("topic gone")

	var slept []time.Duration
	m := New(store, pub, testLogger(), Config{
		Retry: RetryPolicy{MaxAttempts: 2, Sleep: time.Second},
	}, noSleep(&slept))
	m.Start()

	m.Enqueue(testReport("de1bb258-cbbf-4589-a673-34f800160918"))
	m.Stop(5 * time.Second)

	// Store success is sufficient; the job is handled even though
	// publishing never succeeded.
	if len(store.saved()) != 1 {
		t.Errorf("len(saved) = %d, want 1", len(store.saved()))
	}
	if len(pub.Published) != 0 {
		t.Errorf("len(Published) = %d, want 0", len(pub.Published))
	}
}

func TestMover_EnqueueFull(t *testing.T) {
	// No workers started; the queue fills up.
	m := New(storage.NewNoOpStore(), publish.NewNoOpPublisher(), testLogger(),
		Config{QueueSize: 1})

	if !m.Enqueue(testReport("de1bb258-cbbf-4589-a673-34f800160918")) {
		t.Fatal("first Enqueue = false")
	}
	if m.Enqueue(testReport("de1bb258-cbbf-4589-a673-34f800160919")) {
		t.Error("second Enqueue = true, want false")
	}
	if got := m.QueueDepth(); got != 1 {
		t.Errorf("QueueDepth = %d, want 1", got)
	}
}

func TestMover_RegisterHealth(t *testing.T) {
	m := New(storage.NewNoOpStore(), publish.NewNoOpPublisher(), testLogger(),
		Config{QueueSize: 4})

	registry := health.NewRegistry(time.Second, testLogger())
	m.RegisterHealth(registry)

	m.Enqueue(testReport("de1bb258-cbbf-4589-a673-34f800160918"))

	state := registry.Sweep(context.Background())
	if !state.Healthy() {
		t.Errorf("state unhealthy: %v", state.Errors)
	}
	if got := state.Info["crashmover.work_queue_size"]; got != 1 {
		t.Errorf("work_queue_size = %v, want 1", got)
	}
	if !registry.HasWorkToDo() {
		t.Error("HasWorkToDo = false with a queued report")
	}
}
