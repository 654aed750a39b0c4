package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/fissure/health"
	"github.com/pithecene-io/fissure/publish"
)

const testCrashID = "de1bb258-cbbf-4589-a673-34f800160918"

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New with empty URL returned nil error")
	}
	if _, err := New(Config{URL: "not a url"}); err == nil {
		t.Error("New with bad URL returned nil error")
	}
}

func TestPublishCrashID(t *testing.T) {
	mr := miniredis.RunT(t)

	p, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = p.Close() }()

	if err := p.PublishCrashID(t.Context(), testCrashID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, err := mr.List(DefaultQueue)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0] != testCrashID {
		t.Errorf("queue = %v, want [%s]", got, testCrashID)
	}
}

func TestVerifyTopic(t *testing.T) {
	mr := miniredis.RunT(t)

	p, err := New(Config{URL: "redis://" + mr.Addr(), Queue: "crashes"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = p.Close() }()

	if err := p.VerifyTopic(t.Context()); err != nil {
		t.Fatalf("verify: %v", err)
	}

	got, err := mr.List("crashes")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0] != publish.ProbeBody {
		t.Errorf("queue = %v, want [%s]", got, publish.ProbeBody)
	}
}

func TestCheckHealth(t *testing.T) {
	mr := miniredis.RunT(t)

	p, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = p.Close() }()

	state := health.NewState()
	p.CheckHealth(t.Context(), state)
	if !state.Healthy() {
		t.Errorf("state unhealthy: %v", state.Errors)
	}

	mr.Close()
	state = health.NewState()
	p.CheckHealth(t.Context(), state)
	if state.Healthy() {
		t.Error("state healthy after server shutdown, want error")
	}
}
