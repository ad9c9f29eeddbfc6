package cli

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/julianstephens/salonbot/internal/config"
	"github.com/julianstephens/salonbot/internal/events"
	"github.com/julianstephens/salonbot/internal/storage"
	"github.com/julianstephens/salonbot/internal/storage/storagetest"
)

// stalledBroker blocks every publish until the caller gives up.
type stalledBroker struct {
	events.Noop
	calls atomic.Int32
}

func (b *stalledBroker) Publish(ctx context.Context, _ events.Event) error {
	b.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func newRuntimeContext(t *testing.T) *Context {
	t.Helper()
	path := filepath.Join(t.TempDir(), "appointments.json")
	store := storage.NewJSONStore(path)
	if err := store.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg, err := config.New(config.Params{Store: path, Admins: "111", SlotCapacity: 1})
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	now := time.Date(2026, 10, 14, 8, 0, 0, 0, time.Local)
	return &Context{Config: cfg, Store: store, Now: func() time.Time { return now }}
}

func TestNewRuntime_StalledBrokerDoesNotHoldBooking(t *testing.T) {
	ctx := newRuntimeContext(t)
	broker := &stalledBroker{}
	rt, err := ctx.NewRuntime(RuntimeOptions{Publisher: broker, PublishTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := rt.Allocator.Reserve(context.Background(), storagetest.Sample("5", "2026-10-15", "09:00"))
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Reserve blocked on the event broker")
	}
	if broker.calls.Load() != 1 {
		t.Errorf("publish calls = %d, want 1", broker.calls.Load())
	}
}

func TestNewRuntime_DefaultsToNoop(t *testing.T) {
	ctx := newRuntimeContext(t)
	rt, err := ctx.NewRuntime(RuntimeOptions{})
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	if _, err := rt.Allocator.Reserve(context.Background(), storagetest.Sample("5", "2026-10-15", "10:30")); err != nil {
		t.Fatalf("Reserve without a publisher failed: %v", err)
	}
}
