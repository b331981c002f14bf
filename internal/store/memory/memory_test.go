package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"smart_bottle/internal/store"
)

func next(t *testing.T, sub store.Subscription) store.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("events channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return store.Event{}
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

func TestSubscribe_DeliversAbsentValueFirst(t *testing.T) {
	s := New()
	sub, err := s.Subscribe(context.Background(), "bottle/telemetry")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	ev := next(t, sub)
	if ev.Err != nil {
		t.Fatalf("unexpected error event: %v", ev.Err)
	}
	if ev.Snapshot.Exists() {
		t.Fatalf("expected absent snapshot, got %s", ev.Snapshot.Data)
	}
	if ev.Snapshot.Path != "bottle/telemetry" {
		t.Fatalf("path: got %q", ev.Snapshot.Path)
	}
}

func TestUpdate_MergesWithoutClobberingSiblings(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Set(ctx, "bottle/control", map[string]any{"setpoint": 30, "owner": "device"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	sub, err := s.Subscribe(ctx, "/bottle/control/")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()
	_ = next(t, sub)

	if err := s.Update(ctx, "bottle/control", map[string]any{"setpoint": 42.0}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got := decode(t, next(t, sub).Snapshot.Data)
	if got["setpoint"] != 42.0 {
		t.Errorf("setpoint: want 42, got %v", got["setpoint"])
	}
	if got["owner"] != "device" {
		t.Errorf("sibling clobbered: %v", got)
	}
}

func TestUpdate_NilDeletesField(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Update(ctx, "a", map[string]any{"x": 1, "y": 2})
	_ = s.Update(ctx, "a", map[string]any{"x": nil})

	sub, _ := s.Subscribe(ctx, "a")
	defer sub.Close()
	got := decode(t, next(t, sub).Snapshot.Data)
	if _, ok := got["x"]; ok {
		t.Errorf("x should be deleted: %v", got)
	}
	if got["y"] != 2.0 {
		t.Errorf("y: want 2, got %v", got["y"])
	}
}

func TestSet_NilRemovesDocument(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "a", map[string]any{"x": 1})
	sub, _ := s.Subscribe(ctx, "a")
	defer sub.Close()
	_ = next(t, sub)

	if err := s.Set(ctx, "a", nil); err != nil {
		t.Fatalf("Set(nil) error = %v", err)
	}
	if ev := next(t, sub); ev.Snapshot.Exists() {
		t.Fatalf("expected absent snapshot after delete, got %s", ev.Snapshot.Data)
	}
}

func TestPathsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := New()
	tel, _ := s.Subscribe(ctx, "bottle/telemetry")
	defer tel.Close()
	_ = next(t, tel)

	_ = s.Update(ctx, "bottle/control", map[string]any{"setpoint": 1})

	select {
	case ev := <-tel.Events():
		t.Fatalf("telemetry subscriber got control event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseSubscription_Detaches(t *testing.T) {
	ctx := context.Background()
	s := New()
	sub, _ := s.Subscribe(ctx, "a")
	_ = next(t, sub)
	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	_ = s.Update(ctx, "a", map[string]any{"x": 1})

	s.mu.Lock()
	n := len(s.subs["a"])
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no subscribers after Close, got %d", n)
	}
}

func TestStoreClose(t *testing.T) {
	ctx := context.Background()
	s := New()
	sub, _ := s.Subscribe(ctx, "a")
	_ = next(t, sub)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("events channel not closed")
	}

	if _, err := s.Subscribe(ctx, "a"); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Subscribe after Close: want ErrClosed, got %v", err)
	}
	if err := s.Update(ctx, "a", map[string]any{"x": 1}); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Update after Close: want ErrClosed, got %v", err)
	}
}

func TestInvalidPath(t *testing.T) {
	s := New()
	if _, err := s.Subscribe(context.Background(), " / "); !errors.Is(err, store.ErrInvalidPath) {
		t.Fatalf("want ErrInvalidPath, got %v", err)
	}
	if err := s.Update(context.Background(), "a//b", nil); !errors.Is(err, store.ErrInvalidPath) {
		t.Fatalf("want ErrInvalidPath, got %v", err)
	}
}
