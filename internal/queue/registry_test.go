package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetQueueFirstBindingWins(t *testing.T) {
	reg := NewRegistry()

	var calledA, calledB atomic.Int32
	handlerA := func(ctx context.Context, s string) (string, error) {
		calledA.Add(1)
		return "a", nil
	}
	handlerB := func(ctx context.Context, s string) (string, error) {
		calledB.Add(1)
		return "b", nil
	}

	qa, err := GetQueue(reg, "x", handlerA, Options{Concurrency: 1})
	if err != nil {
		t.Fatalf("first GetQueue failed: %v", err)
	}
	qb, err := GetQueue(reg, "x", handlerB, Options{Concurrency: 9})
	if err != nil {
		t.Fatalf("second GetQueue failed: %v", err)
	}
	if qa != qb {
		t.Fatal("expected the same queue instance for the same name")
	}

	id := qb.Enqueue("payload")
	waitFor(t, 2*time.Second, func() bool {
		s, _ := qb.GetStatus(id)
		return s == StatusComplete
	})

	if calledA.Load() != 1 {
		t.Errorf("expected handlerA to run once, ran %d times", calledA.Load())
	}
	if calledB.Load() != 0 {
		t.Errorf("handlerB must never be invoked, ran %d times", calledB.Load())
	}
}

func TestGetQueueWithoutHandlerFails(t *testing.T) {
	reg := NewRegistry()

	_, err := GetQueue[string, string](reg, "missing", nil, Options{})
	if !errors.Is(err, ErrQueueNotFound) {
		t.Fatalf("expected ErrQueueNotFound, got %v", err)
	}

	// Once registered, a nil handler lookup succeeds.
	if _, err := GetQueue(reg, "present", func(ctx context.Context, s string) (string, error) {
		return s, nil
	}, Options{}); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	if _, err := GetQueue[string, string](reg, "present", nil, Options{}); err != nil {
		t.Fatalf("lookup of existing queue failed: %v", err)
	}
}

func TestGetQueueTypeMismatch(t *testing.T) {
	reg := NewRegistry()

	if _, err := GetQueue(reg, "x", func(ctx context.Context, s string) (string, error) {
		return s, nil
	}, Options{}); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	if _, err := GetQueue[int, int](reg, "x", nil, Options{}); err == nil {
		t.Fatal("expected a type mismatch error")
	}
}

func TestRegistryEach(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"portrait", "tts", "lipsync"} {
		if _, err := GetQueue(reg, name, func(ctx context.Context, s string) (string, error) {
			return s, nil
		}, Options{}); err != nil {
			t.Fatalf("registration failed: %v", err)
		}
	}

	seen := map[string]bool{}
	reg.Each(func(c Cleaner) {
		seen[c.Name()] = true
		c.Cleanup(time.Hour)
	})

	for _, name := range []string{"portrait", "tts", "lipsync"} {
		if !seen[name] {
			t.Errorf("Each did not visit queue %q", name)
		}
	}
}
