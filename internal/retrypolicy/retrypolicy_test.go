package retrypolicy

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts uint) Policy {
	return Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxJitter: time.Millisecond}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on attempt 3, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	want := errors.New("persistent")
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected last error %v, got %v", want, err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestDoRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Policy{Attempts: 10, BaseDelay: 50 * time.Millisecond, MaxJitter: time.Millisecond}.
		Do(ctx, func() error {
			calls++
			cancel()
			return errors.New("fail")
		})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls > 2 {
		t.Errorf("expected retries to stop after cancel, got %d calls", calls)
	}
}

func TestNewDefaults(t *testing.T) {
	p := New(0, 0, 0)
	if p.Attempts != 3 || p.BaseDelay != time.Second || p.MaxJitter != 500*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestDoWithNotify(t *testing.T) {
	var notified []uint
	calls := 0
	err := fastPolicy(3).DoWithNotify(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("once")
		}
		return nil
	}, func(attempt uint, err error) {
		notified = append(notified, attempt)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notified) != 1 {
		t.Errorf("expected 1 retry notification, got %d", len(notified))
	}
}
