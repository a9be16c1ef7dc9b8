package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New("https://api.example.com", maxFailures, cooldown)
	b.now = clk.now
	return b, clk
}

var errFail = errors.New("fail")

func fail(context.Context) error { return errFail }
func ok(context.Context) error   { return nil }

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)
	if b.State() != StateClosed {
		t.Errorf("expected Closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, fail); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected Open after 3 failures, got %v", b.State())
	}

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("expected rejection without call, got err=%v called=%v", err, called)
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Second)
	ctx := context.Background()
	b.Execute(ctx, fail)
	b.Execute(ctx, ok)
	b.Execute(ctx, fail)
	if b.State() != StateClosed {
		t.Errorf("non-consecutive failures opened the breaker")
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)
	ctx := context.Background()
	b.Execute(ctx, fail)
	b.Execute(ctx, fail)

	clk.advance(time.Second)
	if err := b.Execute(ctx, ok); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected Closed after successful probe, got %v", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(2, time.Second)
	ctx := context.Background()
	b.Execute(ctx, fail)
	b.Execute(ctx, fail)

	clk.advance(2 * time.Second)
	if err := b.Execute(ctx, fail); err != errFail {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected Open after failed probe, got %v", b.State())
	}
	if err := b.Execute(ctx, ok); !errors.Is(err, ErrOpen) {
		t.Errorf("expected ErrOpen within new cool-down, got %v", err)
	}
}

func TestBreaker_CancellationIsNotFailure(t *testing.T) {
	b, _ := newTestBreaker(1, time.Second)
	b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	if b.State() != StateClosed {
		t.Errorf("cancellation tripped the breaker")
	}
}

func TestGroup_CallbackAndReuse(t *testing.T) {
	var transitions []string
	g := NewGroup(1, time.Minute, func(name string, from, to State) {
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
	})
	a := g.Get("a")
	if g.Get("a") != a {
		t.Fatal("Get created a second breaker for the same name")
	}
	a.Execute(context.Background(), fail)
	if len(transitions) != 1 || transitions[0] != "a:closed->open" {
		t.Errorf("transitions = %v", transitions)
	}
	if g.Get("b").State() != StateClosed {
		t.Error("breakers share state")
	}
}
