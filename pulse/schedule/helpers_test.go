package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itgyani/blogpulse/ai/generation"
	"github.com/itgyani/blogpulse/errors"
	bptest "github.com/itgyani/blogpulse/internal/testing"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sequentialIDs yields prefix-001, prefix-002, ... so tie-break order is predictable
func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%03d", prefix, n.Add(1))
	}
}

type storeFactory func(t *testing.T, clock *fakeClock) Store

func storeImplementations() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *fakeClock) Store {
			return NewMemoryStore(WithStoreClock(clock.Now), WithIDGenerator(sequentialIDs("id")))
		},
		"sqlite": func(t *testing.T, clock *fakeClock) Store {
			return NewSQLStore(bptest.CreateTestDB(t), WithStoreClock(clock.Now), WithIDGenerator(sequentialIDs("id")))
		},
	}
}

// forEachStore runs fn against every Store implementation
func forEachStore(t *testing.T, fn func(t *testing.T, store Store, clock *fakeClock)) {
	for name, factory := range storeImplementations() {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock(baseTime)
			fn(t, factory(t, clock), clock)
		})
	}
}

func weeklySpec(topic string) SeriesSpec {
	return SeriesSpec{Topic: topic, Category: "engineering", Frequency: Weekly()}
}

// scriptedGateway returns outcomes in order, repeating the last one
type scriptedGateway struct {
	mu       sync.Mutex
	outcomes []func(ctx context.Context, req generation.Request) (*generation.Result, error)
	calls    []generation.Request
}

func (g *scriptedGateway) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	idx := len(g.calls) - 1
	if idx >= len(g.outcomes) {
		idx = len(g.outcomes) - 1
	}
	outcome := g.outcomes[idx]
	g.mu.Unlock()
	return outcome(ctx, req)
}

func (g *scriptedGateway) Calls() []generation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generation.Request(nil), g.calls...)
}

func succeed(ref string) func(context.Context, generation.Request) (*generation.Result, error) {
	return func(context.Context, generation.Request) (*generation.Result, error) {
		return &generation.Result{ContentRef: ref, Title: "t"}, nil
	}
}

func failRetryable(msg string) func(context.Context, generation.Request) (*generation.Result, error) {
	return func(context.Context, generation.Request) (*generation.Result, error) {
		return nil, errors.NewRetryableGenerationError(errors.New(msg))
	}
}

func failTerminal(msg string) func(context.Context, generation.Request) (*generation.Result, error) {
	return func(context.Context, generation.Request) (*generation.Result, error) {
		return nil, errors.NewTerminalGenerationError(errors.New(msg))
	}
}

func blockUntilDone(ctx context.Context, _ generation.Request) (*generation.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// recordingSleeper records requested backoffs without waiting
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []JobEvent
}

func (b *recordingBroadcaster) BroadcastJobEvent(event JobEvent) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) Events() []JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]JobEvent(nil), b.events...)
}
