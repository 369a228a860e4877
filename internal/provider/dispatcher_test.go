package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

// switchBackend fails or hangs until told otherwise.
type switchBackend struct {
	name  string
	mu    sync.Mutex
	hang  bool
	fail  bool
	calls int

	traces []*telemetry.TraceContext
}

func (b *switchBackend) Name() string { return b.name }

func (b *switchBackend) set(hang, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hang, b.fail = hang, fail
}

func (b *switchBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *switchBackend) Complete(ctx context.Context, req *Request) (*Response, error) {
	b.mu.Lock()
	b.calls++
	b.traces = append(b.traces, telemetry.TraceFromContext(ctx))
	hang, fail := b.hang, b.fail
	b.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, apiErr(503)
	}
	return &Response{Content: "reply from " + b.name}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func userRequest(text string) *Request {
	return &Request{Messages: []Message{{Role: RoleUser, Content: text}}}
}

func TestDispatcher_PrimaryServes(t *testing.T) {
	primary := &switchBackend{name: "primary"}
	fallback := &switchBackend{name: "fallback"}
	d := NewDispatcher(primary, fallback, DispatcherOptions{Timeout: time.Second, ProbeEvery: 3})

	resp, err := d.Complete(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "reply from primary", resp.Content)
	assert.Equal(t, "primary", resp.Backend)
	assert.Equal(t, StatePrimaryActive, d.State())
	assert.Equal(t, 0, fallback.count())
}

func TestDispatcher_TimeoutFailsOverAndProbes(t *testing.T) {
	primary := &switchBackend{name: "primary", hang: true}
	fallback := &switchBackend{name: "fallback"}
	metrics := telemetry.NewMetrics()

	var transitions []Transition
	d := NewDispatcher(primary, fallback, DispatcherOptions{
		Timeout:      20 * time.Millisecond,
		ProbeEvery:   3,
		Metrics:      metrics,
		OnTransition: func(tr Transition) { transitions = append(transitions, tr) },
	})

	resp, err := d.Complete(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "reply from fallback", resp.Content)
	assert.Equal(t, StateDegraded, d.State())
	require.Len(t, transitions, 1)
	assert.Equal(t, StateDegraded, transitions[0].To)
	assert.True(t, errors.Is(transitions[0].Cause, context.DeadlineExceeded))

	// The next two calls skip the primary.
	for i := 0; i < 2; i++ {
		resp, err = d.Complete(context.Background(), userRequest("again"))
		require.NoError(t, err)
		assert.Equal(t, "fallback", resp.Backend)
	}
	assert.Equal(t, 1, primary.count())

	// The third degraded call probes the primary with the real request.
	primary.set(false, false)
	resp, err = d.Complete(context.Background(), userRequest("probe"))
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Backend)
	assert.Equal(t, StatePrimaryActive, d.State())
	assert.Equal(t, 2, primary.count())
	require.Len(t, transitions, 2)
	assert.Equal(t, StatePrimaryActive, transitions[1].To)

	summary := metrics.GetSummary()
	assert.Equal(t, int64(1), summary["failovers"])
	assert.Equal(t, int64(1), summary["recoveries"])
	assert.Equal(t, false, summary["degraded"])
}

func TestDispatcher_FailedProbeStaysDegraded(t *testing.T) {
	primary := &switchBackend{name: "primary", fail: true}
	fallback := &switchBackend{name: "fallback"}
	d := NewDispatcher(primary, fallback, DispatcherOptions{ProbeEvery: 1})

	_, err := d.Complete(context.Background(), userRequest("one"))
	require.NoError(t, err)
	resp, err := d.Complete(context.Background(), userRequest("two"))
	require.NoError(t, err)

	assert.Equal(t, "fallback", resp.Backend)
	assert.Equal(t, StateDegraded, d.State())
	assert.Equal(t, 2, primary.count())
}

func TestDispatcher_ProbeInterval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	primary := &switchBackend{name: "primary", fail: true}
	fallback := &switchBackend{name: "fallback"}
	d := NewDispatcher(primary, fallback, DispatcherOptions{
		ProbeInterval: time.Minute,
		Clock:         clock.Now,
	})

	_, err := d.Complete(context.Background(), userRequest("one"))
	require.NoError(t, err)
	require.Equal(t, StateDegraded, d.State())

	primary.set(false, false)
	clock.Advance(30 * time.Second)
	resp, err := d.Complete(context.Background(), userRequest("two"))
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Backend, "interval not yet elapsed")

	clock.Advance(31 * time.Second)
	resp, err = d.Complete(context.Background(), userRequest("three"))
	require.NoError(t, err)
	assert.Equal(t, "primary", resp.Backend)
	assert.Equal(t, StatePrimaryActive, d.State())
}

func TestDispatcher_BothFail(t *testing.T) {
	primary := &switchBackend{name: "primary", fail: true}
	fallback := &switchBackend{name: "fallback", fail: true}
	d := NewDispatcher(primary, fallback, DispatcherOptions{})

	_, err := d.Complete(context.Background(), userRequest("hi"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrBackendUnavailable))
	assert.Equal(t, StateDegraded, d.State())

	// Degraded with the fallback still down: the primary waits for its probe.
	_, err = d.Complete(context.Background(), userRequest("hi"))
	assert.True(t, errors.Is(err, apperrors.ErrBackendUnavailable))
	assert.Equal(t, 1, primary.count())
	assert.Equal(t, 2, fallback.count())
}

func TestDispatcher_DegradedSkipsPrimaryUntilRecheck(t *testing.T) {
	primary := &switchBackend{name: "primary", hang: true}
	fallback := &switchBackend{name: "fallback", fail: true}
	d := NewDispatcher(primary, fallback, DispatcherOptions{Timeout: 100 * time.Millisecond, ProbeEvery: 100})

	_, err := d.Complete(context.Background(), userRequest("first"))
	require.Error(t, err)
	require.Equal(t, StateDegraded, d.State())
	require.Equal(t, 1, primary.count())

	for i := 0; i < 3; i++ {
		start := time.Now()
		_, err := d.Complete(context.Background(), userRequest("again"))
		assert.True(t, errors.Is(err, apperrors.ErrBackendUnavailable))
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	}
	assert.Equal(t, 1, primary.count())
	assert.Equal(t, 4, fallback.count())
	assert.Equal(t, StateDegraded, d.State())
}

func TestDispatcher_NoFallback(t *testing.T) {
	primary := &switchBackend{name: "primary", fail: true}
	d := NewDispatcher(primary, nil, DispatcherOptions{})

	_, err := d.Complete(context.Background(), userRequest("hi"))
	assert.True(t, errors.Is(err, apperrors.ErrBackendUnavailable))
	assert.Equal(t, StatePrimaryActive, d.State())
	assert.Equal(t, "", d.Fallback())
	assert.Equal(t, "primary", d.Active())
}

func TestDispatcher_CallerCancellationIsNotAFailure(t *testing.T) {
	primary := &switchBackend{name: "primary", hang: true}
	fallback := &switchBackend{name: "fallback"}
	d := NewDispatcher(primary, fallback, DispatcherOptions{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := d.Complete(ctx, userRequest("hi"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatePrimaryActive, d.State())
	assert.Equal(t, 0, fallback.count())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "primary_active", StatePrimaryActive.String())
	assert.Equal(t, "degraded", StateDegraded.String())
}

func TestDispatcher_EachAttemptGetsChildTrace(t *testing.T) {
	primary := &switchBackend{name: "primary", fail: true}
	fallback := &switchBackend{name: "fallback"}
	d := NewDispatcher(primary, fallback, DispatcherOptions{Timeout: time.Second})

	root := telemetry.NewTraceContext("sess-1").WithTurn(4)
	ctx := telemetry.ContextWithTrace(context.Background(), root)
	_, err := d.Complete(ctx, &Request{})
	require.NoError(t, err)

	require.Len(t, primary.traces, 1)
	require.Len(t, fallback.traces, 1)
	for _, tc := range []*telemetry.TraceContext{primary.traces[0], fallback.traces[0]} {
		require.NotNil(t, tc)
		assert.Equal(t, root.TraceID, tc.TraceID)
		assert.Equal(t, root.SpanID, tc.ParentID)
		assert.NotEqual(t, root.SpanID, tc.SpanID)
		assert.Equal(t, int64(4), tc.Turn)
	}
	assert.NotEqual(t, primary.traces[0].SpanID, fallback.traces[0].SpanID)

	_, err = d.Complete(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Nil(t, fallback.traces[1])
}
