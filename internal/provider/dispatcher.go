package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

// State is the dispatcher's failover state.
type State int

const (
	StatePrimaryActive State = iota
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StatePrimaryActive:
		return "primary_active"
	case StateDegraded:
		return "degraded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transition describes a state change.
type Transition struct {
	From     State
	To       State
	Primary  string
	Fallback string
	Cause    error // failure that triggered degradation, nil on recovery
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Timeout bounds every backend call. Zero means no per-call bound.
	Timeout time.Duration
	// ProbeEvery re-tries the primary on every Nth call while degraded.
	ProbeEvery int
	// ProbeInterval re-tries the primary once this long has passed since the
	// last attempt.
	ProbeInterval time.Duration
	Clock         func() time.Time
	Logger        *telemetry.Logger
	Metrics       *telemetry.Metrics
	// OnTransition is called after each state change, outside the lock.
	OnTransition func(Transition)
}

// Dispatcher sends prompts to a primary backend and fails over to a
// fallback. While degraded it serves from the fallback and periodically
// probes the primary with the real request.
type Dispatcher struct {
	primary  Backend
	fallback Backend
	opts     DispatcherOptions

	mu         sync.Mutex
	state      State
	sinceProbe int
	lastProbe  time.Time
}

// NewDispatcher creates a dispatcher in StatePrimaryActive. fallback may be
// nil.
func NewDispatcher(primary, fallback Backend, opts DispatcherOptions) *Dispatcher {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.Nop()
	}
	return &Dispatcher{primary: primary, fallback: fallback, opts: opts}
}

// State returns the current failover state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Primary returns the primary backend name.
func (d *Dispatcher) Primary() string { return d.primary.Name() }

// Fallback returns the fallback backend name, or "".
func (d *Dispatcher) Fallback() string {
	if d.fallback == nil {
		return ""
	}
	return d.fallback.Name()
}

// Active returns the name of the backend currently serving requests.
func (d *Dispatcher) Active() string {
	if d.State() == StateDegraded && d.fallback != nil {
		return d.fallback.Name()
	}
	return d.primary.Name()
}

// Complete dispatches req. Caller cancellation is returned unchanged and does
// not count against either backend. When no backend produces a reply the
// error carries BACKEND_UNAVAILABLE.
func (d *Dispatcher) Complete(ctx context.Context, req *Request) (*Response, error) {
	d.mu.Lock()
	state := d.state
	probe := false
	if state == StateDegraded {
		d.sinceProbe++
		now := d.opts.Clock()
		if (d.opts.ProbeEvery > 0 && d.sinceProbe >= d.opts.ProbeEvery) ||
			(d.opts.ProbeInterval > 0 && now.Sub(d.lastProbe) >= d.opts.ProbeInterval) {
			probe = true
			d.sinceProbe = 0
			d.lastProbe = now
		}
	}
	d.mu.Unlock()

	if state == StatePrimaryActive || d.fallback == nil {
		return d.completePrimaryFirst(ctx, req)
	}
	return d.completeDegraded(ctx, req, probe)
}

func (d *Dispatcher) completePrimaryFirst(ctx context.Context, req *Request) (*Response, error) {
	resp, err := d.call(ctx, d.primary, req)
	if err == nil {
		return resp, nil
	}
	if callerGone(ctx) {
		return nil, ctx.Err()
	}
	if d.fallback == nil {
		return nil, unavailable(err, d.primary.Name())
	}

	d.opts.Logger.WithTrace(ctx).Warn("Primary backend failed, switching to fallback",
		"primary", d.primary.Name(), "fallback", d.fallback.Name(), "error", err)
	d.transition(StateDegraded, err)

	resp, ferr := d.call(ctx, d.fallback, req)
	if ferr == nil {
		return resp, nil
	}
	if callerGone(ctx) {
		return nil, ctx.Err()
	}
	return nil, unavailable(errors.Join(err, ferr), d.primary.Name(), d.fallback.Name())
}

func (d *Dispatcher) completeDegraded(ctx context.Context, req *Request, probe bool) (*Response, error) {
	var perr error
	if probe {
		resp, err := d.call(ctx, d.primary, req)
		if err == nil {
			d.opts.Logger.WithTrace(ctx).Info("Primary backend recovered", "primary", d.primary.Name())
			d.transition(StatePrimaryActive, nil)
			return resp, nil
		}
		if callerGone(ctx) {
			return nil, ctx.Err()
		}
		d.opts.Logger.WithTrace(ctx).Debug("Primary probe failed", "primary", d.primary.Name(), "error", err)
		perr = err
	}

	resp, err := d.call(ctx, d.fallback, req)
	if err == nil {
		return resp, nil
	}
	if callerGone(ctx) {
		return nil, ctx.Err()
	}

	if perr == nil {
		return nil, unavailable(err, d.fallback.Name())
	}
	return nil, unavailable(errors.Join(err, perr), d.fallback.Name(), d.primary.Name())
}

// call runs one bounded backend attempt and records its outcome.
func (d *Dispatcher) call(ctx context.Context, b Backend, req *Request) (*Response, error) {
	callCtx := ctx
	if tc := telemetry.TraceFromContext(ctx); tc != nil {
		callCtx = telemetry.ContextWithTrace(callCtx, tc.ChildSpan())
	}
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	ctx, span := telemetry.StartSpan(callCtx, "backend.complete")
	defer span.End()

	start := d.opts.Clock()
	resp, err := b.Complete(ctx, req)
	if err == nil && resp == nil {
		err = fmt.Errorf("%s returned no response", b.Name())
	}
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordBackendCall(b.Name(), err == nil, d.opts.Clock().Sub(start))
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	resp.Backend = b.Name()
	return resp, nil
}

func (d *Dispatcher) transition(to State, cause error) {
	d.mu.Lock()
	from := d.state
	if from == to {
		d.mu.Unlock()
		return
	}
	d.state = to
	d.sinceProbe = 0
	d.lastProbe = d.opts.Clock()
	d.mu.Unlock()

	if d.opts.Metrics != nil {
		d.opts.Metrics.SetDegraded(to == StateDegraded)
	}
	if d.opts.OnTransition != nil {
		d.opts.OnTransition(Transition{
			From:     from,
			To:       to,
			Primary:  d.primary.Name(),
			Fallback: d.Fallback(),
			Cause:    cause,
		})
	}
}

// callerGone reports whether the caller's own context ended. Per-call
// timeouts do not count.
func callerGone(ctx context.Context) bool {
	return ctx.Err() != nil
}

func unavailable(cause error, tried ...string) error {
	return apperrors.Wrapf(apperrors.CodeBackendUnavailable, cause, "no backend replied (tried %v)", tried).
		WithSuggestion("Check that the configured backends are reachable with 'hearth doctor'")
}
