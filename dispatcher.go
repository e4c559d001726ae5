package llmresilience

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultCallTimeout bounds a single backend call unless overridden.
const DefaultCallTimeout = 30 * time.Second

// Dispatcher fires batches of requests at a backend concurrently and collects
// exactly one Outcome per request.
type Dispatcher struct {
	timeout time.Duration
	limits  map[string]int
	meter   Meter
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(d *Dispatcher) { d.meter = m }
}

// WithConcurrency caps the number of in-flight calls for one target group.
// Groups without a cap run every request at once.
func WithConcurrency(group string, n int) Option {
	return func(d *Dispatcher) { d.limits[group] = n }
}

// NewDispatcher creates a Dispatcher. The default per-call timeout is
// DefaultCallTimeout and events are discarded unless a meter is set.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		timeout: DefaultCallTimeout,
		limits:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.meter == nil {
		d.meter = noopMeter{}
	}
	return d
}

// DispatchN issues n copies of tmpl in a single group.
func (d *Dispatcher) DispatchN(ctx context.Context, n int, tmpl RequestDescriptor, prompts []string, call CallFunc) (Batch, error) {
	if n <= 0 {
		return Batch{}, ErrNoRequests
	}
	return d.Dispatch(ctx, NewRequests(n, tmpl, prompts), call)
}

// DispatchGroups plans the given target groups and dispatches them together.
// Each group's Concurrency overrides any limit configured on the Dispatcher.
func (d *Dispatcher) DispatchGroups(ctx context.Context, groups []TargetGroup, call CallFunc) (Batch, error) {
	reqs, err := PlanGroups(groups)
	if err != nil {
		return Batch{}, err
	}
	limits := make(map[string]int, len(d.limits)+len(groups))
	for g, n := range d.limits {
		limits[g] = n
	}
	for _, g := range groups {
		if g.Concurrency > 0 {
			limits[g.Name] = g.Concurrency
		}
	}
	return d.dispatch(ctx, reqs, limits, call)
}

// Dispatch issues every descriptor concurrently and returns once all of them
// resolved. Individual call failures are recorded on their Outcome; only an
// invalid batch returns an error, before anything is sent.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs []RequestDescriptor, call CallFunc) (Batch, error) {
	return d.dispatch(ctx, reqs, d.limits, call)
}

func (d *Dispatcher) dispatch(ctx context.Context, reqs []RequestDescriptor, limits map[string]int, call CallFunc) (Batch, error) {
	if len(reqs) == 0 {
		return Batch{}, ErrNoRequests
	}
	if call == nil {
		return Batch{}, fmt.Errorf("llmresilience: call func is required")
	}

	var order []string
	members := make(map[string][]RequestDescriptor)
	for _, r := range reqs {
		if r.Group == "" {
			return Batch{}, fmt.Errorf("%w: request seq %d has no group", ErrInvalidGroup, r.Seq)
		}
		if _, ok := members[r.Group]; !ok {
			order = append(order, r.Group)
		}
		members[r.Group] = append(members[r.Group], r)
	}

	b := Batch{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		groups:    order,
	}

	// Sized to the batch so workers never block on send.
	sink := make(chan Outcome, len(reqs))

	var all errgroup.Group
	for _, name := range order {
		group := members[name]
		limit := limits[name]
		all.Go(func() error {
			var g errgroup.Group
			if limit > 0 {
				g.SetLimit(limit)
			}
			for _, req := range group {
				req := req
				g.Go(func() error {
					sink <- d.run(ctx, b.RunID, req, call)
					return nil
				})
			}
			return g.Wait()
		})
	}
	_ = all.Wait()
	close(sink)

	b.Outcomes = make([]Outcome, 0, len(reqs))
	for o := range sink {
		b.Outcomes = append(b.Outcomes, o)
	}
	b.FinishedAt = time.Now()
	return b, nil
}

func (d *Dispatcher) run(ctx context.Context, runID string, req RequestDescriptor, call CallFunc) Outcome {
	cctx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	d.meter.OnDispatch(DispatchEvent{
		RunID:     runID,
		RequestID: req.ID,
		Group:     req.Group,
		Seq:       req.Seq,
		Model:     req.Model,
		At:        start,
	})

	res, err := invoke(cctx, req, call)
	elapsed := time.Since(start)

	o := Outcome{
		RequestID: req.ID,
		Group:     req.Group,
		Seq:       req.Seq,
		Status:    Classify(err),
		StartedAt: start,
		Duration:  elapsed,
	}
	if err != nil {
		o.Err = &DispatchError{Err: err, RequestID: req.ID, Group: req.Group, Seq: req.Seq}
	} else {
		o.Label = res.Label
		o.BackendRequestID = res.BackendRequestID
		o.Usage = res.Usage
	}

	d.meter.OnOutcome(OutcomeEvent{RunID: runID, Outcome: o})
	return o
}

type callReturn struct {
	res CallResult
	err error
}

// invoke runs call on its own goroutine so a call that ignores its context
// still cannot hold the batch past the deadline.
func invoke(ctx context.Context, req RequestDescriptor, call CallFunc) (CallResult, error) {
	done := make(chan callReturn, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- callReturn{err: fmt.Errorf("llmresilience: call panicked: %v", p)}
			}
		}()
		res, err := call(ctx, req)
		done <- callReturn{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return CallResult{}, fmt.Errorf("%w: %v", ErrTimeout, r.err)
		}
		return r.res, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return CallResult{}, ErrTimeout
		}
		return CallResult{}, ctx.Err()
	}
}

// Batch holds the outcomes of one dispatch run.
type Batch struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Outcomes in completion order.
	Outcomes []Outcome

	groups []string
}

// Len returns the number of outcomes.
func (b Batch) Len() int { return len(b.Outcomes) }

// Elapsed returns the wall-clock time of the run.
func (b Batch) Elapsed() time.Duration { return b.FinishedAt.Sub(b.StartedAt) }

// GroupNames returns the group names in the order they were first submitted.
func (b Batch) GroupNames() []string {
	out := make([]string, len(b.groups))
	copy(out, b.groups)
	return out
}

// Group returns the outcomes of one target group in completion order.
func (b Batch) Group(name string) []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if o.Group == name {
			out = append(out, o)
		}
	}
	return out
}

// BySeq returns the outcomes re-sorted into submission order.
func (b Batch) BySeq() []Outcome {
	out := make([]Outcome, len(b.Outcomes))
	copy(out, b.Outcomes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Report aggregates the batch.
func (b Batch) Report(opts ...AggregateOption) Report {
	return Aggregate(b.Outcomes, opts...)
}
