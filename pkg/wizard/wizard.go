// Package wizard drives a fixed, ordered list of steps, each of which may
// perform one state-changing ledger call, one at a time per wizard.
//
// Index 0 is the input step. Advancing into index i runs Steps[i].Handler;
// advancing into index len(Steps) runs Result.Handler and lands on the
// terminal step. Only one advance may be in flight; a second call while busy
// is refused without touching state.
package wizard

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bankfair_client/pkg/aggregator"
	"bankfair_client/pkg/ledger"
	"bankfair_client/pkg/txerr"
)

var (
	ErrBusy     = errors.New("wizard: step in progress")
	ErrTerminal = errors.New("wizard: already finished")
	ErrClosed   = errors.New("wizard: closed")
	ErrLocked   = errors.New("wizard: inputs can only change on the first step")
	// ErrPrecondition is returned when the wizard's context does not allow it to start.
	ErrPrecondition = errors.New("wizard: precondition not met")
)

// RollbackPolicy says what a failed handler does to the active step.
type RollbackPolicy int

const (
	// RollbackOnRejected steps back when nothing reached the ledger and
	// stays put once a submission was attempted.
	RollbackOnRejected RollbackPolicy = iota
	// RollbackAlways steps back on any failure.
	RollbackAlways
	// RollbackNever keeps the step and swallows the error.
	RollbackNever
)

// Handler performs the remote effect of a step.
type Handler func(ctx context.Context, s *Scope) error

type Step struct {
	Label    string
	Handler  Handler
	Rollback RollbackPolicy
}

// Facts is the read-only view validators and handlers work from.
type Facts struct {
	Inputs  map[string]string
	Limits  aggregator.Values
	Context map[string]interface{}
}

func (f Facts) Input(name string) string { return f.Inputs[name] }

// Definition describes one kind of wizard. It is immutable once built.
type Definition struct {
	Kind   string
	Steps  []Step
	Result Step
	// Limits is fetched on Mount and feeds Validate.
	Limits *aggregator.Plan
	// Validate guards leaving the input step.
	Validate func(Facts) error
	// Precondition guards leaving the input step on context rather than input.
	Precondition func(Facts) error
}

func (d *Definition) check() error {
	if len(d.Steps) == 0 {
		return errors.Errorf("wizard %s: no steps", d.Kind)
	}
	if d.Steps[0].Handler != nil {
		return errors.Errorf("wizard %s: input step cannot have a handler", d.Kind)
	}
	if d.Result.Handler == nil {
		return errors.Errorf("wizard %s: result step has no handler", d.Kind)
	}
	return nil
}

// Labels lists the step labels shown to the user.
func (d *Definition) Labels() []string {
	out := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		out[i] = s.Label
	}
	return out
}

// State is a point-in-time copy of a wizard.
type State struct {
	ID          string
	Kind        string
	Labels      []string
	ActiveStep  int
	Terminal    bool
	Busy        bool
	CanAdvance  bool
	Closed      bool
	Inputs      map[string]string
	Limits      aggregator.Values
	Context     map[string]interface{}
	Outcome     map[string]string
	Receipts    map[int]*ledger.Receipt
	LastReceipt *ledger.Receipt
	LastError   string
	ErrorKind   string
}

// Engine is one open wizard.
type Engine struct {
	id  string
	def *Definition
	log *logrus.Entry

	mu          sync.Mutex
	active      int
	busy        bool
	closed      bool
	inputs      map[string]string
	limits      aggregator.Values
	context     map[string]interface{}
	outcome     map[string]string
	receipts    map[int]*ledger.Receipt
	lastReceipt *ledger.Receipt
	lastErr     error

	onComplete func()
	closeOnce  sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithContext supplies externally owned context, e.g. the loan being acted on.
func WithContext(key string, v interface{}) Option {
	return func(e *Engine) { e.context[key] = v }
}

// WithOnComplete registers a callback fired once when the wizard is closed.
func WithOnComplete(fn func()) Option {
	return func(e *Engine) { e.onComplete = fn }
}

func New(id string, def *Definition, opts ...Option) (*Engine, error) {
	if def == nil {
		return nil, errors.New("wizard: nil definition")
	}
	if err := def.check(); err != nil {
		return nil, err
	}
	e := &Engine{
		id:       id,
		def:      def,
		log:      logrus.WithFields(logrus.Fields{"wizard": def.Kind, "wizard_id": id}),
		inputs:   map[string]string{},
		limits:   aggregator.Values{},
		context:  map[string]interface{}{},
		outcome:  map[string]string{},
		receipts: map[int]*ledger.Receipt{},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) ID() string { return e.id }

func (e *Engine) Kind() string { return e.def.Kind }

// Mount fetches the wizard's limits. Failed reads leave fields unknown.
func (e *Engine) Mount(ctx context.Context) {
	if e.def.Limits == nil {
		return
	}
	v := aggregator.Run(ctx, e.def.Limits)
	e.mu.Lock()
	e.limits = v
	e.mu.Unlock()
}

// SetInput changes a named input. Only allowed on the input step while idle.
func (e *Engine) SetInput(name, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
		return ErrClosed
	case e.busy || e.active != 0:
		return ErrLocked
	}
	e.inputs[name] = value
	return nil
}

// CanAdvance is the state of the "Next" control.
func (e *Engine) CanAdvance() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guardLocked() == nil
}

func (e *Engine) guardLocked() error {
	switch {
	case e.closed:
		return ErrClosed
	case e.busy:
		return ErrBusy
	case e.active >= len(e.def.Steps):
		return ErrTerminal
	case e.active != 0:
		return nil
	}
	f := e.factsLocked()
	if e.def.Precondition != nil {
		if err := e.def.Precondition(f); err != nil {
			return errors.Wrap(ErrPrecondition, err.Error())
		}
	}
	if e.def.Validate != nil {
		if err := e.def.Validate(f); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) factsLocked() Facts {
	return Facts{
		Inputs:  copyStrings(e.inputs),
		Limits:  e.limits,
		Context: e.context,
	}
}

// Advance moves to the next step and runs its handler to completion. It
// returns the guard error when the move is refused, otherwise the handler's
// error (which is also recorded in the state).
func (e *Engine) Advance(ctx context.Context) error {
	idx, step, facts, err := e.begin()
	if err != nil {
		return err
	}
	return e.run(ctx, idx, step, facts)
}

// Start is Advance with the handler running in the background. The returned
// error only reports whether the move was accepted.
func (e *Engine) Start(ctx context.Context) error {
	idx, step, facts, err := e.begin()
	if err != nil {
		return err
	}
	go func() {
		_ = e.run(ctx, idx, step, facts)
	}()
	return nil
}

func (e *Engine) begin() (int, Step, Facts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guardLocked(); err != nil {
		return 0, Step{}, Facts{}, err
	}
	e.busy = true
	e.active++
	e.lastErr = nil

	step := e.def.Result
	if e.active < len(e.def.Steps) {
		step = e.def.Steps[e.active]
	}
	return e.active, step, e.factsLocked(), nil
}

func (e *Engine) run(ctx context.Context, idx int, step Step, facts Facts) error {
	log := e.log.WithField("step", idx)
	var err error
	if step.Handler != nil {
		err = step.Handler(ctx, &Scope{Facts: facts, engine: e, index: idx})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
	if err == nil {
		log.Debug("wizard: step settled")
		return nil
	}

	rollback := false
	switch step.Rollback {
	case RollbackAlways:
		rollback = true
	case RollbackNever:
		log.WithError(err).Warn("wizard: step failed, continuing")
		return nil
	default:
		rollback = txerr.Recoverable(err)
	}
	e.lastErr = err
	if rollback {
		e.active = idx - 1
		delete(e.receipts, idx)
		e.lastReceipt = e.receipts[e.active]
	}
	log.WithFields(logrus.Fields{
		"kind":        txerr.KindOf(err).String(),
		"rolled_back": rollback,
	}).WithError(err).Error("wizard: step failed")
	return err
}

// Close discards the wizard and fires the completion callback exactly once.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.closeOnce.Do(func() {
		if e.onComplete != nil {
			e.onComplete()
		}
	})
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := State{
		ID:          e.id,
		Kind:        e.def.Kind,
		Labels:      e.def.Labels(),
		ActiveStep:  e.active,
		Terminal:    e.active == len(e.def.Steps),
		Busy:        e.busy,
		CanAdvance:  e.guardLocked() == nil,
		Closed:      e.closed,
		Inputs:      copyStrings(e.inputs),
		Limits:      e.limits,
		Context:     e.context,
		Outcome:     copyStrings(e.outcome),
		Receipts:    make(map[int]*ledger.Receipt, len(e.receipts)),
		LastReceipt: e.lastReceipt,
	}
	for k, v := range e.receipts {
		st.Receipts[k] = v
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
		st.ErrorKind = txerr.KindOf(e.lastErr).String()
	}
	return st
}

// Scope is what a running handler may read and record.
type Scope struct {
	Facts
	engine *Engine
	index  int
}

// Step is the index being entered.
func (s *Scope) Step() int { return s.index }

// Set records an outcome value, e.g. an estimate or a decoded event amount.
func (s *Scope) Set(key, value string) {
	s.engine.mu.Lock()
	s.engine.outcome[key] = value
	s.engine.mu.Unlock()
}

// Receipt records the receipt observed by this step.
func (s *Scope) Receipt(r *ledger.Receipt) {
	if r == nil {
		return
	}
	s.engine.mu.Lock()
	s.engine.receipts[s.index] = r
	s.engine.lastReceipt = r
	s.engine.mu.Unlock()
}

// Submit waits for a pending call and records whatever receipt it produced,
// including the receipt of a reverted transaction.
func (s *Scope) Submit(ctx context.Context, p ledger.Pending) (*ledger.Receipt, error) {
	r, err := p.Wait(ctx)
	s.Receipt(r)
	return r, err
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
