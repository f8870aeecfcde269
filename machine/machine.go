package machine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/on-the-ground/reconcile_ive_go/machine/internal/mailbox"
	"github.com/on-the-ground/reconcile_ive_go/shared/emitter"
)

// ErrNoStart is the construction failure reported when RunEffect returns an
// Effect without a Start function.
var ErrNoStart = errors.New("effect has no Start function")

const defaultInboxCapacity = 16

// Machine owns one state value and the set of running effects that state
// implies. Signals dispatched into it are folded in batches; after each batch
// the desired effect set is recomputed from the folded state and reconciled
// against what is actually running, starting and canceling the difference.
//
// All bookkeeping, the running-effects map and the committed-state slot, is
// mutated only on a single loop goroutine. External callers interact through
// Dispatch, On, State and Close, all safe from any goroutine. There is no
// engine-level locking beyond the committed-state slot; the identity-based
// guard in guard.go substitutes for locks when effect goroutines resume later.
type Machine[S, Sig any] struct {
	def    Definition[S, Sig]
	logger *zap.Logger

	inbox  *mailbox.Mailbox[envelope[Sig]]
	events *emitter.Emitter[Event]

	// running is owned by the loop goroutine (and by New before the loop
	// starts). Entries are the staleness tokens, see guard.go.
	running map[EffectKey]*runningEffect

	mu        sync.RWMutex
	committed S

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// runningEffect is the bookkeeping entry for one started effect.
type runningEffect struct {
	key         EffectKey
	id          uuid.UUID
	spec        any
	fingerprint uint64
	cancelFn    func()
	startedAt   time.Time
}

func (e *runningEffect) ref() EffectRef {
	return EffectRef{Key: e.key, ID: e.id, Spec: e.spec}
}

// envelope carries one inbound item to the loop: a signal, possibly scoped to
// the effect that dispatched it, or an effect settlement.
type envelope[Sig any] struct {
	sig    Sig
	origin *runningEffect // non-nil for effect-scoped dispatches
	settle *settlement    // non-nil for settlements; sig is unused then
}

type settlement struct {
	entry *runningEffect
	err   error
}

// Option configures a Machine at construction.
type Option func(*options)

type options struct {
	logger        *zap.Logger
	inboxCapacity int
}

// WithLogger routes the machine's structured logs to logger. The default is a
// no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithInboxCapacity pre-sizes the inbound queue. Purely an allocation hint;
// the queue is unbounded either way and Dispatch never blocks.
func WithInboxCapacity(n int) Option {
	return func(o *options) { o.inboxCapacity = n }
}

// New builds the machine and immediately runs one reconciliation pass against
// the initial state, so a freshly hydrated snapshot begins or resumes the
// effects it already implies before New returns. The loop goroutine starts
// afterwards; stop it with Close.
//
// Events produced by the construction-time pass precede any possible On call
// and therefore reach no subscriber. Panics out of Initiate or EffectsAt at
// this point propagate to the caller; once the loop is running, see the batch
// abort policy on Dispatch.
func New[S, Sig any](def Definition[S, Sig], opts ...Option) *Machine[S, Sig] {
	o := options{logger: zap.NewNop(), inboxCapacity: defaultInboxCapacity}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine[S, Sig]{
		def:     def,
		logger:  o.logger,
		inbox:   mailbox.New[envelope[Sig]](o.inboxCapacity),
		events:  emitter.New[Event](),
		running: make(map[EffectKey]*runningEffect),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	initial := def.Initiate()
	m.commit(initial)
	m.reconcile(initial, def.EffectsAt(initial))

	go m.loop()
	return m
}

// Dispatch enqueues one signal. It never blocks and never fails for a
// well-typed signal; signals enqueued before the loop picks the inbox up are
// folded together as one batch, in dispatch order. After Close the signal is
// silently dropped.
//
// A panic out of Transition or EffectsAt while a batch is processed aborts
// that whole batch: nothing is committed, no state-updated is emitted, running
// effects stay untouched and the next batch proceeds as usual. The panic is
// logged at error level. Effect-path panics never abort a batch; they surface
// as effect-failed events instead.
func (m *Machine[S, Sig]) Dispatch(sig Sig) {
	m.inbox.Push(envelope[Sig]{sig: sig})
}

// On registers an event handler and returns its idempotent unsubscribe
// function. Handlers run synchronously on the loop goroutine, in registration
// order; a slow handler stalls batch processing.
func (m *Machine[S, Sig]) On(handler func(Event)) func() {
	return m.events.On(handler)
}

// State returns the last committed state, never an interior fold value.
func (m *Machine[S, Sig]) State() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.committed
}

// Close stops the machine: the loop exits, every still-running effect is
// canceled through the usual cancel path with its events emitted, the context
// handed to Start functions is canceled, and later Dispatch calls become
// no-ops. Close blocks until shutdown finished and may be called repeatedly.
func (m *Machine[S, Sig]) Close() {
	m.closeOnce.Do(func() {
		m.inbox.Close()
		m.cancel()
	})
	<-m.done
}

func (m *Machine[S, Sig]) commit(state S) {
	m.mu.Lock()
	m.committed = state
	m.mu.Unlock()
}

func (m *Machine[S, Sig]) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return
		case <-m.inbox.Wake():
			m.process(m.inbox.Drain())
		}
	}
}

// process handles one drained sequence: every queued signal as a single
// batch, then the settlements. An effect always dispatches before it settles,
// so folding the batch first keeps an effect's final feedback signal ahead of
// its own settlement; ordering between independent settlements and a fresh
// batch is unspecified anyway.
func (m *Machine[S, Sig]) process(drained []envelope[Sig]) {
	var settles []*settlement
	batch := drained[:0]
	for _, env := range drained {
		if env.settle != nil {
			settles = append(settles, env.settle)
			continue
		}
		batch = append(batch, env)
	}
	if len(batch) > 0 {
		m.processBatch(batch)
	}
	for _, s := range settles {
		m.handleSettlement(s)
	}
}

// processBatch folds every signal of the batch in arrival order, recomputes
// the desired effect set once against the fully folded state, reconciles, and
// commits. state-updated goes out exactly once per batch, last.
func (m *Machine[S, Sig]) processBatch(batch []envelope[Sig]) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("batch aborted by panic in Transition or EffectsAt",
				zap.Any("panic", r),
				zap.Int("batchSize", len(batch)),
			)
		}
	}()

	state := m.State()
	folded := 0
	for _, env := range batch {
		if env.origin != nil && !m.current(env.origin) {
			m.logger.Debug("dropping signal from stale effect",
				zap.String("key", string(env.origin.key)),
				zap.String("effectId", env.origin.id.String()),
			)
			continue
		}
		m.events.Emit(SignalReceived[Sig]{Signal: env.sig})
		state = m.def.Transition(state, env.sig)
		folded++
	}
	if folded == 0 {
		// Every signal came from a stale effect; the batch is empty.
		return
	}

	desired := m.def.EffectsAt(state)

	// Commit precedes reconciliation so an effect goroutine that reads State
	// right after starting observes the state that implied it.
	m.commit(state)
	m.reconcile(state, desired)
	m.events.Emit(StateUpdated[S]{State: state})

	m.logger.Debug("batch processed",
		zap.Int("signals", folded),
		zap.Int("running", len(m.running)),
	)
}

// reconcile diffs the desired map against the running map: cancel every
// running key no longer desired, then start every desired key not yet
// running. Keys already in both sets are left untouched even when their
// payload changed; only key removal and reappearance restarts an effect.
func (m *Machine[S, Sig]) reconcile(state S, desired map[EffectKey]any) {
	for _, key := range sortedKeys(m.running) {
		if _, ok := desired[key]; ok {
			continue
		}
		entry := m.running[key]
		// The entry leaves the map before Cancel runs, so a synchronous
		// re-entrant dispatch out of Cancel already observes it as gone.
		delete(m.running, key)
		m.cancelEntry(entry)
	}

	for _, key := range sortedKeys(desired) {
		spec := desired[key]
		if entry, ok := m.running[key]; ok {
			if fp := fingerprint(spec); fp != entry.fingerprint {
				m.logger.Debug("effect payload changed under a running key, not restarting",
					zap.String("key", string(key)),
					zap.Uint64("runningFingerprint", entry.fingerprint),
					zap.Uint64("desiredFingerprint", fp),
				)
			}
			continue
		}
		m.startEntry(state, key, spec)
	}
}

func (m *Machine[S, Sig]) cancelEntry(entry *runningEffect) {
	ref := entry.ref()
	span := spanSince(entry.startedAt)
	if entry.cancelFn != nil {
		if err := safely(entry.cancelFn); err != nil {
			m.logger.Debug("effect cancel failed",
				zap.String("key", string(entry.key)),
				zap.Error(err),
			)
			m.events.Emit(EffectFailed{Effect: ref, Err: err, Span: span})
			return
		}
	}
	m.logger.Debug("effect canceled", zap.String("key", string(entry.key)))
	m.events.Emit(EffectCanceled{Effect: ref, Span: span})
}

func (m *Machine[S, Sig]) startEntry(state S, key EffectKey, spec any) {
	entry := &runningEffect{
		key:         key,
		id:          uuid.New(),
		spec:        spec,
		fingerprint: fingerprint(spec),
		startedAt:   time.Now(),
	}

	eff, err := m.buildEffect(spec, state, key)
	if err == nil && eff.Start == nil {
		err = ErrNoStart
	}
	if err != nil {
		m.logger.Debug("effect construction failed",
			zap.String("key", string(key)),
			zap.Error(err),
		)
		m.events.Emit(EffectFailed{Effect: entry.ref(), Err: err})
		return
	}
	entry.cancelFn = eff.Cancel
	m.running[key] = entry
	m.logger.Debug("effect started",
		zap.String("key", string(key)),
		zap.String("effectId", entry.id.String()),
	)
	m.events.Emit(EffectStarted{Effect: entry.ref()})

	// The settlement continuation is attached before reconcile returns, so
	// even an effect settling immediately cannot be missed.
	dispatch := m.scopedDispatch(entry)
	start := eff.Start
	go func() {
		err := runStart(m.ctx, start, dispatch)
		m.inbox.Push(envelope[Sig]{settle: &settlement{entry: entry, err: err}})
	}()
}

// buildEffect invokes RunEffect, folding a panic into the error return.
func (m *Machine[S, Sig]) buildEffect(spec any, state S, key EffectKey) (eff Effect[Sig], err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic in RunEffect: %v", r)
		}
	}()
	return m.def.RunEffect(spec, state, key)
}

// runStart executes Start on the effect's goroutine, converting a panic into
// the settlement error.
func runStart[Sig any](ctx context.Context, start func(context.Context, func(Sig)) error, dispatch func(Sig)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic in Start: %v", r)
		}
	}()
	return start(ctx, dispatch)
}

// scopedDispatch mints the feedback channel handed to one effect's Start. The
// signal is tagged with the originating entry; the loop drops it, without a
// signal-received event, if the entry is no longer current when the batch
// containing it is folded.
func (m *Machine[S, Sig]) scopedDispatch(entry *runningEffect) func(Sig) {
	return func(sig Sig) {
		m.inbox.Push(envelope[Sig]{sig: sig, origin: entry})
	}
}

// handleSettlement resolves one Start return value. Settlements of entries
// that were replaced or canceled in the meantime are discarded: the removal
// already emitted whatever event applied.
func (m *Machine[S, Sig]) handleSettlement(s *settlement) {
	if !m.current(s.entry) {
		m.logger.Debug("discarding stale settlement",
			zap.String("key", string(s.entry.key)),
			zap.String("effectId", s.entry.id.String()),
		)
		return
	}
	delete(m.running, s.entry.key)
	ref := s.entry.ref()
	span := spanSince(s.entry.startedAt)
	if s.err != nil {
		m.events.Emit(EffectFailed{Effect: ref, Err: s.err, Span: span})
		return
	}
	m.events.Emit(EffectCompleted{Effect: ref, Span: span})
}

// shutdown cancels whatever is still running. Loop goroutine only.
func (m *Machine[S, Sig]) shutdown() {
	for _, key := range sortedKeys(m.running) {
		entry := m.running[key]
		delete(m.running, key)
		m.cancelEntry(entry)
	}
}
