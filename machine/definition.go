package machine

import "context"

// EffectKey is the stable identity under which an effect is tracked across
// reconciliation passes and restarts. Keys are the sole identity used when
// diffing: two specs sharing a key are the same logical effect, and the engine
// never runs more than one instance per key at a time.
type EffectKey string

// Definition supplies the four callbacks that give a Machine its semantics.
//
// All four must treat their arguments as immutable. Transition and EffectsAt
// are pure functions; enforcement of deep immutability is the embedding
// application's concern, the engine only relies on the discipline.
type Definition[S, Sig any] struct {
	// Initiate produces the starting state. Hand it a freshly built value or
	// a rehydrated snapshot: the reconciliation pass that runs inside New
	// alone decides which effects that state implies and starts them, which
	// is the whole crash/restart recovery story.
	Initiate func() S

	// Transition folds one signal into the state and returns the next state.
	// The previous state value must not be mutated in place.
	Transition func(state S, sig Sig) S

	// EffectsAt derives the desired effect set from a state. Payloads are
	// opaque to the engine; only the keys participate in reconciliation.
	EffectsAt func(state S) map[EffectKey]any

	// RunEffect constructs the runnable for one desired effect. Returning an
	// error (or panicking) marks the effect failed without it ever starting;
	// the key stays absent until a later reconciliation desires it again.
	RunEffect func(spec any, state S, key EffectKey) (Effect[Sig], error)
}

// Effect is the handle for one running side effect.
type Effect[Sig any] struct {
	// Start performs the effect on its own goroutine; its returned error is
	// the effect's failure outcome, nil its completion. The context is
	// canceled when the machine closes. dispatch feeds signals back into the
	// machine and becomes a silent no-op once this effect instance is no
	// longer the current one for its key.
	Start func(ctx context.Context, dispatch func(Sig)) error

	// Cancel requests cooperative cancellation. The engine never forcibly
	// terminates Start; if the underlying work ignores the request and later
	// settles anyway, that settlement is discarded unobserved. May be nil
	// when there is nothing to interrupt.
	Cancel func()
}
