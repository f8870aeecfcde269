// Package machine provides a small effect reconciliation engine for Go.
//
// Reconcile-ive Go keeps an opaque application state synchronized with the set
// of asynchronous effects that state logically implies, so that restarting or
// rehydrating the state always yields the correct set of in-flight operations,
// with no duplicate and no orphaned work.
//
// # How it works
//
// The embedding application supplies a Definition: how to build the initial
// state, how a signal folds into the state, which effects a state implies
// (a map of stable string keys to opaque specs), and how to run one effect.
// The engine does the rest:
//
//   - signals dispatched into the machine are queued and folded in batches,
//     in dispatch order, on a single loop goroutine;
//   - after each batch the desired effect set is recomputed once from the
//     fully folded state and diffed against the running set by key;
//   - keys that disappeared are canceled, keys that appeared are started,
//     keys present in both are left alone even when their payload changed;
//   - late callbacks of canceled or replaced effects, both settlements and
//     dispatches, are suppressed by an identity-based staleness guard.
//
// Because the pass that runs at construction time is the same reconciliation,
// crash recovery needs no special machinery: rehydrate the persisted state in
// Initiate and the engine alone decides what resumes and what is redundant.
//
// # What it does not do
//
// Cancellation is cooperative, never preemptive; there is no built-in retry
// policy (encode retries in the transition logic or inside effects, see
// shared/helper.Retry); state immutability is a documented contract for the
// Definition callbacks, not something the engine enforces; persisting state
// across restarts belongs to the caller.
//
// Example:
//
//	m := machine.New(machine.Definition[AppState, AppSignal]{
//	    Initiate:   loadOrInitState,
//	    Transition: applySignal,
//	    EffectsAt:  desiredEffects,
//	    RunEffect:  runEffect,
//	}, machine.WithLogger(logger))
//	defer m.Close()
//
//	unsubscribe := m.On(func(ev machine.Event) { ... })
//	defer unsubscribe()
//
//	m.Dispatch(AppSignal{...})
package machine
