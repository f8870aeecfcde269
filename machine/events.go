package machine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rickb777/date/v2/timespan"
)

// TimeSpan is the interval type attached to effect settle events.
type TimeSpan = timespan.TimeSpan

// Event is the machine's notification union. The concrete types are
// SignalReceived, StateUpdated, EffectStarted, EffectCompleted,
// EffectCanceled and EffectFailed; subscribers type-switch on them.
type Event interface {
	isEvent()
}

// EffectRef identifies one effect instance across its lifecycle events.
// A key that disappears and reappears yields a fresh ID, so subscribers can
// tell apart incarnations of the same logical effect.
type EffectRef struct {
	Key  EffectKey
	ID   uuid.UUID
	Spec any
}

// SignalReceived is emitted for each folded signal, in fold order, before the
// transition runs. Signals suppressed by the lifecycle guard never produce it.
type SignalReceived[Sig any] struct {
	Signal Sig
}

// StateUpdated is emitted exactly once per processed batch, after the folded
// state has been committed and the batch's synchronous reconciliation events
// are out, and before any of the batch's effects can have been observed
// settling.
type StateUpdated[S any] struct {
	State S
}

// EffectStarted is emitted when a desired effect's runnable was constructed
// and handed to its goroutine.
type EffectStarted struct {
	Effect EffectRef
}

// EffectCompleted is emitted when a still-current effect's Start returns nil.
type EffectCompleted struct {
	Effect EffectRef
	Span   TimeSpan
}

// EffectCanceled is emitted when a running effect's key left the desired set
// and its Cancel returned normally.
type EffectCanceled struct {
	Effect EffectRef
	Span   TimeSpan
}

// EffectFailed covers every effect-path error: construction failures, Start
// returning an error or panicking, and Cancel panicking. Span is the zero
// value when the effect never started.
type EffectFailed struct {
	Effect EffectRef
	Err    error
	Span   TimeSpan
}

func (SignalReceived[Sig]) isEvent() {}
func (StateUpdated[S]) isEvent() {}
func (EffectStarted) isEvent() {}
func (EffectCompleted) isEvent() {}
func (EffectCanceled) isEvent() {}
func (EffectFailed) isEvent() {}

// compile-time exhaustiveness of the union
var (
	_ Event = SignalReceived[any]{}
	_ Event = StateUpdated[any]{}
	_ Event = EffectStarted{}
	_ Event = EffectCompleted{}
	_ Event = EffectCanceled{}
	_ Event = EffectFailed{}
)

func spanSince(start time.Time) TimeSpan {
	return timespan.BetweenTimes(start, time.Now())
}
