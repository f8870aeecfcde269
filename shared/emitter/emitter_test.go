package emitter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/reconcile_ive_go/shared/emitter"
)

func TestEmitter_RegistrationOrder(t *testing.T) {
	e := emitter.New[string]()
	var got []string
	e.On(func(s string) { got = append(got, "first:"+s) })
	e.On(func(s string) { got = append(got, "second:"+s) })

	e.Emit("x")
	require.Equal(t, []string{"first:x", "second:x"}, got)
}

func TestEmitter_UnsubscribeIsIdempotent(t *testing.T) {
	e := emitter.New[int]()
	calls := 0
	off := e.On(func(int) { calls++ })

	e.Emit(1)
	off()
	off() // no-op after the first call
	e.Emit(2)

	require.Equal(t, 1, calls)
	assert.Zero(t, e.Len())
}

func TestEmitter_UnsubscribeDuringEmitOnlyAffectsLaterPasses(t *testing.T) {
	e := emitter.New[int]()
	var got []string

	var offSecond func()
	e.On(func(int) {
		got = append(got, "first")
		offSecond() // removing a sibling mid-pass must not skip it this pass
	})
	offSecond = e.On(func(int) { got = append(got, "second") })

	e.Emit(1)
	require.Equal(t, []string{"first", "second"}, got)

	e.Emit(2)
	require.Equal(t, []string{"first", "second", "first"}, got)
}

func TestEmitter_SubscribeDuringEmitOnlyAffectsLaterPasses(t *testing.T) {
	e := emitter.New[int]()
	calls := 0
	var once bool
	e.On(func(int) {
		if !once {
			once = true
			e.On(func(int) { calls++ })
		}
	})

	e.Emit(1)
	require.Zero(t, calls, "handler added mid-pass must wait for the next emit")
	e.Emit(2)
	require.Equal(t, 1, calls)
}
