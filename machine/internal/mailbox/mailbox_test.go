package mailbox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/reconcile_ive_go/machine/internal/mailbox"
)

func TestMailbox_FIFOWithinDrain(t *testing.T) {
	mb := mailbox.New[int](4)
	for i := 1; i <= 5; i++ {
		require.True(t, mb.Push(i))
	}

	require.Equal(t, []int{1, 2, 3, 4, 5}, mb.Drain())
	require.Nil(t, mb.Drain(), "second drain must see an empty mailbox")
}

func TestMailbox_PushDuringProcessingStartsNewBatch(t *testing.T) {
	mb := mailbox.New[string](4)
	mb.Push("a")
	mb.Push("b")

	first := mb.Drain()
	require.Equal(t, []string{"a", "b"}, first)

	// Anything pushed now belongs to the next drain, not the one in hand.
	mb.Push("c")
	require.Equal(t, []string{"a", "b"}, first)
	require.Equal(t, []string{"c"}, mb.Drain())
}

func TestMailbox_WakeCoalesces(t *testing.T) {
	mb := mailbox.New[int](4)
	mb.Push(1)
	mb.Push(2)
	mb.Push(3)

	select {
	case <-mb.Wake():
	default:
		t.Fatal("expected a pending wakeup")
	}
	// Three pushes, one wakeup.
	select {
	case <-mb.Wake():
		t.Fatal("expected wakeups to coalesce")
	default:
	}

	require.Len(t, mb.Drain(), 3)
}

func TestMailbox_CloseDropsNewPushesKeepsQueued(t *testing.T) {
	mb := mailbox.New[int](4)
	require.True(t, mb.Push(1))
	mb.Close()

	assert.False(t, mb.Push(2))
	require.Equal(t, []int{1}, mb.Drain())
}
