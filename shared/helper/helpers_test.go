package helper_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/reconcile_ive_go/shared/helper"
)

func TestAsTyped(t *testing.T) {
	v, err := helper.AsTyped[int](42)
	require.NoError(t, err)
	require.Equal(t, 42, v)

	_, err = helper.AsTyped[string](42)
	require.ErrorContains(t, err, "unexpected type")
}

func TestGetTypedValueOf_PropagatesGetterError(t *testing.T) {
	boom := errors.New("boom")
	_, err := helper.GetTypedValueOf[int](func() (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
}

func TestMustGetTypedValue_PanicsOnMismatch(t *testing.T) {
	assert.Panics(t, func() {
		helper.MustGetTypedValue[string](func() (any, error) { return 1, nil })
	})
}

func TestRetry_SucceedsWithinBudget(t *testing.T) {
	attempts := 0
	err := helper.Retry(3, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetry_ReportsExhaustion(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	err := helper.Retry(2, func() error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, helper.ErrMaxAttempts)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, attempts)
}
