package helper

import (
	"fmt"
)

// GetTypedValueOf safely asserts the result of a getter function to the
// expected type T. Handy for pulling a concrete spec out of the opaque `any`
// payloads a Definition's EffectsAt returns.
func GetTypedValueOf[T any](getFn func() (any, error)) (T, error) {
	var zero T

	res, err := getFn()
	if err != nil {
		return zero, fmt.Errorf("failed to get value: %w", err)
	}

	val, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type: %T", res)
	}

	return val, nil
}

// AsTyped asserts val to type T, returning an error instead of panicking on
// mismatch.
func AsTyped[T any](val any) (T, error) {
	return GetTypedValueOf[T](func() (any, error) { return val, nil })
}

// MustGetTypedValue is the panic-on-failure variant of GetTypedValueOf.
// Use when failure should be fatal (e.g., when the payload type for a key is
// guaranteed by construction).
func MustGetTypedValue[T any](getFn func() (any, error)) T {
	res, err := GetTypedValueOf[T](getFn)
	if err != nil {
		panic(err)
	}
	return res
}

var ErrMaxAttempts = fmt.Errorf("max attempts reached")

// Retry runs fn until it succeeds or maxAttempts executions failed. The
// engine itself carries no retry policy; effects that want one call this (or
// encode the attempt count in state).
func Retry(maxAttempts int, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("%w: %d, %w", ErrMaxAttempts, attempt, err)
		}
	}
}
