package machine

import (
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// fingerprint reduces an opaque spec to a stable hash. Reconciliation compares
// effects by key, never by payload; the fingerprint only exists so a payload
// change under a running key shows up in the debug log instead of vanishing.
func fingerprint(spec any) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%#v", spec))
}

// sortedKeys walks a key set in a fixed order. Reconciliation promises no
// ordering between sibling effects, but a deterministic walk keeps event
// timelines reproducible.
func sortedKeys[V any](m map[EffectKey]V) []EffectKey {
	keys := make([]EffectKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// safely runs fn, converting a panic into an error.
func safely(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}
