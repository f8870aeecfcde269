package machine

// Staleness is decided by identity, not by payload equality: the running-map
// entry created at start time is the token, and a callback minted for a
// specific entry is valid only while the map still holds that exact entry
// under its key. Cancellation and replacement both swap the entry out, which
// is what turns cancel-then-dispatch and completion-after-replacement into
// safe no-ops.
//
// Both checks below run exclusively on the loop goroutine, so "current at
// invocation time" means current at the moment the loop picks the callback's
// message out of the inbox.

// current reports whether entry is still the live entry for its key.
func (m *Machine[S, Sig]) current(entry *runningEffect) bool {
	return m.running[entry.key] == entry
}
