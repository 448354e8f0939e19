package metrics

import (
	"sync"
	"sync/atomic"
)

// dispatchStats counts gate decisions. Kept simple/thread-safe for use from
// request goroutines and exposition.
type dispatchStats struct {
	accepted uint64
	rejected uint64
	mu       sync.Mutex
	byReason map[string]uint64
}

var dispatch dispatchStats

// IncDispatchAccepted counts an accepted firing.
func IncDispatchAccepted() {
	atomic.AddUint64(&dispatch.accepted, 1)
}

// IncDispatchRejected counts a rejected firing under the given reason
// (not_found, unauthorized, inactive, quota, error).
func IncDispatchRejected(reason string) {
	if reason == "" {
		reason = "error"
	}
	atomic.AddUint64(&dispatch.rejected, 1)
	dispatch.mu.Lock()
	if dispatch.byReason == nil {
		dispatch.byReason = make(map[string]uint64)
	}
	dispatch.byReason[reason]++
	dispatch.mu.Unlock()
}

// DispatchSnapshot returns copies of the current gate counters.
func DispatchSnapshot() (accepted, rejected uint64, byReason map[string]uint64) {
	accepted = atomic.LoadUint64(&dispatch.accepted)
	rejected = atomic.LoadUint64(&dispatch.rejected)
	dispatch.mu.Lock()
	defer dispatch.mu.Unlock()
	byReason = make(map[string]uint64, len(dispatch.byReason))
	for k, v := range dispatch.byReason {
		byReason[k] = v
	}
	return accepted, rejected, byReason
}

// runStats counts finished runs and individual action outcomes.
type runStats struct {
	succeeded     uint64
	failed        uint64
	actionSuccess uint64
	actionFailure uint64
	actionSkipped uint64
}

var runs runStats

// IncRunFinished counts a finalized run.
func IncRunFinished(failed bool) {
	if failed {
		atomic.AddUint64(&runs.failed, 1)
		return
	}
	atomic.AddUint64(&runs.succeeded, 1)
}

// IncActionResult counts one action invocation outcome.
func IncActionResult(err bool) {
	if err {
		atomic.AddUint64(&runs.actionFailure, 1)
		return
	}
	atomic.AddUint64(&runs.actionSuccess, 1)
}

// IncActionSkipped counts an unknown-action-type skip.
func IncActionSkipped() {
	atomic.AddUint64(&runs.actionSkipped, 1)
}

// RunSnapshot returns copies of the run/action counters.
func RunSnapshot() (succeeded, failed, actionSuccess, actionFailure, actionSkipped uint64) {
	return atomic.LoadUint64(&runs.succeeded),
		atomic.LoadUint64(&runs.failed),
		atomic.LoadUint64(&runs.actionSuccess),
		atomic.LoadUint64(&runs.actionFailure),
		atomic.LoadUint64(&runs.actionSkipped)
}
