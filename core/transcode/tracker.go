package transcode

import "sync"

// completionOutcome tells the caller of completionTracker.record what, if
// anything, it must do after recording a job.
type completionOutcome int

const (
	outcomeNone completionOutcome = iota
	// outcomeFinalize: this call observed the last success. Returned exactly once.
	outcomeFinalize
	// outcomeStalled: every job has reported and at least one failed. Returned exactly once.
	outcomeStalled
)

// completionTracker counts terminal job outcomes for one upload. The
// increment and the comparison with total happen under one lock, so exactly
// one caller sees the count reach total.
type completionTracker struct {
	mu        sync.Mutex
	total     int
	succeeded int
	failed    int
	finalized bool
}

func newCompletionTracker(total int) *completionTracker {
	return &completionTracker{total: total}
}

func (t *completionTracker) record(success bool) completionOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.succeeded+t.failed >= t.total {
		return outcomeNone
	}
	if success {
		t.succeeded++
	} else {
		t.failed++
	}

	switch {
	case t.succeeded == t.total && !t.finalized:
		t.finalized = true
		return outcomeFinalize
	case t.succeeded+t.failed == t.total && t.failed > 0:
		return outcomeStalled
	}
	return outcomeNone
}

func (t *completionTracker) counts() (succeeded, failed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.succeeded, t.failed, t.total
}
