package transcode

import (
	"math/rand"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerFinalizesOnLastSuccess(t *testing.T) {
	tr := newCompletionTracker(3)
	assert.Equal(t, outcomeNone, tr.record(true))
	assert.Equal(t, outcomeNone, tr.record(true))
	assert.Equal(t, outcomeFinalize, tr.record(true))
	// Spurious extra reports are ignored.
	assert.Equal(t, outcomeNone, tr.record(true))

	s, f, total := tr.counts()
	assert.Equal(t, [3]int{3, 0, 3}, [3]int{s, f, total})
}

func TestTrackerStallsOnceAfterFailure(t *testing.T) {
	tr := newCompletionTracker(3)
	assert.Equal(t, outcomeNone, tr.record(false))
	assert.Equal(t, outcomeNone, tr.record(true))
	assert.Equal(t, outcomeStalled, tr.record(true))
	assert.Equal(t, outcomeNone, tr.record(true))
}

func TestTrackerConcurrentRecordsFinalizeExactlyOnce(t *testing.T) {
	for _, n := range []int{1, 4, 5, 32} {
		for round := 0; round < 50; round++ {
			tr := newCompletionTracker(n)
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				finalizes int
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if rand.Intn(2) == 0 {
						runtime.Gosched()
					}
					if tr.record(true) == outcomeFinalize {
						mu.Lock()
						finalizes++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, finalizes, "n=%d", n)
		}
	}
}
