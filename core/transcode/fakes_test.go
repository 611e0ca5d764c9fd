package transcode

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/moltasthornblom/beam/core/queue"
	"github.com/moltasthornblom/beam/model"
	"github.com/moltasthornblom/beam/repository"
)

var errEngine = errors.New("engine exited with status 1")

// fakeEncoder writes the rendition's sub-manifest after a random short delay
// and fails the renditions listed in fail.
type fakeEncoder struct {
	fail     map[string]bool
	maxDelay time.Duration
	block    bool // wait for ctx instead of finishing

	mu    sync.Mutex
	calls []string
}

func (e *fakeEncoder) Encode(ctx context.Context, req EncodeRequest) error {
	e.mu.Lock()
	e.calls = append(e.calls, req.Rendition.Name())
	e.mu.Unlock()

	if e.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if e.maxDelay > 0 {
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(e.maxDelay)))):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.fail[req.Rendition.Name()] {
		return errEngine
	}
	return os.WriteFile(req.OutputPath(), []byte("#EXTM3U\n"), 0644)
}

func (e *fakeEncoder) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []model.AssetEvent
}

func (r *recordingEvents) Publish(_ context.Context, ev model.AssetEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) count(typ model.AssetEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// countingRepo counts UpdateStatus calls on top of the memory repository.
type countingRepo struct {
	*repository.MemoryAssetRepository

	mu      sync.Mutex
	updates int
	failing bool
}

func (r *countingRepo) UpdateStatus(ctx context.Context, id string, status model.AssetStatus) error {
	r.mu.Lock()
	r.updates++
	failing := r.failing
	r.mu.Unlock()
	if failing {
		return errors.New("database is unreachable")
	}
	return r.MemoryAssetRepository.UpdateStatus(ctx, id, status)
}

func (r *countingRepo) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

type fakeMirror struct {
	mu       sync.Mutex
	mirrored []string
	removed  []string
	during   func() // runs inside MirrorDir
}

func (m *fakeMirror) MirrorDir(_ context.Context, prefix, _ string) error {
	if m.during != nil {
		m.during()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrored = append(m.mirrored, prefix)
	return nil
}

func (m *fakeMirror) RemovePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, prefix)
	return nil
}

// inlineSubmitter runs tasks synchronously on the caller's goroutine.
type inlineSubmitter struct {
	err error
}

func (s inlineSubmitter) Submit(task queue.Task) error {
	if s.err != nil {
		return s.err
	}
	task.Run(context.Background())
	return nil
}
