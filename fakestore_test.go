package txnfeed_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/txnfeed/txnfeed/store"
)

// fakeStore is a BackingStore whose GetFrom behavior is fully
// programmable, for exercising single-flight coalescing and throttle
// interactions precisely.
type fakeStore struct {
	mu       sync.Mutex
	script   func(checkpoint string, max int) ([]store.Commit, error)
	calls    int32
	inFlight int32
	maxInFlt int32
	disposed bool
}

func newFakeStore(script func(checkpoint string, max int) ([]store.Commit, error)) *fakeStore {
	return &fakeStore{script: script}
}

// fixedCommitScript returns a script serving one commit per checkpoint
// token in order, each carrying a single event, for tests that need
// fully predictable (non hash-derived) checkpoint values.
func fixedCommitScript(checkpoints ...string) func(string, int) ([]store.Commit, error) {
	var commits = make([]store.Commit, len(checkpoints))
	for i, cp := range checkpoints {
		commits[i] = store.Commit{
			CommitID:        fmt.Sprintf("c%d", i+1),
			StreamID:        "s",
			CheckpointToken: cp,
			Events:          mustEvents(1),
		}
	}
	return func(checkpoint string, max int) ([]store.Commit, error) {
		var start int
		if checkpoint != "" {
			start = len(commits)
			for i, c := range commits {
				if c.CheckpointToken == checkpoint {
					start = i + 1
					break
				}
			}
		}
		var end = start + max
		if end > len(commits) {
			end = len(commits)
		}
		if start >= len(commits) {
			return nil, nil
		}
		return commits[start:end], nil
	}
}

func (f *fakeStore) GetFrom(_ context.Context, checkpoint string, max int) ([]store.Commit, error) {
	atomic.AddInt32(&f.calls, 1)
	var n = atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		var cur = atomic.LoadInt32(&f.maxInFlt)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlt, cur, n) {
			break
		}
	}
	return f.script(checkpoint, max)
}

func (f *fakeStore) Dispose(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposed = true
	return nil
}

func (f *fakeStore) callCount() int32    { return atomic.LoadInt32(&f.calls) }
func (f *fakeStore) maxConcurrent() int32 { return atomic.LoadInt32(&f.maxInFlt) }

// recordingObserver captures delivered pages, errors, and completion for
// assertions.
type recordingObserver struct {
	mu          sync.Mutex
	batches     [][]store.Transaction
	err         error
	completed   bool
	nextErr     func([]store.Transaction) error
}

func (o *recordingObserver) OnNext(txns []store.Transaction) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var cp = make([]store.Transaction, len(txns))
	copy(cp, txns)
	o.batches = append(o.batches, cp)
	if o.nextErr != nil {
		return o.nextErr(txns)
	}
	return nil
}

func (o *recordingObserver) OnError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *recordingObserver) OnCompleted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = true
}

func (o *recordingObserver) snapshot() (batches [][]store.Transaction, err error, completed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.batches, o.err, o.completed
}

func (o *recordingObserver) transactionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	var n int
	for _, b := range o.batches {
		n += len(b)
	}
	return n
}
