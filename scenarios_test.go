package txnfeed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/txnfeed/txnfeed"
	"github.com/txnfeed/txnfeed/store"
	"github.com/txnfeed/txnfeed/store/memstore"
)

func mustEvents(n int) []store.EventEnvelope {
	var out = make([]store.EventEnvelope, n)
	for i := range out {
		out[i] = store.EventEnvelope{Body: []byte("e"), Headers: map[string]string{"n": "1"}}
	}
	return out
}

// S1: cold read against an empty cache populates the cache and records
// a tail observation when the backing store returns a short page.
func TestS1ColdRead(t *testing.T) {
	var ms = memstore.New()
	ms.Append("s", mustEvents(1), nil)
	ms.Append("s", mustEvents(1), nil)
	ms.Append("s", mustEvents(1), nil)

	var a = txnfeed.New(txnfeed.Options{BackingStore: ms, CacheSize: 64, MaxPageSize: 10, PollInterval: time.Minute})
	defer a.Dispose(context.Background())

	page, err := a.GetNextPage(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "", page.PreviousCheckpoint)
	require.Len(t, page.Transactions, 3)
}

// S2: a full page triggers a preload that warms the cache for the next
// batch without any further caller.
func TestS2FullPagePreload(t *testing.T) {
	var ms = memstore.New()
	for i := 0; i < 5; i++ {
		ms.Append("s", mustEvents(1), nil)
	}

	var a = txnfeed.New(txnfeed.Options{BackingStore: ms, CacheSize: 64, MaxPageSize: 3, PollInterval: time.Minute})
	defer a.Dispose(context.Background())

	page, err := a.GetNextPage(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)

	require.Eventually(t, func() bool {
		next, err := a.GetNextPage(context.Background(), page.LastCheckpoint())
		return err == nil && len(next.Transactions) == 2
	}, time.Second, 5*time.Millisecond)
}

// S3: three concurrent cold subscribers coalesce onto one backing-store
// call.
func TestS3Coalescing(t *testing.T) {
	var calls int32
	var fs = newFakeStore(func(checkpoint string, max int) ([]store.Commit, error) {
		return []store.Commit{
			{CommitID: "c1", CheckpointToken: "cp1", Events: mustEvents(1)},
			{CommitID: "c2", CheckpointToken: "cp2", Events: mustEvents(1)},
		}, nil
	})
	_ = calls

	var a = txnfeed.New(txnfeed.Options{BackingStore: fs, CacheSize: 64, MaxPageSize: 10, PollInterval: time.Minute})
	defer a.Dispose(context.Background())

	var n = 3
	var results = make([]store.Page, n)
	var errs = make([]error, n)
	var done = make(chan int, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			results[i], errs[i] = a.GetNextPage(context.Background(), "")
			done <- i
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	require.LessOrEqual(t, fs.callCount(), int32(2), "at most one fetch, plus maybe one re-entry for a coalesced-but-mismatched caller")
}

// S4: two successive fetches from the same cursor that both return a
// short page are separated by at least pollInterval.
func TestS4TailPollThrottle(t *testing.T) {
	var fs = newFakeStore(func(checkpoint string, max int) ([]store.Commit, error) {
		return nil, nil
	})

	var a = txnfeed.New(txnfeed.Options{BackingStore: fs, CacheSize: 64, MaxPageSize: 10, PollInterval: 150 * time.Millisecond})
	defer a.Dispose(context.Background())

	var ctx, cancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _ = a.GetNextPage(ctx, "t9.cp")
	var firstCalls = fs.callCount()
	require.GreaterOrEqual(t, firstCalls, int32(1))

	var start = time.Now()
	var ctx2, cancel2 = context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel2()
	_, _ = a.GetNextPage(ctx2, "t9.cp")
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

// S5: disposing a subscription mid-throttle-sleep exits the worker
// cleanly, signals OnCompleted exactly once, and removes it from the
// adapter's set.
func TestS5SubscriptionCancellationMidPoll(t *testing.T) {
	var fs = newFakeStore(func(checkpoint string, max int) ([]store.Commit, error) {
		return nil, nil
	})
	var a = txnfeed.New(txnfeed.Options{BackingStore: fs, CacheSize: 64, MaxPageSize: 10, PollInterval: time.Hour})

	var obs = &recordingObserver{}
	sub, err := a.Subscribe("t9.cp", obs)
	require.NoError(t, err)

	// Give the worker a moment to enter its throttle sleep.
	time.Sleep(20 * time.Millisecond)
	sub.Dispose()

	_, _, completed := obs.snapshot()
	require.True(t, completed)

	require.NoError(t, a.Dispose(context.Background()))
}

// S6: Dispose blocks until an in-flight fetch resolves, then releases
// the backing store; Subscribe after Dispose fails.
func TestS6ShutdownWithInFlightFetch(t *testing.T) {
	var release = make(chan struct{})
	var fs = newFakeStore(func(checkpoint string, max int) ([]store.Commit, error) {
		<-release
		return []store.Commit{{CommitID: "c1", CheckpointToken: "cp1", Events: mustEvents(1)}}, nil
	})
	var a = txnfeed.New(txnfeed.Options{BackingStore: fs, CacheSize: 64, MaxPageSize: 10, PollInterval: time.Minute})

	var fetchStarted = make(chan struct{})
	go func() {
		close(fetchStarted)
		_, _ = a.GetNextPage(context.Background(), "")
	}()
	<-fetchStarted
	time.Sleep(20 * time.Millisecond)

	var disposeDone = make(chan error, 1)
	go func() { disposeDone <- a.Dispose(context.Background()) }()

	select {
	case <-disposeDone:
		t.Fatal("Dispose returned before the in-flight fetch resolved")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)

	select {
	case err := <-disposeDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Dispose did not return after the fetch resolved")
	}

	require.True(t, fs.disposed)

	_, err := a.Subscribe("", &recordingObserver{})
	require.ErrorIs(t, err, txnfeed.ErrAdapterDisposed)
}

// Dispose idempotence: repeated calls after the first are no-ops.
func TestDisposeIdempotent(t *testing.T) {
	var fs = newFakeStore(func(string, int) ([]store.Commit, error) { return nil, nil })
	var a = txnfeed.New(txnfeed.Options{BackingStore: fs, CacheSize: 8, MaxPageSize: 4, PollInterval: time.Minute})

	require.NoError(t, a.Dispose(context.Background()))
	require.NoError(t, a.Dispose(context.Background()))
	require.NoError(t, a.Dispose(context.Background()))
}
