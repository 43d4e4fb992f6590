package txnfeed

import (
	"context"
	"time"

	"github.com/txnfeed/txnfeed/store"
)

// singleFlightFetch coalesces concurrent fetch requests onto a single
// in-flight call to tryLoadNextPage via golang.org/x/sync/singleflight,
// keyed by the constant fetchKey rather than by cursor: every caller
// that arrives while a fetch is in progress awaits that same fetch,
// whatever cursor it was started for (§4.3, §9).
//
// The fetch itself runs against a.rootCtx, not the calling goroutine's
// ctx: whichever caller happens to win the single-flight race must not
// have its own subscription's cancellation tear down a fetch that other
// coalesced callers are still depending on (§5). ctx is only used to
// stop waiting on the result.
func (a *Adapter) singleFlightFetch(ctx context.Context, cursor string) (store.Page, error) {
	a.loaderWG.Add(1)
	defer a.loaderWG.Done()

	type result struct {
		page store.Page
		err  error
	}
	var done = make(chan result, 1)
	go func() {
		v, err, _ := a.group.Do(fetchKey, func() (interface{}, error) {
			return a.tryLoadNextPage(a.rootCtx, cursor)
		})
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{page: v.(store.Page)}
	}()

	select {
	case r := <-done:
		return r.page, r.err
	case <-ctx.Done():
		return store.Page{}, ctx.Err()
	}
}

// preload fires a single-flight-coalesced fetch from checkpoint without
// waiting on or returning its result. It shares the same group as every
// other caller, so a preload racing an explicit GetNextPage for a
// different cursor still results in only one backing-store call.
func (a *Adapter) preload(checkpoint string) {
	a.loaderWG.Add(1)
	go func() {
		defer a.loaderWG.Done()
		if a.isDisposed() {
			return
		}
		_, _, _ = a.group.Do(fetchKey, func() (interface{}, error) {
			return a.tryLoadNextPage(a.rootCtx, checkpoint)
		})
	}()
}

// tryLoadNextPage is run by whichever caller wins the single-flight
// round. It re-checks the cache first (another coalesced writer may
// have populated it while this caller was queued behind the group's
// lock), then actually asks the backing store, maps the result,
// updates the tail-poll throttle, and populates the cache in reverse
// order (§4.4).
func (a *Adapter) tryLoadNextPage(ctx context.Context, cursor string) (store.Page, error) {
	if a.isDisposed() {
		return store.Page{}, nil
	}
	if page := a.tryGetNextPageFromCache(cursor); !page.Empty() {
		return page, nil
	}

	var requestedAt = time.Now().UTC()
	commits, err := a.backing.GetFrom(ctx, cursor, a.maxPageSize)
	var txns []store.Transaction
	if err != nil {
		// Backing-store errors are swallowed here: the caller sees an
		// empty result and loadNextPageSequentially's loop retries after
		// the tail-poll throttle kicks in, per §7.
		a.metrics.FetchFailure()
		a.log.WithError(err).WithField("cursor", cursor).Warn("backing store fetch failed, will retry")
	} else {
		a.metrics.FetchDuration(time.Since(requestedAt))
		txns = make([]store.Transaction, len(commits))
		for i, c := range commits {
			txns[i] = store.FromCommit(c)
		}
	}

	// A fetch that came back short of a full page — including empty,
	// whether genuinely empty or because the backing store errored —
	// means we've (re-)observed the tail. When nothing came back there
	// is no successor transaction to key the observation on, so the
	// observation is keyed on the cursor itself; otherwise it's keyed
	// on the last transaction reached, per §4.4 and the S4 scenario.
	if n := len(txns); n < a.maxPageSize {
		if n == 0 {
			a.throttle.Observe(cursor, requestedAt)
		} else {
			a.throttle.Observe(txns[n-1].Checkpoint, requestedAt)
		}
	}

	// Reverse-order insertion: the tail of the chain goes in first, so
	// any follower that observes the head (cursor -> txns[0]) already
	// installed is guaranteed to find every successor already present
	// (§4.4 invariant 4 in §8).
	for i := len(txns) - 1; i >= 1; i-- {
		a.cache.Set(txns[i-1].Checkpoint, txns[i])
	}
	if len(txns) > 0 {
		a.cache.Set(cursor, txns[0])
	}

	return store.Page{PreviousCheckpoint: cursor, Transactions: txns}, nil
}
