package txnfeed

import (
	"context"

	"github.com/txnfeed/txnfeed/store"
)

// GetNextPage returns the next page of transactions following cursor.
// It is safe to call concurrently from any number of goroutines with any
// mix of cursors; see package docs for the coalescing guarantees that
// gives.
func (a *Adapter) GetNextPage(ctx context.Context, cursor string) (store.Page, error) {
	if a.isDisposed() {
		return store.Page{}, ErrAdapterDisposed
	}

	if page := a.tryGetNextPageFromCache(cursor); !page.Empty() {
		return page, nil
	}

	page, err := a.loadNextPageSequentially(ctx, cursor)
	if err != nil {
		return store.Page{}, err
	}
	if len(page.Transactions) == a.maxPageSize {
		a.preload(page.LastCheckpoint())
	}
	return page, nil
}

// tryGetNextPageFromCache walks the checkpoint cache forward from
// cursor, accumulating transactions until it hits maxPageSize or the
// chain runs cold. A chain that runs cold after at least one hit
// triggers a fire-and-forget preload from the last checkpoint reached.
func (a *Adapter) tryGetNextPageFromCache(cursor string) store.Page {
	var txns []store.Transaction
	var key = cursor

	for len(txns) < a.maxPageSize {
		txn, ok := a.cache.TryGet(key)
		if !ok {
			a.metrics.CacheMiss()
			if len(txns) > 0 {
				a.preload(key)
			}
			break
		}
		a.metrics.CacheHit()
		txns = append(txns, txn)
		key = txn.Checkpoint
	}

	return store.Page{PreviousCheckpoint: cursor, Transactions: txns}
}

// loadNextPageSequentially loops the single-flight protocol until it
// produces a non-empty page that actually answers cursor — coalesced
// callers whose cursor didn't match the winning fetch simply re-enter,
// at which point the cache (now warmed by that fetch) or a subsequent
// single-flight round serves them.
func (a *Adapter) loadNextPageSequentially(ctx context.Context, cursor string) (store.Page, error) {
	for {
		if a.isDisposed() {
			return store.Page{}, nil
		}
		if err := a.throttle.Wait(ctx, cursor); err != nil {
			return store.Page{}, err
		}

		page, err := a.singleFlightFetch(ctx, cursor)
		if err != nil {
			return store.Page{}, err
		}
		if !page.Empty() && page.PreviousCheckpoint == cursor {
			return page, nil
		}

		select {
		case <-ctx.Done():
			return store.Page{}, ctx.Err()
		default:
		}
	}
}
