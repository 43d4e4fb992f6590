package txnfeed

import (
	"context"
	"errors"
	"sync"

	"github.com/txnfeed/txnfeed/store"
)

// Observer is the push target of a Subscription.
type Observer interface {
	// OnNext delivers one page's transactions, in order. An error
	// returned from OnNext is terminal for the subscription: it is
	// reported back to OnError and the subscription stops.
	OnNext(transactions []store.Transaction) error
	// OnError is invoked at most once, either because OnNext failed or
	// because GetNextPage itself failed for a reason other than
	// cancellation or disposal.
	OnError(err error)
	// OnCompleted is invoked at most once, on orderly termination
	// (Dispose of the subscription, or of the adapter) that was not
	// preceded by OnError.
	OnCompleted()
}

// Subscription is a long-running per-observer task that repeatedly asks
// the adapter for the next page past its cursor and pushes it to the
// observer.
type Subscription struct {
	adapter  *Adapter
	observer Observer

	cursor string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	failed    bool
	disposed  bool
	completed bool
}

// run is the subscription's worker loop. It exits either because its
// context was cancelled (Dispose, or adapter shutdown) or because
// GetNextPage/OnNext failed.
func (s *Subscription) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		page, err := s.adapter.GetNextPage(s.ctx, s.cursor)
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, store.ErrAdapterDisposed) {
				return
			}
			s.fail(err)
			return
		}

		if !page.Empty() {
			if err := s.observer.OnNext(page.Transactions); err != nil {
				s.fail(err)
				return
			}
			s.cursor = page.LastCheckpoint()
		}
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.failed = true
	s.mu.Unlock()
	s.observer.OnError(err)
}

// complete disposes the subscription: it cancels the worker, waits for
// it to exit, removes the subscription from the adapter's live set, and
// — if the subscription did not fail — signals normal completion to the
// observer. Idempotent.
func (s *Subscription) complete() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	s.adapter.removeSubscription(s)

	s.mu.Lock()
	var failed = s.failed
	var alreadyCompleted = s.completed
	s.completed = true
	s.mu.Unlock()

	if !failed && !alreadyCompleted {
		s.observer.OnCompleted()
	}
}

// Dispose cancels the subscription and waits for its worker to stop.
// Safe to call any number of times, and safe to call concurrently with
// the adapter's own Dispose.
func (s *Subscription) Dispose() { s.complete() }
