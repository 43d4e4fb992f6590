// Package txnfeed is the paged loader core: a single-flight, LRU-cached,
// poll-throttled producer that turns a pull-based, checkpointed commit
// store into a push-based stream of transaction pages for one or more
// independent subscribers.
package txnfeed

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/txnfeed/txnfeed/cache"
	"github.com/txnfeed/txnfeed/metrics"
	"github.com/txnfeed/txnfeed/store"
	"github.com/txnfeed/txnfeed/tailpoll"
)

// fetchKey is the single constant key every caller single-flights on,
// regardless of the cursor it is asking about — see §4.3 and §9: the
// loader coalesces callers onto "the one fetch in flight", not onto
// "the fetch for cursor C".
const fetchKey = "fetch"

// Adapter owns a backing store, its checkpoint cache, its tail-poll
// throttle, and the set of live subscriptions reading from it.
type Adapter struct {
	backing     store.BackingStore
	cache       *cache.Cache
	throttle    *tailpoll.Throttle
	maxPageSize int
	log         *logrus.Entry
	metrics     *metrics.Recorder

	group    singleflight.Group
	loaderWG sync.WaitGroup

	mu        sync.Mutex // guards subs and disposed; never held across an await
	subs      map[*Subscription]struct{}
	disposed  bool
	cancelAll context.CancelFunc
	rootCtx   context.Context
}

// New builds an Adapter over the given Options. The Adapter owns
// opts.BackingStore from this point on; only Dispose releases it.
func New(opts Options) *Adapter {
	opts = opts.withDefaults()
	var ctx, cancel = context.WithCancel(context.Background())
	return &Adapter{
		backing:     opts.BackingStore,
		cache:       cache.New(opts.CacheSize),
		throttle:    tailpoll.New(opts.PollInterval),
		maxPageSize: opts.MaxPageSize,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		subs:        make(map[*Subscription]struct{}),
		cancelAll:   cancel,
		rootCtx:     ctx,
	}
}

// Subscribe registers a new Subscription that delivers pages to
// observer, starting strictly after checkpoint. It fails with
// ErrAdapterDisposed if the adapter has already been disposed.
func (a *Adapter) Subscribe(checkpoint string, observer Observer) (*Subscription, error) {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return nil, ErrAdapterDisposed
	}

	var ctx, cancel = context.WithCancel(a.rootCtx)
	var sub = &Subscription{
		adapter:  a,
		cursor:   checkpoint,
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	a.subs[sub] = struct{}{}
	a.mu.Unlock()

	a.metrics.SubscriptionsChanged(1)
	a.log.WithField("checkpoint", checkpoint).Info("subscription started")
	go sub.run()
	return sub, nil
}

// removeSubscription drops sub from the live set. Idempotent: removing
// an already-absent subscription is a no-op.
func (a *Adapter) removeSubscription(sub *Subscription) {
	a.mu.Lock()
	_, present := a.subs[sub]
	delete(a.subs, sub)
	a.mu.Unlock()
	if present {
		a.metrics.SubscriptionsChanged(-1)
	}
}

// Dispose cancels every live subscription, awaits their worker loops and
// any in-flight backing-store fetch, then releases the backing store.
// Dispose is idempotent and safe to call any number of times; only the
// first call does any work.
func (a *Adapter) Dispose(ctx context.Context) error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return nil
	}
	a.disposed = true
	var subs = make([]*Subscription, 0, len(a.subs))
	for s := range a.subs {
		subs = append(subs, s)
	}
	a.mu.Unlock()

	a.cancelAll()
	for _, s := range subs {
		s.complete()
	}
	a.loaderWG.Wait()

	a.log.Info("adapter disposed")
	return a.backing.Dispose(ctx)
}

func (a *Adapter) isDisposed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}
