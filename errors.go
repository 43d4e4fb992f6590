package txnfeed

import "github.com/txnfeed/txnfeed/store"

// ErrAdapterDisposed is returned by Subscribe, and surfaces through a
// subscription's worker loop as normal termination, once the Adapter
// has been disposed.
var ErrAdapterDisposed = store.ErrAdapterDisposed
