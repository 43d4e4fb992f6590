package store

import "errors"

// ErrAdapterDisposed is returned by any operation entered after the
// adapter has been disposed.
var ErrAdapterDisposed = errors.New("txnfeed: adapter is disposed")
