package txnfeed

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/txnfeed/txnfeed/metrics"
	"github.com/txnfeed/txnfeed/store"
)

// Options configures an Adapter. See §6 of the design for the meaning of
// each field.
type Options struct {
	// BackingStore is the external commit source. Required.
	BackingStore store.BackingStore
	// CacheSize bounds the LRU checkpoint cache. No particular default
	// is mandated by the design; callers should size it to a few pages'
	// worth of transactions per concurrently-active subscriber.
	CacheSize int
	// PollInterval is the minimum wall-time between re-polls of the
	// same observed tail checkpoint.
	PollInterval time.Duration
	// MaxPageSize bounds transactions per page, and is the threshold
	// used to detect "full page, trigger a preload".
	MaxPageSize int
	// Logger receives the adapter's structured log output. Defaults to
	// logrus.StandardLogger().
	Logger *logrus.Entry
	// Metrics, if non-nil, receives operational counters/histograms.
	Metrics *metrics.Recorder
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 256
	}
	return o
}
