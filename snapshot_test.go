package txnfeed_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bradleyjkemp/cupaloy"
	"github.com/nsf/jsondiff"
	"github.com/stretchr/testify/require"

	"github.com/txnfeed/txnfeed"
	"github.com/txnfeed/txnfeed/store"
	"github.com/txnfeed/txnfeed/store/memstore"
)

type pageView struct {
	PreviousCheckpoint string   `json:"previousCheckpoint"`
	Checkpoints        []string `json:"checkpoints"`
}

func toPageView(p store.Page) pageView {
	var v = pageView{PreviousCheckpoint: p.PreviousCheckpoint}
	for _, t := range p.Transactions {
		v.Checkpoints = append(v.Checkpoints, t.Checkpoint)
	}
	return v
}

// String gives pageView a fixed, simple textual form, so the golden file
// cupaloy compares against is plain and legible rather than a full
// go-spew struct dump.
func (v pageView) String() string {
	return fmt.Sprintf("previousCheckpoint=%q checkpoints=%v", v.PreviousCheckpoint, v.Checkpoints)
}

// TestAssembledPageShape snapshots the shape of an assembled page (the
// checkpoint chain, not wall-clock timestamps) so an accidental change
// to page assembly — e.g. an off-by-one in the cache-walk loop — shows
// up as a diff instead of silently passing. The backing store here is a
// fake with fixed checkpoint tokens rather than memstore, so the
// checked-in golden file doesn't depend on memstore's hash-derived
// tokens.
func TestAssembledPageShape(t *testing.T) {
	var fs = newFakeStore(fixedCommitScript("cp1", "cp2", "cp3", "cp4"))
	var a = txnfeed.New(txnfeed.Options{BackingStore: fs, CacheSize: 16, MaxPageSize: 10, PollInterval: time.Minute})
	defer a.Dispose(context.Background())

	page, err := a.GetNextPage(context.Background(), "")
	require.NoError(t, err)

	cupaloy.New(cupaloy.SnapshotSubdirectory("testdata/snapshots")).SnapshotT(t, toPageView(page).String())
}

// TestCoalescedCallersSeeIdenticalJSON exercises S3 from a different
// angle: every coalesced caller's page, marshaled to JSON, must be
// byte-for-byte identical to the others'.
func TestCoalescedCallersSeeIdenticalJSON(t *testing.T) {
	var ms = memstore.New()
	for i := 0; i < 3; i++ {
		ms.Append("s", mustEvents(1), nil)
	}
	var a = txnfeed.New(txnfeed.Options{BackingStore: ms, CacheSize: 16, MaxPageSize: 10, PollInterval: time.Minute})
	defer a.Dispose(context.Background())

	const n = 3
	var pages = make([]store.Page, n)
	var done = make(chan int, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			p, err := a.GetNextPage(context.Background(), "")
			require.NoError(t, err)
			pages[i] = p
			done <- i
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	var first, _ = json.Marshal(toPageView(pages[0]))
	for i := 1; i < n; i++ {
		var other, _ = json.Marshal(toPageView(pages[i]))
		diff, explanation := jsondiff.Compare(first, other, &jsondiff.Options{})
		require.Equal(t, jsondiff.FullMatch, diff, explanation)
	}
}
