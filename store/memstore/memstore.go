// Package memstore is an in-process reference BackingStore: a simple
// append-only commit log held in memory, with deterministic, opaque
// checkpoint tokens derived from sequence numbers via highwayhash so
// that fixtures stay reproducible across runs without leaking sequence
// order into the token's textual shape.
package memstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/minio/highwayhash"

	"github.com/txnfeed/txnfeed/store"
)

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

// checkpointKey is a fixed 32-byte HighwayHash key. Fixed (not random)
// so that two Store instances fed the same sequence of Append calls
// produce byte-identical checkpoint tokens, which is what makes
// golden/snapshot tests of assembled pages reproducible.
var checkpointKey = func() []byte {
	var k [32]byte
	for i := range k {
		k[i] = byte(i * 7)
	}
	return k[:]
}()

// checkpointFor derives an opaque checkpoint token for sequence number
// seq. Sequence 0 is reserved for the "from the beginning" sentinel and
// always maps to "".
func checkpointFor(seq uint64) string {
	if seq == 0 {
		return ""
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	var sum = highwayhash.Sum(buf[:], checkpointKey)
	return hex.EncodeToString(sum[:8])
}

// Store is a mutex-guarded, append-only commit log.
type Store struct {
	mu      sync.Mutex
	commits []store.Commit
	index   map[string]int // checkpoint -> index of the commit it precedes
	seq     uint64
	closed  bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Append appends a single commit built from streamID and events,
// returning the Commit as recorded (with its assigned checkpoint
// token).
func (s *Store) Append(streamID string, events []store.EventEnvelope, stamp func() int64) store.Commit {
	s.mu.Lock()
	defer s.mu.Unlock()

	var predecessor = checkpointFor(s.seq)
	s.seq++
	var commit = store.Commit{
		CommitID:        fmt.Sprintf("c%d", s.seq),
		StreamID:        streamID,
		CheckpointToken: checkpointFor(s.seq),
		Events:          events,
	}
	if stamp != nil {
		commit.CommitStamp = unixToTime(stamp())
	}
	s.index[predecessor] = len(s.commits)
	s.commits = append(s.commits, commit)
	return commit
}

// GetFrom implements store.BackingStore.
func (s *Store) GetFrom(_ context.Context, checkpoint string, max int) ([]store.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, store.ErrAdapterDisposed
	}
	var start, ok = s.index[checkpoint]
	if !ok {
		return nil, nil
	}
	var end = start + max
	if end > len(s.commits) {
		end = len(s.commits)
	}
	var out = make([]store.Commit, end-start)
	copy(out, s.commits[start:end])
	return out, nil
}

// Dispose implements store.BackingStore.
func (s *Store) Dispose(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len reports the number of commits appended so far. Test helper.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.commits)
}
