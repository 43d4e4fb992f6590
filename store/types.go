// Package store defines the data model and backing-store contract that the
// txnfeed core is built against: opaque commits keyed by an opaque,
// totally-ordered checkpoint token, and the Transaction/Page shapes the
// core assembles from them.
package store

import (
	"context"
	"time"
)

// EventEnvelope is one event within a Transaction, shape-preserved from
// the backing commit: an opaque body plus a string-keyed header map.
type EventEnvelope struct {
	Body    []byte
	Headers map[string]string
}

// Transaction is an immutable record extracted from a backing-store
// Commit. Checkpoint is opaque and totally ordered by the backing store;
// this package never compares or orders checkpoints itself, only
// string-equates them.
type Transaction struct {
	ID           string
	StreamID     string
	Checkpoint   string
	TimestampUTC time.Time
	Events       []EventEnvelope
}

// Page is a bounded, ordered batch of transactions answering a single
// previousCheckpoint cursor.
type Page struct {
	PreviousCheckpoint string
	Transactions       []Transaction
}

// LastCheckpoint returns the checkpoint of the last transaction in the
// page, or "" if the page is empty. "" is never itself a valid
// lastCheckpoint produced by a non-empty page in practice, but callers
// must use Empty to distinguish "no transactions" from "a single
// transaction whose checkpoint happens to stringify empty" — backing
// stores are expected never to do the latter.
func (p Page) LastCheckpoint() string {
	if len(p.Transactions) == 0 {
		return ""
	}
	return p.Transactions[len(p.Transactions)-1].Checkpoint
}

// Empty reports whether the page carries no transactions.
func (p Page) Empty() bool { return len(p.Transactions) == 0 }

// Commit is the unit the backing store returns: one atomic group of
// events written to one stream at one point in the log.
type Commit struct {
	CommitID        string
	StreamID        string
	CheckpointToken string
	CommitStamp     time.Time
	Events          []EventEnvelope
}

// BackingStore is the external commit source the core polls. GetFrom
// returns commits strictly after checkpoint, in checkpoint order; the
// caller (the core) applies its own maxPageSize bound — implementations
// may return fewer than requested, including zero, but must never return
// more than max.
type BackingStore interface {
	GetFrom(ctx context.Context, checkpoint string, max int) ([]Commit, error)
	Dispose(ctx context.Context) error
}

// FromCommit maps a backing-store Commit onto the core's Transaction
// shape, per the §6 transaction mapping: commitId -> id (already
// string-encoded by the backing store), streamId -> streamId,
// checkpointToken -> checkpoint, commitStamp -> timestampUtc, events
// copied shape-preservingly and in commit order.
func FromCommit(c Commit) Transaction {
	var events = make([]EventEnvelope, len(c.Events))
	copy(events, c.Events)
	return Transaction{
		ID:           c.CommitID,
		StreamID:     c.StreamID,
		Checkpoint:   c.CheckpointToken,
		TimestampUTC: c.CommitStamp,
		Events:       events,
	}
}
