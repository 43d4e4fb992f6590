// Package gazette is the production store.BackingStore: it reads a
// single Gazette journal, which is itself an ordered, checkpointed
// (by byte offset) commit log — the closest real-world match to the
// backing-store contract this adapter is built against. Commits are
// newline-delimited JSON records; the checkpoint token is the decimal
// string of the pb.Offset immediately following the record.
package gazette

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.gazette.dev/core/broker/client"
	pb "go.gazette.dev/core/broker/protocol"

	"github.com/txnfeed/txnfeed/store"
)

// Store reads and appends to one journal.
type Store struct {
	client  pb.RoutedJournalClient
	journal pb.Journal
}

// New returns a Store reading and appending to journal via client.
func New(rjc pb.RoutedJournalClient, journal pb.Journal) *Store {
	return &Store{client: rjc, journal: journal}
}

type record struct {
	CommitID string                 `json:"id"`
	Events   []store.EventEnvelope  `json:"events"`
	Stamp    int64                  `json:"stamp"`
}

// Append writes one commit as a newline-delimited JSON record and
// returns it with the checkpoint (the offset just past the record)
// Gazette assigned.
func (s *Store) Append(ctx context.Context, commitID string, events []store.EventEnvelope) (store.Commit, error) {
	var stamp = time.Now().UTC()
	line, err := json.Marshal(record{CommitID: commitID, Events: events, Stamp: stamp.Unix()})
	if err != nil {
		return store.Commit{}, fmt.Errorf("encoding commit record: %w", err)
	}
	line = append(line, '\n')

	var app = client.NewAppender(ctx, s.client, pb.AppendRequest{Journal: s.journal})
	if _, err := app.Write(line); err != nil {
		return store.Commit{}, fmt.Errorf("writing commit to journal %s: %w", s.journal, err)
	}
	if err := app.Close(); err != nil {
		return store.Commit{}, fmt.Errorf("committing append to journal %s: %w", s.journal, err)
	}

	return store.Commit{
		CommitID:        commitID,
		StreamID:        string(s.journal),
		CheckpointToken: strconv.FormatInt(int64(app.Response.Commit.End), 10),
		CommitStamp:     stamp,
		Events:          events,
	}, nil
}

// GetFrom implements store.BackingStore: a non-blocking read of up to
// max newline-delimited commit records starting just past checkpoint.
func (s *Store) GetFrom(ctx context.Context, checkpoint string, max int) ([]store.Commit, error) {
	var offset pb.Offset
	if checkpoint != "" {
		v, err := strconv.ParseInt(checkpoint, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decoding checkpoint %q: %w", checkpoint, err)
		}
		offset = pb.Offset(v)
	}

	var reader = client.NewReader(ctx, s.client, pb.ReadRequest{
		Journal: s.journal,
		Offset:  offset,
		Block:   false,
	})

	var br = bufio.NewReader(reader)
	var out []store.Commit
	for len(out) < max {
		line, err := br.ReadBytes('\n')
		if len(line) != 0 {
			var rec record
			if jerr := json.Unmarshal(bytes.TrimRight(line, "\n"), &rec); jerr != nil {
				return nil, fmt.Errorf("decoding commit record: %w", jerr)
			}
			out = append(out, store.Commit{
				CommitID:        rec.CommitID,
				StreamID:        string(s.journal),
				CheckpointToken: strconv.FormatInt(int64(reader.AdjustedOffset(br)), 10),
				CommitStamp:     time.Unix(rec.Stamp, 0).UTC(),
				Events:          rec.Events,
			})
		}
		if err != nil {
			if err == io.EOF || err == client.ErrOffsetNotYetAvailable {
				break
			}
			return nil, fmt.Errorf("reading journal %s: %w", s.journal, err)
		}
	}
	return out, nil
}

// Dispose implements store.BackingStore. The gazette journal client is
// a shared, long-lived routed client owned by the surrounding process;
// this Store has nothing of its own to release.
func (s *Store) Dispose(context.Context) error { return nil }
