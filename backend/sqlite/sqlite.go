// Package sqlite is a store.BackingStore backed by a local SQLite commit
// table, ordered by a monotonic sequence column. It is meant for local
// development and integration tests that want a durable, queryable log
// without standing up a broker.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/txnfeed/txnfeed/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	commit_id    TEXT NOT NULL,
	stream_id    TEXT NOT NULL,
	commit_stamp INTEGER NOT NULL,
	events_json  BLOB NOT NULL
);
`

// Store is a SQLite-backed BackingStore. Checkpoints are the decimal
// string encoding of the commits.seq column; "" (the from-the-beginning
// sentinel) maps to sequence 0.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and
// ensures the commits table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating commits table: %w", err)
	}
	return &Store{db: db}, nil
}

// Append inserts a new commit for streamID carrying events, returning
// the persisted Commit with its assigned checkpoint.
func (s *Store) Append(ctx context.Context, streamID string, events []store.EventEnvelope) (store.Commit, error) {
	encoded, err := json.Marshal(events)
	if err != nil {
		return store.Commit{}, fmt.Errorf("encoding events: %w", err)
	}
	var stamp = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO commits (commit_id, stream_id, commit_stamp, events_json) VALUES (?, ?, ?, ?)`,
		fmt.Sprintf("%s-%d", streamID, stamp.UnixNano()), streamID, stamp.Unix(), encoded)
	if err != nil {
		return store.Commit{}, fmt.Errorf("inserting commit: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return store.Commit{}, fmt.Errorf("reading assigned seq: %w", err)
	}
	return store.Commit{
		CommitID:        fmt.Sprintf("%s-%d", streamID, stamp.UnixNano()),
		StreamID:        streamID,
		CheckpointToken: strconv.FormatInt(seq, 10),
		CommitStamp:     stamp,
		Events:          events,
	}, nil
}

// GetFrom implements store.BackingStore.
func (s *Store) GetFrom(ctx context.Context, checkpoint string, max int) ([]store.Commit, error) {
	base, err := decodeCheckpoint(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("decoding checkpoint %q: %w", checkpoint, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, commit_id, stream_id, commit_stamp, events_json FROM commits WHERE seq > ? ORDER BY seq LIMIT ?`,
		base, max)
	if err != nil {
		return nil, fmt.Errorf("querying commits: %w", err)
	}
	defer rows.Close()

	var out []store.Commit
	for rows.Next() {
		var (
			seq       int64
			commitID  string
			streamID  string
			stampUnix int64
			eventsRaw []byte
		)
		if err := rows.Scan(&seq, &commitID, &streamID, &stampUnix, &eventsRaw); err != nil {
			return nil, fmt.Errorf("scanning commit row: %w", err)
		}
		var events []store.EventEnvelope
		if err := json.Unmarshal(eventsRaw, &events); err != nil {
			return nil, fmt.Errorf("decoding events for commit %s: %w", commitID, err)
		}
		out = append(out, store.Commit{
			CommitID:        commitID,
			StreamID:        streamID,
			CheckpointToken: strconv.FormatInt(seq, 10),
			CommitStamp:     time.Unix(stampUnix, 0).UTC(),
			Events:          events,
		})
	}
	return out, rows.Err()
}

// Dispose implements store.BackingStore.
func (s *Store) Dispose(context.Context) error {
	return s.db.Close()
}

func decodeCheckpoint(checkpoint string) (int64, error) {
	if checkpoint == "" {
		return 0, nil
	}
	return strconv.ParseInt(checkpoint, 10, 64)
}
