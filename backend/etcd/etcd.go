// Package etcd is a store.BackingStore backed by an etcd keyspace:
// commits are keys under a fixed prefix, and the checkpoint token is the
// decimal string of the key's mod-revision — etcd's own strictly
// increasing, cluster-wide ordering, which is exactly the opaque,
// totally-ordered token the backing-store contract asks for.
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/txnfeed/txnfeed/store"
)

// Store is an etcd-backed BackingStore scoped to one key prefix.
type Store struct {
	client *clientv3.Client
	prefix string
}

// New wraps an existing etcd client, scoping all reads/writes to
// prefix (which should end in "/").
func New(client *clientv3.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

type commitPayload struct {
	StreamID string                `json:"streamId"`
	Events   []store.EventEnvelope `json:"events"`
}

// Append writes one commit for streamID carrying events and returns it
// with the checkpoint etcd assigned.
func (s *Store) Append(ctx context.Context, streamID string, events []store.EventEnvelope) (store.Commit, error) {
	var key = fmt.Sprintf("%s%s/%d", s.prefix, streamID, time.Now().UnixNano())
	payload, err := json.Marshal(commitPayload{StreamID: streamID, Events: events})
	if err != nil {
		return store.Commit{}, fmt.Errorf("encoding commit payload: %w", err)
	}

	resp, err := s.client.Put(ctx, key, string(payload))
	if err != nil {
		return store.Commit{}, fmt.Errorf("writing commit to etcd: %w", err)
	}

	var checkpoint = strconv.FormatInt(resp.Header.Revision, 10)
	return store.Commit{
		CommitID:        key,
		StreamID:        streamID,
		CheckpointToken: checkpoint,
		CommitStamp:     time.Now().UTC(),
		Events:          events,
	}, nil
}

// GetFrom implements store.BackingStore, returning up to max commits
// whose mod-revision is strictly greater than checkpoint.
func (s *Store) GetFrom(ctx context.Context, checkpoint string, max int) ([]store.Commit, error) {
	var base int64
	if checkpoint != "" {
		var err error
		if base, err = strconv.ParseInt(checkpoint, 10, 64); err != nil {
			return nil, fmt.Errorf("decoding checkpoint %q: %w", checkpoint, err)
		}
	}

	resp, err := s.client.Get(ctx, s.prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByModRevision, clientv3.SortAscend),
		clientv3.WithMinModRev(base+1),
		clientv3.WithLimit(int64(max)),
	)
	if err != nil {
		return nil, fmt.Errorf("listing commits from etcd: %w", err)
	}

	var out = make([]store.Commit, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var payload commitPayload
		if err := json.Unmarshal(kv.Value, &payload); err != nil {
			return nil, fmt.Errorf("decoding commit payload for key %s: %w", kv.Key, err)
		}
		out = append(out, store.Commit{
			CommitID:        string(kv.Key),
			StreamID:        payload.StreamID,
			CheckpointToken: strconv.FormatInt(kv.ModRevision, 10),
			Events:          payload.Events,
		})
	}
	return out, nil
}

// Dispose implements store.BackingStore, closing the underlying client.
func (s *Store) Dispose(context.Context) error {
	return s.client.Close()
}
