// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/emojirooms/internal/domain"
)

// Actor kinds used to scope durable state.
const (
	KindRoom = "room"
)

// Repository is the Durable Store: opaque key-value state scoped to one actor
// instance, identified by kind and id.
type Repository interface {
	// Get returns the value stored under key, or nil, nil when absent.
	Get(ctx context.Context, kind, actorID, key string) ([]byte, error)

	// Put creates or replaces the value stored under key.
	Put(ctx context.Context, kind, actorID, key string, value []byte) error

	// ListActors returns the ids of every actor of kind with stored state.
	ListActors(ctx context.Context, kind string) ([]string, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// PairStore is the shared record store for pairings. Records expire after
// their ttl and are kept for audit only.
type PairStore interface {
	// RecordPair writes rec under domain.PairRecordKey(rec.RoomID).
	RecordPair(ctx context.Context, rec domain.PairRecord, ttl time.Duration) error

	// GetPairRecord returns the unexpired record for roomID, or nil, nil.
	GetPairRecord(ctx context.Context, roomID string) (*domain.PairRecord, error)
}

// ScopedStore exposes one actor's slice of a Repository as a plain
// get/put contract.
type ScopedStore struct {
	repo    Repository
	kind    string
	actorID string
}

// Scoped returns the store for the actor (kind, actorID).
func Scoped(repo Repository, kind, actorID string) *ScopedStore {
	return &ScopedStore{repo: repo, kind: kind, actorID: actorID}
}

// Get returns the value stored under key, or nil, nil when absent.
func (s *ScopedStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.repo.Get(ctx, s.kind, s.actorID, key)
}

// Put creates or replaces the value stored under key.
func (s *ScopedStore) Put(ctx context.Context, key string, value []byte) error {
	return s.repo.Put(ctx, s.kind, s.actorID, key, value)
}
