// Package directory resolves room and queue identifiers to their single live
// actor within this process.
package directory

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/emojirooms/internal/matchmaking"
	"github.com/ashureev/emojirooms/internal/room"
	"github.com/ashureev/emojirooms/internal/store"
)

var (
	// ErrInvalidRoomID is returned for room ids outside the accepted alphabet.
	ErrInvalidRoomID = errors.New("invalid room id")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("directory closed")
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ValidRoomID reports whether id may name a room.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// Options configures the actors a Directory creates.
type Options struct {
	Room        room.Options
	Matchmaking matchmaking.Options
	Now         func() time.Time
	Logger      *slog.Logger
}

// Directory owns every live actor. At most one Room Actor exists per room id.
type Directory struct {
	repo   store.Repository
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	rooms      map[string]*room.Actor
	matchmaker *matchmaking.Actor
	closed     bool
}

// New creates a directory whose room actors persist through repo and whose
// matchmaker records pairs through pairs.
func New(repo store.Repository, pairs matchmaking.PairRecorder, opts Options) *Directory {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Room.Logger == nil {
		opts.Room.Logger = opts.Logger
	}
	if opts.Matchmaking.Logger == nil {
		opts.Matchmaking.Logger = opts.Logger
	}
	if opts.Room.Now == nil {
		opts.Room.Now = opts.Now
	}
	return &Directory{
		repo:       repo,
		opts:       opts,
		logger:     opts.Logger,
		rooms:      make(map[string]*room.Actor),
		matchmaker: matchmaking.New(pairs, opts.Matchmaking),
	}
}

// Room returns the live actor for id, creating it on first use or when the
// resident one has retired. A new actor restores its state before serving
// any operation.
func (d *Directory) Room(id string) (*room.Actor, error) {
	if !ValidRoomID(id) {
		return nil, ErrInvalidRoomID
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if a, ok := d.rooms[id]; ok && !a.Retired() {
		return a, nil
	}
	a := room.New(id, store.Scoped(d.repo, store.KindRoom, id), d.opts.Room)
	d.rooms[id] = a
	d.logger.Info("Room actor created", "room_id", id, "resident", len(d.rooms))
	return a, nil
}

// Matchmaker returns the single matchmaking actor.
func (d *Directory) Matchmaker() *matchmaking.Actor {
	return d.matchmaker
}

// ResidentRooms returns the ids of rooms with a live actor, sorted.
func (d *Directory) ResidentRooms() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.rooms))
	for id := range d.rooms {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// KnownRooms returns resident rooms plus every room with persisted state.
func (d *Directory) KnownRooms(ctx context.Context) ([]string, error) {
	stored, err := d.repo.ListActors(ctx, store.KindRoom)
	if err != nil {
		return nil, err
	}
	ids := append(d.ResidentRooms(), stored...)
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// EvictIdle stops and forgets rooms that have had no sessions for at least
// ttl. It returns the number of rooms evicted. Their state stays in the
// Durable Store and is restored on the next Room call.
func (d *Directory) EvictIdle(ctx context.Context, ttl time.Duration) int {
	d.mu.Lock()
	rooms := maps.Clone(d.rooms)
	d.mu.Unlock()

	now := d.opts.Now()
	evicted := 0
	for id, a := range rooms {
		retired, err := a.RetireIfIdle(ctx, now, ttl)
		if err != nil {
			d.logger.Warn("Failed to inspect room for eviction", "room_id", id, "error", err)
			continue
		}
		if !retired {
			continue
		}

		d.mu.Lock()
		if d.rooms[id] == a {
			delete(d.rooms, id)
		}
		d.mu.Unlock()

		a.Stop()
		evicted++
		d.logger.Info("Evicted idle room", "room_id", id)
	}
	return evicted
}

// Close stops every actor. Later Room calls fail with ErrClosed.
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, a := range d.rooms {
		a.Stop()
		delete(d.rooms, id)
	}
	d.matchmaker.Stop()
	d.logger.Info("Directory closed")
}
