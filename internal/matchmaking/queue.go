package matchmaking

import (
	"slices"

	"github.com/ashureev/emojirooms/internal/domain"
)

// Queue is the FIFO waiting list ordered by join time. Entries with equal
// join times keep their insertion order. It is owned by one actor and is not
// safe for concurrent use.
type Queue struct {
	entries []domain.WaitingEntry
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue inserts e behind every entry that joined at or before it.
func (q *Queue) Enqueue(e domain.WaitingEntry) {
	i, _ := slices.BinarySearchFunc(q.entries, e.JoinedAtMillis, func(w domain.WaitingEntry, t int64) int {
		if w.JoinedAtMillis <= t {
			return -1
		}
		return 1
	})
	q.entries = slices.Insert(q.entries, i, e)
}

// Update replaces the identity of the entry held by sessionID, keeping its
// place in line. It reports whether such an entry exists.
func (q *Queue) Update(sessionID, userID, userName string) bool {
	i := q.index(sessionID)
	if i < 0 {
		return false
	}
	q.entries[i].UserID = userID
	q.entries[i].UserName = userName
	return true
}

// Remove deletes the entry held by sessionID and reports whether it existed.
func (q *Queue) Remove(sessionID string) bool {
	i := q.index(sessionID)
	if i < 0 {
		return false
	}
	q.entries = slices.Delete(q.entries, i, i+1)
	return true
}

// position returns the 1-based place of sessionID, or 0 when not queued.
func (q *Queue) position(sessionID string) int {
	return q.index(sessionID) + 1
}

// Len returns the number of waiting entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the queue, head first.
func (q *Queue) Entries() []domain.WaitingEntry {
	return slices.Clone(q.entries)
}

// PopPair removes and returns the two oldest entries. It reports false and
// leaves the queue untouched when fewer than two are waiting.
func (q *Queue) PopPair() (first, second domain.WaitingEntry, ok bool) {
	if len(q.entries) < 2 {
		return first, second, false
	}
	first, second = q.entries[0], q.entries[1]
	q.entries = slices.Delete(q.entries, 0, 2)
	return first, second, true
}

func (q *Queue) index(sessionID string) int {
	return slices.IndexFunc(q.entries, func(e domain.WaitingEntry) bool {
		return e.SessionID == sessionID
	})
}
