package game

import (
	"time"

	"duel/internal/types"
)

type QueueEntry struct {
	ConnID     string
	Identity   types.Identity
	EnqueuedAt time.Time
}

// Queue is the FIFO of one game kind. It has no lock of its own; the
// MatchmakingService serializes every access.
type Queue struct {
	kind    string
	entries []QueueEntry
}

func newQueue(kind string) *Queue {
	return &Queue{kind: kind}
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// Position returns the 1-based place of the connection, or 0 when absent.
func (q *Queue) Position(connID string) int {
	for i, e := range q.entries {
		if e.ConnID == connID {
			return i + 1
		}
	}
	return 0
}

func (q *Queue) Contains(connID string) bool {
	return q.Position(connID) > 0
}

// Push appends the entry unless the connection is already waiting.
func (q *Queue) Push(e QueueEntry) bool {
	if q.Contains(e.ConnID) {
		return false
	}
	q.entries = append(q.entries, e)
	return true
}

func (q *Queue) Remove(connID string) (QueueEntry, bool) {
	for i, e := range q.entries {
		if e.ConnID == connID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return e, true
		}
	}
	return QueueEntry{}, false
}

// PopPair removes the two oldest entries.
func (q *Queue) PopPair() (a, b QueueEntry, ok bool) {
	if len(q.entries) < 2 {
		return QueueEntry{}, QueueEntry{}, false
	}
	a, b = q.entries[0], q.entries[1]
	q.entries = append(q.entries[:0], q.entries[2:]...)
	return a, b, true
}

// Prune drops every entry whose connection fails keep and returns them in
// queue order.
func (q *Queue) Prune(keep func(connID string) bool) []QueueEntry {
	var dropped []QueueEntry
	live := q.entries[:0]
	for _, e := range q.entries {
		if keep(e.ConnID) {
			live = append(live, e)
		} else {
			dropped = append(dropped, e)
		}
	}
	clear(q.entries[len(live):])
	q.entries = live
	return dropped
}
