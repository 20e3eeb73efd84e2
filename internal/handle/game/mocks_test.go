package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"duel/internal/types"

	"github.com/stretchr/testify/mock"
)

type sentEvent struct {
	Event string
	Data  any
}

// fakeNotifier records every event per connection instead of writing to sockets.
type fakeNotifier struct {
	mu           sync.Mutex
	events       map[string][]sentEvent
	rooms        map[string][]string
	disconnected map[string]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		events:       make(map[string][]sentEvent),
		rooms:        make(map[string][]string),
		disconnected: make(map[string]bool),
	}
}

func (n *fakeNotifier) Emit(connID, event string, data any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.disconnected[connID] {
		return false
	}
	n.events[connID] = append(n.events[connID], sentEvent{event, data})
	return true
}

func (n *fakeNotifier) Broadcast(roomID, event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, id := range n.rooms[roomID] {
		if !n.disconnected[id] {
			n.events[id] = append(n.events[id], sentEvent{event, data})
		}
	}
}

func (n *fakeNotifier) JoinRoom(roomID string, connIDs ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rooms[roomID] = append(n.rooms[roomID], connIDs...)
}

func (n *fakeNotifier) DissolveRoom(roomID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.rooms, roomID)
}

func (n *fakeNotifier) IsConnected(connID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.disconnected[connID]
}

func (n *fakeNotifier) drop(connID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnected[connID] = true
}

func (n *fakeNotifier) of(connID, event string) []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []any
	for _, e := range n.events[connID] {
		if e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}

func (n *fakeNotifier) start(connID string) (StartPayload, bool) {
	got := n.of(connID, EventStart)
	if len(got) == 0 {
		return StartPayload{}, false
	}
	return got[len(got)-1].(StartPayload), true
}

func (n *fakeNotifier) gameOver(connID string) (GameOverPayload, bool) {
	got := n.of(connID, EventGameOver)
	if len(got) == 0 {
		return GameOverPayload{}, false
	}
	return got[len(got)-1].(GameOverPayload), true
}

func (n *fakeNotifier) roomCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.rooms)
}

type manualTask struct {
	sched    *manualScheduler
	periodic bool
	period   time.Duration
	due      time.Time
	tick     func(time.Time)
	fire     func()
	stopped  bool
	seq      int
}

func (t *manualTask) Stop() {
	t.sched.mu.Lock()
	t.stopped = true
	t.sched.mu.Unlock()
}

// manualScheduler only moves when Advance is called. Callbacks run on the
// calling goroutine, outside the scheduler lock.
type manualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*manualTask
	seq   int
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: time.Unix(1_700_000_000, 0)}
}

func (m *manualScheduler) add(t *manualTask) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t.sched = m
	t.seq = m.seq
	m.tasks = append(m.tasks, t)
	return t
}

func (m *manualScheduler) Every(period time.Duration, fn func(now time.Time)) Canceler {
	return m.add(&manualTask{periodic: true, period: period, due: m.Now().Add(period), tick: fn})
}

func (m *manualScheduler) After(d time.Duration, fn func()) Canceler {
	return m.add(&manualTask{due: m.Now().Add(d), fire: fn})
}

func (m *manualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock by d, running every task that falls due on the way
// in due order.
func (m *manualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var live []*manualTask
		for _, t := range m.tasks {
			if !t.stopped {
				live = append(live, t)
			}
		}
		m.tasks = live
		sort.SliceStable(live, func(i, j int) bool {
			if live[i].due.Equal(live[j].due) {
				return live[i].seq < live[j].seq
			}
			return live[i].due.Before(live[j].due)
		})
		if len(live) == 0 || live[0].due.After(target) {
			m.now = target
			m.mu.Unlock()
			return
		}
		next := live[0]
		m.now = next.due
		now := m.now
		if next.periodic {
			next.due = next.due.Add(next.period)
		} else {
			next.stopped = true
		}
		m.mu.Unlock()

		if next.periodic {
			next.tick(now)
		} else {
			next.fire()
		}
	}
}

// ActiveTickers counts periodic tasks that have not been stopped.
func (m *manualScheduler) ActiveTickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.periodic && !t.stopped {
			n++
		}
	}
	return n
}

func (m *manualScheduler) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.periodic && !t.stopped {
			n++
		}
	}
	return n
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Record(ctx context.Context, result types.GameResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

// fixedSource makes rand.Rand return v from every Int63 call.
type fixedSource struct{ v int64 }

func (s fixedSource) Int63() int64 { return s.v }
func (fixedSource) Seed(int64)     {}
