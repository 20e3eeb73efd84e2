package game

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"duel/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func ident(name string) types.Identity {
	return types.Identity{UserID: "u-" + name, Username: name}
}

type fixture struct {
	svc   *MatchmakingService
	note  *fakeNotifier
	sched *manualScheduler
}

func newFixture(t *testing.T, settings Settings, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{note: newFakeNotifier(), sched: newManualScheduler()}
	n := 0
	base := []Option{
		WithScheduler(f.sched),
		WithSeed(42),
		WithClock(f.sched.Now),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	}
	f.svc = NewMatchmakingService(settings, f.note, append(base, opts...)...)
	return f
}

func (f *fixture) duel(t *testing.T, roomID string) *Duel {
	t.Helper()
	f.svc.mu.Lock()
	defer f.svc.mu.Unlock()
	d, ok := f.svc.duels[roomID]
	require.True(t, ok, "room %s is not live", roomID)
	return d
}

func (f *fixture) assertTimersMatchSessions(t *testing.T) {
	t.Helper()
	assert.Equal(t, f.svc.Stats().Sessions, f.sched.ActiveTickers())
}

func TestEnqueuePairsInArrivalOrder(t *testing.T) {
	f := newFixture(t, DefaultSettings())

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, f.svc.Enqueue(KindFishing, name, ident(name)))
	}

	sa, ok := f.note.start("a")
	require.True(t, ok)
	sb, ok := f.note.start("b")
	require.True(t, ok)
	assert.Equal(t, sa.RoomID, sb.RoomID)
	assert.Equal(t, "left", sa.Side)
	assert.Equal(t, "A", sa.Role)
	assert.Equal(t, "right", sb.Side)
	assert.Equal(t, "B", sb.Role)
	assert.Equal(t, ident("b"), sa.Opponent)
	assert.Equal(t, ident("a"), sb.Opponent)
	assert.True(t, sa.Ranked)
	require.NotNil(t, sa.InitialState)
	assert.Equal(t, PhaseWaiting, sa.InitialState.Phase)

	_, started := f.note.start("c")
	assert.False(t, started)
	queued := f.note.of("c", EventQueued)
	require.Len(t, queued, 1)
	assert.Equal(t, QueuedPayload{GameKind: KindFishing, Position: 1}, queued[0])

	assert.Equal(t, Stats{Queued: map[string]int{KindFishing: 1}, Sessions: 1}, f.svc.Stats())

	require.NoError(t, f.svc.Enqueue(KindFishing, "d", ident("d")))
	sc, _ := f.note.start("c")
	sd, _ := f.note.start("d")
	assert.Equal(t, sc.RoomID, sd.RoomID)
	assert.NotEqual(t, sa.RoomID, sc.RoomID)
	assert.Equal(t, 0, f.svc.Stats().Queued[KindFishing])
	f.assertTimersMatchSessions(t)
}

func TestEnqueueRejections(t *testing.T) {
	f := newFixture(t, DefaultSettings(), WithRelayKinds("rps"))

	assert.ErrorIs(t, f.svc.Enqueue(KindFishing, "a", types.Identity{UserID: "u-a"}), ErrMissingIdentity)
	assert.ErrorIs(t, f.svc.Enqueue(KindFishing, "", ident("a")), ErrMissingIdentity)
	assert.ErrorIs(t, f.svc.Enqueue("chess", "a", ident("a")), ErrUnknownGameKind)

	require.NoError(t, f.svc.Enqueue(KindFishing, "a", ident("a")))
	assert.ErrorIs(t, f.svc.Enqueue(KindFishing, "a", ident("a")), ErrAlreadyQueued)
	assert.ErrorIs(t, f.svc.Enqueue("rps", "a", ident("a")), ErrAlreadyQueued)
	assert.ErrorIs(t, f.svc.RequestPractice("a", ident("a")), ErrAlreadyQueued)
	assert.Equal(t, 1, f.svc.Stats().Queued[KindFishing])
}

func TestCancelRemovesFromQueue(t *testing.T) {
	f := newFixture(t, DefaultSettings())

	require.NoError(t, f.svc.Enqueue(KindFishing, "a", ident("a")))
	f.svc.Cancel("a")
	require.NoError(t, f.svc.Enqueue(KindFishing, "b", ident("b")))

	_, started := f.note.start("b")
	assert.False(t, started)
	assert.Equal(t, 1, f.svc.Stats().Queued[KindFishing])
}

func TestRankedHumansShareOneRoom(t *testing.T) {
	f := newFixture(t, DefaultSettings())

	require.NoError(t, f.svc.RequestRanked(KindFishing, "a", ident("a")))
	require.NoError(t, f.svc.RequestRanked(KindFishing, "b", ident("b")))

	sa, _ := f.note.start("a")
	sb, _ := f.note.start("b")
	assert.Equal(t, sa.RoomID, sb.RoomID)
	assert.NotEqual(t, sa.Side, sb.Side)
	assert.True(t, sa.Ranked)

	d := f.duel(t, sa.RoomID)
	assert.False(t, d.bot)
	assert.Zero(t, f.sched.PendingTimers(), "pairing disarms both requests")

	f.sched.Advance(10 * time.Second)
	assert.Len(t, f.note.of("a", EventStart), 1)
	assert.Len(t, f.note.of("b", EventStart), 1)
}

func TestRankedFallsBackToBot(t *testing.T) {
	settings := DefaultSettings()
	f := newFixture(t, settings)

	require.NoError(t, f.svc.RequestRanked(KindFishing, "a", ident("a")))
	f.sched.Advance(settings.RankedGrace - time.Millisecond)
	_, started := f.note.start("a")
	require.False(t, started)

	f.sched.Advance(time.Millisecond)
	sa, started := f.note.start("a")
	require.True(t, started)
	assert.False(t, sa.Ranked)
	assert.True(t, strings.HasPrefix(sa.Opponent.UserID, "bot-"))
	assert.NotEqual(t, ident("a").UserID, sa.Opponent.UserID)
	assert.NotEmpty(t, sa.Opponent.Username)

	assert.Zero(t, f.svc.Stats().Queued[KindFishing])
	assert.Zero(t, f.sched.PendingTimers())
	assert.Equal(t, 1, f.sched.ActiveTickers())

	// a later human must not be paired with a
	require.NoError(t, f.svc.RequestRanked(KindFishing, "b", ident("b")))
	_, started = f.note.start("b")
	assert.False(t, started)
}

func TestHumanArrivingBeforeGraceWins(t *testing.T) {
	settings := DefaultSettings()
	f := newFixture(t, settings)

	require.NoError(t, f.svc.RequestRanked(KindFishing, "a", ident("a")))
	f.sched.Advance(settings.RankedGrace / 2)
	require.NoError(t, f.svc.RequestRanked(KindFishing, "b", ident("b")))
	f.sched.Advance(settings.RankedGrace)

	starts := f.note.of("a", EventStart)
	require.Len(t, starts, 1)
	assert.Equal(t, ident("b"), starts[0].(StartPayload).Opponent)
	assert.Equal(t, 1, f.svc.Stats().Sessions)
}

func TestDisconnectWhileQueuedCancelsTimers(t *testing.T) {
	f := newFixture(t, DefaultSettings())

	require.NoError(t, f.svc.RequestRanked(KindFishing, "a", ident("a")))
	require.Equal(t, 2, f.sched.PendingTimers())

	f.note.drop("a")
	f.svc.Disconnect("a")
	assert.Zero(t, f.sched.PendingTimers())
	assert.Zero(t, f.svc.Stats().Queued[KindFishing])

	f.sched.Advance(10 * time.Second)
	assert.Zero(t, f.svc.Stats().Sessions)
	assert.Zero(t, f.sched.ActiveTickers())
}

func TestRequestsAfterDisconnectAreRejected(t *testing.T) {
	f := newFixture(t, DefaultSettings(), WithRelayKinds("rps"))

	f.note.drop("a")
	f.svc.Disconnect("a")

	assert.ErrorIs(t, f.svc.RequestRanked(KindFishing, "a", ident("a")), ErrNotConnected)
	assert.ErrorIs(t, f.svc.Enqueue("rps", "a", ident("a")), ErrNotConnected)
	assert.ErrorIs(t, f.svc.RequestPractice("a", ident("a")), ErrNotConnected)
	assert.Zero(t, f.sched.PendingTimers())
	assert.Empty(t, f.note.of("a", EventQueued))

	f.sched.Advance(10 * time.Second)
	assert.Zero(t, f.svc.Stats().Sessions)
	assert.Zero(t, f.sched.ActiveTickers())
	assert.Zero(t, f.note.roomCount())

	require.NoError(t, f.svc.Enqueue("rps", "b", ident("b")))
	_, started := f.note.start("b")
	assert.False(t, started)
	assert.Equal(t, 1, f.svc.Stats().Queued["rps"])
}

func TestPairingSkipsDroppedConnections(t *testing.T) {
	f := newFixture(t, DefaultSettings(), WithRelayKinds("rps"))

	require.NoError(t, f.svc.Enqueue("rps", "a", ident("a")))
	require.NoError(t, f.svc.RequestRanked(KindFishing, "c", ident("c")))
	f.note.drop("a")
	f.note.drop("c")

	require.NoError(t, f.svc.Enqueue("rps", "b", ident("b")))
	_, started := f.note.start("b")
	assert.False(t, started)
	assert.Zero(t, f.svc.Stats().Sessions)
	assert.Equal(t, 1, f.svc.Stats().Queued["rps"])

	require.NoError(t, f.svc.Enqueue(KindFishing, "d", ident("d")))
	assert.Zero(t, f.svc.Stats().Sessions)
	assert.Equal(t, 1, f.svc.Stats().Queued[KindFishing])
	assert.Zero(t, f.sched.PendingTimers())

	require.NoError(t, f.svc.Enqueue("rps", "e", ident("e")))
	sb, ok := f.note.start("b")
	require.True(t, ok)
	assert.Equal(t, ident("e"), sb.Opponent)
	assert.Equal(t, 1, f.svc.Stats().Sessions)
}

func TestNoBotForDroppedConnection(t *testing.T) {
	f := newFixture(t, DefaultSettings())

	require.NoError(t, f.svc.RequestRanked(KindFishing, "a", ident("a")))
	f.note.drop("a")
	f.sched.Advance(10 * time.Second)

	_, started := f.note.start("a")
	assert.False(t, started)
	assert.Zero(t, f.svc.Stats().Sessions)
	assert.Zero(t, f.sched.ActiveTickers())
	assert.Zero(t, f.sched.PendingTimers())
	assert.Zero(t, f.svc.Stats().Queued[KindFishing])
}

func TestLeaveMidReel(t *testing.T) {
	f := newFixture(t, DefaultSettings())

	require.NoError(t, f.svc.Enqueue(KindFishing, "a", ident("a")))
	require.NoError(t, f.svc.Enqueue(KindFishing, "b", ident("b")))
	sa, _ := f.note.start("a")
	d := f.duel(t, sa.RoomID)

	f.sched.Advance(d.profile.StruggleDuration + 300*time.Millisecond)
	d.mu.Lock()
	phase := d.phase
	d.mu.Unlock()
	require.Equal(t, PhaseReel, phase)

	assert.ErrorIs(t, f.svc.Leave(sa.RoomID, "c"), ErrNotMember)
	require.NoError(t, f.svc.Leave(sa.RoomID, "a"))

	over, ok := f.note.gameOver("b")
	require.True(t, ok)
	assert.Equal(t, "u-b", over.WinnerUserID)
	assert.Equal(t, "b", over.WinnerUsername)
	assert.Equal(t, ReasonLeft, over.Reason)
	assert.Equal(t, d.difficultyIndex, over.DifficultyIndex)
	_, ok = f.note.gameOver("a")
	assert.True(t, ok, "the leaver is told too")

	states := len(f.note.of("b", EventState))
	f.sched.Advance(time.Second)
	assert.Len(t, f.note.of("b", EventState), states)
	assert.Len(t, f.note.of("b", EventGameOver), 1)
	assert.Zero(t, f.sched.ActiveTickers())
	assert.Zero(t, f.note.roomCount())

	assert.ErrorIs(t, f.svc.Leave(sa.RoomID, "b"), ErrNotMember)
	assert.NoError(t, f.svc.RequestPractice("a", ident("a")), "members are released")
}

func TestTimersMatchSessionsAcrossTeardowns(t *testing.T) {
	f := newFixture(t, DefaultSettings())

	require.NoError(t, f.svc.Enqueue(KindFishing, "a", ident("a")))
	require.NoError(t, f.svc.Enqueue(KindFishing, "b", ident("b")))
	require.NoError(t, f.svc.RequestPractice("c", ident("c")))
	require.NoError(t, f.svc.RequestPractice("d", ident("d")))
	assert.Equal(t, 3, f.sched.ActiveTickers())
	f.assertTimersMatchSessions(t)

	sa, _ := f.note.start("a")
	require.NoError(t, f.svc.Leave(sa.RoomID, "b"))
	f.assertTimersMatchSessions(t)

	f.note.drop("c")
	f.sched.Advance(DefaultSettings().TickInterval)
	_, ok := f.note.gameOver("c")
	assert.False(t, ok, "a dropped socket receives nothing")
	f.assertTimersMatchSessions(t)
	assert.Equal(t, 1, f.svc.Stats().Sessions)

	f.svc.Disconnect("d")
	over, ok := f.note.gameOver("d")
	require.True(t, ok)
	assert.Equal(t, ReasonDisconnect, over.Reason)
	assert.True(t, strings.HasPrefix(over.WinnerUserID, "bot-"))
	f.assertTimersMatchSessions(t)
	assert.Zero(t, f.sched.ActiveTickers())
}

func TestTickDetectsDroppedPeer(t *testing.T) {
	f := newFixture(t, DefaultSettings())

	require.NoError(t, f.svc.Enqueue(KindFishing, "a", ident("a")))
	require.NoError(t, f.svc.Enqueue(KindFishing, "b", ident("b")))

	f.note.drop("b")
	f.sched.Advance(DefaultSettings().TickInterval)

	over, ok := f.note.gameOver("a")
	require.True(t, ok)
	assert.Equal(t, "u-a", over.WinnerUserID)
	assert.Equal(t, ReasonDisconnect, over.Reason)
	assert.Zero(t, f.svc.Stats().Sessions)
}

func TestStateBroadcastEveryTick(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	require.NoError(t, f.svc.RequestPractice("a", ident("a")))

	f.sched.Advance(5 * DefaultSettings().TickInterval)
	states := f.note.of("a", EventState)
	require.Len(t, states, 5)
	assert.Equal(t, PhaseStruggle, states[0].(Snapshot).Phase)
}

func TestPracticeLandedByBot(t *testing.T) {
	settings := DefaultSettings()
	settings.ProgressGain = 100
	settings.BotStruggleAccuracy = 1
	rec := &mockRecorder{}
	f := newFixture(t, settings, WithRecorder(rec))

	require.NoError(t, f.svc.RequestPractice("a", ident("a")))
	sa, _ := f.note.start("a")
	assert.False(t, sa.Ranked)
	assert.Equal(t, "left", sa.Side)

	f.sched.Advance(settings.TickInterval)
	over, ok := f.note.gameOver("a")
	require.True(t, ok)
	assert.Equal(t, sa.Opponent.UserID, over.WinnerUserID)
	assert.Equal(t, ReasonLanded, over.Reason)
	assert.False(t, over.Ranked)

	f.svc.Shutdown()
	rec.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestRankedResultIsRecorded(t *testing.T) {
	settings := DefaultSettings()
	settings.ProgressGain = 100
	rec := &mockRecorder{}
	f := newFixture(t, settings, WithRecorder(rec))

	rec.On("Record", mock.Anything, mock.MatchedBy(func(r types.GameResult) bool {
		return r.UserID == "u-a" && r.Outcome == types.OutcomeWin && r.OpponentID == "u-b"
	})).Return(nil).Once()
	rec.On("Record", mock.Anything, mock.MatchedBy(func(r types.GameResult) bool {
		return r.UserID == "u-b" && r.Outcome == types.OutcomeLose && r.Reason == ReasonLanded
	})).Return(nil).Once()

	require.NoError(t, f.svc.Enqueue(KindFishing, "a", ident("a")))
	require.NoError(t, f.svc.Enqueue(KindFishing, "b", ident("b")))
	sa, _ := f.note.start("a")
	d := f.duel(t, sa.RoomID)

	d.mu.Lock()
	key := d.sides[sideLeft].requiredInput()
	d.mu.Unlock()
	require.NoError(t, f.svc.Input(sa.RoomID, "a", Input{Type: InputDown, Key: key}))

	f.sched.Advance(settings.TickInterval)
	over, ok := f.note.gameOver("b")
	require.True(t, ok)
	assert.Equal(t, "u-a", over.WinnerUserID)
	assert.True(t, over.Ranked)

	f.svc.Shutdown()
	rec.AssertExpectations(t)
}

func TestInputFromOutsider(t *testing.T) {
	f := newFixture(t, DefaultSettings())
	require.NoError(t, f.svc.RequestPractice("a", ident("a")))
	sa, _ := f.note.start("a")

	assert.ErrorIs(t, f.svc.Input(sa.RoomID, "z", Input{Type: InputTap, Key: DirUp}), ErrNotMember)
	assert.ErrorIs(t, f.svc.Input("elsewhere", "a", Input{Type: InputTap, Key: DirUp}), ErrNotMember)
	assert.NoError(t, f.svc.Input(sa.RoomID, "a", Input{Type: InputTap, Key: DirUp}))
}

func TestRelayRooms(t *testing.T) {
	f := newFixture(t, DefaultSettings(), WithRelayKinds("rps"))

	require.NoError(t, f.svc.Enqueue("rps", "a", ident("a")))
	require.NoError(t, f.svc.Enqueue("rps", "b", ident("b")))
	sa, ok := f.note.start("a")
	require.True(t, ok)
	sb, _ := f.note.start("b")
	assert.Equal(t, sa.RoomID, sb.RoomID)
	assert.Equal(t, "rps", sa.GameKind)
	assert.Nil(t, sa.InitialState)
	assert.Equal(t, sa.Seed, sb.Seed)
	assert.Zero(t, f.sched.ActiveTickers(), "relay rooms are not simulated")

	payload := json.RawMessage(`{"move":"rock"}`)
	require.NoError(t, f.svc.Relay(sa.RoomID, "a", payload))
	relayed := f.note.of("b", EventRelay)
	require.Len(t, relayed, 1)
	assert.Equal(t, RelayPayload{RoomID: sa.RoomID, From: "u-a", Payload: payload}, relayed[0])

	assert.ErrorIs(t, f.svc.Relay(sa.RoomID, "z", payload), ErrNotMember)
	assert.ErrorIs(t, f.svc.RequestPractice("a", ident("a")), ErrAlreadyInSession)
	assert.ErrorIs(t, f.svc.Enqueue(KindFishing, "b", ident("b")), ErrAlreadyInSession)

	require.NoError(t, f.svc.Leave(sa.RoomID, "b"))
	over, ok := f.note.gameOver("a")
	require.True(t, ok)
	assert.Equal(t, "u-a", over.WinnerUserID)
	assert.Zero(t, f.svc.Stats().Sessions)
}

func TestShutdownAbortsEverything(t *testing.T) {
	f := newFixture(t, DefaultSettings(), WithRelayKinds("rps"))

	require.NoError(t, f.svc.Enqueue(KindFishing, "a", ident("a")))
	require.NoError(t, f.svc.Enqueue(KindFishing, "b", ident("b")))
	require.NoError(t, f.svc.RequestPractice("c", ident("c")))
	require.NoError(t, f.svc.Enqueue("rps", "d", ident("d")))
	require.NoError(t, f.svc.Enqueue("rps", "e", ident("e")))
	require.NoError(t, f.svc.RequestRanked(KindFishing, "g", ident("g")))

	f.svc.Shutdown()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		over, ok := f.note.gameOver(id)
		require.True(t, ok, id)
		assert.Equal(t, ReasonAborted, over.Reason)
		assert.Empty(t, over.WinnerUserID)
	}
	assert.Zero(t, f.sched.ActiveTickers())
	assert.Zero(t, f.sched.PendingTimers())
	assert.Equal(t, Stats{Queued: map[string]int{KindFishing: 0, "rps": 0}, Sessions: 0}, f.svc.Stats())
	assert.ErrorIs(t, f.svc.Enqueue(KindFishing, "h", ident("h")), ErrShuttingDown)
}
