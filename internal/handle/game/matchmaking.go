package game

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"duel/internal/types"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// KindFishing is the server-simulated duel.
const KindFishing = "fishing"

// Notifier is the connection registry as seen by the engine.
type Notifier interface {
	Emit(connID, event string, data any) bool
	Broadcast(roomID, event string, data any)
	JoinRoom(roomID string, connIDs ...string)
	DissolveRoom(roomID string)
	IsConnected(connID string) bool
}

// ResultRecorder receives ranked outcomes. Implementations live in internal/db.
type ResultRecorder interface {
	Record(ctx context.Context, result types.GameResult) error
}

type membership struct {
	roomID string
	side   int
}

// rankedRequest ties the early-pair and bot-fallback timers of one enqueue
// together. started is only read or written under the service lock.
type rankedRequest struct {
	connID  string
	kind    string
	started bool
	early   Canceler
	grace   Canceler
}

func (r *rankedRequest) settle() {
	r.started = true
	if r.early != nil {
		r.early.Stop()
	}
	if r.grace != nil {
		r.grace.Stop()
	}
}

type relayRoom struct {
	roomID     string
	kind       string
	conns      [2]string
	identities [2]types.Identity
}

// MatchmakingService owns the queues and every live room of the process.
type MatchmakingService struct {
	mu sync.Mutex

	settings  Settings
	notifier  Notifier
	scheduler Scheduler
	recorder  ResultRecorder
	kinds     map[string]bool // kind -> simulated
	rng       *rand.Rand
	newID     func() string
	now       func() time.Time

	queues   map[string]*Queue
	pending  map[string]*rankedRequest
	duels    map[string]*Duel
	relays   map[string]*relayRoom
	members  map[string]membership
	closing  bool
	inflight sync.WaitGroup
}

type Option func(*MatchmakingService)

func WithScheduler(s Scheduler) Option {
	return func(m *MatchmakingService) { m.scheduler = s }
}

func WithRecorder(r ResultRecorder) Option {
	return func(m *MatchmakingService) { m.recorder = r }
}

func WithSeed(seed int64) Option {
	return func(m *MatchmakingService) { m.rng = rand.New(rand.NewSource(seed)) }
}

func WithIDGenerator(gen func() string) Option {
	return func(m *MatchmakingService) { m.newID = gen }
}

func WithClock(now func() time.Time) Option {
	return func(m *MatchmakingService) { m.now = now }
}

// WithRelayKinds registers game kinds that are paired but not simulated.
func WithRelayKinds(kinds ...string) Option {
	return func(m *MatchmakingService) {
		for _, k := range kinds {
			if k != "" && k != KindFishing {
				m.kinds[k] = false
			}
		}
	}
}

func NewMatchmakingService(settings Settings, notifier Notifier, opts ...Option) *MatchmakingService {
	s := &MatchmakingService{
		settings:  settings,
		notifier:  notifier,
		scheduler: NewScheduler(),
		kinds:     map[string]bool{KindFishing: true},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		newID:     uuid.NewString,
		now:       time.Now,
		queues:    make(map[string]*Queue),
		pending:   make(map[string]*rankedRequest),
		duels:     make(map[string]*Duel),
		relays:    make(map[string]*relayRoom),
		members:   make(map[string]membership),
	}
	for _, opt := range opts {
		opt(s)
	}
	for kind := range s.kinds {
		s.queues[kind] = newQueue(kind)
	}
	return s
}

// Enqueue appends the connection to the FIFO of kind and pairs immediately.
func (s *MatchmakingService) Enqueue(kind, connID string, id types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enqueueLocked(kind, connID, id); err != nil {
		return err
	}
	s.tryPairLocked(kind)
	return nil
}

// RequestRanked enqueues like Enqueue and, for simulated kinds, arms the
// early-pair check and the bot fallback.
func (s *MatchmakingService) RequestRanked(kind, connID string, id types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enqueueLocked(kind, connID, id); err != nil {
		return err
	}
	if s.kinds[kind] {
		req := &rankedRequest{connID: connID, kind: kind}
		s.pending[connID] = req
		req.early = s.scheduler.After(s.settings.EarlyPairDelay, func() { s.TryPair(kind) })
		req.grace = s.scheduler.After(s.settings.RankedGrace, func() { s.fallbackToBot(req) })
	}
	s.tryPairLocked(kind)
	return nil
}

// RequestPractice starts a duel against a bot right away, without queueing.
func (s *MatchmakingService) RequestPractice(connID string, id types.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.admitLocked(connID, id); err != nil {
		return err
	}
	s.startDuelLocked(KindFishing, &Side{Identity: id, ConnID: connID}, newBotSide(s.newID(), s.rng), false)
	return nil
}

func (s *MatchmakingService) admitLocked(connID string, id types.Identity) error {
	if s.closing {
		return ErrShuttingDown
	}
	if connID == "" || !id.Valid() {
		return ErrMissingIdentity
	}
	if !s.notifier.IsConnected(connID) {
		return ErrNotConnected
	}
	if _, busy := s.members[connID]; busy {
		return ErrAlreadyInSession
	}
	for _, q := range s.queues {
		if q.Contains(connID) {
			return ErrAlreadyQueued
		}
	}
	return nil
}

func (s *MatchmakingService) enqueueLocked(kind, connID string, id types.Identity) error {
	q, ok := s.queues[kind]
	if !ok {
		return ErrUnknownGameKind
	}
	if err := s.admitLocked(connID, id); err != nil {
		return err
	}
	q.Push(QueueEntry{ConnID: connID, Identity: id, EnqueuedAt: s.now()})
	s.notifier.Emit(connID, EventQueued, QueuedPayload{GameKind: kind, Position: q.Position(connID)})
	log.Debugf("Connection %s (%s) queued for %s", connID, id.UserID, kind)
	return nil
}

// TryPair drains the queue of kind two entries at a time.
func (s *MatchmakingService) TryPair(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tryPairLocked(kind)
}

func (s *MatchmakingService) tryPairLocked(kind string) {
	q, ok := s.queues[kind]
	if !ok {
		return
	}
	for _, gone := range q.Prune(s.notifier.IsConnected) {
		s.settleLocked(gone.ConnID)
		log.Debugf("Dropped %s from the %s queue: connection is gone", gone.ConnID, kind)
	}
	for {
		a, b, ok := q.PopPair()
		if !ok {
			return
		}
		s.settleLocked(a.ConnID)
		s.settleLocked(b.ConnID)

		if s.kinds[kind] {
			s.startDuelLocked(kind,
				&Side{Identity: a.Identity, ConnID: a.ConnID},
				&Side{Identity: b.Identity, ConnID: b.ConnID},
				true)
		} else {
			s.startRelayLocked(kind, a, b)
		}
	}
}

func (s *MatchmakingService) settleLocked(connID string) {
	if req, ok := s.pending[connID]; ok {
		req.settle()
		delete(s.pending, connID)
	}
}

func (s *MatchmakingService) fallbackToBot(req *rankedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.started || s.pending[req.connID] != req {
		return
	}
	s.settleLocked(req.connID)

	entry, ok := s.queues[req.kind].Remove(req.connID)
	if !ok || !s.notifier.IsConnected(entry.ConnID) {
		return
	}
	log.Infof("No opponent for %s within %v, substituting a bot", entry.Identity.UserID, s.settings.RankedGrace)
	s.startDuelLocked(req.kind, &Side{Identity: entry.Identity, ConnID: entry.ConnID}, newBotSide(s.newID(), s.rng), false)
}

func (s *MatchmakingService) startDuelLocked(kind string, left, right *Side, ranked bool) {
	roomID := s.newID()
	d := newDuel(roomID, kind, left, right, s.settings, rand.New(rand.NewSource(s.rng.Int63())), ranked)
	s.duels[roomID] = d

	var conns []string
	for i, side := range d.sides {
		if side.Bot {
			continue
		}
		s.members[side.ConnID] = membership{roomID: roomID, side: i}
		conns = append(conns, side.ConnID)
	}
	s.notifier.JoinRoom(roomID, conns...)

	d.mu.Lock()
	initial := d.snapshot()
	for i, side := range d.sides {
		if side.Bot {
			continue
		}
		s.notifier.Emit(side.ConnID, EventStart, StartPayload{
			RoomID:       roomID,
			GameKind:     kind,
			Side:         sideNames[i],
			Role:         roleNames[i],
			You:          side.Identity,
			Opponent:     d.sides[d.other(i)].Identity,
			InitialState: &initial,
			Difficulty:   d.profile.Name,
			Ranked:       d.ranked,
			Seed:         d.seed,
		})
	}
	d.ticker = s.scheduler.Every(s.settings.TickInterval, func(now time.Time) { s.tick(d, now) })
	d.mu.Unlock()

	log.Infof("Room %s started: %s vs %s (kind=%s ranked=%t difficulty=%s)",
		roomID, left.Identity.UserID, right.Identity.UserID, kind, d.ranked, d.profile.Name)
}

func (s *MatchmakingService) startRelayLocked(kind string, a, b QueueEntry) {
	roomID := s.newID()
	r := &relayRoom{
		roomID:     roomID,
		kind:       kind,
		conns:      [2]string{a.ConnID, b.ConnID},
		identities: [2]types.Identity{a.Identity, b.Identity},
	}
	s.relays[roomID] = r
	s.members[a.ConnID] = membership{roomID: roomID, side: sideLeft}
	s.members[b.ConnID] = membership{roomID: roomID, side: sideRight}
	s.notifier.JoinRoom(roomID, a.ConnID, b.ConnID)

	seed := s.rng.Int63()
	for i := range r.conns {
		s.notifier.Emit(r.conns[i], EventStart, StartPayload{
			RoomID:   roomID,
			GameKind: kind,
			Side:     sideNames[i],
			Role:     roleNames[i],
			You:      r.identities[i],
			Opponent: r.identities[1-i],
			Ranked:   true,
			Seed:     seed,
		})
	}
	log.Infof("Relay room %s started: %s vs %s (kind=%s)", roomID, a.Identity.UserID, b.Identity.UserID, kind)
}

// tick is the scheduler callback of one duel.
func (s *MatchmakingService) tick(d *Duel, now time.Time) {
	d.mu.Lock()
	if d.finished {
		d.mu.Unlock()
		return
	}

	winner, reason, done := noWinner, ReasonLanded, false
	if gone := s.disconnectedSide(d); gone != noWinner {
		winner, reason, done = d.other(gone), ReasonDisconnect, true
	} else {
		winner, done = d.advance(now)
	}
	if !done {
		s.notifier.Broadcast(d.roomID, EventState, d.snapshot())
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	s.mu.Lock()
	results := s.finishDuelLocked(d, winner, reason)
	s.mu.Unlock()
	s.record(results)
}

// disconnectedSide reports a human side whose connection is gone. Caller holds d.mu.
func (s *MatchmakingService) disconnectedSide(d *Duel) int {
	for i, side := range d.sides {
		if !side.Bot && !s.notifier.IsConnected(side.ConnID) {
			return i
		}
	}
	return noWinner
}

// finishDuelLocked is the single teardown path of a duel: the timer is
// cancelled, the room leaves the registry and game_over is broadcast, all
// while both locks are held. Caller holds s.mu.
func (s *MatchmakingService) finishDuelLocked(d *Duel, winner int, reason string) []types.GameResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.finished {
		return nil
	}
	d.finished = true
	d.stopTicker()

	delete(s.duels, d.roomID)
	for _, side := range d.sides {
		if m, ok := s.members[side.ConnID]; ok && m.roomID == d.roomID {
			delete(s.members, side.ConnID)
		}
	}

	payload := GameOverPayload{
		RoomID:          d.roomID,
		DifficultyIndex: d.difficultyIndex,
		Ranked:          d.ranked,
		Reason:          reason,
	}
	if winner != noWinner {
		payload.WinnerUserID = d.sides[winner].Identity.UserID
		payload.WinnerUsername = d.sides[winner].Identity.Username
	}
	s.notifier.Broadcast(d.roomID, EventGameOver, payload)
	s.notifier.DissolveRoom(d.roomID)

	log.Infof("Room %s finished: reason=%s winner=%q ranked=%t", d.roomID, reason, payload.WinnerUserID, d.ranked)

	if !d.ranked || winner == noWinner {
		return nil
	}
	finishedAt := s.now()
	results := make([]types.GameResult, 0, 2)
	for i, side := range d.sides {
		outcome := types.OutcomeLose
		if i == winner {
			outcome = types.OutcomeWin
		}
		results = append(results, types.GameResult{
			RoomID:          d.roomID,
			GameKind:        d.gameKind,
			UserID:          side.Identity.UserID,
			Username:        side.Identity.Username,
			OpponentID:      d.sides[d.other(i)].Identity.UserID,
			Outcome:         outcome,
			DifficultyIndex: d.difficultyIndex,
			Reason:          reason,
			FinishedAt:      finishedAt,
		})
	}
	return results
}

func (s *MatchmakingService) finishRelayLocked(r *relayRoom, winner int, reason string) {
	if _, ok := s.relays[r.roomID]; !ok {
		return
	}
	delete(s.relays, r.roomID)
	for _, c := range r.conns {
		if m, ok := s.members[c]; ok && m.roomID == r.roomID {
			delete(s.members, c)
		}
	}

	payload := GameOverPayload{RoomID: r.roomID, Reason: reason}
	if winner != noWinner {
		payload.WinnerUserID = r.identities[winner].UserID
		payload.WinnerUsername = r.identities[winner].Username
	}
	s.notifier.Broadcast(r.roomID, EventGameOver, payload)
	s.notifier.DissolveRoom(r.roomID)
	log.Infof("Relay room %s finished: reason=%s", r.roomID, reason)
}

// record hands results to the recorder off the tick path.
func (s *MatchmakingService) record(results []types.GameResult) {
	if s.recorder == nil || len(results) == 0 {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.settings.RecordTimeout)
		defer cancel()
		for _, r := range results {
			if err := s.recorder.Record(ctx, r); err != nil {
				log.Errorf("Recording result of room %s for %s failed: %v", r.RoomID, r.UserID, err)
			}
		}
	}()
}

// Cancel removes the connection from every queue and disarms its timers.
func (s *MatchmakingService) Cancel(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(connID)
}

func (s *MatchmakingService) cancelLocked(connID string) {
	for _, q := range s.queues {
		q.Remove(connID)
	}
	s.settleLocked(connID)
}

// Leave ends the room the connection is playing in; the other side wins.
func (s *MatchmakingService) Leave(roomID, connID string) error {
	s.mu.Lock()
	m, ok := s.members[connID]
	if !ok || m.roomID != roomID {
		s.mu.Unlock()
		return ErrNotMember
	}
	results := s.endMembershipLocked(m, ReasonLeft)
	s.mu.Unlock()

	s.record(results)
	return nil
}

// Disconnect is called by the transport when a connection drops.
func (s *MatchmakingService) Disconnect(connID string) {
	s.mu.Lock()
	s.cancelLocked(connID)
	var results []types.GameResult
	if m, ok := s.members[connID]; ok {
		results = s.endMembershipLocked(m, ReasonDisconnect)
	}
	s.mu.Unlock()

	s.record(results)
}

func (s *MatchmakingService) endMembershipLocked(m membership, reason string) []types.GameResult {
	winner := 1 - m.side
	if d, ok := s.duels[m.roomID]; ok {
		return s.finishDuelLocked(d, winner, reason)
	}
	if r, ok := s.relays[m.roomID]; ok {
		s.finishRelayLocked(r, winner, reason)
	}
	return nil
}

// Input applies a hold or tap event from a room member.
func (s *MatchmakingService) Input(roomID, connID string, in Input) error {
	s.mu.Lock()
	m, ok := s.members[connID]
	d := s.duels[roomID]
	s.mu.Unlock()

	if !ok || m.roomID != roomID {
		return ErrNotMember
	}
	if d == nil {
		return ErrRoomNotFound
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished {
		return nil
	}
	switch in.Type {
	case InputDown:
		d.hold(m.side, true, in.Key)
	case InputUp:
		d.hold(m.side, false, in.Key)
	case InputTap:
		d.tap(m.side, in.Key, false)
	case InputTapWrong:
		d.tap(m.side, in.Key, true)
	}
	return nil
}

// Relay forwards an opaque payload to every member of the sender's room.
func (s *MatchmakingService) Relay(roomID, connID string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[connID]
	if !ok || m.roomID != roomID {
		return ErrNotMember
	}
	var from string
	if r, ok := s.relays[roomID]; ok {
		from = r.identities[m.side].UserID
	} else if d, ok := s.duels[roomID]; ok {
		from = d.sides[m.side].Identity.UserID
	} else {
		return ErrRoomNotFound
	}
	s.notifier.Broadcast(roomID, EventRelay, RelayPayload{RoomID: roomID, From: from, Payload: payload})
	return nil
}

func (s *MatchmakingService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Queued: make(map[string]int, len(s.queues)), Sessions: len(s.duels) + len(s.relays)}
	for kind, q := range s.queues {
		st.Queued[kind] = q.Len()
	}
	return st
}

// Shutdown aborts every room, disarms every timer and waits for pending result writes.
func (s *MatchmakingService) Shutdown() {
	s.mu.Lock()
	s.closing = true
	for connID := range s.pending {
		s.cancelLocked(connID)
	}
	for _, q := range s.queues {
		q.entries = nil
	}
	for _, d := range s.duels {
		s.finishDuelLocked(d, noWinner, ReasonAborted)
	}
	for _, r := range s.relays {
		s.finishRelayLocked(r, noWinner, ReasonAborted)
	}
	s.mu.Unlock()

	s.inflight.Wait()
}
