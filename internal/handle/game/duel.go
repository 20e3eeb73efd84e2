package game

import (
	"math/rand"
	"sync"
	"time"

	"duel/internal/types"
)

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseStruggle Phase = "struggle"
	PhaseReel     Phase = "reel"
)

type Direction string

const (
	DirNone  Direction = ""
	DirLeft  Direction = "left"
	DirRight Direction = "right"
	DirUp    Direction = "up"
	DirDown  Direction = "down"
)

var quickTimeSymbols = []Direction{DirUp, DirDown, DirLeft, DirRight}

func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(s); d {
	case DirLeft, DirRight, DirUp, DirDown:
		return d, true
	}
	return DirNone, false
}

const (
	sideLeft  = 0
	sideRight = 1
	noWinner  = -1
)

var sideNames = [2]string{"left", "right"}
var roleNames = [2]string{"A", "B"}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Side is one competitor of a duel.
type Side struct {
	Identity types.Identity
	ConnID   string
	Bot      bool

	Position          Position
	MovementDirection int
	Progress          float64
	HeldInput         Direction
	QuickTime         []Direction
	QuickTimeCursor   int
}

// requiredInput is the direction that counters the side's current drift.
func (s *Side) requiredInput() Direction {
	if s.MovementDirection > 0 {
		return DirLeft
	}
	return DirRight
}

func (s *Side) addProgress(delta float64, maxChunks int) {
	s.Progress += delta
	if s.Progress < 0 {
		s.Progress = 0
	}
	if s.Progress > float64(maxChunks) {
		s.Progress = float64(maxChunks)
	}
}

func (s *Side) oscillate(speed, amplitude float64) {
	s.Position.X += speed * float64(s.MovementDirection)
	if s.Position.X >= amplitude {
		s.Position.X = amplitude
		s.MovementDirection = -1
	} else if s.Position.X <= -amplitude {
		s.Position.X = -amplitude
		s.MovementDirection = 1
	}
}

func (s *Side) landed(maxChunks int) bool {
	return s.Progress >= float64(maxChunks)
}

// Duel is the server-simulated fishing contest of one room. All fields are
// guarded by mu; the service never touches them without holding it.
type Duel struct {
	mu sync.Mutex

	roomID          string
	gameKind        string
	settings        Settings
	difficultyIndex int
	profile         Difficulty
	ranked          bool
	bot             bool
	seed            int64
	rng             *rand.Rand

	phase         Phase
	phaseStarted  time.Time
	phaseDuration time.Duration
	sides         [2]*Side

	ticker   Canceler
	finished bool
}

func newDuel(roomID, gameKind string, left, right *Side, settings Settings, rng *rand.Rand, ranked bool) *Duel {
	idx := rng.Intn(len(Difficulties))
	d := &Duel{
		roomID:          roomID,
		gameKind:        gameKind,
		settings:        settings,
		difficultyIndex: idx,
		profile:         Difficulties[idx],
		bot:             left.Bot || right.Bot,
		seed:            rng.Int63(),
		rng:             rng,
		phase:           PhaseWaiting,
		sides:           [2]*Side{left, right},
	}
	d.ranked = ranked && !d.bot

	for _, s := range d.sides {
		s.MovementDirection = 1
		if rng.Intn(2) == 0 {
			s.MovementDirection = -1
		}
		s.Position.Y = settings.MaxDepth
	}
	return d
}

func (d *Duel) enterStruggle(now time.Time) {
	d.phase = PhaseStruggle
	d.phaseStarted = now
	d.phaseDuration = d.profile.StruggleDuration
}

func (d *Duel) enterReel(now time.Time) {
	n := d.settings.QuickTimeMin
	if spread := d.settings.QuickTimeMax - d.settings.QuickTimeMin; spread > 0 {
		n += d.rng.Intn(spread + 1)
	}
	seq := make([]Direction, n)
	for i := range seq {
		seq[i] = quickTimeSymbols[d.rng.Intn(len(quickTimeSymbols))]
	}
	for _, s := range d.sides {
		s.QuickTime = append([]Direction(nil), seq...)
		s.QuickTimeCursor = 0
	}

	d.phase = PhaseReel
	d.phaseStarted = now
	d.phaseDuration = d.settings.ReelDuration
}

// advance runs one tick of the state machine and reports the winner once
// a side has landed its catch. Caller holds mu.
func (d *Duel) advance(now time.Time) (winner int, done bool) {
	if d.phase == PhaseWaiting {
		d.enterStruggle(now)
	}

	maxChunks := d.profile.MaxChunks
	switch d.phase {
	case PhaseStruggle:
		for _, s := range d.sides {
			if s.Bot {
				s.HeldInput = d.botHold(s)
			}
			if s.HeldInput == s.requiredInput() {
				s.addProgress(d.settings.ProgressGain, maxChunks)
			} else {
				s.addProgress(-d.settings.ProgressDecay, maxChunks)
			}
			s.oscillate(d.settings.OscillationSpeed, d.settings.OscillationAmplitude)
		}
	case PhaseReel:
		for _, s := range d.sides {
			if s.Bot && d.rng.Float64() < d.settings.BotReelHitChance && s.QuickTimeCursor < len(s.QuickTime) {
				d.hit(s)
			}
		}
	}

	for _, s := range d.sides {
		s.Position.Y = d.settings.MaxDepth * (1 - s.Progress/float64(maxChunks))
	}

	if now.Sub(d.phaseStarted) > d.phaseDuration {
		if d.phase == PhaseStruggle {
			d.enterReel(now)
		} else {
			d.enterStruggle(now)
		}
	}

	left, right := d.sides[sideLeft].landed(maxChunks), d.sides[sideRight].landed(maxChunks)
	switch {
	case left && right:
		return d.rng.Intn(2), true
	case left:
		return sideLeft, true
	case right:
		return sideRight, true
	}
	return noWinner, false
}

// hold records a key going down or up. Held keys only count during struggle.
func (d *Duel) hold(side int, pressed bool, key Direction) {
	s := d.sides[side]
	if pressed {
		s.HeldInput = key
		return
	}
	if s.HeldInput == key {
		s.HeldInput = DirNone
	}
}

// tap handles a discrete key press during reel. Taps in any other phase are ignored.
func (d *Duel) tap(side int, key Direction, wrong bool) {
	if d.phase != PhaseReel {
		return
	}
	s := d.sides[side]
	if wrong {
		s.addProgress(-d.settings.TapPenalty, d.profile.MaxChunks)
		return
	}
	if s.QuickTimeCursor < len(s.QuickTime) && s.QuickTime[s.QuickTimeCursor] == key {
		d.hit(s)
	}
}

func (d *Duel) hit(s *Side) {
	s.QuickTimeCursor++
	s.addProgress(d.settings.TapReward, d.profile.MaxChunks)
}

func (d *Duel) botHold(s *Side) Direction {
	if d.rng.Float64() < d.settings.BotStruggleAccuracy {
		return s.requiredInput()
	}
	return DirNone
}

func (d *Duel) other(side int) int {
	return 1 - side
}

type SideState struct {
	UserID          string      `json:"userId"`
	Username        string      `json:"username"`
	Bot             bool        `json:"bot"`
	Position        Position    `json:"position"`
	Direction       int         `json:"direction"`
	Progress        float64     `json:"progress"`
	HeldInput       Direction   `json:"heldInput,omitempty"`
	QuickTime       []Direction `json:"quickTime"`
	QuickTimeCursor int         `json:"quickTimeCursor"`
}

type Snapshot struct {
	RoomID          string    `json:"roomId"`
	Phase           Phase     `json:"phase"`
	DifficultyIndex int       `json:"difficultyIndex"`
	MaxChunks       int       `json:"maxChunks"`
	Left            SideState `json:"left"`
	Right           SideState `json:"right"`
}

func (d *Duel) snapshot() Snapshot {
	state := func(s *Side) SideState {
		return SideState{
			UserID:          s.Identity.UserID,
			Username:        s.Identity.Username,
			Bot:             s.Bot,
			Position:        s.Position,
			Direction:       s.MovementDirection,
			Progress:        s.Progress,
			HeldInput:       s.HeldInput,
			QuickTime:       append([]Direction{}, s.QuickTime...),
			QuickTimeCursor: s.QuickTimeCursor,
		}
	}
	return Snapshot{
		RoomID:          d.roomID,
		Phase:           d.phase,
		DifficultyIndex: d.difficultyIndex,
		MaxChunks:       d.profile.MaxChunks,
		Left:            state(d.sides[sideLeft]),
		Right:           state(d.sides[sideRight]),
	}
}

// stopTicker cancels the tick timer. Safe to call more than once.
func (d *Duel) stopTicker() {
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
}
