package game

import "time"

// Settings are the tuning values of the engine.
type Settings struct {
	TickInterval   time.Duration
	RankedGrace    time.Duration
	EarlyPairDelay time.Duration
	ReelDuration   time.Duration
	RecordTimeout  time.Duration

	// progress per tick while holding the right (gain) or wrong/no (decay) direction
	ProgressGain  float64
	ProgressDecay float64
	TapReward     float64
	TapPenalty    float64

	BotReelHitChance    float64
	BotStruggleAccuracy float64

	OscillationSpeed     float64
	OscillationAmplitude float64
	MaxDepth             float64

	QuickTimeMin int
	QuickTimeMax int
}

func DefaultSettings() Settings {
	return Settings{
		TickInterval:         100 * time.Millisecond,
		RankedGrace:          4 * time.Second,
		EarlyPairDelay:       600 * time.Millisecond,
		ReelDuration:         3 * time.Second,
		RecordTimeout:        5 * time.Second,
		ProgressGain:         0.1,
		ProgressDecay:        0.04,
		TapReward:            1,
		TapPenalty:           0.5,
		BotReelHitChance:     0.68,
		BotStruggleAccuracy:  0.6,
		OscillationSpeed:     0.08,
		OscillationAmplitude: 1,
		MaxDepth:             1,
		QuickTimeMin:         3,
		QuickTimeMax:         5,
	}
}
