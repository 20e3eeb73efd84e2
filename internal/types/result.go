package types

import "time"

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
)

// GameResult is handed to the result recorders once per ranked participant.
type GameResult struct {
	RoomID          string    `json:"roomId" bson:"room_id"`
	GameKind        string    `json:"gameKind" bson:"game_kind"`
	UserID          string    `json:"userId" bson:"user_id"`
	Username        string    `json:"username" bson:"username"`
	OpponentID      string    `json:"opponentId" bson:"opponent_id"`
	Outcome         Outcome   `json:"outcome" bson:"outcome"`
	DifficultyIndex int       `json:"difficultyIndex" bson:"difficulty_index"`
	Reason          string    `json:"reason" bson:"reason"`
	FinishedAt      time.Time `json:"finishedAt" bson:"finished_at"`
}

// LeaderboardEntry is one row of a per-kind win ranking.
type LeaderboardEntry struct {
	UserID string  `json:"userId"`
	Wins   float64 `json:"wins"`
}
