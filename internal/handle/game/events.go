package game

import (
	"encoding/json"

	"duel/internal/types"
)

// Outbound event types.
const (
	EventQueued   = "queued"
	EventStart    = "start"
	EventState    = "state"
	EventGameOver = "game_over"
	EventRelay    = "relay"
)

// Teardown reasons carried by game_over.
const (
	ReasonLanded     = "landed"
	ReasonLeft       = "left"
	ReasonDisconnect = "disconnect"
	ReasonAborted    = "aborted"
)

// Input types accepted from clients.
const (
	InputDown     = "down"
	InputUp       = "up"
	InputTap      = "tap"
	InputTapWrong = "tap-wrong"
)

type Input struct {
	Type string
	Key  Direction
}

type QueuedPayload struct {
	GameKind string `json:"gameKind"`
	Position int    `json:"position"`
}

type StartPayload struct {
	RoomID       string         `json:"roomId"`
	GameKind     string         `json:"gameKind"`
	Side         string         `json:"side"`
	Role         string         `json:"role"`
	You          types.Identity `json:"you"`
	Opponent     types.Identity `json:"opponent"`
	InitialState *Snapshot      `json:"initialState,omitempty"`
	Difficulty   string         `json:"difficulty,omitempty"`
	Ranked       bool           `json:"ranked"`
	Seed         int64          `json:"seed"`
}

type GameOverPayload struct {
	RoomID          string `json:"roomId"`
	WinnerUserID    string `json:"winnerUserId"`
	WinnerUsername  string `json:"winnerUsername"`
	DifficultyIndex int    `json:"difficultyIndex"`
	Ranked          bool   `json:"ranked"`
	Reason          string `json:"reason"`
}

type RelayPayload struct {
	RoomID  string          `json:"roomId"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type Stats struct {
	Queued   map[string]int `json:"queued"`
	Sessions int            `json:"sessions"`
}
