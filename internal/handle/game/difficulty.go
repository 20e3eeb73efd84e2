package game

import "time"

// Difficulty is fixed for the lifetime of a duel.
type Difficulty struct {
	Name             string
	StruggleDuration time.Duration
	MaxChunks        int
}

var Difficulties = []Difficulty{
	{Name: "easy", StruggleDuration: 6 * time.Second, MaxChunks: 8},
	{Name: "normal", StruggleDuration: 5 * time.Second, MaxChunks: 10},
	{Name: "hard", StruggleDuration: 4 * time.Second, MaxChunks: 12},
}
