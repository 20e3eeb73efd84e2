package game

import (
	"math/rand"

	"duel/internal/types"
)

var botNames = []string{"Old Pete", "Captain Reel", "Marlin Mae", "Salty Sam", "Bobber Bill"}

// newBotSide synthesizes the non-human opponent. Its user id can never collide
// with a real one because of the prefix and the random suffix.
func newBotSide(id string, rng *rand.Rand) *Side {
	return &Side{
		Identity: types.Identity{
			UserID:   "bot-" + id,
			Username: botNames[rng.Intn(len(botNames))],
		},
		Bot: true,
	}
}
