package websocket

import (
	"duel/internal/types"
	"duel/internal/utils"

	"github.com/charmbracelet/log"
)

func (s *Server) handleGameMessage(c *types.Client, msg []byte) {
	if !c.Limiter.Allow() {
		utils.SendError(c.Send, "", "rate_limited", "Too many messages")
		return
	}

	var incoming utils.IncomingMessage
	err := utils.UnmarshalMessage(msg, &incoming)
	if err != nil {
		log.Debugf("Invalid JSON from %s: %v", c.ID, err)
		utils.SendError(c.Send, "", "invalid_json", "Malformed JSON")
		return
	}

	switch incoming.Type {
	case "enqueue":
		s.handler.HandleEnqueue(c, incoming)

	case "practice":
		s.handler.HandlePractice(c, incoming)

	case "input":
		s.handler.HandleInput(c, incoming)

	case "leave":
		s.handler.HandleLeave(c, incoming)

	case "relay":
		s.handler.HandleRelay(c, incoming)

	default:
		utils.SendError(c.Send, incoming.ID, "unknown_type", "Unknown message type")
	}
}
