package message

import (
	"encoding/json"

	"duel/internal/handle/game"
	"duel/internal/types"
	"duel/internal/utils"

	"github.com/charmbracelet/log"
	"github.com/rotisserie/eris"
)

// Engine is the part of the matchmaking service the handlers drive.
type Engine interface {
	RequestRanked(kind, connID string, id types.Identity) error
	RequestPractice(connID string, id types.Identity) error
	Input(roomID, connID string, in game.Input) error
	Leave(roomID, connID string) error
	Cancel(connID string)
	Relay(roomID, connID string, payload json.RawMessage) error
}

type Handler struct {
	engine Engine
}

func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

type EnqueueRequest struct {
	GameKind string `json:"gameKind"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type PracticeRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type InputRequest struct {
	RoomID string `json:"roomId"`
	Type   string `json:"type"`
	Key    string `json:"key"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type RelayRequest struct {
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

// identityFor prefers the identity bound at handshake over the one in the payload.
func identityFor(c *types.Client, userID, username string) types.Identity {
	if c.User.Valid() {
		return c.User
	}
	return types.Identity{UserID: userID, Username: username}
}

func (h *Handler) HandleEnqueue(c *types.Client, incoming utils.IncomingMessage) {
	var req EnqueueRequest
	if err := json.Unmarshal(incoming.Data, &req); err != nil {
		utils.SendError(c.Send, incoming.ID, "invalid_payload", "Invalid enqueue format")
		return
	}
	if req.GameKind == "" {
		req.GameKind = game.KindFishing
	}

	err := h.engine.RequestRanked(req.GameKind, c.ID, identityFor(c, req.UserID, req.Username))
	if err != nil {
		sendEngineError(c, incoming.ID, err)
	}
}

func (h *Handler) HandlePractice(c *types.Client, incoming utils.IncomingMessage) {
	var req PracticeRequest
	if len(incoming.Data) > 0 {
		if err := json.Unmarshal(incoming.Data, &req); err != nil {
			utils.SendError(c.Send, incoming.ID, "invalid_payload", "Invalid practice format")
			return
		}
	}

	if err := h.engine.RequestPractice(c.ID, identityFor(c, req.UserID, req.Username)); err != nil {
		sendEngineError(c, incoming.ID, err)
	}
}

// HandleInput forwards hold and tap events. Inputs for rooms the connection
// is not part of are dropped without a reply.
func (h *Handler) HandleInput(c *types.Client, incoming utils.IncomingMessage) {
	var req InputRequest
	if err := json.Unmarshal(incoming.Data, &req); err != nil || req.RoomID == "" {
		utils.SendError(c.Send, incoming.ID, "invalid_payload", "Invalid input format")
		return
	}

	key, ok := game.ParseDirection(req.Key)
	switch req.Type {
	case game.InputDown, game.InputUp, game.InputTap:
		if !ok {
			utils.SendError(c.Send, incoming.ID, "invalid_key", "Unknown key")
			return
		}
	case game.InputTapWrong:
	default:
		utils.SendError(c.Send, incoming.ID, "invalid_input", "Unknown input type")
		return
	}

	err := h.engine.Input(req.RoomID, c.ID, game.Input{Type: req.Type, Key: key})
	if err != nil {
		log.Debugf("Dropped input from %s for room %s: %v", c.ID, req.RoomID, err)
	}
}

// HandleLeave ends the given room, or just leaves the queue when no room is named.
func (h *Handler) HandleLeave(c *types.Client, incoming utils.IncomingMessage) {
	var req RoomRequest
	if len(incoming.Data) > 0 {
		if err := json.Unmarshal(incoming.Data, &req); err != nil {
			utils.SendError(c.Send, incoming.ID, "invalid_payload", "Invalid leave format")
			return
		}
	}

	if req.RoomID == "" {
		h.engine.Cancel(c.ID)
		utils.SendMessage(c.Send, incoming.ID, "dequeued", map[string]string{})
		return
	}
	if err := h.engine.Leave(req.RoomID, c.ID); err != nil {
		sendEngineError(c, incoming.ID, err)
	}
}

func (h *Handler) HandleRelay(c *types.Client, incoming utils.IncomingMessage) {
	var req RelayRequest
	if err := json.Unmarshal(incoming.Data, &req); err != nil || req.RoomID == "" {
		utils.SendError(c.Send, incoming.ID, "invalid_payload", "Invalid relay format")
		return
	}

	if err := h.engine.Relay(req.RoomID, c.ID, req.Payload); err != nil {
		sendEngineError(c, incoming.ID, err)
	}
}

var errorCodes = []struct {
	err  error
	code string
}{
	{game.ErrMissingIdentity, "missing_identity"},
	{game.ErrNotConnected, "not_connected"},
	{game.ErrAlreadyQueued, "already_queued"},
	{game.ErrAlreadyInSession, "already_in_session"},
	{game.ErrUnknownGameKind, "unknown_game_kind"},
	{game.ErrRoomNotFound, "room_not_found"},
	{game.ErrNotMember, "not_member"},
	{game.ErrShuttingDown, "shutting_down"},
}

func sendEngineError(c *types.Client, id string, err error) {
	for _, e := range errorCodes {
		if eris.Is(err, e.err) {
			utils.SendError(c.Send, id, e.code, e.err.Error())
			return
		}
	}
	log.Errorf("Unexpected engine error for %s: %v", c.ID, err)
	utils.SendError(c.Send, id, "server_error", "Internal error")
}
