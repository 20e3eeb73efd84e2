package game

import "github.com/rotisserie/eris"

var (
	ErrMissingIdentity  = eris.New("missing user identity")
	ErrNotConnected     = eris.New("connection is gone")
	ErrAlreadyQueued    = eris.New("connection already queued")
	ErrAlreadyInSession = eris.New("connection already in a session")
	ErrUnknownGameKind  = eris.New("unknown game kind")
	ErrRoomNotFound     = eris.New("room not found")
	ErrNotMember        = eris.New("connection is not a member of the room")
	ErrShuttingDown     = eris.New("matchmaking is shutting down")
)
