package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeRoomNotFound = "room_not_found"
	ErrCodeInvalidVote  = "invalid_vote"
	ErrCodeRoomLocked   = "room_locked"
	ErrCodeTransport    = "transport_error"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeRejected     = "rejected"
)

var (
	// ErrRoomNotFound means a room id or join code did not resolve.
	// User-correctable; propagated verbatim, never retried.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidVote means the vote value is not yes/no/maybe.
	ErrInvalidVote = errors.New("invalid vote")
	// ErrRoomLocked means the room converged on a location and no longer
	// accepts votes.
	ErrRoomLocked = errors.New("room locked")
	// ErrTransport means a fetch or subscribe failed; it feeds the
	// session's reconnect budget instead of surfacing per-occurrence.
	ErrTransport = errors.New("transport error")
	// ErrSessionClosed means the session was torn down by the caller.
	ErrSessionClosed = errors.New("session closed")
)

// ErrorCode maps a domain error to its wire-level code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return ErrCodeRoomNotFound
	case errors.Is(err, ErrInvalidVote):
		return ErrCodeInvalidVote
	case errors.Is(err, ErrRoomLocked):
		return ErrCodeRoomLocked
	case errors.Is(err, ErrTransport):
		return ErrCodeTransport
	default:
		return ErrCodeRejected
	}
}
