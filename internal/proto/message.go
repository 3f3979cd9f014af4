package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	// InboundTypeVote casts or changes the caller's vote.
	InboundTypeVote = "vote"
	// InboundTypeRefresh forces a snapshot re-fetch, the manual-refresh
	// affordance for a detached session.
	InboundTypeRefresh = "refresh"

	OutboundTypeRoom  = "room"
	OutboundTypeError = "error"
)

// VoteData is a vote intent from the client.
type VoteData struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Vote     string `json:"vote"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
