package http

import (
	"time"

	"github.com/chalayga/meetsync-server/internal/core"
	"github.com/chalayga/meetsync-server/internal/store"
)

// ParticipantResponse represents one room member in API responses.
type ParticipantResponse struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Vote     string `json:"vote"`
}

// LocationResponse represents the selected location in API responses.
type LocationResponse struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Rating  float64 `json:"rating"`
}

// RoomResponse represents a full room snapshot in API responses. Vote
// counts are derived from the participant list at serialization time.
type RoomResponse struct {
	ID               string                `json:"id"`
	Code             string                `json:"code"`
	HostID           string                `json:"hostId"`
	HostName         string                `json:"hostName"`
	Type             string                `json:"type"`
	Title            string                `json:"title,omitempty"`
	Status           string                `json:"status"`
	Participants     []ParticipantResponse `json:"participants"`
	SelectedLocation *LocationResponse     `json:"selectedLocation,omitempty"`
	Counts           core.Tally            `json:"counts"`
	Revision         int64                 `json:"revision"`
	CreatedAt        string                `json:"createdAt"`
}

// SessionUpdateResponse is pushed over the websocket room feed.
type SessionUpdateResponse struct {
	Connection  string        `json:"connection"`
	Room        *RoomResponse `json:"room,omitempty"`
	PendingVote string        `json:"pendingVote,omitempty"`
}

func roomResponse(room *store.Room) *RoomResponse {
	if room == nil {
		return nil
	}

	participants := make([]ParticipantResponse, 0, len(room.Participants))
	for _, p := range room.Participants {
		participants = append(participants, ParticipantResponse{
			UserID:   p.UserID,
			Name:     p.Name,
			Username: p.Username,
			Vote:     string(p.Vote),
		})
	}

	resp := &RoomResponse{
		ID:           room.ID,
		Code:         room.Code,
		HostID:       room.HostID,
		HostName:     room.HostName,
		Type:         room.Type,
		Title:        room.Title,
		Status:       string(room.Status),
		Participants: participants,
		Counts:       core.TallyVotes(room),
		Revision:     room.Revision,
		CreatedAt:    room.CreatedAt.Format(time.RFC3339),
	}
	if room.SelectedLocation != nil {
		resp.SelectedLocation = &LocationResponse{
			Name:    room.SelectedLocation.Name,
			Address: room.SelectedLocation.Address,
			Rating:  room.SelectedLocation.Rating,
		}
	}
	return resp
}

func sessionUpdateResponse(u core.Update) SessionUpdateResponse {
	resp := SessionUpdateResponse{
		Connection: u.State.String(),
		Room:       roomResponse(u.Room),
	}
	if u.Pending != nil {
		resp.PendingVote = string(u.Pending.Vote)
	}
	return resp
}
