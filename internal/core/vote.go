package core

import (
	"fmt"
	"strings"

	"github.com/chalayga/meetsync-server/internal/store"
)

// ParseVote validates a raw vote value from a client.
func ParseVote(raw string) (store.Vote, error) {
	v := store.Vote(strings.ToLower(strings.TrimSpace(raw)))
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidVote, raw)
	}
	return v, nil
}

// Tally holds derived vote counts for a room. Counts are never stored;
// they are always computed from the participant list at read time so
// they cannot diverge from it.
type Tally struct {
	Yes     int `json:"yes"`
	No      int `json:"no"`
	Maybe   int `json:"maybe"`
	Pending int `json:"pending"`
}

// TallyVotes scans the participant list and derives the counts.
func TallyVotes(room *store.Room) Tally {
	var t Tally
	if room == nil {
		return t
	}
	for _, p := range room.Participants {
		switch p.Vote {
		case store.VoteYes:
			t.Yes++
		case store.VoteNo:
			t.No++
		case store.VoteMaybe:
			t.Maybe++
		default:
			t.Pending++
		}
	}
	return t
}
