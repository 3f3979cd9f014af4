package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chalayga/meetsync-server/internal/core"
	"github.com/chalayga/meetsync-server/internal/service/rooms"
	"github.com/chalayga/meetsync-server/internal/store"
)

// RoomHandlers provides the REST endpoints the mobile client calls.
type RoomHandlers struct {
	rooms    *rooms.Service
	resolver *core.Resolver
	recon    *core.Reconciler
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(roomsSvc *rooms.Service, resolver *core.Resolver, recon *core.Reconciler, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		rooms:    roomsSvc,
		resolver: resolver,
		recon:    recon,
		log:      logger,
	}
}

// DataResponse wraps a payload the way the mobile client expects.
type DataResponse struct {
	Data any `json:"data"`
}

// CreateRoomRequest represents the create meetup request body.
type CreateRoomRequest struct {
	HostID       string `json:"hostId"`
	HostName     string `json:"hostName"`
	HostUsername string `json:"hostUsername"`
	Type         string `json:"type" binding:"required,min=1,max=32"`
	Title        string `json:"title" binding:"max=128"`
}

// CreateRoom handles meetup creation.
// POST /api/meetups
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create meetup request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	// An authenticated caller is always the host they claim to be.
	if uid := identityUserID(c); uid != "" {
		req.HostID = uid
		if name, ok := c.Get(ContextKeyName); ok {
			if s, _ := name.(string); s != "" {
				req.HostName = s
			}
		}
		if username, ok := c.Get(ContextKeyUsername); ok {
			if s, _ := username.(string); s != "" {
				req.HostUsername = s
			}
		}
	}

	room, err := h.rooms.Create(c.Request.Context(), rooms.CreateParams{
		HostID:       req.HostID,
		HostName:     req.HostName,
		HostUsername: req.HostUsername,
		Type:         req.Type,
		Title:        req.Title,
	})
	if err != nil {
		if errors.Is(err, rooms.ErrMissingHost) || errors.Is(err, rooms.ErrMissingType) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Str("host_id", req.HostID).Msg("failed to create meetup")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, DataResponse{Data: roomResponse(room)})
}

// GetRoom handles fetching one meetup snapshot.
// GET /api/meetups/:id
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	room, err := h.rooms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: roomResponse(room)})
}

// ResolveCode handles the join-by-code flow: the human-entered code is
// normalized and resolved, and the full snapshot comes back so the
// client can navigate straight into the room.
// GET /api/meetups/code/:code
func (h *RoomHandlers) ResolveCode(c *gin.Context) {
	roomID, err := h.resolver.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	room, err := h.rooms.Get(c.Request.Context(), roomID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: roomResponse(room)})
}

// VoteRequest represents the join/vote request body.
type VoteRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Username string `json:"username"`
	Vote     string `json:"vote" binding:"required"`
}

// Vote handles casting or changing a vote in a meetup.
// POST /api/meetups/:id/join
func (h *RoomHandlers) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid vote request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if uid := identityUserID(c); uid != "" && uid != req.UserID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot vote for another user"})
		return
	}

	vote, err := core.ParseVote(req.Vote)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}

	room, err := h.recon.ApplyVote(c.Request.Context(), c.Param("id"), req.UserID, req.Name, req.Username, vote)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: roomResponse(room)})
}

// ListRooms handles listing a host's plans.
// GET /api/meetups?host_id=...
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	hostID := c.Query("host_id")
	if hostID == "" {
		hostID = identityUserID(c)
	}
	if hostID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "host_id is required"})
		return
	}

	list, err := h.rooms.ListByHost(c.Request.Context(), hostID)
	if err != nil {
		h.log.Error().Err(err).Str("host_id", hostID).Msg("failed to list meetups")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]*RoomResponse, 0, len(list))
	for _, room := range list {
		response = append(response, roomResponse(room))
	}
	c.JSON(http.StatusOK, DataResponse{Data: response})
}

// LockRequest carries the externally selected location.
type LockRequest struct {
	Name    string  `json:"name" binding:"required"`
	Address string  `json:"address"`
	Rating  float64 `json:"rating"`
}

// Lock handles the plan-locked flow: the suggestion service posts the
// chosen location and the room stops accepting votes.
// POST /api/meetups/:id/lock
func (h *RoomHandlers) Lock(c *gin.Context) {
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid lock request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	room, err := h.rooms.Lock(c.Request.Context(), c.Param("id"), store.Location{
		Name:    req.Name,
		Address: req.Address,
		Rating:  req.Rating,
	})
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, DataResponse{Data: roomResponse(room)})
}

func (h *RoomHandlers) writeDomainError(c *gin.Context, err error) {
	switch core.ErrorCode(err) {
	case core.ErrCodeRoomNotFound:
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "meetup not found"})
	case core.ErrCodeInvalidVote:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "vote must be yes, no or maybe"})
	case core.ErrCodeRoomLocked:
		c.JSON(http.StatusConflict, ErrorResponse{Error: "meetup is locked"})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
