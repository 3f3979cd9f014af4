package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chalayga/meetsync-server/internal/auth"
	"github.com/chalayga/meetsync-server/internal/core"
	"github.com/chalayga/meetsync-server/internal/proto"
	"github.com/chalayga/meetsync-server/internal/store"
)

// WSHandler upgrades connections on the room feed and bridges them to a
// core.Session: one session per open room view, torn down when the view
// closes. The old client kept a module-level socket shared by every
// screen; the per-connection session replaces that hidden global state.
type WSHandler struct {
	store      store.RoomStore
	channel    core.EventChannel
	recon      *core.Reconciler
	sessionCfg core.SessionConfig
	jwtConfig  *auth.JWTConfig
	limiter    *connLimiter
	log        *zerolog.Logger
}

// NewWSHandler builds the websocket room-feed handler.
func NewWSHandler(st store.RoomStore, ch core.EventChannel, recon *core.Reconciler, sessionCfg core.SessionConfig, jwtConfig *auth.JWTConfig, limiter *connLimiter, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		store:      st,
		channel:    ch,
		recon:      recon,
		sessionCfg: sessionCfg,
		jwtConfig:  jwtConfig,
		limiter:    limiter,
		log:        logger,
	}
}

// Serve handles GET /ws/meetups/:id.
func (h *WSHandler) Serve(c *gin.Context) {
	roomID := c.Param("id")

	if !h.limiter.allow() {
		c.JSON(stdhttp.StatusTooManyRequests, ErrorResponse{Error: "too many connections"})
		return
	}

	// Browsers cannot set headers on a websocket upgrade, so the token
	// rides in the query string.
	var claims *auth.Claims
	if token := c.Query("token"); token != "" && h.jwtConfig != nil && len(h.jwtConfig.Secret) > 0 {
		parsed, err := auth.ValidateToken(h.jwtConfig, token)
		if err != nil {
			c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}
		claims = parsed
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sess := core.NewSession(roomID, h.store, h.channel, h.recon, h.sessionCfg, h.log)
	if err := sess.Open(ctx); err != nil {
		// The initial fetch failed; report upward and never go live.
		_ = wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: core.ErrorCode(err), Msg: err.Error()},
		})
		conn.Close(websocket.StatusPolicyViolation, "room unavailable")
		return
	}
	defer sess.Close()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess, claims)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("room_id", roomID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session, claims *auth.Claims) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		switch inbound.Type {
		case proto.InboundTypeVote:
			var vote proto.VoteData
			if err := json.Unmarshal(inbound.Data, &vote); err != nil {
				return err
			}
			if claims != nil {
				// Authenticated connections vote as themselves.
				vote.UserID = claims.UserID
				if claims.Name != "" {
					vote.Name = claims.Name
				}
				if claims.Username != "" {
					vote.Username = claims.Username
				}
			}
			if vote.UserID == "" || vote.Name == "" {
				if err := h.writeError(ctx, conn, core.ErrCodeBadRequest, "userId and name are required"); err != nil {
					return err
				}
				continue
			}
			// Fire-and-forget: rejections come back on the update feed.
			sess.CastVote(vote.UserID, vote.Name, vote.Username, store.Vote(vote.Vote))

		case proto.InboundTypeRefresh:
			if err := sess.Refresh(ctx); err != nil {
				if err := h.writeError(ctx, conn, core.ErrorCode(err), err.Error()); err != nil {
					return err
				}
			}

		default:
			if err := h.writeError(ctx, conn, core.ErrCodeBadRequest, "unknown message type"); err != nil {
				return err
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		select {
		case u := <-sess.Updates():
			if u.VoteErr != nil {
				if err := h.writeError(ctx, conn, core.ErrorCode(u.VoteErr), u.VoteErr.Error()); err != nil {
					return err
				}
				continue
			}
			out := proto.Outbound{
				Type: proto.OutboundTypeRoom,
				Data: sessionUpdateResponse(u),
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	})
}
