package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/examina/examina-backend/internal/engine"
	"github.com/examina/examina-backend/internal/middleware"
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/response"
	"github.com/examina/examina-backend/internal/service"
	ws "github.com/examina/examina-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler multiplexes the in-session operations over one WebSocket so a
// client saving every few seconds does not pay HTTP overhead per answer.
type WSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/stream?session_token=...
// Upgrades to WebSocket for answer pushes, snapshots, violation reports
// and submission over one connection.
func (h *WSHandler) SessionStream(c *gin.Context) {
	token := middleware.GetSessionToken(c)

	// The session must resolve before we upgrade, so a bad token costs a
	// plain 401 instead of a dangling socket.
	if _, err := h.sessions.Recover(c.Request.Context(), token); err != nil {
		response.FailErr(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("token_prefix", tokenPrefix(token)).Logger()
	wsLog.Info().Msg("Session stream connected")

	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
				// The client vanished mid-exam; record it so proctors see
				// the gap. Best effort, the session itself is unaffected.
				if _, verr := h.sessions.RecordViolation(context.Background(), token,
					model.ViolationDisconnect, "websocket closed unexpectedly"); verr != nil &&
					!isExpectedViolationErr(verr) {
					wsLog.Warn().Err(verr).Msg("Disconnect violation not recorded")
				}
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(c.Request.Context(), conn, token, &msg)
		case ws.ActionSnapshot:
			h.handleSnapshot(c.Request.Context(), conn, token, &msg)
		case ws.ActionViolation:
			h.handleViolation(c.Request.Context(), conn, token, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(c.Request.Context(), conn, wsLog, token)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, conn *websocket.Conn, token string, msg *ws.RequestEnvelope) {
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		ws.WriteError(conn, string(response.ErrInvalidID), "invalid question_id")
		return
	}

	answer, err := h.sessions.RecordAnswer(ctx, token, model.RecordAnswerRequest{
		QuestionID:       questionID,
		FreeText:         msg.FreeText,
		SelectedOptions:  msg.SelectedOptions,
		IsFlagged:        msg.IsFlagged,
		TimeSpentSeconds: msg.TimeSpentSeconds,
		QuestionIndex:    msg.QuestionIndex,
	})
	if err != nil {
		writeServiceError(conn, err)
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{
		Event:   ws.EventSaved,
		Version: answer.Version,
		QID:     questionID.String(),
	})
}

func (h *WSHandler) handleSnapshot(ctx context.Context, conn *websocket.Conn, token string, msg *ws.RequestEnvelope) {
	snapType := model.SnapshotType(msg.SnapshotType)
	if !snapType.Valid() {
		ws.WriteError(conn, string(response.ErrInvalidSnapshotType), "unknown snapshot type")
		return
	}
	if len(msg.Payload) == 0 {
		ws.WriteError(conn, string(response.ErrInvalidPayload), "payload is required")
		return
	}

	id, err := h.sessions.Snapshot(ctx, token, snapType, msg.Payload)
	if err != nil {
		writeServiceError(conn, err)
		return
	}

	ws.WriteTyped(conn, ws.SnapshotResponse{Event: ws.EventSnapshot, SnapshotID: id})
}

func (h *WSHandler) handleViolation(ctx context.Context, conn *websocket.Conn, token string, msg *ws.RequestEnvelope) {
	violationType := model.ViolationType(msg.ViolationType)
	if !violationType.Valid() {
		ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown violation type")
		return
	}

	count, err := h.sessions.RecordViolation(ctx, token, violationType, msg.Description)
	if err != nil {
		writeServiceError(conn, err)
		return
	}

	ws.WriteTyped(conn, ws.ViolationResponse{Event: ws.EventViolation, Count: count})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, token string) {
	session, err := h.sessions.Submit(ctx, token, false)
	if err != nil {
		writeServiceError(conn, err)
		return
	}

	wsLog.Info().
		Str("session", session.UUID.String()).
		Str("status", string(session.Status)).
		Msg("Session submitted over stream")

	ws.WriteTyped(conn, ws.SubmittedResponse{
		Event:       ws.EventSubmitted,
		Status:      string(session.Status),
		TotalScore:  session.TotalScore,
		Percentage:  session.Percentage,
		Passed:      session.Passed,
		FullyGraded: session.FullyGraded,
	})
}

func writeServiceError(conn *websocket.Conn, err error) {
	_, code := response.FromEngineError(err)
	ws.WriteError(conn, string(code), response.GetMessage(code))
}

// isExpectedViolationErr filters the errors a post-disconnect report may
// legitimately hit (session already terminal or past the grace window).
func isExpectedViolationErr(err error) bool {
	return errors.Is(err, engine.ErrTimeExpired) ||
		errors.Is(err, engine.ErrInvalidToken) ||
		errors.Is(err, engine.ErrAlreadyTerminal)
}
