package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examina/examina-backend/internal/middleware"
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/response"
	"github.com/examina/examina-backend/internal/service"
	"github.com/examina/examina-backend/internal/validator"
)

// SessionHandler exposes the exam session lifecycle over HTTP. Creation
// authenticates with the student JWT; every in-session operation
// authenticates with the opaque session token instead.
type SessionHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/v1/exams/:exam_id/sessions
// Creates (or resumes) the student's session for an exam. The returned
// token authorizes all subsequent operations.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessions.Start(c.Request.Context(), examID, claims.StudentID, service.SessionMeta{
		ClientIP:          c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
		DeviceFingerprint: req.DeviceFingerprint,
	})
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// RecordAnswer godoc
// POST /api/v1/sessions/answers
// Appends one answer version. HTTP fallback for clients without a
// working WebSocket.
func (h *SessionHandler) RecordAnswer(c *gin.Context) {
	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.sessions.RecordAnswer(c.Request.Context(), middleware.GetSessionToken(c), req)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id": answer.QuestionID,
		"version":     answer.Version,
	})
}

// CreateSnapshot godoc
// POST /api/v1/sessions/snapshots
// Records an immutable state capture of the given type.
func (h *SessionHandler) CreateSnapshot(c *gin.Context) {
	var req model.SnapshotRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	id, err := h.sessions.Snapshot(c.Request.Context(), middleware.GetSessionToken(c), req.Type, req.Payload)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"snapshot_id": id})
}

// ReportViolation godoc
// POST /api/v1/sessions/violations
// Appends one integrity event and returns the running count.
func (h *SessionHandler) ReportViolation(c *gin.Context) {
	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	count, err := h.sessions.RecordViolation(c.Request.Context(), middleware.GetSessionToken(c), req.Type, req.Description)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violation_count": count})
}

// SubmitSession godoc
// POST /api/v1/sessions/submit
// Finalizes the attempt and returns the score. Safe to retry.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	session, err := h.sessions.Submit(c.Request.Context(), middleware.GetSessionToken(c), false)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetPaper godoc
// GET /api/v1/sessions/paper
// Returns the session's question paper: frozen definitions in the
// session's shuffled order, options permuted per session, answer keys
// stripped.
func (h *SessionHandler) GetPaper(c *gin.Context) {
	paper, err := h.sessions.Paper(c.Request.Context(), middleware.GetSessionToken(c))
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": paper})
}

// GetRecoveryState godoc
// GET /api/v1/sessions/recovery
// Returns everything a reconnecting client needs: session, latest
// snapshot, final answers and the remaining time.
func (h *SessionHandler) GetRecoveryState(c *gin.Context) {
	state, err := h.sessions.Recover(c.Request.Context(), middleware.GetSessionToken(c))
	if err != nil {
		response.FailErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// GetAnswerHistory godoc
// GET /api/v1/sessions/questions/:question_id/history
// Returns every retained answer version for one question.
func (h *SessionHandler) GetAnswerHistory(c *gin.Context) {
	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	history, err := h.sessions.History(c.Request.Context(), middleware.GetSessionToken(c), questionID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	if history == nil {
		history = []model.Answer{}
	}

	response.Success(c, http.StatusOK, gin.H{"versions": history})
}

// tokenPrefix returns a loggable, non-replayable slice of a token.
func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
