package response

import (
	"errors"
	"net/http"

	"github.com/examina/examina-backend/internal/engine"
	"github.com/examina/examina-backend/internal/model"
	"github.com/examina/examina-backend/internal/repository"
)

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// Authentication
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// Validation
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// Resources
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// Session lifecycle
	ErrAlreadyAttempted    ErrCode = "ALREADY_ATTEMPTED"
	ErrOutsideExamWindow   ErrCode = "OUTSIDE_EXAM_WINDOW"
	ErrInvalidSessionToken ErrCode = "INVALID_SESSION_TOKEN"
	ErrTimeExpired         ErrCode = "TIME_EXPIRED"
	ErrAlreadyTerminal     ErrCode = "ALREADY_TERMINAL"
	ErrAmbiguousAnswer     ErrCode = "AMBIGUOUS_ANSWER_CONTENT"
	ErrInvalidSnapshotType ErrCode = "INVALID_SNAPSHOT_TYPE"

	// Rate limiting
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// Server
	ErrStorageUnavailable ErrCode = "STORAGE_UNAVAILABLE"
	ErrInvariantViolation ErrCode = "INVARIANT_VIOLATION"
	ErrInternal           ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	case ErrAlreadyAttempted:
		return "You have already attempted this exam."
	case ErrOutsideExamWindow:
		return "This exam is not open right now."
	case ErrInvalidSessionToken:
		return "Session token is unknown or no longer accepted."
	case ErrTimeExpired:
		return "The exam time has expired."
	case ErrAlreadyTerminal:
		return "This session has already been submitted."
	case ErrAmbiguousAnswer:
		return "An answer must carry either free text or selected options, not both."
	case ErrInvalidSnapshotType:
		return "Unknown snapshot type."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrStorageUnavailable:
		return "Storage is temporarily unavailable. Please retry."
	case ErrInvariantViolation:
		return "Session state is inconsistent and has been flagged."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

// FromEngineError maps a service/engine error to its HTTP status and code.
// Unknown errors map to a plain 500 so internals never leak to clients.
func FromEngineError(err error) (int, ErrCode) {
	switch {
	case errors.Is(err, engine.ErrAlreadyAttempted):
		return http.StatusConflict, ErrAlreadyAttempted
	case errors.Is(err, engine.ErrOutsideExamWindow):
		return http.StatusForbidden, ErrOutsideExamWindow
	case errors.Is(err, engine.ErrInvalidToken):
		return http.StatusUnauthorized, ErrInvalidSessionToken
	case errors.Is(err, engine.ErrTimeExpired):
		return http.StatusForbidden, ErrTimeExpired
	case errors.Is(err, engine.ErrAlreadyTerminal):
		return http.StatusConflict, ErrAlreadyTerminal
	case errors.Is(err, model.ErrAmbiguousContent):
		return http.StatusUnprocessableEntity, ErrAmbiguousAnswer
	case errors.Is(err, engine.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, ErrStorageUnavailable
	case errors.Is(err, engine.ErrInvariantViolation),
		errors.Is(err, repository.ErrLedgerCorrupt):
		return http.StatusInternalServerError, ErrInvariantViolation
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}
