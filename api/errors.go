// Package api serves the client-facing HTTP surface: card lookups,
// searches, batch endpoints, health and admin routes, all wrapped in a
// uniform success/error envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/scrycache/scrycache/breaker"
	"github.com/scrycache/scrycache/query"
	"github.com/scrycache/scrycache/store"
	"github.com/scrycache/scrycache/upstream"
)

// Code is a machine-readable error code carried in error envelopes.
type Code string

const (
	CodeInvalidQuery      Code = "INVALID_QUERY"
	CodeValidationError   Code = "VALIDATION_ERROR"
	CodeInvalidAPIKey     Code = "INVALID_API_KEY"
	CodeCardNotFound      Code = "CARD_NOT_FOUND"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     Code = "INTERNAL_ERROR"
	CodeScryfallAPIError  Code = "SCRYFALL_API_ERROR"
	CodeDatabaseError     Code = "DATABASE_ERROR"
)

// Status maps a code onto its HTTP status.
func (c Code) Status() int {
	switch c {
	case CodeInvalidQuery, CodeValidationError:
		return http.StatusBadRequest
	case CodeInvalidAPIKey:
		return http.StatusUnauthorized
	case CodeCardNotFound:
		return http.StatusNotFound
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeScryfallAPIError:
		return http.StatusBadGateway
	case CodeDatabaseError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorDetail is the error half of the response envelope.
type ErrorDetail struct {
	Code      Code        `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id"`
	Details   interface{} `json:"details,omitempty"`
}

// envelope is the uniform response body: success carries data, failure
// carries error.
type envelope struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// writeData writes a 200 success envelope.
func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// writeError writes an error envelope with a fresh request id. Internal
// detail stays in the log; the message is already client-safe.
func writeError(w http.ResponseWriter, code Code, message string) {
	writeJSON(w, code.Status(), envelope{Success: false, Error: &ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: uuid.NewString(),
	}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithField("error", err).Warn("failed to encode response body")
	}
}

// classify maps an internal error onto its envelope code. Query errors
// split parse from validation; circuit-open and upstream failures read
// the same externally; store failures report as unavailable.
func classify(err error) Code {
	var ue *upstream.Error
	var se *store.StoreError
	switch {
	case query.IsParseError(err):
		return CodeInvalidQuery
	case query.IsValidationError(err):
		return CodeValidationError
	case errors.Is(err, breaker.ErrOpen), errors.As(err, &ue):
		return CodeScryfallAPIError
	case errors.As(err, &se):
		return CodeDatabaseError
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDatabaseError
	default:
		return CodeInternalError
	}
}

// failRequest logs an internal error and writes its mapped envelope.
func failRequest(w http.ResponseWriter, err error, while string) {
	var code = classify(err)
	log.WithFields(log.Fields{"error": err, "code": code}).Error(while)
	writeError(w, code, while+": "+err.Error())
}
