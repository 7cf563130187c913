package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AdamBeresnev/dojo-brackets/internal/bracket"
	"github.com/google/uuid"
)

type ErrorResponse struct {
	Code      bracket.ErrorKind `json:"code"`
	Message   string            `json:"message"`
	EntityID  *uuid.UUID        `json:"entityId,omitempty"`
	Retryable bool              `json:"retryable"`
}

func InternalServerError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Code: bracket.KindInternal, Message: "Internal Server Error"})
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("bad request", "message", msg, "error", err)
	} else {
		slog.Warn("bad request", "message", msg)
	}
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Code: bracket.KindValidation, Message: msg})
}

func NotFound(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("not found", "message", msg, "error", err)
	} else {
		slog.Warn("not found", "message", msg)
	}
	WriteJSON(w, http.StatusNotFound, ErrorResponse{Code: bracket.KindNotFound, Message: msg})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind bracket.ErrorKind) int {
	switch kind {
	case bracket.KindValidation:
		return http.StatusBadRequest
	case bracket.KindNotFound:
		return http.StatusNotFound
	case bracket.KindConflict, bracket.KindNotFinal:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// WriteError answers with the error's kind, the entity it concerns and whether retrying may help.
// Internal errors and invariant violations are logged and their details withheld.
func WriteError(w http.ResponseWriter, err error) {
	kind := bracket.KindOf(err)
	resp := ErrorResponse{Code: kind, Message: err.Error(), Retryable: bracket.IsRetryable(err)}

	var be *bracket.Error
	if errors.As(err, &be) {
		if be.EntityID != uuid.Nil {
			id := be.EntityID
			resp.EntityID = &id
		}
		resp.Message = be.Err.Error()
	}

	switch kind {
	case bracket.KindInvariant:
		slog.Error("bracket invariant violated", "error", err)
		resp.Message = "internal bracket state is inconsistent"
	case bracket.KindInternal:
		slog.Error("request failed", "error", err)
		resp.Message = "Internal Server Error"
	default:
		slog.Warn("request rejected", "code", kind, "error", err)
	}
	WriteJSON(w, StatusFor(kind), resp)
}
