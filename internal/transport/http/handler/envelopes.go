package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blox-verify/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// CreditsEnvelope reports a balance for an owner id, mention or handle.
type CreditsEnvelope struct {
	Target  string `json:"target"`
	Credits int    `json:"credits"`
}

// RevocationEnvelope wraps DELETE /verifications responses.
type RevocationEnvelope struct {
	OwnerID        string `json:"owner_id"`
	ExternalHandle string `json:"external_handle"`
	RoleRemoved    bool   `json:"role_removed"`
}

// SubmissionsEnvelope wraps the pending queue.
type SubmissionsEnvelope struct {
	GuildID string              `json:"guild_id"`
	Count   int                 `json:"count"`
	Data    []domain.Submission `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoPendingChallenge),
		errors.Is(err, domain.ErrNotVerified):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientCredits), errors.Is(err, domain.ErrNotPending),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
