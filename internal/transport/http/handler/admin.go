package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/blox-verify/internal/application/credit"
	"github.com/blox-verify/internal/application/moderation"
	"github.com/blox-verify/internal/application/verification"
	"github.com/blox-verify/internal/pkg/validate"
	"github.com/blox-verify/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

type adjustRequest struct {
	Delta int `json:"delta" validate:"required"`
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve deny"`
	Comments string `json:"comments" validate:"max=1024"`
}

// AdminHandler serves the staff API. Every route sits behind Auth and RequireRole.
type AdminHandler struct {
	verifications verification.Service
	credits       credit.Service
	moderation    moderation.Service
	defaultGuild  string
}

func NewAdminHandler(v verification.Service, c credit.Service, m moderation.Service, defaultGuild string) *AdminHandler {
	return &AdminHandler{verifications: v, credits: c, moderation: m, defaultGuild: defaultGuild}
}

func (h *AdminHandler) GetVerification(w http.ResponseWriter, r *http.Request) {
	rec, err := h.verifications.Lookup(r.Context(), chi.URLParam(r, "target"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) RevokeVerification(w http.ResponseWriter, r *http.Request) {
	rev, err := h.verifications.Revoke(r.Context(), chi.URLParam(r, "target"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RevocationEnvelope{
		OwnerID:        rev.OwnerID,
		ExternalHandle: rev.ExternalHandle,
		RoleRemoved:    rev.RoleRemoved,
	})
}

func (h *AdminHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	n, err := h.credits.Balance(r.Context(), target)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreditsEnvelope{Target: target, Credits: n})
}

func (h *AdminHandler) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ownerID := chi.URLParam(r, "ownerID")
	n, err := h.credits.Adjust(r.Context(), ownerID, req.Delta)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreditsEnvelope{Target: ownerID, Credits: n})
}

func (h *AdminHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	guildID := strings.TrimSpace(r.URL.Query().Get("guild_id"))
	if guildID == "" {
		guildID = h.defaultGuild
	}
	if guildID == "" {
		writeError(w, http.StatusBadRequest, "guild_id is required")
		return
	}
	subs, err := h.moderation.ListPending(r.Context(), guildID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmissionsEnvelope{GuildID: guildID, Count: len(subs), Data: subs})
}

func (h *AdminHandler) DecideSubmission(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	staff := claims.Name
	if staff == "" {
		staff = claims.UserID
	}
	sub, err := h.moderation.Decide(r.Context(), chi.URLParam(r, "id"), moderation.DecideRequest{
		Decision:  req.Decision,
		StaffName: staff,
		Comments:  req.Comments,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
