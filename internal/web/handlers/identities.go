package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/facemark/facemark/internal/database"
	"github.com/go-chi/chi/v5"
)

// IdentitiesHandler serves the enrolled identity registry.
type IdentitiesHandler struct {
	identities database.IdentityWriter
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(identities database.IdentityWriter) *IdentitiesHandler {
	return &IdentitiesHandler{identities: identities}
}

// identityResponse is the wire form of an identity. The embedding never
// leaves the server.
type identityResponse struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	RollNumber string    `json:"roll_number"`
	ClassName  string    `json:"class_name,omitempty"`
	Model      string    `json:"model"`
	Dim        int       `json:"dim"`
	CreatedAt  time.Time `json:"created_at"`
}

func identityFromStored(identity *database.StoredIdentity) identityResponse {
	return identityResponse{
		ID:         identity.ID,
		Name:       identity.Name,
		RollNumber: identity.RollNumber,
		ClassName:  identity.ClassName,
		Model:      identity.Model,
		Dim:        identity.Dim,
		CreatedAt:  identity.CreatedAt,
	}
}

// List handles GET /api/v1/identities.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, err := h.identities.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list identities")
		return
	}

	responses := make([]identityResponse, 0, len(identities))
	for i := range identities {
		responses = append(responses, identityFromStored(&identities[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": responses,
		"count":      len(responses),
	})
}

// Get handles GET /api/v1/identities/{id}.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid identity ID")
		return
	}

	identity, err := h.identities.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get identity")
		return
	}
	if identity == nil {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, identityFromStored(identity))
}

// Delete handles DELETE /api/v1/identities/{id}.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid identity ID")
		return
	}

	identity, err := h.identities.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get identity")
		return
	}
	if identity == nil {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}

	if err := h.identities.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete identity")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
