package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/custobar-insights/internal/models"
)

// CreateIntegrationRequest is the payload for registering an integration.
type CreateIntegrationRequest struct {
	UserID string `json:"userId"`
	APIKey string `json:"apiKey"`
}

// handleCreateIntegration registers a new Custobar integration.
func (s *Server) handleCreateIntegration(w http.ResponseWriter, r *http.Request) {
	var req CreateIntegrationRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid JSON body: "+err.Error())
		return
	}

	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "userId is required")
		return
	}
	if req.APIKey == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "apiKey is required")
		return
	}

	integration := &models.Integration{
		UserID: req.UserID,
		APIKey: req.APIKey,
	}

	if err := s.integrationRepo.Create(r.Context(), integration); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, integration)
}

// handleListIntegrations lists all registered integrations.
func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	integrations, err := s.integrationRepo.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"integrations": integrations,
		"count":        len(integrations),
	})
}

// handleGetIntegration retrieves one integration.
func (s *Server) handleGetIntegration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	integration, err := s.integrationRepo.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, integration)
}

// handleDeleteIntegration removes an integration and all of its data.
func (s *Server) handleDeleteIntegration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.integrationRepo.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     id,
	})
}
