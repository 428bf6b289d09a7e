package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pitchside/tacticsroom/internal/delivery"
	"github.com/pitchside/tacticsroom/internal/models"
	"github.com/pitchside/tacticsroom/internal/service"
	"github.com/pitchside/tacticsroom/pkg/logger"
)

// CollabHandler routes HTTP requests onto the collaboration engine. The
// live edit traffic runs over WebSocket; this surface covers session
// management and the operations a plain client still needs.
type CollabHandler struct {
	collabSvc service.CollabService
	sched     service.Scheduler
	logger    logger.Logger
	validator *validator.Validate
}

func NewCollabHandler(collabSvc service.CollabService, sched service.Scheduler, logger logger.Logger) *CollabHandler {
	return &CollabHandler{
		collabSvc: collabSvc,
		sched:     sched,
		logger:    logger,
		validator: validator.New(),
	}
}

func (h *CollabHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "tacticsroom",
		"scheduler": h.sched.Status(),
	})
}

type startCollaborationRequest struct {
	FormationID string                       `json:"formation_id" validate:"required"`
	Permissions *service.PermissionOverrides `json:"permissions,omitempty"`
}

func (h *CollabHandler) StartCollaboration(w http.ResponseWriter, r *http.Request) {
	user, ok := delivery.UserFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	var req startCollaborationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	out, err := h.collabSvc.StartCollaboration(r.Context(), service.StartCollaborationInput{
		FormationID: req.FormationID,
		User:        user,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "start collaboration")
		return
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	h.respondJSON(w, status, out)
}

func (h *CollabHandler) EndCollaboration(w http.ResponseWriter, r *http.Request) {
	user, ok := delivery.UserFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := h.collabSvc.EndCollaboration(r.Context(), sessionID, user); err != nil {
		h.respondServiceError(w, r, err, "end collaboration")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"message":    "Session ended",
	})
}

func (h *CollabHandler) GetActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.collabSvc.GetActiveSessions(r.Context(), r.URL.Query().Get("formation_id"))
	if err != nil {
		h.respondServiceError(w, r, err, "list sessions")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type submitUpdateRequest struct {
	Type models.UpdateType `json:"type" validate:"required"`
	Data json.RawMessage   `json:"data"`
}

func (h *CollabHandler) SubmitUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := delivery.UserFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	var req submitUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	out, err := h.collabSvc.SubmitUpdate(r.Context(), service.SubmitUpdateInput{
		SessionID: chi.URLParam(r, "sessionID"),
		UserID:    user.ID,
		Type:      req.Type,
		Data:      req.Data,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "submit update")
		return
	}

	status := http.StatusAccepted
	if out.Conflict != nil {
		status = http.StatusConflict
	}
	h.respondJSON(w, status, out)
}

type resolveConflictRequest struct {
	Resolution models.ResolutionAction `json:"resolution" validate:"required"`
	MergedData json.RawMessage         `json:"merged_data,omitempty"`
}

func (h *CollabHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	user, ok := delivery.UserFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	var req resolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	out, err := h.collabSvc.ResolveConflict(r.Context(), service.ResolveConflictInput{
		SessionID:  chi.URLParam(r, "sessionID"),
		UserID:     user.ID,
		ConflictID: chi.URLParam(r, "conflictID"),
		Resolution: req.Resolution,
		MergedData: req.MergedData,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "resolve conflict")
		return
	}

	h.respondJSON(w, http.StatusOK, out)
}

type updatePermissionRequest struct {
	TargetUserID   string                   `json:"target_user_id" validate:"required"`
	TargetUserName string                   `json:"target_user_name,omitempty"`
	Action         service.PermissionAction `json:"action" validate:"required"`
	NewRole        models.ParticipantRole   `json:"new_role,omitempty"`
}

func (h *CollabHandler) UpdateParticipantPermission(w http.ResponseWriter, r *http.Request) {
	user, ok := delivery.UserFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	var req updatePermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	out, err := h.collabSvc.UpdateParticipantPermission(r.Context(), service.UpdatePermissionInput{
		SessionID:      chi.URLParam(r, "sessionID"),
		Actor:          user,
		TargetUserID:   req.TargetUserID,
		TargetUserName: req.TargetUserName,
		Action:         req.Action,
		NewRole:        req.NewRole,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "update permission")
		return
	}

	h.respondJSON(w, http.StatusOK, out)
}

func (h *CollabHandler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorf(context.Background(), "http.CollabHandler.respondJSON: %v", err)
	}
}

func (h *CollabHandler) respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		h.logger.Debugf(context.Background(), "http.CollabHandler.respondError: %s: %v", message, err)
	}
	h.respondJSON(w, statusCode, map[string]any{
		"error": message,
		"code":  statusCode,
	})
}
