package http

import (
	"errors"
	"net/http"

	"github.com/pitchside/tacticsroom/internal/service"
)

// statusFor maps the engine's sentinel errors to HTTP statuses. Anything
// unmapped is a 500 and gets logged at error severity by the caller.
var statusFor = map[error]int{
	service.ErrSessionNotFound:   http.StatusNotFound,
	service.ErrFormationNotFound: http.StatusNotFound,
	service.ErrConflictNotFound:  http.StatusNotFound,

	service.ErrAccessDenied:     http.StatusForbidden,
	service.ErrForbidden:        http.StatusForbidden,
	service.ErrUnauthorizedEdit: http.StatusForbidden,

	service.ErrLastOwner:         http.StatusConflict,
	service.ErrParticipantExists: http.StatusConflict,

	service.ErrParticipantNotFound: http.StatusNotFound,

	service.ErrInvalidUpdateType:       http.StatusBadRequest,
	service.ErrInvalidUpdateData:       http.StatusBadRequest,
	service.ErrInvalidResolution:       http.StatusBadRequest,
	service.ErrInvalidRole:             http.StatusBadRequest,
	service.ErrInvalidPermissionAction: http.StatusBadRequest,
}

func (h *CollabHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	for sentinel, status := range statusFor {
		if errors.Is(err, sentinel) {
			h.respondError(w, status, sentinel.Error(), err)
			return
		}
	}

	h.logger.Errorf(r.Context(), "http.CollabHandler: %s: %v", op, err)
	h.respondError(w, http.StatusInternalServerError, "Internal server error", err)
}
