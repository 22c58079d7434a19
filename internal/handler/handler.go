// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/activity-registration/internal/model"
	"github.com/Shivanand-hulikatti/activity-registration/internal/service"
)

// ActivityHandler holds all HTTP handlers for the activity registration API.
type ActivityHandler struct {
	activities    *service.ActivityService
	registrations *service.RegistrationService
	logger        *slog.Logger
}

// NewActivityHandler constructs an ActivityHandler.
func NewActivityHandler(
	activities *service.ActivityService,
	registrations *service.RegistrationService,
	logger *slog.Logger,
) *ActivityHandler {
	return &ActivityHandler{activities: activities, registrations: registrations, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps service errors to HTTP status codes. Unknown errors
// are logged and reported as a generic 500 so internals do not leak.
func (h *ActivityHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "activity not found")
	case errors.Is(err, model.ErrNotRegistered):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrAlreadyRegistered),
		errors.Is(err, model.ErrDeadlinePassed),
		errors.Is(err, model.ErrUnregistrationDeadlinePassed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrFamilyLimitExceeded):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "internal error",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// activityResponse adds occupancy figures to an activity.
type activityResponse struct {
	*model.Activity
	MaxPartySize int `json:"max_party_size"`
	Registered   int `json:"registered"`
	Waitlisted   int `json:"waitlisted"`
}

func newActivityResponse(a *model.Activity) activityResponse {
	return activityResponse{
		Activity:     a,
		MaxPartySize: a.MaxPartySize(),
		Registered:   len(a.Registrations),
		Waitlisted:   a.WaitingList.Len(),
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateActivity handles POST /activities
func (h *ActivityHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req model.CreateActivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	a, err := h.activities.CreateActivity(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newActivityResponse(a))
}

// ListActivities handles GET /activities
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.activities.ListActivities(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	out := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		out = append(out, newActivityResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetActivity handles GET /activities/{id}
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	a, err := h.activities.GetActivity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newActivityResponse(a))
}

// Register handles POST /activities/{id}/register
// Responds 201 when the party is confirmed and 202 when it is waitlisted.
func (h *ActivityHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.registrations.Register(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Status == model.StatusWaitlisted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// Unregister handles POST /activities/{id}/unregister
func (h *ActivityHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	var req model.UnregisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.registrations.Unregister(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ListRegistrations handles GET /activities/{id}/registrations
func (h *ActivityHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.activities.ListRegistrations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// WaitingList handles GET /activities/{id}/waitlist
func (h *ActivityHandler) WaitingList(w http.ResponseWriter, r *http.Request) {
	wl, err := h.activities.WaitingList(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if wl == nil {
		wl = model.WaitingList{}
	}
	writeJSON(w, http.StatusOK, wl)
}

// RegistrantStatus handles GET /activities/{id}/registrants/{registrantID}
func (h *ActivityHandler) RegistrantStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.activities.RegistrantStatus(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "registrantID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
