package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/recoverypulse/internal/metrics"
	"github.com/dukerupert/recoverypulse/internal/model"
	"github.com/dukerupert/recoverypulse/internal/recovery"
	"github.com/dukerupert/recoverypulse/internal/websocket"
)

const (
	defaultHistoryLimit = recovery.DefaultWindowDays
	maxHistoryLimit     = 365
	maxTrendDays        = 90
)

type CheckInHandler struct {
	broadcaster
	svc     *recovery.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     Clock
}

func NewCheckInHandler(svc *recovery.Service, hub *websocket.Hub, m *metrics.Metrics, logger *slog.Logger, now Clock) *CheckInHandler {
	return &CheckInHandler{
		broadcaster: broadcaster{hub: hub},
		svc:         svc,
		metrics:     m,
		logger:      logger,
		now:         now,
	}
}

type checkInResponse struct {
	*model.CheckIn
	Status recovery.Status `json:"status"`
}

func withStatus(c *model.CheckIn) checkInResponse {
	return checkInResponse{CheckIn: c, Status: recovery.Classify(c.RecoveryScore)}
}

// Submit records today's check-in, overwriting an earlier one from the same day.
func (h *CheckInHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in recovery.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	c, err := h.svc.Submit(r.Context(), in, h.now())
	if err != nil {
		h.metrics.CheckInFailed()
		h.logger.Error("submit check-in", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save check-in")
		return
	}

	h.metrics.CheckInSaved(c.RecoveryScore)
	h.broadcast(websocket.CheckInSaved(c))
	writeJSON(w, http.StatusOK, withStatus(c))
}

func (h *CheckInHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var patch model.CheckInPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	c, err := h.svc.Edit(r.Context(), id, patch)
	if errors.Is(err, recovery.ErrNotFound) {
		writeError(w, http.StatusNotFound, "check-in not found")
		return
	}
	if err != nil {
		h.metrics.CheckInFailed()
		h.logger.Error("edit check-in", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update check-in")
		return
	}

	h.metrics.CheckInSaved(c.RecoveryScore)
	h.broadcast(websocket.CheckInSaved(c))
	writeJSON(w, http.StatusOK, withStatus(c))
}

func (h *CheckInHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
		return
	}
	order := recovery.ParseOrder(r.URL.Query().Get("order"))

	records, err := h.svc.Recent(r.Context(), limit, order)
	if err != nil {
		h.logger.Error("list check-ins", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list check-ins")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *CheckInHandler) Today(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.TodayCheckIn(r.Context(), h.now())
	if err != nil {
		h.logger.Error("get today's check-in", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get check-in")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "no check-in today")
		return
	}
	writeJSON(w, http.StatusOK, withStatus(c))
}

func (h *CheckInHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context(), h.now())
	if err != nil {
		h.logger.Error("build dashboard", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *CheckInHandler) Trends(w http.ResponseWriter, r *http.Request) {
	days, ok := intQuery(r, "days", recovery.DefaultWindowDays, 1, maxTrendDays)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", maxTrendDays))
		return
	}

	t, err := h.svc.Trend(r.Context(), days, h.now())
	if err != nil {
		h.logger.Error("build trend", "days", days, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load trends")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Score previews the score for a set of metrics without saving anything.
// Out-of-range values are clamped like a submit would.
func (h *CheckInHandler) Score(w http.ResponseWriter, r *http.Request) {
	var vals [3]int
	for i, key := range []string{"sleep_quality", "fatigue", "soreness"} {
		v, ok := intQuery(r, key, 0, -1<<31, 1<<31-1)
		if !ok || r.URL.Query().Get(key) == "" {
			writeError(w, http.StatusBadRequest, key+" is required and must be an integer")
			return
		}
		vals[i] = v
	}

	score := recovery.ComputeScore(vals[0], vals[1], vals[2])
	writeJSON(w, http.StatusOK, map[string]any{
		"recovery_score": score,
		"status":         recovery.Classify(score),
	})
}
