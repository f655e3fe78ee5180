package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/recoverypulse/internal/access"
	"github.com/dukerupert/recoverypulse/internal/billing"
	"github.com/dukerupert/recoverypulse/internal/metrics"
	"github.com/dukerupert/recoverypulse/internal/websocket"
)

type AccessHandler struct {
	broadcaster
	ctrl       *access.Controller
	onboarding *access.Onboarding
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        Clock
}

func NewAccessHandler(ctrl *access.Controller, ob *access.Onboarding, hub *websocket.Hub, m *metrics.Metrics, logger *slog.Logger, now Clock) *AccessHandler {
	return &AccessHandler{
		broadcaster: broadcaster{hub: hub},
		ctrl:        ctrl,
		onboarding:  ob,
		metrics:     m,
		logger:      logger,
		now:         now,
	}
}

func (h *AccessHandler) state(r *http.Request) access.State {
	st := h.ctrl.State(r.Context(), h.now())
	h.metrics.GateEvaluated(st.Outcome())
	return st
}

func (h *AccessHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state(r))
}

func (h *AccessHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	before := h.ctrl.State(r.Context(), h.now())
	sub := h.ctrl.Subscription().Refresh(r.Context())
	h.metrics.BillingOperation("refresh", sub.Error == "")

	after := h.state(r)
	if after.IsLocked != before.IsLocked {
		h.broadcast(websocket.AccessChanged(after.IsLocked))
	}
	writeJSON(w, http.StatusOK, after)
}

type purchaseRequest struct {
	Plan string `json:"plan"`
}

type operationResponse struct {
	Success bool         `json:"success"`
	State   access.State `json:"state"`
}

func (h *AccessHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	plan, ok := billing.ParsePlan(req.Plan)
	if !ok {
		writeError(w, http.StatusBadRequest, "plan must be annual or monthly")
		return
	}

	success := h.ctrl.Subscription().Purchase(r.Context(), plan)
	h.metrics.BillingOperation("purchase", success)
	st := h.state(r)
	if success {
		h.broadcast(websocket.AccessChanged(st.IsLocked))
	}
	writeJSON(w, http.StatusOK, operationResponse{Success: success, State: st})
}

func (h *AccessHandler) Restore(w http.ResponseWriter, r *http.Request) {
	success := h.ctrl.Subscription().Restore(r.Context())
	h.metrics.BillingOperation("restore", success)
	st := h.state(r)
	if success {
		h.broadcast(websocket.AccessChanged(st.IsLocked))
	}
	writeJSON(w, http.StatusOK, operationResponse{Success: success, State: st})
}

type onboardingResponse struct {
	Completed bool `json:"completed"`
}

func (h *AccessHandler) GetOnboarding(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, onboardingResponse{Completed: h.onboarding.Completed(r.Context())})
}

func (h *AccessHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	if err := h.onboarding.Complete(r.Context()); err != nil {
		h.logger.Error("complete onboarding", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save onboarding")
		return
	}
	writeJSON(w, http.StatusOK, onboardingResponse{Completed: true})
}

func (h *AccessHandler) ResetOnboarding(w http.ResponseWriter, r *http.Request) {
	if err := h.onboarding.Reset(r.Context()); err != nil {
		h.logger.Error("reset onboarding", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reset onboarding")
		return
	}
	writeJSON(w, http.StatusOK, onboardingResponse{Completed: false})
}
