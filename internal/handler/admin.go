package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/recoverypulse/internal/access"
	"github.com/dukerupert/recoverypulse/internal/model"
	"github.com/dukerupert/recoverypulse/internal/recovery"
	"github.com/dukerupert/recoverypulse/internal/snapshot"
	"github.com/dukerupert/recoverypulse/internal/websocket"
)

const defaultSnapshotLimit = 20

// SnapshotLister lists stored snapshots, newest first.
type SnapshotLister interface {
	List(ctx context.Context, limit int) ([]model.Snapshot, error)
}

type AdminHandler struct {
	broadcaster
	svc       *recovery.Service
	grace     *access.GracePeriod
	ctrl      *access.Controller
	snapshots SnapshotLister
	logger    *slog.Logger
	now       Clock
}

func NewAdminHandler(svc *recovery.Service, ctrl *access.Controller, snapshots SnapshotLister, hub *websocket.Hub, logger *slog.Logger, now Clock) *AdminHandler {
	return &AdminHandler{
		broadcaster: broadcaster{hub: hub},
		svc:         svc,
		grace:       ctrl.Grace(),
		ctrl:        ctrl,
		snapshots:   snapshots,
		logger:      logger,
		now:         now,
	}
}

// ExpireGrace ends the complimentary period immediately.
func (h *AdminHandler) ExpireGrace(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	status, err := h.grace.Expire(r.Context(), now)
	if err != nil {
		h.logger.Error("expire grace period", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to expire grace period")
		return
	}

	st := h.ctrl.State(r.Context(), now)
	h.broadcast(websocket.AccessChanged(st.IsLocked))
	writeJSON(w, http.StatusOK, map[string]any{
		"grace": status,
		"state": st,
	})
}

// Reset snapshots the database when snapshots are configured, then deletes
// every check-in.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reset(r.Context())
	if err != nil {
		h.logger.Error("reset check-ins", "error", err)
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	h.broadcast(websocket.CheckInsReset(res.Deleted))
	writeJSON(w, http.StatusOK, res)
}

func (h *AdminHandler) Snapshots(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(r, "limit", defaultSnapshotLimit, 1, 500)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	list, err := h.snapshots.List(r.Context(), limit)
	if errors.Is(err, snapshot.ErrNotConfigured) {
		writeError(w, http.StatusNotFound, "snapshots not configured")
		return
	}
	if err != nil {
		h.logger.Error("list snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if list == nil {
		list = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, list)
}
