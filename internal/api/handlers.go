package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/event"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/instance"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
	"github.com/scottbadams/ITWebsiteMonitor/internal/repository/sqlite"
	"github.com/scottbadams/ITWebsiteMonitor/internal/services/scheduler"
)

// Runtime is the slice of the scheduler manager the control surface needs,
// satisfied by *scheduler.Manager.
type Runtime interface {
	Start(instanceID string)
	Stop(instanceID string)
	Restart(instanceID string)
	TryGet(instanceID string) (scheduler.WorkerStatus, bool)
	GetAll() []scheduler.WorkerStatus
}

type Handler struct {
	log       *zap.Logger
	runtime   Runtime
	instances instance.Repo
	targets   target.Repo
	states    target.StateRepo
	events    event.Repo
}

func NewHandler(rt Runtime, instances instance.Repo, targets target.Repo,
	states target.StateRepo, events event.Repo, log *zap.Logger) *Handler {
	return &Handler{
		log:       log.With(zap.String("component", "api")),
		runtime:   rt,
		instances: instances,
		targets:   targets,
		states:    states,
		events:    events,
	}
}

// ListRuntime returns every worker's status snapshot, sorted by instance id.
func (h *Handler) ListRuntime(w http.ResponseWriter, r *http.Request) {
	all := h.runtime.GetAll()
	sort.Slice(all, func(i, j int) bool { return all[i].InstanceID < all[j].InstanceID })
	jsonOK(w, all)
}

func (h *Handler) GetRuntime(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := h.runtime.TryGet(id)
	if !ok {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "no worker for instance")
		return
	}
	jsonOK(w, st)
}

func (h *Handler) StartRuntime(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !instance.ValidID(id) {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid instance id")
		return
	}
	if _, err := h.instances.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			jsonError(w, http.StatusNotFound, errCodeNotFound, "instance not found")
			return
		}
		h.log.Error("instance read failed", zap.String("instance", id), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	h.runtime.Start(id)
	st, _ := h.runtime.TryGet(id)
	jsonOK(w, st)
}

func (h *Handler) StopRuntime(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.runtime.TryGet(id); !ok {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "no worker for instance")
		return
	}
	h.runtime.Stop(id)
	st, _ := h.runtime.TryGet(id)
	jsonOK(w, st)
}

func (h *Handler) RestartRuntime(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.runtime.TryGet(id); !ok {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "no worker for instance")
		return
	}
	h.runtime.Restart(id)
	st, _ := h.runtime.TryGet(id)
	jsonOK(w, st)
}

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	evs, err := h.events.ListByInstance(r.Context(), id, limit)
	if err != nil {
		h.log.Error("event list failed", zap.String("instance", id), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if evs == nil {
		evs = []*event.Event{}
	}
	jsonOK(w, evs)
}

// TargetView joins a target with its latest state for the dashboard. Display
// is "Up", "Down", "Degraded" (up but a previously seen login surface is
// gone) or "Unknown" before the first check lands.
type TargetView struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	Enabled       bool       `json:"enabled"`
	Display       string     `json:"display"`
	IsUp          *bool      `json:"is_up,omitempty"`
	StateSince    *time.Time `json:"state_since,omitempty"`
	LastCheckAt   *time.Time `json:"last_check_at,omitempty"`
	LastSummary   string     `json:"last_summary,omitempty"`
	LastFinalURL  *string    `json:"last_final_url,omitempty"`
	LastUsedIP    *string    `json:"last_used_ip,omitempty"`
	LastLoginType *string    `json:"last_login_type,omitempty"`
}

func (h *Handler) ListTargets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := h.instances.GetByID(ctx, id); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			jsonError(w, http.StatusNotFound, errCodeNotFound, "instance not found")
			return
		}
		h.log.Error("instance read failed", zap.String("instance", id), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	tgs, err := h.targets.ListByInstance(ctx, id)
	if err != nil {
		h.log.Error("target list failed", zap.String("instance", id), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	states, err := h.states.ListByInstance(ctx, id)
	if err != nil {
		h.log.Error("state list failed", zap.String("instance", id), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	byTarget := make(map[int64]*target.State, len(states))
	for _, s := range states {
		byTarget[s.TargetID] = s
	}

	out := make([]*TargetView, 0, len(tgs))
	for _, tg := range tgs {
		out = append(out, newTargetView(tg, byTarget[tg.ID]))
	}
	jsonOK(w, out)
}

func newTargetView(tg *target.Target, st *target.State) *TargetView {
	v := &TargetView{
		ID:      tg.ID,
		URL:     tg.URL,
		Enabled: tg.Enabled,
		Display: "Unknown",
	}
	if st == nil {
		return v
	}
	v.IsUp = &st.IsUp
	v.StateSince = &st.StateSince
	v.LastCheckAt = &st.LastCheckAt
	v.LastSummary = st.LastSummary
	v.LastFinalURL = st.LastFinalURL
	v.LastUsedIP = st.LastUsedIP
	v.LastLoginType = st.LastLoginType
	switch {
	case st.Degraded():
		v.Display = "Degraded"
	case st.IsUp:
		v.Display = "Up"
	default:
		v.Display = "Down"
	}
	return v
}
