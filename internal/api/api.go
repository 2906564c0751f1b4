package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/joescharf/pomo/internal/clock"
	"github.com/joescharf/pomo/internal/daemon"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/sse"
	"github.com/joescharf/pomo/internal/store"
	"github.com/joescharf/pomo/internal/timer"
)

// Scheduler is the part of the background scheduler the API drives.
type Scheduler interface {
	Timer() models.TimerState
	PushTimer(st models.TimerState) bool
	Reminders() []models.ReminderSpec
	PushReminders(ctx context.Context, specs []models.ReminderSpec) ([]string, error)
	LastTick() time.Time
}

// FocusView reports the current focus session.
type FocusView interface {
	Load(ctx context.Context)
	Display() models.FocusDisplay
}

// Config holds the Server's collaborators. Focus, Ledger, Dedup, Events
// and UI may be nil.
type Config struct {
	Scheduler Scheduler
	Focus     FocusView
	Ledger    store.CycleLedger
	Dedup     store.DedupStore
	Events    *sse.Broadcaster
	UI        http.Handler // dashboard served on every non-API path
	Clock     clock.Clock
	Version   string
}

// Server provides the daemon's REST API handlers.
type Server struct {
	cfg       Config
	startedAt time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Server{cfg: cfg, startedAt: cfg.Clock.Now()}
}

// TimerResponse is the body of GET /api/v1/timer.
type TimerResponse struct {
	State   models.TimerState   `json:"state"`
	Display models.TimerDisplay `json:"display"`
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.health)

	mux.HandleFunc("GET /api/v1/timer", s.getTimer)
	mux.HandleFunc("PUT /api/v1/timer", s.putTimer)

	mux.HandleFunc("GET /api/v1/reminders", s.listReminders)
	mux.HandleFunc("PUT /api/v1/reminders", s.putReminders)

	mux.HandleFunc("GET /api/v1/focus", s.getFocus)
	mux.HandleFunc("GET /api/v1/notifications/dedup", s.listDedup)

	if s.cfg.Events != nil {
		mux.Handle("GET /api/v1/events", s.cfg.Events)
	}
	if s.cfg.UI != nil {
		mux.Handle("GET /", s.cfg.UI)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Health ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, daemon.Health{
		Status:    "ok",
		PID:       os.Getpid(),
		Version:   s.cfg.Version,
		StartedAt: s.startedAt,
		LastTick:  s.cfg.Scheduler.LastTick(),
		Reminders: len(s.cfg.Scheduler.Reminders()),
	})
}

// --- Timer ---

func (s *Server) timerResponse(ctx context.Context) TimerResponse {
	st := s.cfg.Scheduler.Timer()
	d := models.TimerDisplay{
		Mode:             st.Mode,
		RemainingSeconds: timer.RemainingSeconds(st, s.cfg.Clock.Now()),
		IsPaused:         st.IsPaused,
		Deadline:         st.Deadline,
	}
	if s.cfg.Ledger != nil {
		if n, err := s.cfg.Ledger.CountCompletedCycles(ctx); err == nil {
			d.SessionCount = n
		}
	}
	return TimerResponse{State: st, Display: d}
}

func (s *Server) getTimer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.timerResponse(r.Context()))
}

func (s *Server) putTimer(w http.ResponseWriter, r *http.Request) {
	var st models.TimerState
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if !st.Mode.Valid() {
		writeError(w, http.StatusBadRequest, "invalid timer state: unknown mode "+string(st.Mode))
		return
	}
	if st.UpdatedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid timer state: updatedAt is required")
		return
	}

	adopted := s.cfg.Scheduler.PushTimer(st)
	log.Debug().Bool("adopted", adopted).Str("mode", string(st.Mode)).Str("writer", st.Writer).Msg("Timer pushed")
	if adopted && s.cfg.Events != nil {
		s.cfg.Events.Publish(sse.EventTimer, st)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"adopted": adopted})
}

// --- Reminders ---

func (s *Server) listReminders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Scheduler.Reminders())
}

func (s *Server) putReminders(w http.ResponseWriter, r *http.Request) {
	var specs []models.ReminderSpec
	if err := json.NewDecoder(r.Body).Decode(&specs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	for _, spec := range specs {
		if spec.Key == "" {
			writeError(w, http.StatusBadRequest, "every reminder needs a key")
			return
		}
	}

	rejected, err := s.cfg.Scheduler.PushReminders(r.Context(), specs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, daemon.ReminderSyncResult{
		Accepted: len(specs) - len(rejected),
		Rejected: rejected,
	})
}

// --- Focus ---

func (s *Server) getFocus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Focus == nil {
		writeJSON(w, http.StatusOK, models.FocusDisplay{IsVisible: true, Interruptions: []models.Interruption{}})
		return
	}
	s.cfg.Focus.Load(r.Context())
	writeJSON(w, http.StatusOK, s.cfg.Focus.Display())
}

// --- Dedup ---

func (s *Server) listDedup(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Dedup == nil {
		writeJSON(w, http.StatusOK, []models.DedupEntry{})
		return
	}
	entries, err := s.cfg.Dedup.ListDedupEntries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []models.DedupEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
