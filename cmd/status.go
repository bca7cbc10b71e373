package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sells-group/delinquency-bot/internal/bot"
)

// statusResponse is the body of GET /status.
type statusResponse struct {
	bot.RunState
	NextRun    time.Time `json:"next_run,omitzero"`
	Scheduled  bool      `json:"scheduled"`
	ServerTime time.Time `json:"server_time"`
}

// nextRunFunc reports the next scheduled activation after now.
type nextRunFunc func(now time.Time) time.Time

// newStatusRouter exposes liveness, the run guard state and, when metrics is
// non-nil, the Prometheus registry. next may be nil when no schedule is
// configured.
func newStatusRouter(guard *bot.RunGuard, next nextRunFunc, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		now := time.Now()
		resp := statusResponse{
			RunState:   guard.State(),
			ServerTime: now.UTC(),
		}
		if next != nil {
			if n := next(now); !n.IsZero() {
				resp.Scheduled = true
				resp.NextRun = n
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
