package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Health reports process-level readiness for /healthz.
type Health interface {
	Subscribers() int
}

func NewRouter(health ...Health) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		subs := 0
		for _, h := range health {
			subs += h.Subscribers()
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "subscribers": subs})
	})
	return r
}
