package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Shivanand-hulikatti/event-checkin/internal/auth"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

var bearerSecurity = []map[string][]string{{"bearerAuth": {}}}

func secured(o *huma.Operation) { o.Security = bearerSecurity }

func created(o *huma.Operation) {
	o.DefaultStatus = http.StatusCreated
	secured(o)
}

// NewRouter builds the full HTTP surface: chi middleware, health checks and
// the huma API behind the bearer-token resolver.
func NewRouter(h *EventHandler, resolver *auth.Resolver, store Pinger, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(log))
	r.Use(CORS)

	r.Get("/health", HealthCheck)
	r.Get("/ready", ReadyCheck(store))

	config := huma.DefaultConfig("Event Check-in API", "1.0.0")
	// Response bodies carry no $schema link.
	config.CreateHooks = nil
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	r.Group(func(r chi.Router) {
		r.Use(resolver.Middleware)
		api := humachi.New(r, config)

		huma.Post(api, "/events", h.CreateEvent, created)
		huma.Get(api, "/events", h.ListEvents)
		huma.Get(api, "/events/{eventId}", h.GetEvent)
		huma.Post(api, "/events/{eventId}/registrations", h.Register, created)
		huma.Get(api, "/events/{eventId}/registrations", h.ListRegistrations, secured)
		huma.Get(api, "/events/{eventId}/registration", h.MyRegistration, secured)
		huma.Get(api, "/events/{eventId}/stats", h.EventStats, secured)
		huma.Post(api, "/registrations/{registrationId}/cancel", h.Cancel, secured)
		huma.Get(api, "/me/registrations", h.ListMine, secured)
		huma.Post(api, "/check-ins", h.CheckIn, secured)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyCheck handles GET /ready by pinging the store.
func ReadyCheck(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
