package healer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxEventBytes = 1 << 20

// EventHandler processes one raw alert event; *Orchestrator satisfies it.
type EventHandler interface {
	Handle(ctx context.Context, raw []byte) Response
}

// AuditReader lists recent audit entries for an instance.
type AuditReader interface {
	Recent(ctx context.Context, instanceID string, limit int) ([]AuditEntry, error)
}

// ServerOptions configures the HTTP host.
type ServerOptions struct {
	Handler EventHandler
	// Audit backs the per-instance history endpoint. Nil disables it.
	Audit AuditReader
	// Ready reports whether dependencies are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Timeout bounds each request; it must exceed the poll budget.
	Timeout time.Duration
}

// Routes builds the chi router for the HTTP host.
func Routes(opts ServerOptions) (http.Handler, error) {
	if opts.Handler == nil {
		return nil, errors.New("event handler is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.Timeout(opts.Timeout)).Post("/events", eventsHandler(opts.Handler))
		if opts.Audit != nil {
			r.Get("/instances/{instanceID}/audit", auditHandler(opts.Audit))
		}
	})
	return r, nil
}

// eventsHandler replies with the envelope's status code and body. The
// ?envelope=true query returns the full envelope instead.
func eventsHandler(h EventHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxEventBytes))
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusRequestEntityTooLarge)
			return
		}

		resp := h.Handle(req.Context(), raw)

		if req.URL.Query().Get("envelope") == "true" {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, _ = io.WriteString(w, resp.Body)
	}
}

func auditHandler(store AuditReader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		instanceID := chi.URLParam(req, "instanceID")
		if !ValidInstanceID(instanceID) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid instance id"})
			return
		}
		limit := 50
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
			limit = n
		}

		entries, err := store.Recent(req.Context(), instanceID, limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if entries == nil {
			entries = []AuditEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"instance_id": instanceID, "entries": entries})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
