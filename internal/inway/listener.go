package inway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nlx-io/nlx-gateway/internal/metrics"
	"github.com/nlx-io/nlx-gateway/internal/proxy"
	"github.com/nlx-io/nlx-gateway/internal/routing"
)

// Listener serves the inway's mesh-facing HTTP surface: per-service health
// checks and the proxy itself. Grounded on the teacher's
// internal/server/rest/router.go for the chi wiring.
type Listener struct {
	Version string
	Table   *routing.InwayTable
	Proxy   *proxy.Proxy
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Router builds the chi.Router serving this listener's routes.
func (l *Listener) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/.nlx/health/{service}", l.handleHealth)
	r.HandleFunc("/{service}/*", l.handleProxy)

	return r
}

type healthResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version"`
}

func (l *Listener) handleHealth(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	_, ok := l.Table.Lookup(service)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Healthy: ok, Version: l.Version})
}

func (l *Listener) handleProxy(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	svc, ok := l.Table.Lookup(service)
	if !ok {
		http.NotFound(w, r)
		return
	}

	pathTail := strings.TrimPrefix(r.URL.Path, "/"+service)

	target, err := proxy.ComposeInwayURL(svc.EndpointURL, pathTail, r.URL.RawQuery)
	if err != nil {
		http.Error(w, "bad upstream url", http.StatusBadRequest)
		return
	}

	req, err := proxy.NewRequest(r.Method, target, r.Header, r.Body)
	if err != nil {
		http.Error(w, "bad request body", http.StatusBadGateway)
		return
	}

	start := time.Now()
	resp, err := l.Proxy.Do(r.Context(), req)
	if err != nil {
		requestID := uuid.NewString()
		l.Metrics.ProxyRequests.WithLabelValues("inway", "error").Inc()
		l.Logger.Warn("inway proxy: upstream request failed",
			slog.String("request_id", requestID),
			slog.String("service", service),
			slog.Any("error", err),
			slog.Duration("elapsed", time.Since(start)),
		)
		w.Header().Set("X-Request-Id", requestID)
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	l.Metrics.ProxyRequests.WithLabelValues("inway", "ok").Inc()

	proxy.WriteHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
