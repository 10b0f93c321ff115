package outway

import (
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

// Listener serves the outway's plaintext local-consumer surface, proxying
// `/<organization>/<service>/...` requests over mesh-facing mTLS.
// Grounded on the teacher's internal/server/rest/router.go chi wiring.
type Listener struct {
	Table   *routing.OutwayTable
	Proxy   *proxy.Proxy
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Router builds the chi.Router serving this listener's routes.
func (l *Listener) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.HandleFunc("/{organization}/{service}/*", l.handleProxy)

	return r
}

func (l *Listener) handleProxy(w http.ResponseWriter, r *http.Request) {
	organization := chi.URLParam(r, "organization")
	service := chi.URLParam(r, "service")

	resolved, ok := l.Table.Lookup(organization, service)
	if !ok {
		http.NotFound(w, r)
		return
	}

	prefix := "/" + organization + "/" + service
	pathTail := strings.TrimPrefix(r.URL.Path, prefix)

	target, err := proxy.ComposeOutwayURL(resolved.InwayAddress, resolved.ServiceName, pathTail, r.URL.RawQuery)
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
		l.Metrics.ProxyRequests.WithLabelValues("outway", "error").Inc()
		l.Logger.Warn("outway proxy: upstream request failed",
			slog.String("request_id", requestID),
			slog.String("organization", organization),
			slog.String("service", service),
			slog.Any("error", err),
			slog.Duration("elapsed", time.Since(start)),
		)
		w.Header().Set("X-Request-Id", requestID)
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	l.Metrics.ProxyRequests.WithLabelValues("outway", "ok").Inc()

	proxy.WriteHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
