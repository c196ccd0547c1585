// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.mau.fi/util/exhttp"
	"go.mau.fi/util/requestlog"
)

// maxReloadBodySize limits the JSON body accepted by the reload endpoint.
const maxReloadBodySize = 1 << 20

// AdminAPI serves the operator HTTP endpoints.
type AdminAPI struct {
	relay    *Relay
	gatherer prometheus.Gatherer
	log      zerolog.Logger
}

// NewAdminAPI creates the admin API for r. A nil gatherer disables
// /metrics.
func NewAdminAPI(r *Relay, gatherer prometheus.Gatherer, log zerolog.Logger) *AdminAPI {
	return &AdminAPI{
		relay:    r,
		gatherer: gatherer,
		log:      log.With().Str("component", "admin_api").Logger(),
	}
}

// Handler returns the routed, access-logged admin handler.
func (a *AdminAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/reload-links", a.HandleReloadLinks)
	mux.HandleFunc("/api/links", a.HandleListLinks)
	if a.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
	return exhttp.ApplyMiddleware(
		mux,
		hlog.NewHandler(a.log),
		requestlog.AccessLogger(requestlog.Options{Recover: true}),
	)
}

// ListenAndServe serves the admin API on addr until ctx is done.
func (a *AdminAPI) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      a.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	a.log.Info().Str("addr", addr).Msg("Starting bridge admin API")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// HandleReloadLinks is an HTTP handler for POST /api/reload-links. It
// accepts an optional JSON body holding the flat identity map, which
// replaces the current links and is persisted. Without a body the links are
// reloaded from the link store.
func (a *AdminAPI) HandleReloadLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	linker := a.relay.linker

	var links map[string]string
	if r.Body != nil && r.ContentLength != 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxReloadBodySize)
		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &links); err != nil {
				http.Error(w, "invalid JSON", http.StatusBadRequest)
				return
			}
		}
	}

	source := "store"
	if links != nil {
		source = "body"
	}
	a.log.Info().
		Str("remote_addr", r.RemoteAddr).
		Int("entries", len(links)).
		Str("source", source).
		Msg("Processing link reload")

	var added, removed int
	var err error
	if links != nil {
		added, removed, err = linker.Import(ctx, links)
	} else {
		added, removed, err = linker.Load(ctx)
	}
	if err != nil {
		a.log.Err(err).Msg("Failed to reload identity links")
		http.Error(w, "failed to reload links", http.StatusInternalServerError)
		return
	}
	a.relay.metrics.links.Set(float64(linker.Count()))
	exhttp.WriteJSONResponse(w, http.StatusOK, map[string]int{
		"added":   added,
		"removed": removed,
		"total":   linker.Count(),
	})
}

// HandleListLinks is an HTTP handler for GET /api/links returning the number
// of linked users.
func (a *AdminAPI) HandleListLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	exhttp.WriteJSONResponse(w, http.StatusOK, map[string]int{
		"total": a.relay.linker.Count(),
		"pairs": a.relay.store.Len(),
	})
}
