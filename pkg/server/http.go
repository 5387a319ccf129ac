// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server serves the annotation persistence API over HTTP:
// POST /annotations, GET /annotations?studyId=, a server-sent event stream
// of created records and a health check.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/teradata-labs/planeview/pkg/persistence"
)

// EventStream is the SSE stream id carrying created annotation records.
const EventStream = "annotations"

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns a permissive CORS configuration
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:         86400, // 24 hours
	}
}

// HTTPServer serves the annotation API backed by a persistence.Store.
type HTTPServer struct {
	store      persistence.Store
	events     *sse.Server
	validator  *recordValidator
	httpServer *http.Server
	logger     *zap.Logger
	corsConfig CORSConfig
	handler    http.Handler
}

// NewHTTPServer creates a server listening on addr with the default CORS
// configuration.
func NewHTTPServer(store persistence.Store, addr string, logger *zap.Logger) (*HTTPServer, error) {
	return NewHTTPServerWithCORS(store, addr, logger, DefaultCORSConfig())
}

// NewHTTPServerWithCORS creates a server with a custom CORS configuration.
func NewHTTPServerWithCORS(store persistence.Store, addr string, logger *zap.Logger, corsConfig CORSConfig) (*HTTPServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	validator, err := newRecordValidator()
	if err != nil {
		return nil, err
	}

	events := sse.New()
	events.AutoReplay = false
	events.CreateStream(EventStream)

	h := &HTTPServer{
		store:      store,
		events:     events,
		validator:  validator,
		logger:     logger,
		corsConfig: corsConfig,
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // No timeout for SSE
			IdleTimeout:  120 * time.Second,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/annotations", h.handleAnnotations)
	mux.HandleFunc("/annotations/events", h.handleEvents)

	var handler http.Handler = mux
	if corsConfig.Enabled {
		handler = h.corsMiddleware(mux)
	}
	h.handler = h.logRequests(handler)
	h.httpServer.Handler = h.handler
	return h, nil
}

// Handler returns the root handler.
func (h *HTTPServer) Handler() http.Handler { return h.handler }

// Start serves until Stop is called or ctx is done.
func (h *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.httpServer.Addr, err)
	}
	return h.Serve(ctx, ln)
}

// Serve serves on ln until Stop is called or ctx is done.
func (h *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = h.Stop(shutdownCtx)
	})
	defer stop()

	h.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := h.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop closes the event streams and gracefully stops the server.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server")
	h.events.Close()
	return h.httpServer.Shutdown(ctx)
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if r.URL.Query().Get("stream") == "" {
		q := r.URL.Query()
		q.Set("stream", EventStream)
		r.URL.RawQuery = q.Encode()
	}
	h.events.ServeHTTP(w, r)
}

// logRequests logs each request after it completes.
func (h *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// corsMiddleware adds CORS headers to HTTP responses
func (h *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed := h.getAllowedOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
		}
		if h.corsConfig.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if len(h.corsConfig.AllowedMethods) > 0 {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(h.corsConfig.AllowedMethods, ", "))
		}
		if len(h.corsConfig.AllowedHeaders) > 0 {
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(h.corsConfig.AllowedHeaders, ", "))
		}
		if len(h.corsConfig.ExposedHeaders) > 0 {
			w.Header().Set("Access-Control-Expose-Headers", strings.Join(h.corsConfig.ExposedHeaders, ", "))
		}
		if h.corsConfig.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", h.corsConfig.MaxAge))
		}

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getAllowedOrigin checks if the origin is allowed and returns it, or empty string if not
func (h *HTTPServer) getAllowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, allowed := range h.corsConfig.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}
