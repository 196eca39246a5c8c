package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"castcal/internal/config"
	"castcal/internal/discovery"
	"castcal/internal/draw"
	appLog "castcal/internal/log"
	"castcal/internal/model"
	"castcal/internal/pipeline"
	"castcal/internal/timerange"
)

// Renderer produces and remembers calendar renders.
type Renderer interface {
	Run(ctx context.Context) (*pipeline.Result, error)
	Last() (*pipeline.Result, error)
}

// ScanFunc browses the network for cast screens.
type ScanFunc func(ctx context.Context, timeout time.Duration) ([]discovery.Device, error)

// Server exposes the last render and a manual refresh over HTTP.
type Server struct {
	cfg      atomic.Pointer[config.Config]
	renderer Renderer
	scan     ScanFunc
	router   chi.Router
}

// NewServer constructs a new Server. A nil scan uses discovery.ScanOnce.
func NewServer(cfg *config.Config, renderer Renderer, scan ScanFunc) *Server {
	if scan == nil {
		scan = discovery.ScanOnce
	}
	s := &Server{
		renderer: renderer,
		scan:     scan,
	}
	s.cfg.Store(cfg)
	s.router = s.routes()
	return s
}

// SetConfig replaces the configuration used by subsequent requests. The
// listen address is only read by ListenAndServe.
func (s *Server) SetConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
}

func (s *Server) config() *config.Config {
	return s.cfg.Load()
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// /health is always reachable without credentials.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.basicAuthMiddleware)

		r.Get("/calendar.png", s.handleImage)
		r.Route("/api", func(r chi.Router) {
			r.Get("/events", s.handleEvents)
			r.Get("/drawings", s.handleDrawings)
			r.Get("/devices", s.handleDevices)
			r.Post("/refresh", s.handleRefresh)
		})
	})

	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listen := s.config().Listen
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server",
			"listen", "http://"+listen,
			"basic_auth", s.basicAuthEnabled(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	return BasicAuthEnabled(s.config())
}

// BasicAuthEnabled reports whether cfg turns on HTTP Basic Auth.
func BasicAuthEnabled(cfg *config.Config) bool {
	if cfg == nil || cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means disabled.
	return cfg.BasicAuth.Username != "" && cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware checks credentials against the current config on
// every request, so edits apply without a restart.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.config()
		if !BasicAuthEnabled(cfg) {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, cfg.BasicAuth.Username) || !secureCompare(p, cfg.BasicAuth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="castcal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleImage serves the last rendered PNG from memory.
func (s *Server) handleImage(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.last(w)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.PNG)))
	w.Header().Set("Last-Modified", res.RenderedAt.UTC().Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.PNG)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	RenderedAt time.Time             `json:"rendered_at"`
	Window     timerange.Definite    `json:"window"`
	Timezone   string                `json:"timezone"`
	Events     []model.CalendarEvent `json:"events"`
}

// drawingsResponse is the JSON response shape for /api/drawings.
type drawingsResponse struct {
	RenderedAt time.Time      `json:"rendered_at"`
	Canvas     draw.Rectangle `json:"canvas"`
	Drawings   []draw.Drawing `json:"drawings"`
}

// refreshResponse is the JSON response shape for /api/refresh.
type refreshResponse struct {
	RenderedAt time.Time `json:"rendered_at"`
	Events     int       `json:"events"`
	Drawings   int       `json:"drawings"`
}

type devicesResponse struct {
	Devices []discovery.Device `json:"devices"`
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.last(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		RenderedAt: res.RenderedAt,
		Window:     res.Window,
		Timezone:   res.Timezone,
		Events:     res.Events,
	})
}

func (s *Server) handleDrawings(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.last(w)
	if !ok {
		return
	}

	b := res.Image.Bounds()
	writeJSON(w, http.StatusOK, drawingsResponse{
		RenderedAt: res.RenderedAt,
		Canvas:     draw.Rectangle{Width: uint32(b.Dx()), Height: uint32(b.Dy())},
		Drawings:   res.Drawings,
	})
}

// handleRefresh runs the pipeline now instead of waiting for the schedule.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.renderer.Run(r.Context())
	if err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusBadGateway, "refresh failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		RenderedAt: res.RenderedAt,
		Events:     len(res.Events),
		Drawings:   len(res.Drawings),
	})
}

// handleDevices browses for cast screens.
//
// GET /api/devices?timeout=2s
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	timeout := s.config().DiscoveryTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 || d > 30*time.Second {
			writeError(w, http.StatusBadRequest, "timeout must be a duration in (0, 30s]")
			return
		}
		timeout = d
	}

	devices, err := s.scan(r.Context(), timeout)
	if err != nil {
		appLog.Error("api device scan failed", err)
		writeError(w, http.StatusInternalServerError, "device scan failed")
		return
	}
	if devices == nil {
		devices = []discovery.Device{}
	}
	writeJSON(w, http.StatusOK, devicesResponse{Devices: devices})
}

// last writes 503 when nothing has been rendered yet.
func (s *Server) last(w http.ResponseWriter) (*pipeline.Result, bool) {
	res, err := s.renderer.Last()
	if errors.Is(err, pipeline.ErrNoRender) {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "no render available yet")
		return nil, false
	}
	if err != nil {
		appLog.Error("api last render failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load render")
		return nil, false
	}
	return res, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
