package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threatmon/internal/config"
	"threatmon/internal/state"
	"threatmon/internal/storage"
)

type FeedStatus interface {
	Connected() bool
}

type ModelStatus interface {
	ModelLoaded() bool
}

type Server struct {
	router  chi.Router
	cfg     *config.Manager
	state   *state.Store
	store   storage.Store
	feed    FeedStatus
	model   ModelStatus
	logger  *slog.Logger
	version string
}

func NewServer(cfg *config.Manager, st *state.Store, store storage.Store, feed FeedStatus, model ModelStatus, logger *slog.Logger, version string) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		state:   st,
		store:   store,
		feed:    feed,
		model:   model,
		logger:  logger,
		version: version,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Endpoint not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	s.router.Get("/", s.handleHome)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Get().API.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		api.Get("/status", s.handleStatus)
		api.Route("/devices", func(devices chi.Router) {
			devices.Get("/", s.handleDevices)
			devices.Get("/{id}", s.handleDevice)
			devices.Get("/{id}/readings", s.handleReadings)
		})
		api.Route("/alerts", func(alerts chi.Router) {
			alerts.Get("/", s.handleAlerts)
			alerts.Post("/{id}/acknowledge", s.handleAcknowledge)
		})
		api.Get("/dashboard/summary", s.handleDashboard)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) (*http.Server, error) {
	current := s.cfg.Get().API
	if !current.Enabled {
		if s.logger != nil {
			s.logger.Info("api disabled")
		}
		return nil, nil
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("api listening", "addr", ln.Addr().String())
	}
	httpServer := &http.Server{Addr: ln.Addr().String(), Handler: s.router}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer, nil
}

func queryLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > 1000 {
				return 1000
			}
			return n
		}
	}
	return def
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
