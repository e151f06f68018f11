package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chmw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/maniack/logpurge/internal/accesslog"
	"github.com/maniack/logpurge/internal/logging"
	"github.com/maniack/logpurge/internal/monitoring"
	"github.com/maniack/logpurge/internal/purge"
	"github.com/maniack/logpurge/internal/storage"
)

type MonitoringConfig struct {
	MetricsEndpoint string
	HealthzEndpoint string
}

type Config struct {
	Logger          *logrus.Logger
	Version         string
	CORSAllowOrigin []string
	Monitoring      MonitoringConfig

	// AccessLog receives one line per request; nil disables access logging.
	AccessLog io.Writer
	// Purge is the attached scheduler; nil when purging is disabled.
	Purge *purge.Scheduler
	// History is optional; runs older than HistoryTTL are pruned in the background.
	History    *storage.Store
	HistoryTTL time.Duration

	StaticDir   string
	SkipWorkers bool
}

type Server struct {
	Router chi.Router
	log    *logrus.Logger
	cfg    Config
	purge  *purge.Scheduler
	store  *storage.Store

	done      chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		logging.Init(false, false)
		cfg.Logger = logging.L()
	}
	if cfg.Monitoring.MetricsEndpoint == "" {
		cfg.Monitoring.MetricsEndpoint = "/metrics"
	}
	if cfg.Monitoring.HealthzEndpoint == "" {
		cfg.Monitoring.HealthzEndpoint = "/healthz"
	}

	monitoring.Init()

	s := &Server{log: cfg.Logger, cfg: cfg, purge: cfg.Purge, store: cfg.History, done: make(chan struct{})}
	r := chi.NewRouter()
	s.Router = r

	// Middlewares
	r.Use(chmw.RequestID)
	r.Use(chmw.RealIP)
	r.Use(chmw.Recoverer)
	if cfg.AccessLog != nil {
		r.Use(accesslog.Middleware(cfg.AccessLog, cfg.Logger))
	}
	r.Use(RequestLogger(cfg.Logger, cfg.Monitoring.HealthzEndpoint+"/alive", cfg.Monitoring.HealthzEndpoint+"/ready"))
	r.Use(SecurityHeaders())

	co := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}
	if len(cfg.CORSAllowOrigin) == 0 {
		co.AllowOriginFunc = func(r *http.Request, origin string) bool {
			if origin == "" {
				return false
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return u.Host == r.Host
		}
	} else {
		co.AllowedOrigins = cfg.CORSAllowOrigin
	}
	r.Use(cors.Handler(co))

	// Healthz
	r.Route(cfg.Monitoring.HealthzEndpoint, func(r chi.Router) {
		r.Get("/alive", s.handleAlive)
		r.Get("/ready", s.handleReady)
	})
	// Metrics
	r.Handle(cfg.Monitoring.MetricsEndpoint, monitoring.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", s.handleGetConfig)
		r.Route("/purge", func(r chi.Router) {
			r.Get("/status", s.handlePurgeStatus)
			r.Post("/run", s.handlePurgeRun)
			r.Get("/runs", s.handlePurgeRuns)
		})
	})

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	// Start background workers
	if !cfg.SkipWorkers && s.store != nil {
		s.startHistoryCleanup(cfg.HistoryTTL, time.Hour)
	}

	return s, nil
}

// Close stops the background workers and waits for them to return. The
// history store stays open; its owner closes it afterwards.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.workers.Wait()
}

func (s *Server) handleAlive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.purge != nil && s.purge.State() == purge.StateStopped {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.log.WithContext(r.Context()).WithError(err).Warn("ready: history store unavailable")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// helpers
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
