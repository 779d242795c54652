package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/redis/go-redis/v9"

	"github.com/joeblew999/plat-wikimap/internal/api"
	"github.com/joeblew999/plat-wikimap/internal/api/viewport"
	"github.com/joeblew999/plat-wikimap/internal/completion"
	"github.com/joeblew999/plat-wikimap/internal/db"
	"github.com/joeblew999/plat-wikimap/internal/humastar"
	"github.com/joeblew999/plat-wikimap/internal/logger"
	"github.com/joeblew999/plat-wikimap/internal/metrics"
	"github.com/joeblew999/plat-wikimap/internal/service"
	"github.com/joeblew999/plat-wikimap/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files and fragment overrides
	// RedisURL enables account completion sync when set.
	RedisURL string
}

// Server is the wikimap HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	redis    *redis.Client
	services *api.Services
	renderer *templates.Renderer
	links    *humastar.Links
}

// New creates a new wikimap server.
func New(cfg Config) *Server {
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-wikimap API", "1.0.0")
	humaConfig.Info.Description = "Interactive game map API: viewer sessions, marker visibility, search, permalinks and completion tracking."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}

	links := humastar.NewLinks("/health", "sse")
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	humaAPI := humago.New(mux, humaConfig)

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		links:   links,
	}

	// DuckDB completion journal
	var journal service.Journal
	conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "wikimap"})
	if err == nil {
		j := db.NewJournal(conn)
		if err := j.Migrate(context.Background()); err != nil {
			logger.Log.WithError(err).Warn("completion journal unavailable")
			conn.Close()
		} else {
			s.db = conn
			journal = j
		}
	} else {
		logger.Log.WithError(err).Warn("duckdb unavailable")
	}

	rc, err := completion.OpenRedis(cfg.RedisURL)
	if err != nil {
		logger.Log.WithError(err).Warn("account store disabled")
	}
	s.redis = rc

	maps := service.NewMapService(cfg.DataDir)
	if err := maps.Reload(); err != nil {
		logger.Log.WithError(err).Warn("some maps failed to load")
	}
	sessionCfg := service.SessionServiceConfig{
		DataDir:  cfg.DataDir,
		Maps:     maps,
		Settings: service.NewSettingsService(cfg.DataDir),
		Journal:  journal,
	}
	if rc != nil {
		sessionCfg.Accounts = rc
	}
	s.services = &api.Services{
		Maps:     maps,
		Sessions: service.NewSessionService(sessionCfg),
	}

	s.renderer = templates.Default()
	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		if r, err := templates.New(fragmentsDir); err == nil {
			s.renderer = r
			logger.Log.WithField("dir", fragmentsDir).Info("loaded fragment templates")
		}
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services returns the services behind the API.
func (s *Server) Services() *api.Services {
	return s.services
}

// Close closes server resources.
func (s *Server) Close() error {
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	// Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.db != nil, s.redis != nil).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)

	// Datastar SSE routes
	api.NewEventHandler(s.services.Sessions, s.renderer).RegisterRoutes(s.humaAPI)

	// Links are derived from the finished route table.
	s.links.Build(s.humaAPI)

	s.mux.HandleFunc("GET /ws/sessions/{id}", viewport.Handler(s.services.Sessions))
	s.mux.Handle("GET /metrics", metrics.Handler())

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
		s.mux.HandleFunc("/viewer", s.handleViewer)
	}
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.Root() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-wikimap",
		"status":  "running",
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	http.ServeFile(w, r, templatePath)
}
