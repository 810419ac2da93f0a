package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/dukerupert/reunion/internal/auth"
	"github.com/dukerupert/reunion/internal/backup"
	"github.com/dukerupert/reunion/internal/handler"
	"github.com/dukerupert/reunion/internal/media"
	"github.com/dukerupert/reunion/internal/middleware"
	"github.com/dukerupert/reunion/internal/store"
	ws "github.com/dukerupert/reunion/internal/websocket"
)

// Per-client limits for the endpoints that write files or check passwords.
const (
	registerLimit = 10
	uploadLimit   = 20
	verifyLimit   = 10
	limitWindow   = time.Minute
)

type Config struct {
	// ClientURL is the allowed browser origin, "*" or a comma separated list.
	ClientURL    string
	ExposeErrors bool
	Admin        *auth.AdminSecret
	Backup       backup.Config

	Members  store.FamilyMembers
	Photos   store.GalleryPhotos
	Media    *media.Pipeline
	Syncer   handler.Syncer
	Notifier handler.Notifier
}

type Server struct {
	cfg           Config
	hub           *ws.Hub
	tasks         *handler.Tasks
	familyH       *handler.FamilyMemberHandler
	galleryH      *handler.GalleryHandler
	adminH        *handler.AdminHandler
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	tasks := handler.NewTasks(logger.With("component", "tasks"))
	errs := handler.NewErrors(cfg.ExposeErrors, logger.With("component", "http"))

	backupMgr := backup.NewManager(cfg.Backup, cfg.Members, cfg.Photos, func(s backup.Status) {
		hub.Broadcast(ws.NewMessage(ws.TopicBackup, string(s.State), "", s))
	}, logger.With("component", "backup"))

	return &Server{
		cfg:           cfg,
		hub:           hub,
		tasks:         tasks,
		familyH:       handler.NewFamilyMemberHandler(cfg.Members, cfg.Media, cfg.Syncer, cfg.Notifier, tasks, hub, errs, logger.With("component", "family")),
		galleryH:      handler.NewGalleryHandler(cfg.Photos, cfg.Media, hub, errs, logger.With("component", "gallery")),
		adminH:        handler.NewAdminHandler(cfg.Admin, cfg.Members, backupMgr, errs, logger.With("component", "admin")),
		rateLimiter:   middleware.NewRateLimiter(),
		backupManager: backupMgr,
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// Tasks returns the background task runner so shutdown can drain it.
func (s *Server) Tasks() *handler.Tasks {
	return s.tasks
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/register", s.limited("register", registerLimit, s.familyH.Register))
	mux.HandleFunc("GET /api/family", s.familyH.List)
	mux.HandleFunc("GET /api/family/{id}", s.familyH.Get)
	mux.HandleFunc("PUT /api/family/{id}", s.familyH.Update)
	mux.HandleFunc("DELETE /api/family/{id}", s.familyH.Delete)
	mux.HandleFunc("GET /api/stats", s.familyH.Stats)
	mux.HandleFunc("GET /api/tree", s.familyH.Tree)

	mux.Handle("POST /api/admin/verify", s.limited("verify", verifyLimit, s.adminH.Verify))
	mux.Handle("GET /api/admin/registrations", s.admin(s.adminH.Registrations))
	mux.Handle("GET /api/admin/registrations/export", s.admin(s.adminH.Export))
	mux.Handle("DELETE /api/admin/registrations/{id}", s.admin(s.familyH.Delete))
	mux.Handle("GET /api/admin/stats", s.admin(s.adminH.Stats))
	mux.Handle("GET /api/admin/backup", s.admin(s.adminH.BackupStatus))
	mux.Handle("POST /api/admin/backup", s.admin(s.adminH.RunBackup))

	mux.HandleFunc("GET /api/gallery", s.galleryH.List)
	mux.Handle("POST /api/gallery/upload", s.limited("upload", uploadLimit, s.galleryH.Upload))
	mux.HandleFunc("DELETE /api/gallery/{id}", s.galleryH.Delete)

	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(filesOnly{http.Dir(s.cfg.Media.Profile.Dir)})))
	mux.Handle("GET /gallery/", http.StripPrefix("/gallery/", http.FileServer(filesOnly{http.Dir(s.cfg.Media.Gallery.Dir)})))

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, originPatterns(s.cfg.ClientURL), s.logger.With("component", "websocket")))
	mux.HandleFunc("GET /health", s.healthHandler)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(s.cfg.ClientURL),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", middleware.AdminPasswordHeader},
		ExposedHeaders: []string{"Content-Disposition", "Retry-After", middleware.RequestIDHeader},
	})

	return middleware.RequestLogger(s.logger.With("component", "http"))(c.Handler(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) limited(scope string, limit int, h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, scope, limit, limitWindow)(h)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return middleware.RequireAdminPassword(s.cfg.Admin)(h)
}

// filesOnly hides directories so upload folders cannot be listed.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

func allowedOrigins(clientURL string) []string {
	var origins []string
	for _, o := range strings.Split(clientURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimRight(o, "/"))
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// originPatterns converts the allowed client origins into the host patterns
// the websocket handshake checks against.
func originPatterns(clientURL string) []string {
	var patterns []string
	for _, o := range allowedOrigins(clientURL) {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
