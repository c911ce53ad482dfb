package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/dukerupert/heirloom/internal/access"
	"github.com/dukerupert/heirloom/internal/auth"
	"github.com/dukerupert/heirloom/internal/config"
	"github.com/dukerupert/heirloom/internal/email"
	"github.com/dukerupert/heirloom/internal/handler"
	"github.com/dukerupert/heirloom/internal/middleware"
	"github.com/dukerupert/heirloom/internal/photo"
	"github.com/dukerupert/heirloom/internal/store"
	ws "github.com/dukerupert/heirloom/internal/websocket"
)

type Server struct {
	authH         *handler.AuthHandler
	familyH       *handler.FamilyHandler
	invitationH   *handler.InvitationHandler
	personH       *handler.PersonHandler
	relationshipH *handler.RelationshipHandler
	storyH        *handler.StoryHandler
	settingsH     *handler.SettingsHandler
	treeH         *handler.TreeHandler
	themeH        *handler.ThemeHandler
	healthH       *handler.HealthHandler
	wsH           *handler.WSHandler

	userStore       *store.UserStore
	sessionStore    *store.SessionStore
	invitationStore *store.InvitationStore
	rateLimiter     *middleware.RateLimiter
	clientIP        *middleware.ClientIP
	metrics         *middleware.Metrics
	corsOrigins     []string
	logger          *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	metrics := middleware.NewMetrics()
	hub := ws.NewHub(logger)

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	familyStore := store.NewFamilyStore(db)
	invitationStore := store.NewInvitationStore(db)
	personStore := store.NewPersonStore(db)
	relationshipStore := store.NewRelationshipStore(db)
	storyStore := store.NewStoryStore(db)
	settingsStore := store.NewSettingsStore(db)
	themeStore := store.NewThemeStore(db)

	gate := access.NewGate(familyStore, metrics, logger.With("component", "access"))

	var backend photo.Backend
	if cfg.S3.Enabled() {
		backend = photo.NewS3Backend(cfg.S3)
		logger.Info("photos stored in object storage", "bucket", cfg.S3.Bucket)
	}
	photos := photo.NewService(backend, cfg.MaxPhotoBytes, logger)

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)
	secureCookie := strings.HasPrefix(cfg.BaseURL, "https://")

	return &Server{
		authH:         handler.NewAuthHandler(userStore, sessionStore, cfg.SessionTTL, secureCookie, logger.With("component", "auth")),
		familyH:       handler.NewFamilyHandler(familyStore, photos, gate, hub, logger.With("component", "family")),
		invitationH:   handler.NewInvitationHandler(invitationStore, familyStore, emailClient, gate, hub, logger.With("component", "invitation")),
		personH:       handler.NewPersonHandler(personStore, photos, gate, hub, logger.With("component", "person")),
		relationshipH: handler.NewRelationshipHandler(relationshipStore, gate, hub, logger.With("component", "relationship")),
		storyH:        handler.NewStoryHandler(storyStore, photos, gate, hub, logger.With("component", "story")),
		settingsH:     handler.NewSettingsHandler(settingsStore, gate, hub, logger.With("component", "settings")),
		treeH:         handler.NewTreeHandler(familyStore, personStore, relationshipStore, settingsStore, gate, hub, logger.With("component", "tree")),
		themeH:        handler.NewThemeHandler(themeStore, logger.With("component", "theme")),
		healthH:       handler.NewHealthHandler(db, logger.With("component", "health")),
		wsH:           handler.NewWSHandler(originPatterns(cfg.CORSOrigins), gate, hub, logger),

		userStore:       userStore,
		sessionStore:    sessionStore,
		invitationStore: invitationStore,
		rateLimiter:     middleware.NewRateLimiter(),
		clientIP:        middleware.NewClientIP(cfg.TrustedProxies),
		metrics:         metrics,
		corsOrigins:     cfg.CORSOrigins,
		logger:          logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// InvitationStore returns the invitation store for cleanup tasks.
func (s *Server) InvitationStore() *store.InvitationStore {
	return s.invitationStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// MetricsHandler serves the Prometheus registry. It is kept off the public
// router and mounted on its own listener.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// Router builds the HTTP handler. All routes share one mux so that the
// matched pattern is visible to the metrics middleware; protected routes
// are wrapped with RequireAuth one by one.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler("register", s.clientIP.Resolve, s.authH.Register))
	mux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler("login", s.clientIP.Resolve, s.authH.Login))
	mux.HandleFunc("GET /api/health", s.healthH.Health)
	mux.HandleFunc("GET /api/themes", s.themeH.List)
	mux.HandleFunc("GET /api/themes/{theme}/questions", s.themeH.Questions)

	s.registerProtectedRoutes(mux)

	var h http.Handler = mux
	if len(s.corsOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
		}).Handler(h)
	}
	h = middleware.RequestLogger(s.logger.With("component", "http"), s.clientIP)(h)
	return s.metrics.Instrument(h)
}

// rateLimitedHandler allows ten requests a minute per key. Each scope has
// its own budget.
func (s *Server) rateLimitedHandler(scope string, key func(*http.Request) string, h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return scope + ":" + key(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

// byUser keys on the signed-in user, so it only works behind RequireAuth.
func byUser(r *http.Request) string {
	return strconv.FormatInt(auth.UserID(r.Context()), 10)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	requireAuth := middleware.RequireAuth(s.sessionStore, s.userStore)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(h))
	}

	// Account
	handle("POST /api/auth/logout", s.authH.Logout)
	handle("GET /api/auth/me", s.authH.Me)
	handle("PUT /api/auth/me", s.authH.UpdateProfile)
	handle("PUT /api/auth/password", s.authH.ChangePassword)

	// Families and memberships
	handle("POST /api/create-family", s.familyH.Create)
	handle("GET /api/families", s.familyH.List)
	handle("POST /api/families/join", s.rateLimitedHandler("join", byUser, s.familyH.Join))
	handle("GET /api/families/{family_id}", s.familyH.Get)
	handle("PUT /api/families/{family_id}", s.familyH.Update)
	handle("DELETE /api/families/{family_id}", s.familyH.Delete)
	handle("POST /api/families/{family_id}/access-code", s.familyH.RegenerateAccessCode)
	handle("GET /api/families/{family_id}/members", s.familyH.Members)
	handle("PUT /api/families/{family_id}/members/{user_id}", s.familyH.UpdateMemberRole)
	handle("DELETE /api/families/{family_id}/members/{user_id}", s.familyH.DeactivateMember)

	// Invitations
	handle("POST /api/families/{family_id}/invitations", s.invitationH.Create)
	handle("GET /api/families/{family_id}/invitations", s.invitationH.List)
	handle("POST /api/invitations/accept", s.invitationH.Accept)

	// Tree
	handle("GET /api/tree/{family_id}", s.treeH.Get)
	handle("POST /api/families/{family_id}/generations", s.treeH.Recompute)
	handle("GET /api/families/{family_id}/settings", s.settingsH.Get)
	handle("PUT /api/families/{family_id}/settings", s.settingsH.Update)

	// People
	handle("POST /api/person", s.personH.Create)
	handle("GET /api/person/{id}", s.personH.Get)
	handle("PUT /api/person/{id}", s.personH.Update)
	handle("DELETE /api/person/{id}", s.personH.Delete)
	handle("GET /api/person-photo/{id}", s.personH.Photo)

	// Relationships
	handle("POST /api/relationship", s.relationshipH.Create)
	handle("DELETE /api/relationship/{id}", s.relationshipH.Delete)

	// Stories
	handle("POST /api/story", s.storyH.Create)
	handle("GET /api/story/{id}", s.storyH.Get)
	handle("PUT /api/story/{id}", s.storyH.Update)
	handle("DELETE /api/story/{id}", s.storyH.Delete)
	handle("POST /api/story/{id}/feature", s.storyH.ToggleFeatured)
	handle("GET /api/story-photo/{id}", s.storyH.Photo)
	handle("GET /api/families/{family_id}/stories", s.storyH.List)
	handle("GET /api/families/{family_id}/stories/years", s.storyH.Years)

	// Live updates
	handle("GET /ws", s.wsH.Serve)
}

// originPatterns turns configured CORS origins into the host patterns the
// websocket upgrader matches against.
func originPatterns(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}
