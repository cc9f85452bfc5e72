package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/mbrodhuber/Submit-and-Review/internal/access"
	"github.com/mbrodhuber/Submit-and-Review/internal/metrics"
	"github.com/mbrodhuber/Submit-and-Review/internal/ratelimit"
	"github.com/mbrodhuber/Submit-and-Review/internal/util"
	"github.com/mbrodhuber/Submit-and-Review/pkg/auth"
	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
	"github.com/mbrodhuber/Submit-and-Review/services/portal/internal/app"
)

const defaultMaxUploadBytes = 200 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App     *app.App
	Metrics *metrics.Metrics

	// Limiters are optional; nil disables rate limiting for that flow.
	LoginLimiter  *ratelimit.FixedWindowLimiter
	SignupLimiter *ratelimit.FixedWindowLimiter

	TrustedProxies []string
	CORSOrigins    []string
	CookieSecure   bool
	SessionTTL     time.Duration
	MaxUploadBytes int64

	// Sessions overrides the page session manager (tests).
	Sessions *scs.SessionManager
}

// Server exposes the portal pages and the JSON API.
type Server struct {
	app            *app.App
	metrics        *metrics.Metrics
	loginLimiter   *ratelimit.FixedWindowLimiter
	signupLimiter  *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	corsOrigins    []string
	sessions       *scs.SessionManager
	pages          *pageTemplates
	maxUploadBytes int64
	router         chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	pages, err := parsePageTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = newSessionManager(cfg.SessionTTL, cfg.CookieSecure)
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		metrics:        cfg.Metrics,
		loginLimiter:   cfg.LoginLimiter,
		signupLimiter:  cfg.SignupLimiter,
		trustedProxies: trusted,
		corsOrigins:    cfg.CORSOrigins,
		sessions:       sessions,
		pages:          pages,
		maxUploadBytes: maxUpload,
		router:         chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

func newSessionManager(ttl time.Duration, secure bool) *scs.SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	sm := scs.New()
	sm.Lifetime = ttl
	sm.Cookie.Name = "portal_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = secure
	return sm
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.router
	h = util.WithCORS(s.corsOrigins)(h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog("portal", h, s.metrics.ObserveRequest)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	r := s.router
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		if isAPI(r) {
			methodNotAllowed(w, r)
			return
		}
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/signup", s.handleAPISignup)
		api.Post("/auth/login", s.handleAPILogin)
		api.Post("/auth/logout", s.handleAPILogout)

		api.Get("/me", s.authenticated(s.handleAPIMe))
		api.Get("/submissions", s.authenticated(s.handleAPIListSubmissions))
		api.Post("/submissions", s.authenticated(s.handleAPICreateSubmission))

		api.Get("/review", s.withRoles(access.ReviewRoles(), s.handleAPIReviewQueue))
		api.Get("/review/{id}", s.withRoles(access.ReviewRoles(), s.handleAPIReviewDetail))
		api.Post("/review/{id}/decision", s.withRoles(access.ReviewRoles(), s.handleAPIDecide))

		api.Get("/admin/users", s.withRoles(access.AdminRoles(), s.handleAPIListUsers))
		api.Patch("/admin/users/{id}", s.withRoles(access.AdminRoles(), s.handleAPISetRole))

		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusNotFound, "not_found", "not found")
		})
	})

	r.Group(func(pages chi.Router) {
		pages.Use(s.sessions.LoadAndSave)

		pages.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		})
		pages.Get("/login", s.handleLoginPage)
		pages.Post("/login", s.handleLoginSubmit)
		pages.Get("/register", s.handleRegisterPage)
		pages.Post("/register", s.handleRegisterSubmit)
		pages.Post("/logout", s.handleLogout)

		pages.Get("/dashboard", s.guarded(s.handleDashboard))
		pages.Post("/dashboard", s.guarded(s.handleDashboardCreate))
		pages.Get("/submit", s.guarded(s.handleSubmitPage))
		pages.Post("/submit", s.guarded(s.handleSubmitForm))
		pages.Get("/review", s.guarded(s.handleReviewQueue))
		pages.Get("/review/{id}", s.guarded(s.handleReviewDetail))
		pages.Post("/review/{id}", s.guarded(s.handleReviewDecide))
		pages.Get("/admin", s.guarded(s.handleAdmin))
		pages.Post("/admin/users/{id}/role", s.guarded(s.handleAdminSetRole))

		if root, ok := s.app.LocalFiles(); ok {
			files := http.StripPrefix("/files/", http.FileServer(http.Dir(root)))
			pages.Get("/files/*", s.guarded(func(w http.ResponseWriter, r *http.Request, _ domain.User) {
				w.Header().Set("Content-Disposition", "attachment")
				files.ServeHTTP(w, r)
			}))
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// allowRate applies limiter to the caller's IP. A nil limiter always allows.
func (s *Server) allowRate(r *http.Request, limiter *ratelimit.FixedWindowLimiter, scope string) (bool, time.Duration) {
	if limiter == nil {
		return true, 0
	}
	ip := util.ClientIP(r, s.trustedProxies)
	allowed, retryAfter := limiter.Allow(r.Context(), scope, ip)
	if !allowed {
		util.LoggerFromContext(r.Context()).Warn("rate limited", "scope", scope, "client_ip", ip)
	}
	return allowed, retryAfter
}

func setRetryAfter(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}

func isAPI(r *http.Request) bool {
	return r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/")
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromRequest(r),
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// appError maps an application error to a status, a stable code and the
// message safe to show the caller. Unknown errors are logged and reported
// generically.
func appError(r *http.Request, err error) (int, string, string) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", app.ErrInvalidCredentials.Error()
	case errors.Is(err, app.ErrEmailAndPasswordRequired):
		return http.StatusBadRequest, "email_password_required", err.Error()
	case errors.Is(err, app.ErrEmailAlreadyExists):
		return http.StatusConflict, "email_exists", err.Error()
	case errors.Is(err, app.ErrRoleAssignmentFailed):
		return http.StatusInternalServerError, "role_assignment_failed", app.ErrRoleAssignmentFailed.Error()
	case errors.Is(err, app.ErrForbidden):
		return http.StatusForbidden, "forbidden", err.Error()
	case errors.Is(err, app.ErrTitleAndDescriptionRequired):
		return http.StatusBadRequest, "title_description_required", err.Error()
	case errors.Is(err, app.ErrSubmissionNotFound):
		return http.StatusNotFound, "submission_not_found", err.Error()
	case errors.Is(err, app.ErrInvalidOutcome):
		return http.StatusBadRequest, "invalid_outcome", err.Error()
	case errors.Is(err, app.ErrAlreadyDecided):
		return http.StatusConflict, "already_decided", err.Error()
	case errors.Is(err, app.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role", err.Error()
	case errors.Is(err, app.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", err.Error()
	case errors.Is(err, app.ErrCannotChangeOwnRole):
		return http.StatusBadRequest, "cannot_change_own_role", err.Error()
	case auth.IsPolicyError(err):
		return http.StatusBadRequest, "weak_password", err.Error()
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		return http.StatusInternalServerError, "internal_error", "something went wrong, please try again"
	}
}
