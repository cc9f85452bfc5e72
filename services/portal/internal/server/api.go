package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mbrodhuber/Submit-and-Review/internal/access"
	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
)

type authHandler func(w http.ResponseWriter, r *http.Request, user domain.User)

// authenticated resolves the bearer token to a user on every request.
func (s *Server) authenticated(next authHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		user, ok := s.app.Identity(r.Context(), token)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		next(w, r, user)
	}
}

// withRoles is the API form of the page guard: 401 without a user, 403 for a
// role outside roles.
func (s *Server) withRoles(roles []domain.Role, next authHandler) http.HandlerFunc {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !access.Decide(&user, roles).Allowed() {
			writeError(w, r, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		next(w, r, user)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		slog.Warn("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return token, true
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := appError(r, err)
	writeError(w, r, status, code, msg)
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expiresIn,omitempty"`
	User      userResponse `json:"user"`
}

type userResponse struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: u.Role}
}

func (s *Server) handleAPISignup(w http.ResponseWriter, r *http.Request) {
	if ok, retryAfter := s.allowRate(r, s.signupLimiter, "signup"); !ok {
		setRetryAfter(w, retryAfter)
		writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many sign-up attempts, please retry later")
		return
	}
	var req authRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	user, err := s.app.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	if ok, retryAfter := s.allowRate(r, s.loginLimiter, "login"); !ok {
		setRetryAfter(w, retryAfter)
		writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many login attempts, please retry later")
		return
	}
	var req authRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	user, token, err := s.app.SignIn(req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{
		Token:     token,
		ExpiresIn: int64(s.app.SessionTTL().Seconds()),
		User:      toUserResponse(user),
	})
}

func (s *Server) handleAPILogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if err := s.app.SignOut(token); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAPIMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleAPIListSubmissions(w http.ResponseWriter, r *http.Request, user domain.User) {
	subs, err := s.app.ListMine(user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

type minimalSubmissionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// handleAPICreateSubmission accepts either the multipart submission form or a
// JSON body with just a title and description.
func (s *Server) handleAPICreateSubmission(w http.ResponseWriter, r *http.Request, user domain.User) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, cleanup, err := s.parseSubmissionForm(w, r)
		if err != nil {
			status, code, msg := formError(r, err)
			writeError(w, r, status, code, msg)
			return
		}
		defer cleanup()
		sub, err := s.app.Submit(r.Context(), user, in)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
		return
	}
	var req minimalSubmissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	sub, err := s.app.CreateMinimal(user, req.Title, req.Description)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleAPIReviewQueue(w http.ResponseWriter, r *http.Request, _ domain.User) {
	subs, err := s.app.ListPending(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

type assetLinksResponse struct {
	MainZip  string   `json:"mainZip,omitempty"`
	Cover    string   `json:"cover,omitempty"`
	Previews []string `json:"previews,omitempty"`
}

type reviewDetailResponse struct {
	Submission domain.Submission  `json:"submission"`
	Links      assetLinksResponse `json:"links"`
}

func (s *Server) handleAPIReviewDetail(w http.ResponseWriter, r *http.Request, _ domain.User) {
	sub, err := s.app.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	links := s.app.Links(r.Context(), sub)
	writeJSON(w, http.StatusOK, reviewDetailResponse{
		Submission: sub,
		Links: assetLinksResponse{
			MainZip:  links.MainZip,
			Cover:    links.Cover,
			Previews: links.Previews,
		},
	})
}

type decisionRequest struct {
	Outcome  string `json:"outcome"`
	Feedback string `json:"feedback"`
}

func (s *Server) handleAPIDecide(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	sub, err := s.app.Decide(r.Context(), user, chi.URLParam(r, "id"), req.Outcome, req.Feedback)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleAPIListUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	users, err := s.app.ListUsers()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": resp})
}

type roleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleAPISetRole(w http.ResponseWriter, r *http.Request, admin domain.User) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}
	user, err := s.app.SetRole(r.Context(), admin, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// formError maps a submission form parse failure.
func formError(r *http.Request, err error) (int, string, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "upload_too_large", "upload is too large"
	case errors.Is(err, errInvalidPolycount):
		return http.StatusBadRequest, "invalid_polycount", err.Error()
	default:
		return http.StatusBadRequest, "invalid_form", "invalid submission form"
	}
}
