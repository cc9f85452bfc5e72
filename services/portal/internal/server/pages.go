package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mbrodhuber/Submit-and-Review/internal/access"
	"github.com/mbrodhuber/Submit-and-Review/internal/util"
	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
	"github.com/mbrodhuber/Submit-and-Review/services/portal/internal/app"
)

const (
	sessionTokenKey = "token"
	flashKey        = "flash"
	flashErrorKey   = "flash_error"
)

type pageHandler func(w http.ResponseWriter, r *http.Request, user domain.User)

// currentUser resolves the page session to a user. Identity and role are
// looked up on every request; a token that no longer resolves is dropped.
func (s *Server) currentUser(r *http.Request) *domain.User {
	ctx := r.Context()
	token := s.sessions.GetString(ctx, sessionTokenKey)
	if token == "" {
		return nil
	}
	user, ok := s.app.Identity(ctx, token)
	if !ok {
		s.sessions.Remove(ctx, sessionTokenKey)
		return nil
	}
	return &user
}

// guarded runs the route guard for the request path before next.
func (s *Server) guarded(next pageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles, _ := access.RouteRoles(r.URL.Path)
		user := s.currentUser(r)
		decision := access.Decide(user, roles)
		if !decision.Allowed() {
			http.Redirect(w, r, decision.Location(), http.StatusSeeOther)
			return
		}
		next(w, r, *user)
	}
}

func (s *Server) flash(r *http.Request, msg string) {
	s.sessions.Put(r.Context(), flashKey, msg)
}

func (s *Server) flashError(r *http.Request, msg string) {
	s.sessions.Put(r.Context(), flashErrorKey, msg)
}

type credentialsForm struct {
	Email string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.currentUser(r) != nil {
		http.Redirect(w, r, access.DashboardPath, http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login", "Login", nil, "", credentialsForm{})
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if s.currentUser(r) != nil {
		http.Redirect(w, r, access.DashboardPath, http.StatusSeeOther)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	if ok, retryAfter := s.allowRate(r, s.loginLimiter, "login"); !ok {
		setRetryAfter(w, retryAfter)
		s.render(w, r, http.StatusTooManyRequests, "login", "Login", nil,
			"Too many login attempts. Please wait and try again.", credentialsForm{Email: email})
		return
	}
	_, token, err := s.app.SignIn(email, r.PostFormValue("password"))
	if err != nil {
		status, _, msg := appError(r, err)
		s.render(w, r, status, "login", "Login", nil, msg, credentialsForm{Email: email})
		return
	}
	if err := s.sessions.RenewToken(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Error("renew session token failed", "err", err)
		s.render(w, r, http.StatusInternalServerError, "login", "Login", nil,
			"Could not start your session. Please try again.", credentialsForm{Email: email})
		return
	}
	s.sessions.Put(r.Context(), sessionTokenKey, token)
	http.Redirect(w, r, access.DashboardPath, http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if s.currentUser(r) != nil {
		http.Redirect(w, r, access.DashboardPath, http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "register", "Register", nil, "", credentialsForm{})
}

func (s *Server) handleRegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if s.currentUser(r) != nil {
		http.Redirect(w, r, access.DashboardPath, http.StatusSeeOther)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	if ok, retryAfter := s.allowRate(r, s.signupLimiter, "signup"); !ok {
		setRetryAfter(w, retryAfter)
		s.render(w, r, http.StatusTooManyRequests, "register", "Register", nil,
			"Too many registration attempts. Please wait and try again.", credentialsForm{Email: email})
		return
	}
	if _, err := s.app.SignUp(r.Context(), email, r.PostFormValue("password")); err != nil {
		status, _, msg := appError(r, err)
		s.render(w, r, status, "register", "Register", nil, msg, credentialsForm{Email: email})
		return
	}
	s.flash(r, "Registration successful. Please sign in.")
	http.Redirect(w, r, access.LoginPath, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if token := s.sessions.GetString(ctx, sessionTokenKey); token != "" {
		if err := s.app.SignOut(token); err != nil {
			util.LoggerFromContext(ctx).Warn("sign out failed", "err", err)
		}
	}
	if err := s.sessions.RenewToken(ctx); err != nil {
		util.LoggerFromContext(ctx).Warn("renew session token failed", "err", err)
	}
	s.sessions.Remove(ctx, sessionTokenKey)
	s.flash(r, "You have been signed out.")
	http.Redirect(w, r, access.LoginPath, http.StatusSeeOther)
}

type dashboardView struct {
	Submissions []domain.Submission
	Title       string
	Description string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.renderDashboard(w, r, http.StatusOK, user, "", dashboardView{})
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, status int, user domain.User, errMsg string, view dashboardView) {
	subs, err := s.app.ListMine(user)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("list own submissions failed", "user_id", user.ID, "err", err)
		if errMsg == "" {
			errMsg = "Could not load your submissions."
		}
	}
	view.Submissions = subs
	s.render(w, r, status, "dashboard", "Dashboard", &user, errMsg, view)
}

func (s *Server) handleDashboardCreate(w http.ResponseWriter, r *http.Request, user domain.User) {
	title := r.PostFormValue("title")
	description := r.PostFormValue("description")
	if _, err := s.app.CreateMinimal(user, title, description); err != nil {
		status, _, msg := appError(r, err)
		s.renderDashboard(w, r, status, user, msg, dashboardView{Title: title, Description: description})
		return
	}
	s.flash(r, "Submission created.")
	http.Redirect(w, r, access.DashboardPath, http.StatusSeeOther)
}

func (s *Server) handleSubmitPage(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.render(w, r, http.StatusOK, "submit", "Submit Content", &user, "", app.SubmissionInput{})
}

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request, user domain.User) {
	in, cleanup, err := s.parseSubmissionForm(w, r)
	if err != nil {
		status, _, msg := formError(r, err)
		s.render(w, r, status, "submit", "Submit Content", &user, msg, in)
		return
	}
	defer cleanup()
	if _, err := s.app.Submit(r.Context(), user, in); err != nil {
		status, _, msg := appError(r, err)
		if status == http.StatusInternalServerError {
			msg = "Submission failed. Please try again."
		}
		s.render(w, r, status, "submit", "Submit Content", &user, msg, in)
		return
	}
	s.flash(r, "Submission received. It is now pending review.")
	http.Redirect(w, r, access.DashboardPath, http.StatusSeeOther)
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request, user domain.User) {
	subs, err := s.app.ListPending(r.Context())
	errMsg := ""
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("list pending submissions failed", "err", err)
		errMsg = "Could not load the review queue."
	}
	s.render(w, r, http.StatusOK, "review", "Review Queue", &user, errMsg, subs)
}

type reviewDetailView struct {
	Submission domain.Submission
	Links      app.AssetLinks
	Feedback   string
}

func (s *Server) handleReviewDetail(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.renderReviewDetail(w, r, http.StatusOK, user, "", "")
}

func (s *Server) renderReviewDetail(w http.ResponseWriter, r *http.Request, status int, user domain.User, errMsg, feedback string) {
	sub, err := s.app.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		loadStatus, _, msg := appError(r, err)
		s.render(w, r, loadStatus, "review_detail", "Review", &user, msg, nil)
		return
	}
	view := reviewDetailView{
		Submission: sub,
		Links:      s.app.Links(r.Context(), sub),
		Feedback:   feedback,
	}
	s.render(w, r, status, "review_detail", "Review: "+sub.Title, &user, errMsg, view)
}

func (s *Server) handleReviewDecide(w http.ResponseWriter, r *http.Request, user domain.User) {
	outcome := r.PostFormValue("outcome")
	feedback := r.PostFormValue("feedback")
	sub, err := s.app.Decide(r.Context(), user, chi.URLParam(r, "id"), outcome, feedback)
	if err != nil {
		status, _, msg := appError(r, err)
		s.renderReviewDetail(w, r, status, user, msg, feedback)
		return
	}
	s.flash(r, "Submission \""+sub.Title+"\" "+string(sub.Status)+".")
	http.Redirect(w, r, "/review", http.StatusSeeOther)
}

type adminView struct {
	Users  []domain.User
	SelfID string
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request, user domain.User) {
	users, err := s.app.ListUsers()
	errMsg := ""
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("list users failed", "err", err)
		errMsg = "Could not load users."
	}
	s.render(w, r, http.StatusOK, "admin", "Admin", &user, errMsg, adminView{Users: users, SelfID: user.ID})
}

func (s *Server) handleAdminSetRole(w http.ResponseWriter, r *http.Request, admin domain.User) {
	updated, err := s.app.SetRole(r.Context(), admin, chi.URLParam(r, "id"), r.PostFormValue("role"))
	if err != nil {
		_, _, msg := appError(r, err)
		s.flashError(r, "Role change failed: "+msg)
	} else {
		s.flash(r, "Role of "+updated.Email+" set to "+string(updated.Role)+".")
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}
