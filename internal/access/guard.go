// Package access decides which pages a user may see and which navigation
// entries they are offered. Decisions are pure and re-evaluated per request.
package access

import (
	"strings"

	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
)

// Outcome is the result of guarding a route.
type Outcome int

const (
	Render Outcome = iota
	RedirectLogin
	RedirectDashboard
)

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// Decision wraps an Outcome with its redirect target.
type Decision struct {
	Outcome Outcome
}

// Location is the redirect target, or "" when the page should render.
func (d Decision) Location() string {
	switch d.Outcome {
	case RedirectLogin:
		return LoginPath
	case RedirectDashboard:
		return DashboardPath
	default:
		return ""
	}
}

// Allowed reports whether the page should render.
func (d Decision) Allowed() bool {
	return d.Outcome == Render
}

// Decide guards a page. A nil user is sent to login. An empty allowed list admits
// any authenticated user; otherwise the user's role must be listed, and a user
// whose role could not be resolved never matches.
func Decide(user *domain.User, allowed []domain.Role) Decision {
	if user == nil {
		return Decision{Outcome: RedirectLogin}
	}
	if len(allowed) == 0 {
		return Decision{Outcome: Render}
	}
	if user.HasRole(allowed...) {
		return Decision{Outcome: Render}
	}
	return Decision{Outcome: RedirectDashboard}
}

var (
	anyUser      []domain.Role
	reviewRoles  = []domain.Role{domain.RoleReviewer, domain.RoleAdmin}
	adminRoles   = []domain.Role{domain.RoleAdmin}
	guardedPaths = []struct {
		prefix string
		roles  []domain.Role
	}{
		{"/dashboard", anyUser},
		{"/submit", anyUser},
		{"/review", reviewRoles},
		{"/admin", adminRoles},
	}
)

// ReviewRoles may use the review queue and decision pages.
func ReviewRoles() []domain.Role { return append([]domain.Role(nil), reviewRoles...) }

// AdminRoles may manage user roles.
func AdminRoles() []domain.Role { return append([]domain.Role(nil), adminRoles...) }

// RouteRoles returns the roles allowed on a guarded page path. ok is false for
// public paths.
func RouteRoles(path string) (roles []domain.Role, ok bool) {
	for _, g := range guardedPaths {
		if path == g.prefix || strings.HasPrefix(path, g.prefix+"/") {
			return g.roles, true
		}
	}
	return nil, false
}

// NavLink is one entry of the top navigation.
type NavLink struct {
	Label string
	Path  string
}

// NavLinks lists the navigation visible to user; nil means anonymous.
func NavLinks(user *domain.User) []NavLink {
	if user == nil {
		return []NavLink{
			{Label: "Login", Path: LoginPath},
			{Label: "Register", Path: "/register"},
		}
	}
	links := []NavLink{
		{Label: "Dashboard", Path: DashboardPath},
		{Label: "Submit Content", Path: "/submit"},
	}
	if user.HasRole(reviewRoles...) {
		links = append(links, NavLink{Label: "Review", Path: "/review"})
	}
	if user.HasRole(adminRoles...) {
		links = append(links, NavLink{Label: "Admin", Path: "/admin"})
	}
	return links
}
