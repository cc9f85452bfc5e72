package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/mbrodhuber/Submit-and-Review/internal/access"
	"github.com/mbrodhuber/Submit-and-Review/internal/util"
	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"login",
	"register",
	"dashboard",
	"submit",
	"review",
	"review_detail",
	"admin",
}

type pageTemplates struct {
	byName map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"statusColor": domain.StatusColor,
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
	"deref": func(n *int64) string {
		if n == nil {
			return ""
		}
		return fmt.Sprintf("%d", *n)
	},
	"roles": func() []domain.Role { return domain.Roles },
	"add":   func(a, b int) int { return a + b },
}

func parsePageTemplates() (*pageTemplates, error) {
	p := &pageTemplates{byName: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		p.byName[name] = t
	}
	return p, nil
}

type pageData struct {
	Title      string
	User       *domain.User
	Nav        []access.NavLink
	Flash      string
	FlashError string
	Error      string
	Data       any
}

// render executes a page into a buffer so a template failure never leaves a
// half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, user *domain.User, errMsg string, data any) {
	t, ok := s.pages.byName[name]
	if !ok {
		util.LoggerFromContext(r.Context()).Error("unknown page template", "name", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	page := pageData{
		Title:      title,
		User:       user,
		Nav:        access.NavLinks(user),
		Flash:      s.sessions.PopString(ctx, flashKey),
		FlashError: s.sessions.PopString(ctx, flashErrorKey),
		Error:      errMsg,
		Data:       data,
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page); err != nil {
		util.LoggerFromContext(ctx).Error("render page failed", "name", name, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
