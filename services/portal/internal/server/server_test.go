package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrodhuber/Submit-and-Review/internal/metrics"
	"github.com/mbrodhuber/Submit-and-Review/internal/ratelimit"
	"github.com/mbrodhuber/Submit-and-Review/pkg/domain"
	"github.com/mbrodhuber/Submit-and-Review/pkg/store"
	"github.com/mbrodhuber/Submit-and-Review/services/portal/internal/app"
)

const testPassword = "password123"

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func sessionStore(t *testing.T) *store.JWTSessionStore {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	s, err := store.NewJWTRS256SessionStore(testKey, "test", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	require.NoError(t, err)
	return s
}

type testServer struct {
	srv   *httptest.Server
	app   *app.App
	store *store.MemoryStore
	dir   string
}

func newTestServer(t *testing.T, configure ...func(*Config)) *testServer {
	t.Helper()
	mem := store.NewMemoryStore()
	dir := t.TempDir()
	a, err := app.New(app.Config{
		Store:      mem,
		Sessions:   sessionStore(t),
		StorageDir: dir,
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	cfg := Config{
		App:     a,
		Metrics: metrics.NewWithRegistry(reg, reg),
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, app: a, store: mem, dir: dir}
}

func (ts *testServer) createUser(t *testing.T, email string, role domain.Role) domain.User {
	t.Helper()
	u, err := ts.app.SignUp(context.Background(), email, testPassword)
	require.NoError(t, err)
	if role != domain.RoleAuthor {
		require.NoError(t, ts.store.AssignRole(u.ID, role))
		u.Role = role
	}
	return u
}

// browser returns a client that keeps cookies and does not follow redirects.
func (ts *testServer) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (ts *testServer) login(t *testing.T, c *http.Client, email string) {
	t.Helper()
	resp := ts.postForm(t, c, "/login", url.Values{"email": {email}, "password": {testPassword}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func (ts *testServer) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(ts.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (ts *testServer) postForm(t *testing.T, c *http.Client, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(ts.srv.URL+path, form)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func (ts *testServer) postFormBody(t *testing.T, c *http.Client, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := c.PostForm(ts.srv.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

type filePart struct {
	field, name, body string
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = io.WriteString(w, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	c := ts.srv.Client()

	resp, body := ts.get(t, c, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp, body = ts.get(t, c, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "portal_http_request_duration_seconds")
}

func TestPageGuardRedirects(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "author@example.com", domain.RoleAuthor)
	ts.createUser(t, "reviewer@example.com", domain.RoleReviewer)
	ts.createUser(t, "admin@example.com", domain.RoleAdmin)

	anon := ts.browser(t)
	for _, path := range []string{"/dashboard", "/submit", "/review", "/review/abc", "/admin"} {
		resp, _ := ts.get(t, anon, path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}

	cases := []struct {
		email string
		path  string
		want  string
	}{
		{"author@example.com", "/dashboard", ""},
		{"author@example.com", "/submit", ""},
		{"author@example.com", "/review", "/dashboard"},
		{"author@example.com", "/admin", "/dashboard"},
		{"reviewer@example.com", "/review", ""},
		{"reviewer@example.com", "/admin", "/dashboard"},
		{"admin@example.com", "/review", ""},
		{"admin@example.com", "/admin", ""},
		{"admin@example.com", "/login", "/dashboard"},
		{"admin@example.com", "/register", "/dashboard"},
		{"admin@example.com", "/", "/dashboard"},
	}
	clients := map[string]*http.Client{}
	for _, tc := range cases {
		c, ok := clients[tc.email]
		if !ok {
			c = ts.browser(t)
			ts.login(t, c, tc.email)
			clients[tc.email] = c
		}
		resp, _ := ts.get(t, c, tc.path)
		if tc.want == "" {
			assert.Equal(t, http.StatusOK, resp.StatusCode, "%s %s", tc.email, tc.path)
			continue
		}
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, "%s %s", tc.email, tc.path)
		assert.Equal(t, tc.want, resp.Header.Get("Location"), "%s %s", tc.email, tc.path)
	}
}

func TestNavigationFollowsRole(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "author@example.com", domain.RoleAuthor)
	ts.createUser(t, "admin@example.com", domain.RoleAdmin)

	author := ts.browser(t)
	ts.login(t, author, "author@example.com")
	_, body := ts.get(t, author, "/dashboard")
	assert.Contains(t, body, `href="/submit"`)
	assert.NotContains(t, body, `href="/review"`)
	assert.NotContains(t, body, `href="/admin"`)

	admin := ts.browser(t)
	ts.login(t, admin, "admin@example.com")
	_, body = ts.get(t, admin, "/dashboard")
	assert.Contains(t, body, `href="/review"`)
	assert.Contains(t, body, `href="/admin"`)
}

func TestRegisterAndLoginPages(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)

	resp := ts.postForm(t, c, "/register", url.Values{"email": {"new@example.com"}, "password": {testPassword}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	_, body := ts.get(t, c, "/login")
	assert.Contains(t, body, "Registration successful")

	resp, body = ts.postFormBody(t, c, "/register", url.Values{"email": {"new@example.com"}, "password": {testPassword}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "User already registered")

	resp, body = ts.postFormBody(t, c, "/login", url.Values{"email": {"new@example.com"}, "password": {"wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid login credentials")
	assert.Contains(t, body, `value="new@example.com"`)

	ts.login(t, c, "new@example.com")
	resp, body = ts.get(t, c, "/dashboard")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "new@example.com (author)")
}

func TestLogoutEndsSession(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "author@example.com", domain.RoleAuthor)
	c := ts.browser(t)
	ts.login(t, c, "author@example.com")

	resp := ts.postForm(t, c, "/logout", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = ts.get(t, c, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestDashboardMinimalCreate(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "author@example.com", domain.RoleAuthor)
	c := ts.browser(t)
	ts.login(t, c, "author@example.com")

	resp, body := ts.postFormBody(t, c, "/dashboard", url.Values{"title": {"  "}, "description": {"x"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "title and description required")

	resp = ts.postForm(t, c, "/dashboard", url.Values{"title": {"Robot"}, "description": {"A small robot"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = ts.get(t, c, "/dashboard")
	assert.Contains(t, body, "Submission created.")
	assert.Contains(t, body, "Robot")
	assert.Contains(t, body, "bg-yellow-500")
}

func submitForm(t *testing.T, ts *testServer, c *http.Client, title string) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t,
		map[string]string{
			"title":       title,
			"description": "Low poly asset",
			"tags":        "robot, sci-fi",
			"polycount":   "1200",
			"rigging":     "on",
		},
		filePart{"mainZip", "asset.zip", "zip-bytes"},
		filePart{"coverImage", "cover.png", "cover-bytes"},
		filePart{"previews", "one.png", "p1"},
		filePart{"previews", "two.png", "p2"},
	)
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/submit", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := c.Do(req)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func TestSubmitFormStoresAssetsAndRow(t *testing.T) {
	ts := newTestServer(t)
	author := ts.createUser(t, "author@example.com", domain.RoleAuthor)
	c := ts.browser(t)
	ts.login(t, c, "author@example.com")

	resp := submitForm(t, ts, c, "Space Robot")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	subs, err := ts.store.ListSubmissionsByOwner(author.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	sub := subs[0]
	assert.Equal(t, domain.StatusPending, sub.Status)
	assert.True(t, sub.Rigging)
	require.NotNil(t, sub.Polycount)
	assert.Equal(t, int64(1200), *sub.Polycount)
	assert.True(t, strings.HasPrefix(sub.MainZipPath, "main_zips/space-robot-"), sub.MainZipPath)
	require.Len(t, sub.PreviewPaths, 2)
	assert.True(t, strings.HasSuffix(sub.PreviewPaths[0], "/one.png"))
	assert.True(t, strings.HasSuffix(sub.PreviewPaths[1], "/two.png"))

	data, err := os.ReadFile(filepath.Join(ts.dir, filepath.FromSlash(sub.MainZipPath)))
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", string(data))

	_, body := ts.get(t, c, "/dashboard")
	assert.Contains(t, body, "pending review")
	assert.Contains(t, body, "Space Robot")
}

func TestSubmitFormRejectsBadPolycount(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "author@example.com", domain.RoleAuthor)
	c := ts.browser(t)
	ts.login(t, c, "author@example.com")

	body, contentType := multipartBody(t, map[string]string{
		"title": "Thing", "description": "d", "polycount": "lots",
	})
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/submit", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	page, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(page), "polycount must be a whole number")
}

var mainZipLink = regexp.MustCompile(`href="(/files/main_zips/[^"]+)"`)

func TestReviewDecisionFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "author@example.com", domain.RoleAuthor)
	ts.createUser(t, "reviewer@example.com", domain.RoleReviewer)

	author := ts.browser(t)
	ts.login(t, author, "author@example.com")
	require.Equal(t, http.StatusSeeOther, submitForm(t, ts, author, "Space Robot").StatusCode)

	pending, err := ts.store.ListSubmissionsByStatus(domain.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	id := pending[0].ID

	reviewer := ts.browser(t)
	ts.login(t, reviewer, "reviewer@example.com")
	_, body := ts.get(t, reviewer, "/review")
	assert.Contains(t, body, "author@example.com")
	assert.Contains(t, body, "/review/"+id)

	_, body = ts.get(t, reviewer, "/review/"+id)
	m := mainZipLink.FindStringSubmatch(body)
	require.Len(t, m, 2, "detail page links the main archive")
	resp, data := ts.get(t, reviewer, m[1])
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "zip-bytes", data)

	anon := ts.browser(t)
	resp, _ = ts.get(t, anon, m[1])
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = ts.postForm(t, reviewer, "/review/"+id, url.Values{"outcome": {"approved"}, "feedback": {"Great work"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/review", resp.Header.Get("Location"))

	got, ok, err := ts.store.GetSubmission(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusApproved, got.Status)
	assert.Equal(t, "Great work", got.ReviewerFeedback)

	_, body = ts.get(t, reviewer, "/review")
	assert.Contains(t, body, "approved")
	assert.NotContains(t, body, "/review/"+id)

	resp, body = ts.postFormBody(t, reviewer, "/review/"+id, url.Values{"outcome": {"rejected"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "already been reviewed")

	_, body = ts.get(t, author, "/dashboard")
	assert.Contains(t, body, "bg-green-500")
	assert.Contains(t, body, "Great work")
}

func TestReviewDetailUnknownSubmission(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "reviewer@example.com", domain.RoleReviewer)
	c := ts.browser(t)
	ts.login(t, c, "reviewer@example.com")

	resp, body := ts.get(t, c, "/review/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "submission not found")
}

func TestAdminRoleChangeAppliesOnNextRequest(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.createUser(t, "admin@example.com", domain.RoleAdmin)
	rev := ts.createUser(t, "reviewer@example.com", domain.RoleReviewer)

	reviewer := ts.browser(t)
	ts.login(t, reviewer, "reviewer@example.com")
	resp, _ := ts.get(t, reviewer, "/review")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ac := ts.browser(t)
	ts.login(t, ac, "admin@example.com")
	_, body := ts.get(t, ac, "/admin")
	assert.Contains(t, body, "reviewer@example.com")
	assert.Contains(t, body, "/admin/users/"+rev.ID+"/role")
	assert.NotContains(t, body, "/admin/users/"+admin.ID+"/role")

	resp = ts.postForm(t, ac, "/admin/users/"+rev.ID+"/role", url.Values{"role": {"author"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = ts.get(t, ac, "/admin")
	assert.Contains(t, body, "Role of reviewer@example.com set to author.")

	resp, _ = ts.get(t, reviewer, "/review")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	u, _, err := ts.store.GetUserByID(admin.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role, "only the target user changes")
}

func TestAdminRoleChangeErrorsAreShown(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.createUser(t, "admin@example.com", domain.RoleAdmin)
	other := ts.createUser(t, "other@example.com", domain.RoleAuthor)
	c := ts.browser(t)
	ts.login(t, c, "admin@example.com")

	ts.postForm(t, c, "/admin/users/"+admin.ID+"/role", url.Values{"role": {"author"}})
	_, body := ts.get(t, c, "/admin")
	assert.Contains(t, body, "Role change failed: cannot change own role")

	ts.postForm(t, c, "/admin/users/"+other.ID+"/role", url.Values{"role": {"owner"}})
	_, body = ts.get(t, c, "/admin")
	assert.Contains(t, body, "Role change failed: role must be author, reviewer or admin")
}

func doJSON(t *testing.T, ts *testServer, method, path, token string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func apiLogin(t *testing.T, ts *testServer, email string) string {
	t.Helper()
	resp, out := doJSON(t, ts, http.MethodPost, "/api/auth/login", "", authRequest{Email: email, Password: testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	token, _ := out["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestAPIAuthAndSubmissions(t *testing.T) {
	ts := newTestServer(t)

	resp, out := doJSON(t, ts, http.MethodPost, "/api/auth/signup", "", authRequest{Email: "api@example.com", Password: testPassword})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "author", out["role"])

	resp, out = doJSON(t, ts, http.MethodPost, "/api/auth/login", "", authRequest{Email: "api@example.com", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", out["code"])
	assert.NotEmpty(t, out["requestId"])

	token := apiLogin(t, ts, "api@example.com")

	resp, out = doJSON(t, ts, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "api@example.com", out["email"])

	resp, out = doJSON(t, ts, http.MethodPost, "/api/submissions", token, minimalSubmissionRequest{Title: "Chair", Description: "Wooden"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", out["status"])

	resp, out = doJSON(t, ts, http.MethodGet, "/api/submissions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	subs, _ := out["submissions"].([]any)
	assert.Len(t, subs, 1)

	resp, _ = doJSON(t, ts, http.MethodGet, "/api/review", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = doJSON(t, ts, http.MethodGet, "/api/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, ts, http.MethodPost, "/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, out = doJSON(t, ts, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", out["code"])
}

func TestAPIMultipartSubmission(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "author@example.com", domain.RoleAuthor)
	token := apiLogin(t, ts, "author@example.com")

	body, contentType := multipartBody(t,
		map[string]string{"title": "Lamp", "description": "Desk lamp"},
		filePart{"mainZip", "lamp.zip", "zip"},
	)
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/submissions", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sub domain.Submission
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	assert.True(t, strings.HasPrefix(sub.MainZipPath, "main_zips/lamp-"))
	assert.True(t, strings.HasSuffix(sub.MainZipPath, "/lamp.zip"))
}

func TestAPIUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.MaxUploadBytes = 1024 })
	ts.createUser(t, "author@example.com", domain.RoleAuthor)
	token := apiLogin(t, ts, "author@example.com")

	body, contentType := multipartBody(t,
		map[string]string{"title": "Big", "description": "Too big"},
		filePart{"mainZip", "big.zip", strings.Repeat("x", 4096)},
	)
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/submissions", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestAPIReviewAndAdmin(t *testing.T) {
	ts := newTestServer(t)
	author := ts.createUser(t, "author@example.com", domain.RoleAuthor)
	ts.createUser(t, "admin@example.com", domain.RoleAdmin)
	sub, err := ts.app.CreateMinimal(author, "Tree", "Pine tree")
	require.NoError(t, err)

	token := apiLogin(t, ts, "admin@example.com")

	resp, out := doJSON(t, ts, http.MethodGet, "/api/review", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	queue, _ := out["submissions"].([]any)
	require.Len(t, queue, 1)
	first, _ := queue[0].(map[string]any)
	assert.Equal(t, "author@example.com", first["authorEmail"])

	resp, out = doJSON(t, ts, http.MethodGet, "/api/review/"+sub.ID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out, "links")

	resp, out = doJSON(t, ts, http.MethodPost, "/api/review/"+sub.ID+"/decision", token, decisionRequest{Outcome: "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_outcome", out["code"])

	resp, out = doJSON(t, ts, http.MethodPost, "/api/review/"+sub.ID+"/decision", token, decisionRequest{Outcome: "rejected", Feedback: "Needs textures"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rejected", out["status"])
	assert.Equal(t, "Needs textures", out["reviewerFeedback"])

	resp, out = doJSON(t, ts, http.MethodPost, "/api/review/"+sub.ID+"/decision", token, decisionRequest{Outcome: "approved"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_decided", out["code"])

	resp, out = doJSON(t, ts, http.MethodGet, "/api/admin/users", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users, _ := out["users"].([]any)
	assert.Len(t, users, 2)

	resp, out = doJSON(t, ts, http.MethodPatch, "/api/admin/users/"+author.ID, token, roleRequest{Role: "reviewer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reviewer", out["role"])

	resp, out = doJSON(t, ts, http.MethodPatch, "/api/admin/users/missing", token, roleRequest{Role: "reviewer"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "user_not_found", out["code"])

	resp, out = doJSON(t, ts, http.MethodPut, "/api/admin/users/"+author.ID, token, roleRequest{Role: "reviewer"})
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "method_not_allowed", out["code"])
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(mr.Addr(), "", "test", 2, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	ts := newTestServer(t, func(c *Config) { c.LoginLimiter = limiter })
	ts.createUser(t, "author@example.com", domain.RoleAuthor)

	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, ts, http.MethodPost, "/api/auth/login", "", authRequest{Email: "author@example.com", Password: "wrong-pass"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, out := doJSON(t, ts, http.MethodPost, "/api/auth/login", "", authRequest{Email: "author@example.com", Password: testPassword})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", out["code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	c := ts.browser(t)
	resp, body := ts.postFormBody(t, c, "/login", url.Values{"email": {"author@example.com"}, "password": {testPassword}})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, body, "Too many login attempts")
}
