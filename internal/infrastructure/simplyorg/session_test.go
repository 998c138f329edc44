package simplyorg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/lucasjahn/simplyOrg-connector/internal/config"
	"github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/simplyorg/apierrors"
)

// upstream is a minimal stand-in for the remote seminar planner.
type upstream struct {
	mu         sync.Mutex
	dataCalls  int
	lastLogin  url.Values
	lastHeader string
	lastQuery  []byte
	lastToken  string

	landingHTML    string
	landingCookies bool
	loginStatus    int
	loginCookies   bool
	scheduleJSON   string
	scheduleCode   int
	rejectFirst    bool
}

func newUpstream() *upstream {
	return &upstream{
		landingHTML: `<form action="/Account/Login" method="post">` +
			`<input name="__RequestVerificationToken" type="hidden" value="tok-body-1" />` +
			`</form>`,
		landingCookies: true,
		loginStatus:    http.StatusNoContent,
		loginCookies:   true,
		scheduleJSON:   `{"body":[]}`,
		scheduleCode:   http.StatusOK,
	}
}

func (u *upstream) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/Account/Login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if u.landingCookies {
				http.SetCookie(w, &http.Cookie{Name: "__RequestVerificationToken", Value: "tok-cookie-1", Path: "/"})
				http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "sess-1", Path: "/"})
			}
			w.Write([]byte(u.landingHTML))
			return
		}

		r.ParseForm()
		u.mu.Lock()
		u.lastLogin = r.PostForm
		u.lastHeader = r.Header.Get("RequestVerificationToken")
		u.mu.Unlock()

		if u.loginCookies && (u.loginStatus == http.StatusOK || u.loginStatus == http.StatusNoContent) {
			http.SetCookie(w, &http.Cookie{Name: "__RequestVerificationToken", Value: "tok-cookie-2", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: ".AspNet.ApplicationCookie", Value: "auth-1", Path: "/"})
		}
		w.WriteHeader(u.loginStatus)
	})
	mux.HandleFunc("/Seminar/GetSeminarSchedule", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		u.mu.Lock()
		u.dataCalls++
		calls := u.dataCalls
		u.lastQuery = body
		u.lastToken = r.Header.Get("RequestVerificationToken")
		u.mu.Unlock()

		if u.rejectFirst && calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(u.scheduleCode)
		w.Write([]byte(u.scheduleJSON))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (u *upstream) scheduleCalls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dataCalls
}

func testConfig(baseURL string) config.SimplyOrg {
	return config.SimplyOrg{
		BaseURL:      baseURL,
		Email:        "sync@example.org",
		Password:     "secret",
		LoginPath:    "/Account/Login",
		SchedulePath: "/Seminar/GetSeminarSchedule",
		AuthTimeout:  2 * time.Second,
		FetchTimeout: 2 * time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionManager_Authenticate(t *testing.T) {
	up := newUpstream()
	srv := up.server(t)

	sm := NewSessionManager(testConfig(srv.URL), discardLogger())
	sess, err := sm.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if !sess.Authenticated() {
		t.Fatal("session must report authenticated")
	}
	if sess.Token != "tok-cookie-2" {
		t.Errorf("session token must be the first login cookie value, got %q", sess.Token)
	}
	if len(sess.Cookies) != 2 {
		t.Errorf("expected 2 auth cookies, got %d", len(sess.Cookies))
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if got := up.lastLogin.Get("__RequestVerificationToken"); got != "tok-body-1" {
		t.Errorf("login form must carry the page token, got %q", got)
	}
	if got := up.lastLogin.Get("Email"); got != "sync@example.org" {
		t.Errorf("login form email: %q", got)
	}
	if got := up.lastLogin.Get("Password"); got != "secret" {
		t.Errorf("login form password: %q", got)
	}
	if up.lastHeader != "tok-cookie-1" {
		t.Errorf("login header token must be the first landing cookie value, got %q", up.lastHeader)
	}
}

func TestSessionManager_Authenticate_Accepts200(t *testing.T) {
	up := newUpstream()
	up.loginStatus = http.StatusOK
	srv := up.server(t)

	sm := NewSessionManager(testConfig(srv.URL), discardLogger())
	if _, err := sm.Authenticate(context.Background()); err != nil {
		t.Fatalf("200 login must succeed: %v", err)
	}
}

func TestSessionManager_Authenticate_MissingCredentials(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.Email = ""

	sm := NewSessionManager(cfg, discardLogger())
	_, err := sm.Authenticate(context.Background())
	if !errors.Is(err, apierrors.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestSessionManager_Authenticate_ConnectionError(t *testing.T) {
	up := newUpstream()
	srv := up.server(t)
	srv.Close()

	sm := NewSessionManager(testConfig(srv.URL), discardLogger())
	_, err := sm.Authenticate(context.Background())

	var connErr *apierrors.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestSessionManager_Authenticate_TokenMissing(t *testing.T) {
	up := newUpstream()
	up.landingHTML = "<html><body>maintenance</body></html>"
	srv := up.server(t)

	sm := NewSessionManager(testConfig(srv.URL), discardLogger())
	_, err := sm.Authenticate(context.Background())
	if !errors.Is(err, apierrors.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestSessionManager_Authenticate_NoLandingCookies(t *testing.T) {
	up := newUpstream()
	up.landingCookies = false
	srv := up.server(t)

	sm := NewSessionManager(testConfig(srv.URL), discardLogger())
	_, err := sm.Authenticate(context.Background())
	if !errors.Is(err, apierrors.ErrNoSessionCookies) {
		t.Fatalf("expected ErrNoSessionCookies, got %v", err)
	}
}

func TestSessionManager_Authenticate_LoginRejected(t *testing.T) {
	up := newUpstream()
	up.loginStatus = http.StatusUnauthorized
	srv := up.server(t)

	sm := NewSessionManager(testConfig(srv.URL), discardLogger())
	_, err := sm.Authenticate(context.Background())

	var rejected *apierrors.LoginRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected LoginRejectedError, got %v", err)
	}
	if rejected.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401 in error, got %d", rejected.Status)
	}
}

func TestSessionManager_Authenticate_NoAuthCookies(t *testing.T) {
	up := newUpstream()
	up.loginCookies = false
	srv := up.server(t)

	sm := NewSessionManager(testConfig(srv.URL), discardLogger())
	_, err := sm.Authenticate(context.Background())
	if !errors.Is(err, apierrors.ErrNoAuthCookies) {
		t.Fatalf("expected ErrNoAuthCookies, got %v", err)
	}
}

func TestExtractToken(t *testing.T) {
	body := `<input name="__RequestVerificationToken" type="hidden" value="abc123" />`
	tok, ok := extractToken(body)
	if !ok || tok != "abc123" {
		t.Errorf("expected abc123, got %q (ok=%v)", tok, ok)
	}

	if _, ok := extractToken(`<input name="other" value="x" />`); ok {
		t.Error("missing marker must not yield a token")
	}
	if _, ok := extractToken(`<input name="__RequestVerificationToken" />`); ok {
		t.Error("marker without value must not yield a token")
	}
	if _, ok := extractToken(`<input name="__RequestVerificationToken" value="" />`); ok {
		t.Error("empty value must not yield a token")
	}
}
