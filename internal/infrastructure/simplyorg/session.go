package simplyorg

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lucasjahn/simplyOrg-connector/internal/config"
	"github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/simplyorg/apierrors"
)

const tokenMarker = `name="__RequestVerificationToken"`

const defaultAuthTimeout = 10 * time.Second

// AuthSession is the transport context produced by a successful login:
// the authenticated cookie set plus the refreshed anti-forgery token.
// Consumers that see an authorization failure on a data call discard
// the session and authenticate again; the session itself never retries.
type AuthSession struct {
	Cookies []*http.Cookie
	Token   string
}

// Authenticated reports whether the session holds usable credentials.
// No I/O.
func (s *AuthSession) Authenticated() bool {
	return s != nil && s.Token != "" && len(s.Cookies) > 0
}

type SessionManager struct {
	client    *http.Client
	log       *slog.Logger
	baseURL   string
	email     string
	password  string
	loginPath string
}

func NewSessionManager(cfg config.SimplyOrg, log *slog.Logger) *SessionManager {
	timeout := cfg.AuthTimeout
	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}
	return &SessionManager{
		client: &http.Client{
			Timeout: timeout,
			// the login status must be judged raw, a followed redirect
			// would turn a rejection into a 200
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log:       log.With(slog.String("component", "session_manager")),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		email:     cfg.Email,
		password:  cfg.Password,
		loginPath: cfg.LoginPath,
	}
}

// Authenticate runs the full login handshake and returns a fresh session.
func (m *SessionManager) Authenticate(ctx context.Context) (*AuthSession, error) {
	if m.baseURL == "" || m.email == "" || m.password == "" {
		return nil, apierrors.ErrMissingCredentials
	}

	loginURL := m.baseURL + m.loginPath

	// step 1: unauthenticated GET to the login page
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return nil, &apierrors.ConnectionError{Step: "landing request", Err: err}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &apierrors.ConnectionError{Step: "landing request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apierrors.ConnectionError{Step: "landing request", Err: err}
	}

	// step 2: anti-forgery token from the page body
	bodyToken, ok := extractToken(string(body))
	if !ok {
		m.log.Warn("landing page carried no verification token", slog.Int("status", resp.StatusCode))
		return nil, apierrors.ErrTokenNotFound
	}

	// step 3: interim cookies. The login call wants the VALUE of the first
	// cookie as its header token, not a by-name lookup.
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return nil, apierrors.ErrNoSessionCookies
	}
	headerToken := cookies[0].Value

	// step 4: credential POST with the interim cookies and both tokens
	form := url.Values{}
	form.Set("__RequestVerificationToken", bodyToken)
	form.Set("Email", m.email)
	form.Set("Password", m.password)

	loginReq, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &apierrors.ConnectionError{Step: "login request", Err: err}
	}
	loginReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	loginReq.Header.Set("RequestVerificationToken", headerToken)
	for _, c := range cookies {
		loginReq.AddCookie(c)
	}

	loginResp, err := m.client.Do(loginReq)
	if err != nil {
		return nil, &apierrors.ConnectionError{Step: "login request", Err: err}
	}
	defer loginResp.Body.Close()

	// 204 No Content is the regular success answer here
	if loginResp.StatusCode != http.StatusOK && loginResp.StatusCode != http.StatusNoContent {
		m.log.Warn("login rejected", slog.Int("status", loginResp.StatusCode))
		return nil, &apierrors.LoginRejectedError{Status: loginResp.StatusCode}
	}

	// step 5: authenticated cookie set; the refreshed token again comes
	// from the first cookie value (a 204 has no body to scrape)
	authCookies := loginResp.Cookies()
	if len(authCookies) == 0 {
		return nil, apierrors.ErrNoAuthCookies
	}

	m.log.Info("authenticated against upstream",
		slog.Int("status", loginResp.StatusCode),
		slog.Int("cookies", len(authCookies)),
	)

	return &AuthSession{
		Cookies: authCookies,
		Token:   authCookies[0].Value,
	}, nil
}

// extractToken pulls the anti-forgery token out of the hidden form field
// rendered into the login page.
func extractToken(body string) (string, bool) {
	i := strings.Index(body, tokenMarker)
	if i < 0 {
		return "", false
	}
	rest := body[i+len(tokenMarker):]

	j := strings.Index(rest, `value="`)
	if j < 0 {
		return "", false
	}
	rest = rest[j+len(`value="`):]

	k := strings.IndexByte(rest, '"')
	if k <= 0 {
		return "", false
	}
	return rest[:k], true
}
