package simplyorg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/simplyorg/apierrors"
)

func newFetcherPair(t *testing.T, up *upstream) *Fetcher {
	t.Helper()
	srv := up.server(t)
	cfg := testConfig(srv.URL)
	sm := NewSessionManager(cfg, discardLogger())
	return NewFetcher(cfg, sm, discardLogger())
}

func TestFetcher_Fetch(t *testing.T) {
	up := newUpstream()
	up.scheduleJSON = `{"body":[
		{"eventId":100,"title":"Training Tag - 1","eventCategoryName":"Seminar","trainerName":"Jane Doe","scheduleDate":"2025-01-10"},
		{"eventId":"100","title":"Training Tag - 2","eventCategoryName":"Seminar","trainerName":"Jane Doe","scheduleDate":"2025-01-11"}
	]}`
	f := newFetcherPair(t, up)

	records, sess, err := f.Fetch(context.Background(), nil, "2025-01-01", "2025-12-31")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !sess.Authenticated() {
		t.Fatal("fetch must hand back the session it logged in with")
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// numeric and string ids must land as the same value
	if records[0].EventID != "100" || records[1].EventID != "100" {
		t.Errorf("event ids not normalized: %q, %q", records[0].EventID, records[1].EventID)
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if up.lastToken != sess.Token {
		t.Errorf("data call must carry the session token, got %q", up.lastToken)
	}

	var q scheduleQuery
	if err := sonic.Unmarshal(up.lastQuery, &q); err != nil {
		t.Fatalf("unmarshal query: %v", err)
	}
	if q.View != "month" {
		t.Errorf("query view: expected month, got %q", q.View)
	}
	if q.Start != "2025-01-01" || q.End != "2025-12-31" {
		t.Errorf("query window: %q .. %q", q.Start, q.End)
	}
	if q.EventID != -1 || q.TrainerID != -1 || q.EventCategoryID != -1 || q.LocationID != -1 {
		t.Errorf("id filters must stay open: %+v", q)
	}
}

func TestFetcher_Fetch_DefaultWindowIsCurrentYear(t *testing.T) {
	up := newUpstream()
	f := newFetcherPair(t, up)

	if _, _, err := f.Fetch(context.Background(), nil, "", ""); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	var q scheduleQuery
	if err := sonic.Unmarshal(up.lastQuery, &q); err != nil {
		t.Fatalf("unmarshal query: %v", err)
	}
	year := time.Now().Year()
	if q.Start != fmt.Sprintf("%d-01-01", year) || q.End != fmt.Sprintf("%d-12-31", year) {
		t.Errorf("default window must cover the current year: %q .. %q", q.Start, q.End)
	}
}

func TestFetcher_Fetch_AuthFailureSkipsDataCall(t *testing.T) {
	up := newUpstream()
	up.landingHTML = "<html><body>no token here</body></html>"
	f := newFetcherPair(t, up)

	_, _, err := f.Fetch(context.Background(), nil, "", "")
	if !errors.Is(err, apierrors.ErrTokenNotFound) {
		t.Fatalf("expected the authentication failure verbatim, got %v", err)
	}
	if up.scheduleCalls() != 0 {
		t.Errorf("data endpoint must not be called after a failed login, got %d calls", up.scheduleCalls())
	}
}

func TestFetcher_Fetch_ReusesGivenSession(t *testing.T) {
	up := newUpstream()
	f := newFetcherPair(t, up)

	sess := &AuthSession{
		Cookies: []*http.Cookie{{Name: ".AspNet.ApplicationCookie", Value: "auth-1"}},
		Token:   "tok-cookie-2",
	}

	_, got, err := f.Fetch(context.Background(), sess, "2025-01-01", "2025-12-31")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != sess {
		t.Error("an authenticated session must be reused as-is")
	}
}

func TestFetcher_Fetch_RebuildsStaleSession(t *testing.T) {
	up := newUpstream()
	up.rejectFirst = true
	f := newFetcherPair(t, up)

	stale := &AuthSession{
		Cookies: []*http.Cookie{{Name: ".AspNet.ApplicationCookie", Value: "expired"}},
		Token:   "expired",
	}

	_, sess, err := f.Fetch(context.Background(), stale, "2025-01-01", "2025-12-31")
	if err != nil {
		t.Fatalf("fetch after rebuild: %v", err)
	}
	if sess == stale || sess.Token != "tok-cookie-2" {
		t.Errorf("expected a rebuilt session, got token %q", sess.Token)
	}
	if up.scheduleCalls() != 2 {
		t.Errorf("expected exactly one repeat of the data call, got %d calls", up.scheduleCalls())
	}
}

func TestFetcher_Fetch_UnexpectedStatus(t *testing.T) {
	up := newUpstream()
	up.scheduleCode = http.StatusInternalServerError
	f := newFetcherPair(t, up)

	_, _, err := f.Fetch(context.Background(), nil, "", "")

	var statusErr *apierrors.UnexpectedStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected UnexpectedStatusError, got %v", err)
	}
	if statusErr.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500 in error, got %d", statusErr.Status)
	}
}

func TestFetcher_Fetch_DecodeError(t *testing.T) {
	up := newUpstream()
	up.scheduleJSON = `{"body":`
	f := newFetcherPair(t, up)

	_, _, err := f.Fetch(context.Background(), nil, "", "")

	var decodeErr *apierrors.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestFetcher_Fetch_EmptyBody(t *testing.T) {
	up := newUpstream()
	up.scheduleJSON = `{"body":[]}`
	f := newFetcherPair(t, up)

	records, _, err := f.Fetch(context.Background(), nil, "", "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestYearWindow(t *testing.T) {
	now := time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

	start, end := YearWindow(now, 1)
	if start != "2025-01-01" || end != "2025-12-31" {
		t.Errorf("one year: %q .. %q", start, end)
	}

	start, end = YearWindow(now, 2)
	if start != "2025-01-01" || end != "2026-12-31" {
		t.Errorf("two years: %q .. %q", start, end)
	}

	start, end = YearWindow(now, 0)
	if start != "2025-01-01" || end != "2025-12-31" {
		t.Errorf("zero years must behave like one: %q .. %q", start, end)
	}
}
