package simplyorg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lucasjahn/simplyOrg-connector/internal/config"
	"github.com/lucasjahn/simplyOrg-connector/internal/domain"
	"github.com/lucasjahn/simplyOrg-connector/internal/infrastructure/simplyorg/apierrors"
)

const defaultFetchTimeout = 60 * time.Second

// noFilter is the sentinel the schedule endpoint expects for "all of them"
// on its id filter fields.
const noFilter = -1

type scheduleQuery struct {
	EventID         int    `json:"eventId"`
	TrainerID       int    `json:"trainerId"`
	EventCategoryID int    `json:"eventCategoryId"`
	LocationID      int    `json:"locationId"`
	View            string `json:"view"`
	Start           string `json:"start"`
	End             string `json:"end"`
}

type scheduleEnvelope struct {
	Body []domain.RawScheduleRecord `json:"body"`
}

// Fetcher retrieves raw schedule records for a date window. It carries no
// session state of its own; the caller owns the AuthSession and gets the
// one actually used back from Fetch.
type Fetcher struct {
	client      *http.Client
	sessions    *SessionManager
	log         *slog.Logger
	scheduleURL string
}

func NewFetcher(cfg config.SimplyOrg, sessions *SessionManager, log *slog.Logger) *Fetcher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		sessions:    sessions,
		log:         log.With(slog.String("component", "schedule_fetcher")),
		scheduleURL: strings.TrimRight(cfg.BaseURL, "/") + cfg.SchedulePath,
	}
}

// Fetch returns the raw schedule records between startDate and endDate
// (date-only strings, both inclusive). An unauthenticated or nil session
// is logged in first; authentication failures are returned as-is. Empty
// bounds default to the current calendar year.
func (f *Fetcher) Fetch(ctx context.Context, sess *AuthSession, startDate, endDate string) ([]domain.RawScheduleRecord, *AuthSession, error) {
	fresh := false
	if !sess.Authenticated() {
		s, err := f.sessions.Authenticate(ctx)
		if err != nil {
			return nil, nil, err
		}
		sess, fresh = s, true
	}

	if startDate == "" || endDate == "" {
		startDate, endDate = YearWindow(time.Now(), 1)
	}

	records, err := f.query(ctx, sess, startDate, endDate)
	if !fresh && isAuthRejected(err) {
		// stale cookies, rebuild the session once and repeat the call
		s, aerr := f.sessions.Authenticate(ctx)
		if aerr != nil {
			return nil, nil, aerr
		}
		sess = s
		records, err = f.query(ctx, sess, startDate, endDate)
	}
	if err != nil {
		return nil, nil, err
	}

	f.log.Info("schedule window fetched",
		slog.String("start", startDate),
		slog.String("end", endDate),
		slog.Int("records", len(records)),
	)
	return records, sess, nil
}

func (f *Fetcher) query(ctx context.Context, sess *AuthSession, startDate, endDate string) ([]domain.RawScheduleRecord, error) {
	payload, err := sonic.Marshal(scheduleQuery{
		EventID:         noFilter,
		TrainerID:       noFilter,
		EventCategoryID: noFilter,
		LocationID:      noFilter,
		View:            "month",
		Start:           startDate,
		End:             endDate,
	})
	if err != nil {
		return nil, &apierrors.TransportError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.scheduleURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &apierrors.TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("RequestVerificationToken", sess.Token)
	for _, c := range sess.Cookies {
		req.AddCookie(c)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &apierrors.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &apierrors.UnexpectedStatusError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apierrors.TransportError{Err: err}
	}

	var env scheduleEnvelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, &apierrors.DecodeError{Err: err}
	}
	return env.Body, nil
}

// isAuthRejected classifies a data-call error as "the upstream no longer
// accepts these cookies".
func isAuthRejected(err error) bool {
	var statusErr *apierrors.UnexpectedStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == http.StatusUnauthorized || statusErr.Status == http.StatusForbidden
	}
	return false
}

// YearWindow returns the first day of now's calendar year and the last day
// of the year years-1 after it, as date-only strings.
func YearWindow(now time.Time, years uint) (start, end string) {
	if years == 0 {
		years = 1
	}
	y := now.Year()
	start = fmt.Sprintf("%04d-01-01", y)
	end = fmt.Sprintf("%04d-12-31", y+int(years)-1)
	return
}
