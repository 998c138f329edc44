package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/bytedance/sonic"

	"github.com/lucasjahn/simplyOrg-connector/internal/domain"
)

const (
	defaultAddr = ":9010"
	fixturePath = "internal/testdata/schedule_records.json"

	acceptEmail    = "demo@example.org"
	acceptPassword = "demo"
	bodyToken      = "imit-body-token"
)

const landingPage = `<!DOCTYPE html>
<html>
<head><title>Anmelden</title></head>
<body>
<form action="/Account/Login" method="post">
<input name="__RequestVerificationToken" type="hidden" value="%s" />
<input name="Email" type="text" />
<input name="Password" type="password" />
<button type="submit">Anmelden</button>
</form>
</body>
</html>
`

var seq atomic.Uint64

func main() {
	addr := os.Getenv("IMITATION_ADDR")
	if addr == "" {
		addr = defaultAddr
	}

	records, err := loadFixture(fixturePath)
	if err != nil {
		log.Fatalf("failed to load fixture: %v", err)
	}

	payload, err := sonic.Marshal(map[string]any{"body": records})
	if err != nil {
		log.Fatalf("failed to encode schedule payload: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/Account/Login", handleLogin)
	mux.HandleFunc("/Seminar/GetSeminarSchedule", handleSchedule(payload))

	log.Printf("upstream imitation listening on %s, serving %d schedule records", addr, len(records))
	log.Printf("accepted credentials: %s / %s", acceptEmail, acceptPassword)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func loadFixture(path string) ([]domain.RawScheduleRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []domain.RawScheduleRecord
	if err := sonic.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		http.SetCookie(w, &http.Cookie{
			Name:  "__RequestVerificationToken",
			Value: fmt.Sprintf("imit-req-%d", seq.Add(1)),
			Path:  "/",
		})
		http.SetCookie(w, &http.Cookie{
			Name:  "ASP.NET_SessionId",
			Value: fmt.Sprintf("imit-sess-%d", seq.Add(1)),
			Path:  "/",
		})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, landingPage, bodyToken)

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostFormValue("__RequestVerificationToken") != bodyToken {
			http.Error(w, "anti-forgery token mismatch", http.StatusBadRequest)
			return
		}
		if r.PostFormValue("Email") != acceptEmail || r.PostFormValue("Password") != acceptPassword {
			log.Printf("login rejected for %q", r.PostFormValue("Email"))
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:  "__RequestVerificationToken",
			Value: fmt.Sprintf("imit-req-%d", seq.Add(1)),
			Path:  "/",
		})
		http.SetCookie(w, &http.Cookie{
			Name:  ".AspNet.ApplicationCookie",
			Value: fmt.Sprintf("imit-auth-%d", seq.Add(1)),
			Path:  "/",
		})
		log.Printf("login accepted for %q", acceptEmail)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleSchedule(payload []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		auth, err := r.Cookie(".AspNet.ApplicationCookie")
		if err != nil || !strings.HasPrefix(auth.Value, "imit-auth-") {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		if r.Header.Get("RequestVerificationToken") == "" {
			http.Error(w, "missing verification token", http.StatusUnauthorized)
			return
		}

		var query struct {
			View  string `json:"view"`
			Start string `json:"start"`
			End   string `json:"end"`
		}
		if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&query); err != nil {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		log.Printf("serving schedule: view=%s window=%s..%s", query.View, query.Start, query.End)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}
}
