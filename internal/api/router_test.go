package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/weewoocad/accounts/internal/core/ports"
	"github.com/weewoocad/accounts/internal/core/service"
	"github.com/weewoocad/accounts/internal/infrastructure/http/handlers"
	"github.com/weewoocad/accounts/internal/infrastructure/store/file"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []ports.VerificationMessage
}

func (n *captureNotifier) SendVerification(_ context.Context, msg ports.VerificationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) last(t *testing.T) ports.VerificationMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatalf("no verification message sent")
	}
	return n.sent[len(n.sent)-1]
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	svc      *service.AccountService
	notifier *captureNotifier
}

func newTestServer(t *testing.T, autoConfirm bool) *testServer {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>login</h1>"), 0o644); err != nil {
		t.Fatalf("write static file: %v", err)
	}

	store := file.NewStore(filepath.Join(dir, "db.json"), zerolog.Nop())
	notifier := &captureNotifier{}
	svc := service.NewAccountService(
		store,
		service.NewBcryptCredentials(bcrypt.MinCost),
		service.NewTokenIssuer(time.Hour, nil),
		notifier,
		service.Options{AutoConfirm: autoConfirm},
		zerolog.Nop(),
	)

	e := NewRouter(RouterDeps{
		Accounts:        svc,
		Readiness:       map[string]handlers.Pinger{"store": store},
		ConfirmRedirect: "/serverview-index.html",
		StaticDir:       dir,
		Log:             zerolog.Nop(),
	})
	return &testServer{t: t, handler: e, svc: svc, notifier: notifier}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return body.Message
}

func TestRouter_VerificationFlow(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(http.MethodPost, "/register", `{"username":"bob","email":"bob@x.com","password":"s3cret"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	s.svc.Wait()

	rec = s.do(http.MethodPost, "/login", `{"user":"bob","password":"s3cret"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("login before confirm: expected 403, got %d", rec.Code)
	}

	token := s.notifier.last(t).Token
	rec = s.do(http.MethodGet, "/confirm?token="+token, "")
	if rec.Code != http.StatusFound {
		t.Fatalf("confirm: expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/serverview-index.html" {
		t.Fatalf("confirm: unexpected redirect %q", loc)
	}

	rec = s.do(http.MethodGet, "/confirm?token="+token, "")
	if rec.Code != http.StatusBadRequest || decodeMessage(t, rec) != "Ungültiger Token" {
		t.Fatalf("reused token: expected 400 Ungültiger Token, got %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/login", `{"user":"bob@x.com","password":"s3cret"}`)
	if rec.Code != http.StatusOK || decodeMessage(t, rec) != "OK" {
		t.Fatalf("login: expected 200 OK, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_ErrorStatuses(t *testing.T) {
	s := newTestServer(t, true)
	s.do(http.MethodPost, "/register", `{"username":"alice","email":"alice@x.com","password":"pw123"}`)

	cases := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"duplicate", http.MethodPost, "/register", `{"username":"alice","email":"new@x.com","password":"pw"}`, http.StatusConflict},
		{"invalid email", http.MethodPost, "/register", `{"username":"carol","email":"carol","password":"pw"}`, http.StatusBadRequest},
		{"missing fields", http.MethodPost, "/register", `{"username":"carol"}`, http.StatusBadRequest},
		{"blank username", http.MethodPost, "/register", `{"username":"  ","email":"c@x.com","password":"pw"}`, http.StatusBadRequest},
		{"unknown account", http.MethodPost, "/login", `{"user":"nobody","password":"pw"}`, http.StatusNotFound},
		{"wrong password", http.MethodPost, "/login", `{"user":"alice","password":"nope"}`, http.StatusUnauthorized},
		{"missing token", http.MethodGet, "/confirm", "", http.StatusBadRequest},
		{"unknown token", http.MethodGet, "/confirm?token=deadbeef", "", http.StatusBadRequest},
		{"resend confirmed", http.MethodPost, "/resend", `{"user":"alice"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(tc.method, tc.target, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			if decodeMessage(t, rec) == "" {
				t.Fatalf("expected an error message in %s", rec.Body.String())
			}
		})
	}
}

func TestRouter_AutoConfirmLogin(t *testing.T) {
	s := newTestServer(t, true)

	rec := s.do(http.MethodPost, "/register", `{"username":"alice","email":"alice@x.com","password":"pw123"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", rec.Code)
	}
	var reg struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil || !reg.Confirmed {
		t.Fatalf("expected confirmed registration, got %s", rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/login", `{"user":"alice","password":"pw123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("expected no-store, got %q", cc)
	}
}

func TestRouter_HealthMetricsAndStatic(t *testing.T) {
	s := newTestServer(t, true)

	for _, path := range []string{"/health", "/health/ready", "/metrics", "/index.html"} {
		rec := s.do(http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}

	rec := s.do(http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), "accounts_http_requests_total") {
		t.Fatalf("expected http request metrics to be exported")
	}
}
