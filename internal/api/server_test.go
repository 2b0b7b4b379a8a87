package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lumenchat/lumen/internal/auth"
	"github.com/lumenchat/lumen/internal/chat"
	"github.com/lumenchat/lumen/internal/log"
	"github.com/lumenchat/lumen/internal/session"
)

const testSigningSecret = "api_test_signing_secret_32_bytes!!"

// fakeVerifier accepts the token "good-google-token" and rejects everything
// else.
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	if token != "good-google-token" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Identity{
		Subject: "sub-123",
		Email:   "dev@example.com",
		Name:    "Dev Example",
		Picture: "https://example.com/p.png",
	}, nil
}

// scriptedCompleter returns canned text for title and turn prompts.
type scriptedCompleter struct {
	err error
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if strings.HasPrefix(prompt, "Generate a very short title") {
		return "Scripted Title", nil
	}
	return "scripted reply", nil
}

type testServer struct {
	srv       *httptest.Server
	tokens    *auth.TokenIssuer
	sessions  *session.Manager
	completer *scriptedCompleter
}

func newTestServer(t *testing.T, mutate func(*ServerConfig)) *testServer {
	t.Helper()

	mgr := session.NewManager(session.NewMemoryStore(), log.NewNop())
	completer := &scriptedCompleter{}
	svc, err := chat.NewService(chat.Config{
		Manager:   mgr,
		Completer: completer,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("chat.NewService() error = %v", err)
	}

	tokens, err := auth.NewTokenIssuer(testSigningSecret)
	if err != nil {
		t.Fatalf("auth.NewTokenIssuer() error = %v", err)
	}

	cfg := ServerConfig{
		Logger:      log.NewNop(),
		ChatService: svc,
		Sessions:    mgr,
		Verifier:    fakeVerifier{},
		Tokens:      tokens,
		Environment: "development",
		CORSOrigins: []string{"http://localhost:5173"},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	server, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, tokens: tokens, sessions: mgr, completer: completer}
}

func (ts *testServer) bearer(t *testing.T) string {
	t.Helper()
	token, err := ts.tokens.Issue(&auth.Identity{Subject: "sub-123", Email: "dev@example.com"})
	if err != nil {
		t.Fatalf("issuing test token: %v", err)
	}
	return "Bearer " + token
}

func (ts *testServer) do(t *testing.T, method, path, authHeader string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body := decodeBody[map[string]string](t, resp)
	if body["status"] != "ok" || body["environment"] != "development" {
		t.Errorf("body = %v", body)
	}
}

func TestGoogleSignIn(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/auth/google", "", map[string]string{"token": "good-google-token"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body := decodeBody[signInResponse](t, resp)
	if body.Token == "" {
		t.Error("response missing token")
	}
	if body.User.Email != "dev@example.com" || body.User.ID != "sub-123" {
		t.Errorf("user = %+v", body.User)
	}

	// The issued token must pass our own verification.
	claims, err := ts.tokens.Parse(body.Token)
	if err != nil {
		t.Fatalf("issued token failed to parse: %v", err)
	}
	if claims.Subject != "sub-123" {
		t.Errorf("token subject = %q", claims.Subject)
	}
}

func TestGoogleSignIn_Rejected(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/auth/google", "", map[string]string{"token": "forged"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestGoogleSignIn_MissingToken(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/auth/google", "", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChat_RequiresAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	paths := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/chat"},
		{http.MethodGet, "/api/chat/sessions"},
		{http.MethodGet, "/api/chat/history/s1"},
		{http.MethodDelete, "/api/chat/session/s1"},
	}

	for _, p := range paths {
		resp := ts.do(t, p.method, p.path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401", p.method, p.path, resp.StatusCode)
		}

		resp = ts.do(t, p.method, p.path, "Bearer forged.token.here", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s with forged token: status = %d, want 401", p.method, p.path, resp.StatusCode)
		}
	}
}

func TestChat_Send(t *testing.T) {
	ts := newTestServer(t, nil)
	bearer := ts.bearer(t)

	resp := ts.do(t, http.MethodPost, "/api/chat", bearer,
		chatRequest{Message: "how do channels work?", SessionID: "s1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body := decodeBody[chatResponse](t, resp)
	if body.Message != "scripted reply" {
		t.Errorf("message = %q", body.Message)
	}
	if body.SessionID != "s1" || body.Title != "Scripted Title" {
		t.Errorf("session = %q, title = %q", body.SessionID, body.Title)
	}
}

func TestChat_Send_InvalidInput(t *testing.T) {
	ts := newTestServer(t, nil)
	bearer := ts.bearer(t)

	for _, req := range []chatRequest{
		{Message: "", SessionID: "s1"},
		{Message: "hello", SessionID: ""},
	} {
		resp := ts.do(t, http.MethodPost, "/api/chat", bearer, req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400 for %+v", resp.StatusCode, req)
		}
		body := decodeBody[ErrorResponse](t, resp)
		if body.Error != "Message and sessionId are required" {
			t.Errorf("error = %q", body.Error)
		}
	}
}

func TestChat_Send_ModelFailureExposesDetailsInDev(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.completer.err = errors.New("model exploded")

	resp := ts.do(t, http.MethodPost, "/api/chat", ts.bearer(t),
		chatRequest{Message: "hi", SessionID: "s1"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	body := decodeBody[ErrorResponse](t, resp)
	if body.Error != "An error occurred" {
		t.Errorf("error = %q", body.Error)
	}
	if !strings.Contains(body.Details, "model exploded") {
		t.Errorf("development response missing details: %+v", body)
	}
}

func TestChat_Send_ModelFailureHidesDetailsInProduction(t *testing.T) {
	ts := newTestServer(t, func(cfg *ServerConfig) { cfg.Environment = "production" })
	ts.completer.err = errors.New("model exploded")

	resp := ts.do(t, http.MethodPost, "/api/chat", ts.bearer(t),
		chatRequest{Message: "hi", SessionID: "s1"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	body := decodeBody[ErrorResponse](t, resp)
	if body.Details != "" {
		t.Errorf("production response leaked details: %q", body.Details)
	}
}

func TestChat_SessionsListAndHistory(t *testing.T) {
	ts := newTestServer(t, nil)
	bearer := ts.bearer(t)

	for i := range 2 {
		resp := ts.do(t, http.MethodPost, "/api/chat", bearer,
			chatRequest{Message: fmt.Sprintf("question %d", i), SessionID: fmt.Sprintf("s%d", i)})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("seeding turn %d: status = %d", i, resp.StatusCode)
		}
	}

	resp := ts.do(t, http.MethodGet, "/api/chat/sessions", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sessions status = %d", resp.StatusCode)
	}
	summaries := decodeBody[[]session.Summary](t, resp)
	if len(summaries) != 2 {
		t.Fatalf("sessions = %d, want 2", len(summaries))
	}
	// Newest first.
	if summaries[0].ID != "s1" || summaries[1].ID != "s0" {
		t.Errorf("order = %q, %q", summaries[0].ID, summaries[1].ID)
	}

	resp = ts.do(t, http.MethodGet, "/api/chat/history/s0", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	sess := decodeBody[session.Session](t, resp)
	if sess.ID != "s0" || len(sess.Messages) != 2 {
		t.Errorf("history = %+v", sess)
	}
}

func TestChat_HistoryNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/api/chat/history/unknown", ts.bearer(t), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeBody[ErrorResponse](t, resp)
	if body.Error != "Session not found" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestChat_DeleteIdempotent(t *testing.T) {
	ts := newTestServer(t, nil)
	bearer := ts.bearer(t)

	resp := ts.do(t, http.MethodPost, "/api/chat", bearer,
		chatRequest{Message: "hello", SessionID: "gone"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed status = %d", resp.StatusCode)
	}

	for i := range 2 {
		resp := ts.do(t, http.MethodDelete, "/api/chat/session/gone", bearer, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete %d: status = %d", i, resp.StatusCode)
		}
		body := decodeBody[map[string]string](t, resp)
		if body["message"] != "Session deleted successfully" {
			t.Errorf("delete %d: body = %v", i, body)
		}
	}

	resp = ts.do(t, http.MethodGet, "/api/chat/history/gone", bearer, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("history after delete: status = %d, want 404", resp.StatusCode)
	}
}

func TestCORS_Preflight(t *testing.T) {
	ts := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.srv.URL+"/api/chat", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:5173")

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow-origin = %q", got)
	}

	// Unknown origins get no CORS headers.
	req.Header.Set("Origin", "http://evil.example.com")
	resp2, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight request: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()
	if got := resp2.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow-origin %q for unknown origin", got)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *ServerConfig) { cfg.RateBurst = 2 })

	var limited bool
	for range 5 {
		resp := ts.do(t, http.MethodGet, "/api/chat/sessions", ts.bearer(t), nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			if resp.Header.Get("Retry-After") == "" {
				t.Error("429 missing Retry-After header")
			}
			break
		}
	}
	if !limited {
		t.Error("rate limiter never engaged within burst")
	}
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/auth/google", "", map[string]string{"token": "good-google-token"})
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	// Development responses never advertise HSTS.
	if got := resp.Header.Get("Strict-Transport-Security"); got != "" {
		t.Errorf("unexpected HSTS header %q in development", got)
	}
}
