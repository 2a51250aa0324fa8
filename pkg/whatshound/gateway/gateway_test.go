package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"whatshound/pkg/whatshound/assistant"
	"whatshound/pkg/whatshound/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T) (*Gateway, store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")}, testLogger())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := assistant.NewRegistry(st, assistant.RegistryOptions{}, testLogger())
	a := assistant.New(st, reg, assistant.Options{}, testLogger())
	return New(Config{}, a, st, nil, testLogger()), st
}

func postWebhook(t *testing.T, h http.Handler, from, body, sid string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	form.Set("From", from)
	form.Set("Body", body)
	form.Set("MessageSid", sid)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRepliesWithTwiML(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)
	h := g.Handler()

	rec := postWebhook(t, h, "whatsapp:+15551234567", "what is 2 + 3", "SM001")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("content type = %q", ct)
	}
	bodyStr := rec.Body.String()
	if !strings.Contains(bodyStr, "<Response>") || !strings.Contains(bodyStr, "<Message>") {
		t.Errorf("not TwiML: %q", bodyStr)
	}
	if !strings.Contains(bodyStr, "5") {
		t.Errorf("math result missing: %q", bodyStr)
	}
}

func TestWebhookPersistsConversation(t *testing.T) {
	t.Parallel()

	g, st := newTestGateway(t)
	h := g.Handler()

	postWebhook(t, h, "whatsapp:+15551234567", "hello", "SM002")
	recs, err := st.RecentConversations("whatsapp:+15551234567", 10)
	if err != nil {
		t.Fatalf("RecentConversations: %v", err)
	}
	if len(recs) != 1 || recs[0].Message != "hello" {
		t.Errorf("persisted records = %+v", recs)
	}
}

func TestWebhookRetryReturnsSameReply(t *testing.T) {
	t.Parallel()

	g, st := newTestGateway(t)
	h := g.Handler()

	first := postWebhook(t, h, "whatsapp:+1555", "hi", "SM003").Body.String()
	second := postWebhook(t, h, "whatsapp:+1555", "hi", "SM003").Body.String()
	if first != second {
		t.Errorf("retry reply differs:\n%q\n%q", first, second)
	}
	recs, _ := st.RecentConversations("whatsapp:+1555", 10)
	if len(recs) != 1 {
		t.Errorf("retry persisted %d records, want 1", len(recs))
	}
}

func TestWebhookMissingFrom(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)
	rec := postWebhook(t, g.Handler(), "", "hello", "SM004")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["database"] != "ok" {
		t.Errorf("database field = %v", body["database"])
	}
	if body["code_search"] != "disabled" {
		t.Errorf("code_search field = %v", body["code_search"])
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)
	h := g.Handler()

	postWebhook(t, h, "whatsapp:+1111", "hello", "SM010")
	postWebhook(t, h, "whatsapp:+1111", "help", "SM011")
	postWebhook(t, h, "whatsapp:+2222", "hello", "SM012")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body struct {
		TotalMessages int `json:"total_messages"`
		UniqueUsers   int `json:"unique_users"`
		TopUsers      []struct {
			User     string `json:"user"`
			Messages int    `json:"messages"`
		} `json:"top_users"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.TotalMessages != 3 {
		t.Errorf("total_messages = %d, want 3", body.TotalMessages)
	}
	if body.UniqueUsers != 2 {
		t.Errorf("unique_users = %d, want 2", body.UniqueUsers)
	}
	if len(body.TopUsers) == 0 || body.TopUsers[0].User != "whatsapp:+1111" {
		t.Errorf("top_users = %+v", body.TopUsers)
	}
}

func TestCodeSearchUnavailableWithoutProxy(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodPost, "/code_search", strings.NewReader(`{"query":"foo"}`))
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	g, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options header")
	}
}
