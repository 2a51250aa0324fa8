package twilio

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"whatshound/pkg/whatshound/channels"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSend(t *testing.T) {
	t.Parallel()

	var gotPath, gotTo, gotFrom, gotBody string
	var gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		r.ParseForm()
		gotTo = r.PostFormValue("To")
		gotFrom = r.PostFormValue("From")
		gotBody = r.PostFormValue("Body")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(Config{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "whatsapp:+14155238886",
		BaseURL:    srv.URL,
	}, testLogger())

	err := c.Send(context.Background(), "+15551234567", &channels.OutgoingMessage{Content: "hello 👋"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUser != "AC123" {
		t.Errorf("basic auth user = %q", gotUser)
	}
	if gotTo != "whatsapp:+15551234567" {
		t.Errorf("To = %q", gotTo)
	}
	if gotFrom != "whatsapp:+14155238886" {
		t.Errorf("From = %q", gotFrom)
	}
	if gotBody != "hello 👋" {
		t.Errorf("Body = %q", gotBody)
	}
}

func TestSendRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code": 20003}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{AccountSID: "AC123", AuthToken: "bad", From: "whatsapp:+1", BaseURL: srv.URL}, testLogger())
	err := c.Send(context.Background(), "whatsapp:+15551234567", &channels.OutgoingMessage{Content: "x"})
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry status: %v", err)
	}
}

func TestSendMissingCredentials(t *testing.T) {
	t.Parallel()

	c := New(Config{}, testLogger())
	if err := c.Send(context.Background(), "+1555", &channels.OutgoingMessage{Content: "x"}); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestNormalizeRecipient(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"whatsapp:+15551234567", "whatsapp:+15551234567"},
		{"+15551234567", "whatsapp:+15551234567"},
		{"15551234567", "whatsapp:+15551234567"},
	}
	for _, tt := range tests {
		if got := normalizeRecipient(tt.in); got != tt.want {
			t.Errorf("normalizeRecipient(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
