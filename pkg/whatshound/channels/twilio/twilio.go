// Package twilio implements the outbound side of the Twilio WhatsApp
// channel. Inbound messages arrive over the gateway webhook and are answered
// inline with TwiML; this client is for proactive sends, primarily reminder
// notifications from the scheduler.
package twilio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whatshound/pkg/whatshound/channels"
)

const defaultBaseURL = "https://api.twilio.com"

// Config holds the Twilio REST credentials and sender number.
type Config struct {
	Enabled    bool   `yaml:"enabled"`
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	// From is the sandbox or business number, e.g. "whatsapp:+14155238886".
	From string `yaml:"from"`
	// BaseURL overrides the Twilio API endpoint, for tests.
	BaseURL string `yaml:"base_url"`
}

// Client sends WhatsApp messages through the Twilio REST API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger.With("component", "twilio"),
	}
}

func (c *Client) Name() string { return "twilio" }

// Send delivers a text message. The recipient is normalized to the
// "whatsapp:+E164" form Twilio expects.
func (c *Client) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if c.cfg.AccountSID == "" || c.cfg.AuthToken == "" {
		return fmt.Errorf("twilio: %w: missing credentials", channels.ErrSendFailed)
	}

	form := url.Values{}
	form.Set("To", normalizeRecipient(to))
	form.Set("From", c.cfg.From)
	form.Set("Body", msg.Content)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: %w: %v", channels.ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("send rejected", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("twilio: %w: status %d", channels.ErrSendFailed, resp.StatusCode)
	}

	c.logger.Debug("message sent", "to", to, "chars", len(msg.Content))
	return nil
}

// normalizeRecipient ensures the "whatsapp:" scheme Twilio requires for
// WhatsApp sends. Webhook From values already carry it.
func normalizeRecipient(to string) string {
	if strings.HasPrefix(to, "whatsapp:") {
		return to
	}
	if strings.HasPrefix(to, "+") {
		return "whatsapp:" + to
	}
	return "whatsapp:+" + to
}
