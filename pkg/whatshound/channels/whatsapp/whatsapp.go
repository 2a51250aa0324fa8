// Package whatsapp implements a direct WhatsApp channel using whatsmeow, a
// native Go WhatsApp Web API library. This is the webhook-free deployment
// path: the assistant links as a companion device via QR code and exchanges
// text messages without Twilio in between.
//
// The channel is text-only. Media, reactions, and presence are out of scope
// for an assistant that answers with text replies.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"whatshound/pkg/whatshound/channels"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.
)

// Config holds WhatsApp channel configuration.
type Config struct {
	// Enabled turns the direct channel on. When false the assistant only
	// serves the webhook path.
	Enabled bool `yaml:"enabled"`

	// DatabasePath is the SQLite file for whatsmeow session storage
	// (tables prefixed whatsmeow_).
	DatabasePath string `yaml:"database_path"`

	// RespondToGroups enables responding in group chats. Off by default:
	// the assistant is a personal DM bot.
	RespondToGroups bool `yaml:"respond_to_groups"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath: "./data/whatsapp-session.db",
	}
}

// WhatsApp implements channels.Channel over a whatsmeow client.
type WhatsApp struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	messages       chan *channels.IncomingMessage
	messagesClosed atomic.Bool

	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a WhatsApp channel instance. Connect must be called before use.
func New(cfg Config, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = DefaultConfig().DatabasePath
	}
	return &WhatsApp{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// Connect establishes the WhatsApp Web connection. With no stored session
// the QR login flow runs in the background and the QR code is written to the
// log for scanning; the call returns immediately so the server can start.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", w.cfg.DatabasePath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := w.getDevice(w.ctx, container)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	// Device name shown in the WhatsApp linked devices list.
	store.SetOSInfo("WhatsHound", [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, waLog.Noop)
	w.client.AddEventHandler(w.handleEvent)
	w.client.EnableAutoReconnect = true
	w.client.InitialAutoReconnect = true

	if w.client.Store.ID == nil {
		w.logger.Info("no existing session, QR code required")
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("QR login pending", "error", err)
			}
		}()
		return nil
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	w.connected.Store(true)
	w.logger.Info("connected with existing session", "jid", w.clientJID())
	return nil
}

// Disconnect gracefully closes the connection.
func (w *WhatsApp) Disconnect() error {
	w.connected.Store(false)
	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}
	if w.messagesClosed.CompareAndSwap(false, true) {
		close(w.messages)
	}
	w.logger.Info("disconnected")
	return nil
}

// Send delivers a text message to the given JID or bare phone number.
func (w *WhatsApp) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}

	_, err = w.client.SendMessage(ctx, jid, buildTextMessage(msg.Content))
	if err != nil {
		w.errorCount.Add(1)
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Receive returns the incoming messages channel.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// IsConnected returns true if the channel is connected.
func (w *WhatsApp) IsConnected() bool {
	return w.connected.Load()
}

// Health returns the channel health status.
func (w *WhatsApp) Health() channels.HealthStatus {
	h := channels.HealthStatus{
		Connected:  w.connected.Load(),
		ErrorCount: int(w.errorCount.Load()),
		Details:    make(map[string]any),
	}
	if t, ok := w.lastMsg.Load().(time.Time); ok {
		h.LastMessageAt = t
	}
	if w.client != nil && w.client.Store.ID != nil {
		h.Details["jid"] = w.client.Store.ID.String()
		h.Details["platform"] = w.client.Store.Platform
	}
	return h
}

func (w *WhatsApp) clientJID() string {
	if w.client != nil && w.client.Store.ID != nil {
		return w.client.Store.ID.String()
	}
	return ""
}

func (w *WhatsApp) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR runs the QR pairing flow, logging each code for the operator
// to scan.
func (w *WhatsApp) loginWithQR(ctx context.Context) error {
	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed unexpectedly")
			}
			switch evt.Event {
			case "code":
				w.logger.Info("scan QR code with WhatsApp to link", "code", evt.Code)
			case "success":
				w.connected.Store(true)
				w.logger.Info("login successful")
				return nil
			case "timeout":
				w.logger.Warn("QR code expired")
				return fmt.Errorf("QR code timeout")
			default:
				if evt.Error != nil {
					return fmt.Errorf("QR login error: %v", evt.Error)
				}
			}
		}
	}
}

// buildTextMessage wraps plain text in a WhatsApp protobuf message.
func buildTextMessage(content string) *waProto.Message {
	return &waProto.Message{Conversation: proto.String(content)}
}

// parseJID converts a string to types.JID. Accepts a bare phone number
// ("5511999999999"), a full JID ("5511999999999@s.whatsapp.net"), or the
// webhook-style "whatsapp:+5511999999999" form.
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "whatsapp:"))
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if digits == "" {
		return types.JID{}, fmt.Errorf("invalid JID %q", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
