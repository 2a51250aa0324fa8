package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"whatshound/pkg/whatshound/assistant"
	"whatshound/pkg/whatshound/channels"
	"whatshound/pkg/whatshound/channels/twilio"
	"whatshound/pkg/whatshound/channels/whatsapp"
	"whatshound/pkg/whatshound/chunkhound"
	"whatshound/pkg/whatshound/gateway"
	"whatshound/pkg/whatshound/metrics"
	"whatshound/pkg/whatshound/scheduler"
	"whatshound/pkg/whatshound/store"
)

// newServeCmd creates the `whatshound serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and enabled channels",
		Long: `Start WhatsHound as a daemon: the Twilio webhook gateway, the
reminder scheduler, the code search engine, and (if enabled) the direct
WhatsApp bridge.

Examples:
  whatshound serve
  whatshound serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := assistant.NewRegistry(st, assistant.RegistryOptions{
		MaxHistory: cfg.Assistant.MaxHistory,
		SessionTTL: cfg.Assistant.SessionTTL,
	}, logger)

	bot := assistant.New(st, registry, assistant.Options{
		Name:        cfg.Assistant.Name,
		MaxReplyLen: cfg.Assistant.MaxReplyLen,
	}, logger)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promReg)
	bot.SetMetrics(m)

	// Code search engine.
	var proxy *chunkhound.Proxy
	if cfg.ChunkHound.Enabled {
		proxy = chunkhound.NewProxy(cfg.ChunkHound, logger)
		if err := proxy.Start(ctx); err != nil {
			logger.Warn("code search engine failed to start, chat continues without it", "error", err)
		}
		bot.SetCodeSearcher(proxy)
		defer proxy.Stop()
	}

	// Outbound messenger for reminders: Twilio when configured, otherwise
	// the direct WhatsApp bridge.
	var messenger channels.Messenger
	if cfg.Twilio.Enabled {
		messenger = twilio.New(cfg.Twilio, logger)
	}

	// Direct WhatsApp bridge.
	var wa *whatsapp.WhatsApp
	if cfg.WhatsApp.Enabled {
		wa = whatsapp.New(cfg.WhatsApp, logger)
		if err := wa.Connect(ctx); err != nil {
			logger.Error("failed to connect WhatsApp channel", "error", err)
		} else {
			go serveDirectChannel(ctx, wa, bot, logger)
			if messenger == nil {
				messenger = wa
			}
		}
	}

	// Reminder scheduler.
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled && messenger != nil {
		sched = scheduler.New(cfg.Scheduler, st, messenger, logger)
		if err := sched.Start(); err != nil {
			logger.Error("failed to start scheduler", "error", err)
		}
	}

	// Session pruner.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.Prune(); n > 0 {
					logger.Debug("pruned idle sessions", "count", n)
				}
			}
		}
	}()

	gw := gateway.New(cfg.Gateway, bot, st, proxy, logger)
	gw.SetMetrics(m, promReg)
	if err := gw.Start(ctx); err != nil {
		return err
	}

	logger.Info("WhatsHound running. Press Ctrl+C to stop.",
		"name", cfg.Assistant.Name,
		"address", cfg.Gateway.Address,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = gw.Stop(shutdownCtx)
		shutdownCancel()
		if sched != nil {
			sched.Stop()
		}
		if wa != nil {
			_ = wa.Disconnect()
		}
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
	return nil
}

// serveDirectChannel pumps messages from the WhatsApp bridge through the
// assistant and sends the replies back.
func serveDirectChannel(ctx context.Context, wa *whatsapp.WhatsApp, bot *assistant.Assistant, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-wa.Receive():
			if !ok {
				return
			}
			reply := bot.HandleMessage(ctx, msg.From, msg.ID, msg.Content)
			if err := wa.Send(ctx, msg.From, &channels.OutgoingMessage{Content: reply}); err != nil {
				logger.Warn("failed to send reply", "to", msg.From, "error", err)
			}
		}
	}
}
