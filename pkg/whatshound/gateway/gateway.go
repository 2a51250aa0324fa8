// Package gateway provides the HTTP surface for WhatsHound: the Twilio
// webhook, health and stats endpoints, a code-search API, and Prometheus
// metrics.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whatshound/pkg/whatshound/assistant"
	"whatshound/pkg/whatshound/chunkhound"
	"whatshound/pkg/whatshound/metrics"
	"whatshound/pkg/whatshound/store"
)

// Config holds gateway configuration.
type Config struct {
	Address string `yaml:"address"`
	// ReadTimeout and WriteTimeout bound request handling.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func (c *Config) applyDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
}

// Gateway is the HTTP server fronting the assistant.
type Gateway struct {
	cfg       Config
	assistant *assistant.Assistant
	store     store.Store
	proxy     *chunkhound.Proxy
	metrics   *metrics.Metrics
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
	promReg   *prometheus.Registry
}

// New creates a Gateway. proxy may be nil when code search is disabled.
func New(cfg Config, a *assistant.Assistant, st store.Store, proxy *chunkhound.Proxy, logger *slog.Logger) *Gateway {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:       cfg,
		assistant: a,
		store:     st,
		proxy:     proxy,
		logger:    logger.With("component", "gateway"),
	}
}

// SetMetrics wires the shared metrics instruments and the registry that
// backs GET /metrics.
func (g *Gateway) SetMetrics(m *metrics.Metrics, reg *prometheus.Registry) {
	g.metrics = m
	g.promReg = reg
}

// Handler builds the HTTP handler tree. Exposed for tests.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", g.handleWebhook)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/stats", g.handleStats)
	mux.HandleFunc("/code_search", g.handleCodeSearch)
	if g.promReg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(g.promReg, promhttp.HandlerOpts{}))
	}
	return g.securityHeadersMiddleware(g.loggingMiddleware(mux))
}

// Start starts the HTTP server in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:         g.cfg.Address,
		Handler:      g.Handler(),
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", g.cfg.Address)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	return g.server.Shutdown(ctx)
}

// securityHeadersMiddleware adds standard security headers to all responses.
func (g *Gateway) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		g.logger.Debug("request",
			"method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}
