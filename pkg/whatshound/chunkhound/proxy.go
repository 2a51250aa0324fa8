package chunkhound

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// State is the proxy lifecycle state. Unavailable is absorbing: once the
// collaborator fails to come up (or dies), no automatic retry is attempted
// for the rest of the process lifetime.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateStarting      State = "starting"
	StateReady         State = "ready"
	StateUnavailable   State = "unavailable"
)

// Config configures the managed ChunkHound server.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	Binary        string        `yaml:"binary"`
	ProjectPath   string        `yaml:"project_path"`
	Port          int           `yaml:"port"`
	HealthTimeout time.Duration `yaml:"health_timeout"`
	SearchTimeout time.Duration `yaml:"search_timeout"`
}

func (c *Config) applyDefaults() {
	if c.Binary == "" {
		c.Binary = "chunkhound"
	}
	if c.Port == 0 {
		c.Port = 8001
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 10 * time.Second
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 10 * time.Second
	}
}

// Proxy supervises the external search server and forwards queries to it.
type Proxy struct {
	cfg    Config
	client *Client
	logger *slog.Logger

	cmd    *exec.Cmd
	cancel context.CancelFunc
	state  State
	mu     sync.RWMutex
}

// NewProxy creates a proxy in the uninitialized state.
func NewProxy(cfg Config, logger *slog.Logger) *Proxy {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		cfg:    cfg,
		client: NewClient(fmt.Sprintf("http://localhost:%d", cfg.Port), cfg.SearchTimeout),
		logger: logger.With("component", "chunkhound"),
		state:  StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (p *Proxy) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Proxy) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Enabled reports whether searches can be served right now.
func (p *Proxy) Enabled() bool {
	return p.State() == StateReady
}

// Start spawns the search server and waits for its health probe, moving to
// ready on success and unavailable (permanently) on any failure: missing
// binary, missing project, spawn error, or probe timeout.
func (p *Proxy) Start(ctx context.Context) error {
	if s := p.State(); s != StateUninitialized {
		return fmt.Errorf("proxy already started (state %s)", s)
	}
	p.setState(StateStarting)

	bin, err := exec.LookPath(p.cfg.Binary)
	if err != nil {
		p.logger.Warn("chunkhound binary not found, code search disabled", "binary", p.cfg.Binary)
		p.setState(StateUnavailable)
		return nil
	}

	if _, err := os.Stat(p.cfg.ProjectPath); err != nil {
		p.logger.Warn("project path not found, code search disabled", "path", p.cfg.ProjectPath)
		p.setState(StateUnavailable)
		return nil
	}

	if err := p.ensureProjectConfig(); err != nil {
		p.logger.Warn("failed to write project config", "err", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, bin,
		"serve", "--http", "--port", fmt.Sprintf("%d", p.cfg.Port))
	cmd.Dir = p.cfg.ProjectPath

	if err := cmd.Start(); err != nil {
		cancel()
		p.logger.Warn("failed to spawn chunkhound server", "err", err)
		p.setState(StateUnavailable)
		return nil
	}
	p.mu.Lock()
	p.cmd = cmd
	p.cancel = cancel
	p.mu.Unlock()

	// Reap the process and mark the proxy dead if the server exits on
	// its own. Unavailable is absorbing; no restart.
	go func() {
		err := cmd.Wait()
		if p.State() == StateReady {
			p.logger.Warn("chunkhound server exited, code search disabled", "err", err)
			p.setState(StateUnavailable)
		}
	}()

	if !p.awaitHealthy(ctx) {
		p.logger.Warn("chunkhound health probe failed, code search disabled",
			"timeout", p.cfg.HealthTimeout)
		cancel()
		p.setState(StateUnavailable)
		return nil
	}

	p.setState(StateReady)
	p.logger.Info("chunkhound server ready", "port", p.cfg.Port, "project", p.cfg.ProjectPath)
	return nil
}

// awaitHealthy polls the health endpoint until it succeeds or the bounded
// timeout elapses.
func (p *Proxy) awaitHealthy(ctx context.Context) bool {
	deadline := time.After(p.cfg.HealthTimeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return false
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			ok := p.client.Healthy(probeCtx)
			cancel()
			if ok {
				return true
			}
		}
	}
}

// Stop terminates the managed server process. Called on shutdown.
func (p *Proxy) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if p.State() == StateReady {
		p.setState(StateUnavailable)
	}
	p.logger.Info("chunkhound server stopped")
}

// Search forwards a query to the running server. Returns ErrUnavailable
// without touching the network when the proxy is not ready; call failures
// are transient and leave the proxy ready.
func (p *Proxy) Search(ctx context.Context, query string, kind SearchKind) ([]Match, error) {
	if !p.Enabled() {
		return nil, ErrUnavailable
	}
	searchCtx, cancel := context.WithTimeout(ctx, p.cfg.SearchTimeout)
	defer cancel()
	return p.client.Search(searchCtx, query, kind)
}

// ensureProjectConfig writes a basic .chunkhound.json when the project has
// none, so the server can index something on first run.
func (p *Proxy) ensureProjectConfig() error {
	path := filepath.Join(p.cfg.ProjectPath, ".chunkhound.json")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	cfg := map[string]any{
		"include_patterns": []string{"**/*.py", "**/*.js", "**/*.java", "**/*.cpp", "**/*.h", "**/*.go"},
		"exclude_patterns": []string{"**/node_modules/**", "**/.git/**", "**/__pycache__/**"},
		"chunk_size":       1000,
		"chunk_overlap":    200,
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
