// Package assistant implements the chat assistant core: session registry,
// intent classification, the handler set, and the message router that ties
// them together with persistence.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"whatshound/pkg/whatshound/chunkhound"
	"whatshound/pkg/whatshound/metrics"
	"whatshound/pkg/whatshound/store"
)

const (
	// DefaultMaxReplyLen matches the WhatsApp message body limit.
	DefaultMaxReplyLen = 1600

	// DefaultDedupTTL bounds how long a message ID is remembered for
	// webhook retry deduplication.
	DefaultDedupTTL = 10 * time.Minute
)

const apologyReply = "Sorry, I encountered an error. Please try again! 🤖"

// CodeSearcher is the code search backend the router dispatches to. The
// chunkhound proxy satisfies it; tests substitute fakes.
type CodeSearcher interface {
	Enabled() bool
	Search(ctx context.Context, query string, kind chunkhound.SearchKind) ([]chunkhound.Match, error)
}

// Options tunes the assistant. Zero values fall back to defaults.
type Options struct {
	Name        string
	MaxReplyLen int
	DedupTTL    time.Duration
}

func (o *Options) applyDefaults() {
	if o.Name == "" {
		o.Name = "WhatsHound"
	}
	if o.MaxReplyLen <= 0 {
		o.MaxReplyLen = DefaultMaxReplyLen
	}
	if o.DedupTTL <= 0 {
		o.DedupTTL = DefaultDedupTTL
	}
}

// Assistant routes inbound messages to intent handlers and persists every
// exchange. One Assistant serves all users; per-user ordering is enforced
// with keyed locks in the registry.
type Assistant struct {
	opts     Options
	registry *Registry
	store    store.Store
	search   CodeSearcher
	metrics  *metrics.Metrics
	dedup    *gocache.Cache
	logger   *slog.Logger
}

func New(st store.Store, registry *Registry, opts Options, logger *slog.Logger) *Assistant {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		opts:     opts,
		registry: registry,
		store:    st,
		dedup:    gocache.New(opts.DedupTTL, opts.DedupTTL),
		logger:   logger.With("component", "assistant"),
	}
}

// SetCodeSearcher wires the code search backend. Optional; without it all
// search intents answer with the unavailable reply.
func (a *Assistant) SetCodeSearcher(s CodeSearcher) { a.search = s }

// SetMetrics wires the Prometheus instruments. Optional.
func (a *Assistant) SetMetrics(m *metrics.Metrics) { a.metrics = m }

func (a *Assistant) searchEnabled() bool {
	return a.search != nil && a.search.Enabled()
}

// Registry exposes the session registry, mainly for the gateway's stats
// endpoint and the CLI.
func (a *Assistant) Registry() *Registry { return a.registry }

// HandleMessage processes one inbound message and returns the reply text.
// messageID is the transport's message ID; replays of an already-processed
// ID return the cached reply without re-running handlers or persisting a
// second conversation row. The reply is returned only after the exchange
// has been offered to the store; on store failure the user gets an apology
// while the in-memory session keeps the exchange.
func (a *Assistant) HandleMessage(ctx context.Context, userID, messageID, text string) string {
	start := time.Now()

	if messageID != "" {
		if cached, ok := a.dedup.Get(messageID); ok {
			a.logger.Debug("duplicate message", "user", userID, "message_id", messageID)
			return cached.(string)
		}
	}

	lock := a.registry.UserLock(userID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock: a concurrent delivery of the same ID may
	// have finished while we waited, and both must not persist a row.
	if messageID != "" {
		if cached, ok := a.dedup.Get(messageID); ok {
			a.logger.Debug("duplicate message", "user", userID, "message_id", messageID)
			return cached.(string)
		}
	}

	sess := a.registry.GetSession(userID)

	intent := Classify(text)
	reply := a.dispatch(ctx, sess, intent, text)

	if len(reply) > a.opts.MaxReplyLen {
		reply = runeSafeCut(reply, a.opts.MaxReplyLen-3) + "..."
		if a.metrics != nil {
			a.metrics.RepliesTruncated.Inc()
		}
	}

	sess.AddExchange(text, reply)

	if err := a.persist(sess, text, reply); err != nil {
		a.logger.Error("failed to persist exchange", "user", userID, "err", err)
		if a.metrics != nil {
			a.metrics.PersistFailures.Inc()
		}
		reply = apologyReply
	}

	if err := a.store.TouchProfile(userID, time.Now().UTC()); err != nil {
		a.logger.Warn("failed to touch profile", "user", userID, "err", err)
	}

	if messageID != "" {
		a.dedup.Set(messageID, reply, gocache.DefaultExpiration)
	}

	if a.metrics != nil {
		a.metrics.MessagesTotal.WithLabelValues(string(intent)).Inc()
		a.metrics.HandlerDuration.WithLabelValues(string(intent)).Observe(time.Since(start).Seconds())
	}
	a.logger.Info("message handled", "user", userID, "intent", intent, "elapsed", time.Since(start))
	return reply
}

// dispatch runs the handler for the classified intent. A panicking handler
// is contained and answered with the apology reply.
func (a *Assistant) dispatch(ctx context.Context, sess *Session, intent Intent, text string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("handler panicked", "intent", intent, "panic", fmt.Sprint(r))
			reply = apologyReply
		}
	}()

	if intent != IntentCommand {
		if confirm := a.maybeUpdateProfileName(sess.UserID, text); confirm != "" {
			return confirm
		}
	}

	switch intent {
	case IntentCommand:
		return a.handleCommand(ctx, sess, text)
	case IntentGreeting:
		return a.handleGreeting(sess)
	case IntentCodeSearchHelp:
		return a.handleCodeSearchHelp()
	case IntentCodeSearch:
		return a.handleCodeSearch(ctx, text)
	case IntentShowTasks:
		return a.handleShowTasks(sess)
	case IntentCompleteTask:
		return a.handleCompleteTask(text, sess)
	case IntentTask:
		return a.handleTask(text, sess)
	case IntentMath:
		return a.handleMath(text)
	case IntentTranslate:
		return a.handleTranslate(text)
	case IntentWeather:
		return a.handleWeather(text)
	case IntentCodeHelp:
		return a.handleCodeHelp(text)
	case IntentHelp:
		return a.handleHelp()
	default:
		return a.handleFallback(text)
	}
}

// runeSafeCut returns s cut to at most n bytes, backing the cut up so it
// never lands inside a multibyte rune.
func runeSafeCut(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (a *Assistant) persist(sess *Session, message, reply string) error {
	rec := store.ConversationRecord{
		RecordID:  uuid.NewString(),
		UserID:    sess.UserID,
		Message:   message,
		Response:  reply,
		Timestamp: time.Now().UTC(),
	}
	if err := a.registry.PersistExchange(rec); err != nil {
		return err
	}
	return a.registry.SaveContext(sess.UserID, sess.ContextSnapshot())
}
