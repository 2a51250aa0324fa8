package gateway

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"whatshound/pkg/whatshound/chunkhound"
)

// twimlResponse is the XML body Twilio expects from a webhook: the message
// text inside <Response><Message>.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// handleWebhook implements POST /webhook, the Twilio inbound message hook.
// The reply is delivered inline as TwiML.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		g.countWebhook("bad_request")
		g.writeError(w, "invalid form payload", http.StatusBadRequest)
		return
	}

	from := strings.TrimSpace(r.PostFormValue("From"))
	body := strings.TrimSpace(r.PostFormValue("Body"))
	sid := strings.TrimSpace(r.PostFormValue("MessageSid"))
	if from == "" {
		g.countWebhook("bad_request")
		g.writeError(w, "missing From", http.StatusBadRequest)
		return
	}

	reply := g.assistant.HandleMessage(r.Context(), from, sid, body)
	g.countWebhook("ok")

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(twimlResponse{Message: reply})
}

// handleHealth implements GET /health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "ok"
	database := "ok"
	if err := g.store.Ping(); err != nil {
		status = "degraded"
		database = err.Error()
	}

	codeSearch := "disabled"
	if g.proxy != nil {
		codeSearch = string(g.proxy.State())
	}

	uptime := time.Since(g.startedAt).Round(time.Second).String()
	if uptime == "0s" {
		uptime = "<1s"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	g.writeJSON(w, code, map[string]any{
		"status":          status,
		"database":        database,
		"code_search":     codeSearch,
		"active_sessions": g.assistant.Registry().Count(),
		"uptime":          uptime,
	})
}

// handleStats implements GET /stats: message totals and the most active
// users.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := g.store.ConversationStats(5)
	if err != nil {
		g.logger.Error("stats query failed", "err", err)
		g.writeError(w, "stats unavailable", http.StatusInternalServerError)
		return
	}

	top := make([]map[string]any, 0, len(stats.TopUsers))
	for _, u := range stats.TopUsers {
		top = append(top, map[string]any{
			"user":     u.UserID,
			"messages": u.Messages,
		})
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"total_messages":  stats.TotalMessages,
		"unique_users":    stats.UniqueUsers,
		"top_users":       top,
		"active_sessions": g.assistant.Registry().Count(),
	})
}

type codeSearchRequest struct {
	Query    string `json:"query"`
	Semantic bool   `json:"semantic"`
}

// handleCodeSearch implements POST /code_search, a direct API path to the
// search engine that skips the chat pipeline.
func (g *Gateway) handleCodeSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if g.proxy == nil || !g.proxy.Enabled() {
		g.writeError(w, "code search unavailable", http.StatusServiceUnavailable)
		return
	}

	var req codeSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		g.writeError(w, "query is required", http.StatusBadRequest)
		return
	}

	kind := chunkhound.KindRegex
	if req.Semantic {
		kind = chunkhound.KindSemantic
	}

	matches, err := g.proxy.Search(r.Context(), req.Query, kind)
	if err != nil {
		if err == chunkhound.ErrUnavailable {
			g.writeError(w, "code search unavailable", http.StatusServiceUnavailable)
			return
		}
		g.logger.Warn("code search failed", "query", req.Query, "err", err)
		g.writeError(w, "search failed", http.StatusBadGateway)
		return
	}
	if matches == nil {
		matches = []chunkhound.Match{}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": matches,
	})
}

func (g *Gateway) countWebhook(outcome string) {
	if g.metrics != nil {
		g.metrics.WebhookRequests.WithLabelValues(outcome).Inc()
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, code int) {
	g.writeJSON(w, code, map[string]any{
		"error": map[string]any{"message": msg, "code": code},
	})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
