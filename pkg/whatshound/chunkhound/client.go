// Package chunkhound manages the optional ChunkHound code-search
// collaborator: the lifecycle of its server process and the HTTP client
// used to run regex and semantic searches against it.
package chunkhound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SearchKind selects the search endpoint.
type SearchKind string

const (
	KindRegex    SearchKind = "regex"
	KindSemantic SearchKind = "semantic"
)

// Match is one search hit returned by the server.
type Match struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// SearchError is a structured failure from the search server: a non-200
// response or a server-reported error. It is transient; the proxy stays
// ready after one.
type SearchError struct {
	Status  int
	Message string
}

func (e *SearchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("search failed: %d %s", e.Status, e.Message)
	}
	return "search failed: " + e.Message
}

// ErrUnavailable means the collaborator is not running; callers should
// short-circuit to their disabled message without attempting the network.
var ErrUnavailable = errors.New("code search not available")

// Client is the HTTP client for a running ChunkHound server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with a fixed per-call timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Healthy probes GET /health, reporting true only on a 200 response.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Results []Match `json:"results"`
	Error   string  `json:"error"`
}

// Search runs a query of the given kind and returns the matches.
// Network failures and non-200 responses come back as *SearchError.
func (c *Client) Search(ctx context.Context, query string, kind SearchKind) ([]Match, error) {
	endpoint := c.baseURL + "/search_regex_local"
	if kind == KindSemantic {
		endpoint = c.baseURL + "/search_semantic_local"
	}

	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &SearchError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SearchError{Status: resp.StatusCode, Message: resp.Status}
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, &SearchError{Message: "malformed response: " + err.Error()}
	}
	if sr.Error != "" {
		return nil, &SearchError{Message: sr.Error}
	}
	return sr.Results, nil
}
