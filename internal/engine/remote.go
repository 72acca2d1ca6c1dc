package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// RemoteEngine is the secondary extraction engine: a synchronous HTTP call to
// an external word-extraction service. It is optional by design; with no base
// URL configured it simply reports unavailable and the tokenizer carries on
// with the primary engine alone.
type RemoteEngine struct {
	baseURL string
	prefix  string
	client  *http.Client
}

// NewRemoteEngine builds the secondary engine. baseURL may be empty.
func NewRemoteEngine(baseURL string) *RemoteEngine {
	return &RemoteEngine{
		baseURL: baseURL,
		prefix:  "plumber",
		client:  http.DefaultClient,
	}
}

// Name implements Engine.
func (r *RemoteEngine) Name() string { return r.prefix }

// Available implements Engine.
func (r *RemoteEngine) Available() bool { return r.baseURL != "" }

type remoteResponse struct {
	Pages []Page `json:"pages"`
	Words []Word `json:"words"`
}

// Extract implements Engine. One request, no retry: the backend is treated as
// a synchronous, potentially slow collaborator.
func (r *RemoteEngine) Extract(path string) ([]Page, []Word, error) {
	if !r.Available() {
		return nil, nil, fmt.Errorf("remote engine not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read pdf for remote engine: %w", err)
	}
	resp, err := r.client.Post(r.baseURL+"/v1/words", "application/pdf", bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("remote engine request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, fmt.Errorf("remote engine returned %d: %s", resp.StatusCode, body)
	}
	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("decode remote engine response: %w", err)
	}
	if len(out.Pages) == 0 {
		return nil, nil, fmt.Errorf("remote engine returned no pages")
	}
	return out.Pages, out.Words, nil
}
