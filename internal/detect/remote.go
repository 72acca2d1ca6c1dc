package detect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// RemoteDetector calls the external table-detection backend. Like the
// secondary extraction engine it is optional: unconfigured means no
// candidates, which sends the builder on to the next detector in the chain.
type RemoteDetector struct {
	baseURL string
	client  *http.Client
}

// NewRemoteDetector builds a backend client. baseURL may be empty.
func NewRemoteDetector(baseURL string) *RemoteDetector {
	return &RemoteDetector{baseURL: baseURL, client: http.DefaultClient}
}

type remoteRequest struct {
	Page      int      `json:"page"`
	Strategy  Strategy `json:"strategy"`
	PDFBase64 []byte   `json:"pdf"`
}

type remoteResponse struct {
	Tables []Candidate `json:"tables"`
}

// Detect implements Detector. One request per (page, strategy), no retry.
func (d *RemoteDetector) Detect(pdfPath string, page int, strategy Strategy) ([]Candidate, error) {
	if d.baseURL == "" {
		return nil, nil
	}
	pdfData, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("read pdf for table detection: %w", err)
	}
	body, err := json.Marshal(remoteRequest{Page: page, Strategy: strategy, PDFBase64: pdfData})
	if err != nil {
		return nil, fmt.Errorf("encode detection request: %w", err)
	}
	resp, err := d.client.Post(d.baseURL+"/v1/tables", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("table detection request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("table detection returned %d: %s", resp.StatusCode, msg)
	}
	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode detection response: %w", err)
	}
	for i := range out.Tables {
		out.Tables[i].Page = page
		out.Tables[i].Strategy = strategy
	}
	return out.Tables, nil
}
