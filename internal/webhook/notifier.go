package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

// Payload is the terminal-outcome document POSTed to a caller's
// webhook URL.
type Payload struct {
	JobID  string      `json:"jobId"`
	Queue  string      `json:"queue"`
	Status string      `json:"status"` // complete | failed
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Notifier delivers job outcomes to caller-supplied webhook URLs.
// Delivery is best effort and at most once; failures are logged and
// never surfaced to the job pipeline.
type Notifier struct {
	httpClient *http.Client
}

func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify POSTs the payload to url. Errors never propagate; a failed
// delivery only costs the caller their notification.
func (n *Notifier) Notify(ctx context.Context, url string, payload Payload) {
	if url == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[webhook] ✗ failed to marshal payload for job %s: %v", payload.JobID, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("[webhook] ✗ failed to create request for job %s: %v", payload.JobID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf("[webhook] ✗ delivery for job %s failed: %v", payload.JobID, err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[webhook] ✗ delivery for job %s rejected (status %d)", payload.JobID, resp.StatusCode)
		return
	}

	log.Printf("[webhook] ✓ delivered %s outcome for job %s", payload.Status, payload.JobID)
}
