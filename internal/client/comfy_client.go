package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Peleke/comfyui-mcp-sub002/internal/config"
)

// Engine defines the operations the gateway needs from the remote
// ComfyUI server.
type Engine interface {
	QueuePrompt(ctx context.Context, workflow map[string]interface{}) (string, error)
	GetHistory(ctx context.Context, promptID string) (*History, bool, error)
	WaitForCompletion(ctx context.Context, promptID string) (*History, error)
	DownloadOutput(ctx context.Context, file OutputRef) (io.ReadCloser, error)
	SystemStats(ctx context.Context) error
}

// ComfyClient implements Engine against the ComfyUI HTTP/WebSocket API.
type ComfyClient struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// History is the terminal payload ComfyUI records for a finished
// prompt. Ownership transfers to the caller once returned.
type History struct {
	Status  HistoryStatus         `json:"status"`
	Outputs map[string]NodeOutput `json:"outputs"`
}

// HistoryStatus carries the engine's verdict for a prompt.
type HistoryStatus struct {
	StatusStr string          `json:"status_str"`
	Completed bool            `json:"completed"`
	Messages  json.RawMessage `json:"messages,omitempty"`
}

// NodeOutput holds the artifacts one workflow node produced. Video
// combine nodes report mp4 files under "gifs".
type NodeOutput struct {
	Images []OutputRef `json:"images,omitempty"`
	Gifs   []OutputRef `json:"gifs,omitempty"`
	Videos []OutputRef `json:"videos,omitempty"`
	Audio  []OutputRef `json:"audio,omitempty"`
}

// OutputRef locates a single produced file on the engine host.
type OutputRef struct {
	Type      string `json:"-"` // image | video | audio
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Dir       string `json:"type"` // engine directory class, usually "output"
}

// NewComfyClient creates a client for the ComfyUI engine. A random
// client id is generated when the config leaves it empty.
func NewComfyClient(cfg *config.ComfyConfig) *ComfyClient {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 5 * time.Minute
	}
	return &ComfyClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     clientID,
		pollInterval: pollInterval,
		waitTimeout:  waitTimeout,
	}
}

// QueuePrompt submits a workflow and returns the engine's prompt id.
// A non-2xx response surfaces the engine's error body verbatim.
func (c *ComfyClient) QueuePrompt(ctx context.Context, workflow map[string]interface{}) (string, error) {
	body := map[string]interface{}{
		"prompt":    workflow,
		"client_id": c.clientID,
	}
	var result struct {
		PromptID string `json:"prompt_id"`
	}
	if err := c.post(ctx, "/prompt", body, &result); err != nil {
		return "", err
	}
	if result.PromptID == "" {
		return "", fmt.Errorf("engine returned no prompt id")
	}
	return result.PromptID, nil
}

// GetHistory fetches the history record for a prompt. The second
// return value is false while the engine has not finished the prompt.
func (c *ComfyClient) GetHistory(ctx context.Context, promptID string) (*History, bool, error) {
	var records map[string]History
	if err := c.get(ctx, "/history/"+url.PathEscape(promptID), &records); err != nil {
		return nil, false, err
	}
	h, ok := records[promptID]
	if !ok {
		return nil, false, nil
	}
	return &h, true, nil
}

// SystemStats probes engine reachability.
func (c *ComfyClient) SystemStats(ctx context.Context) error {
	var stats map[string]interface{}
	return c.get(ctx, "/system_stats", &stats)
}

// DownloadOutput streams a produced file from the engine's /view
// endpoint. The caller owns the returned body.
func (c *ComfyClient) DownloadOutput(ctx context.Context, file OutputRef) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("filename", file.Filename)
	q.Set("subfolder", file.Subfolder)
	dir := file.Dir
	if dir == "" {
		dir = "output"
	}
	q.Set("type", dir)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/view?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch output %s: %w", file.Filename, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("engine error fetching output %s (status %d)", file.Filename, resp.StatusCode)
	}
	return resp.Body, nil
}

// OutputFiles flattens a history record into the produced artifacts.
func (h *History) OutputFiles() []OutputRef {
	var files []OutputRef
	for _, out := range h.Outputs {
		for _, f := range out.Images {
			f.Type = "image"
			files = append(files, f)
		}
		for _, f := range out.Gifs {
			f.Type = "video"
			files = append(files, f)
		}
		for _, f := range out.Videos {
			f.Type = "video"
			files = append(files, f)
		}
		for _, f := range out.Audio {
			f.Type = "audio"
			files = append(files, f)
		}
	}
	return files
}

// post sends a POST request with JSON body
func (c *ComfyClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *ComfyClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *ComfyClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[comfy] ✗ %d %s %s — %s", resp.StatusCode, req.Method, req.URL.Path, string(respBody))
		return fmt.Errorf("engine error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
