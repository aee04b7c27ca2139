package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrWaitTimeout reports that neither completion channel observed a
// terminal state before the overall deadline.
var ErrWaitTimeout = errors.New("completion wait timed out")

// ErrGenerationFailed reports that the engine itself marked the prompt
// failed; the engine's message is attached.
var ErrGenerationFailed = errors.New("generation failed")

// wsEvent is the subset of ComfyUI event-stream messages the tracker
// cares about. An "executing" message with a null node marks the end
// of a prompt's execution.
type wsEvent struct {
	Type string `json:"type"`
	Data struct {
		Node     *string `json:"node"`
		PromptID string  `json:"prompt_id"`
	} `json:"data"`
}

func (e *wsEvent) terminalFor(promptID string) bool {
	if e.Data.PromptID != promptID {
		return false
	}
	switch e.Type {
	case "executing":
		return e.Data.Node == nil
	case "execution_success", "execution_error", "execution_interrupted":
		return true
	}
	return false
}

// WaitForCompletion blocks until the prompt reaches a terminal state
// and returns its history record. Two channels race: a listener on the
// engine's event stream and a fixed-interval poll of the history
// endpoint. The first terminal observation wins and the loser is torn
// down, so push delivery drops cost latency, never correctness.
//
// Fails with ErrWaitTimeout when neither channel reports within the
// configured deadline, and with ErrGenerationFailed when the engine
// reports the prompt failed.
func (c *ComfyClient) WaitForCompletion(ctx context.Context, promptID string) (*History, error) {
	ctx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	// Buffered so the losing channel's send never blocks after the
	// race is decided.
	observed := make(chan *History, 2)

	go c.watchEvents(ctx, promptID, observed)
	go c.pollHistory(ctx, promptID, observed)

	select {
	case h := <-observed:
		if h.Status.StatusStr != "" && h.Status.StatusStr != "success" {
			return nil, fmt.Errorf("%w: %s%s", ErrGenerationFailed, h.Status.StatusStr, formatMessages(h.Status.Messages))
		}
		return h, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: prompt %s after %v", ErrWaitTimeout, promptID, c.waitTimeout)
		}
		return nil, ctx.Err()
	}
}

// watchEvents is the push channel: it subscribes to the engine's
// WebSocket stream and resolves on the first terminal event for the
// prompt. Any stream failure silently defers to the poll fallback.
func (c *ComfyClient) watchEvents(ctx context.Context, promptID string, observed chan<- *History) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		log.Printf("[comfy] event stream unavailable, relying on polling: %v", err)
		return
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock ReadMessage
	// once the race is settled elsewhere.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[comfy] event stream dropped, relying on polling: %v", err)
			}
			return
		}

		var ev wsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			// Binary preview frames and unrelated messages.
			continue
		}
		if !ev.terminalFor(promptID) {
			continue
		}

		h, ok, err := c.GetHistory(ctx, promptID)
		if err != nil || !ok {
			// The terminal event raced the history write; the poll
			// fallback will pick it up.
			if err != nil && ctx.Err() == nil {
				log.Printf("[comfy] history fetch after terminal event failed: %v", err)
			}
			return
		}
		observed <- h
		return
	}
}

// pollHistory is the pull fallback: a fixed-interval query of the
// history endpoint. Transient errors and absent records both mean
// "keep waiting".
func (c *ComfyClient) pollHistory(ctx context.Context, promptID string, observed chan<- *History) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h, ok, err := c.GetHistory(ctx, promptID)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[comfy] history poll for %s failed: %v", promptID, err)
				}
				continue
			}
			if !ok {
				continue
			}
			if !h.Status.Completed && h.Status.StatusStr == "" {
				continue
			}
			observed <- h
			return
		}
	}
}

func (c *ComfyClient) wsURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws?clientId=" + url.QueryEscape(c.clientID)
}

func formatMessages(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return ", messages: " + string(raw)
}
