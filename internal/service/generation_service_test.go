package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Peleke/comfyui-mcp-sub002/internal/client"
	"github.com/Peleke/comfyui-mcp-sub002/internal/config"
	"github.com/Peleke/comfyui-mcp-sub002/internal/model"
	"github.com/Peleke/comfyui-mcp-sub002/internal/queue"
	"github.com/Peleke/comfyui-mcp-sub002/internal/webhook"
	ws "github.com/Peleke/comfyui-mcp-sub002/internal/websocket"
)

// fakeEngine satisfies client.Engine without a real ComfyUI server.
type fakeEngine struct {
	attempts atomic.Int64
	failWith error
}

func (f *fakeEngine) QueuePrompt(ctx context.Context, workflow map[string]interface{}) (string, error) {
	f.attempts.Add(1)
	if f.failWith != nil {
		return "", f.failWith
	}
	return "p-1", nil
}

func (f *fakeEngine) GetHistory(ctx context.Context, promptID string) (*client.History, bool, error) {
	return nil, false, nil
}

func (f *fakeEngine) WaitForCompletion(ctx context.Context, promptID string) (*client.History, error) {
	return &client.History{
		Status: client.HistoryStatus{StatusStr: "success", Completed: true},
		Outputs: map[string]client.NodeOutput{
			"9": {Images: []client.OutputRef{{Filename: "out.png", Dir: "output"}}},
		},
	}, nil
}

func (f *fakeEngine) DownloadOutput(ctx context.Context, file client.OutputRef) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("bytes")), nil
}

func (f *fakeEngine) SystemStats(ctx context.Context) error { return nil }

func testQueuesConfig() *config.QueuesConfig {
	qc := config.QueueConfig{Concurrency: 2, MaxRetries: 1, Timeout: time.Second}
	return &config.QueuesConfig{Portrait: qc, TTS: qc, Lipsync: qc}
}

func newTestService(t *testing.T, engine client.Engine) *GenerationService {
	t.Helper()
	hub := ws.NewHub()
	go hub.Run()
	svc, err := NewGenerationService(testQueuesConfig(), engine, nil, webhook.NewNotifier(), hub)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return svc
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartPortraitRunsToCompletion(t *testing.T) {
	svc := newTestService(t, &fakeEngine{})

	acc := svc.StartPortrait(model.PortraitRequest{Prompt: "a face"})
	if acc.JobID == "" || acc.Queue != model.QueuePortrait {
		t.Fatalf("unexpected accept response: %+v", acc)
	}

	waitFor(t, 2*time.Second, func() bool {
		st, ok := svc.GetStatus(acc.JobID)
		return ok && st.Status == string(queue.StatusComplete)
	})

	result, err := svc.GetResult(acc.JobID)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if result.PromptID != "p-1" || result.Storage != "engine" {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(result.Files) != 1 || result.Files[0].Filename != "out.png" {
		t.Errorf("unexpected files: %+v", result.Files)
	}
}

func TestFailingEngineFailsJob(t *testing.T) {
	engine := &fakeEngine{failWith: errors.New("engine down")}
	svc := newTestService(t, engine)

	acc := svc.StartTTS(model.TTSRequest{Text: "hello"})

	waitFor(t, 2*time.Second, func() bool {
		st, ok := svc.GetStatus(acc.JobID)
		return ok && st.Status == string(queue.StatusFailed)
	})

	if _, err := svc.GetResult(acc.JobID); err == nil {
		t.Error("expected GetResult to fail for a failed job")
	}
	if engine.attempts.Load() != 1 {
		t.Errorf("expected 1 attempt with MaxRetries=1, got %d", engine.attempts.Load())
	}
}

func TestWebhookFiresOnCompletion(t *testing.T) {
	received := make(chan webhook.Payload, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhook.Payload
		json.NewDecoder(r.Body).Decode(&p)
		received <- p
	}))
	defer hook.Close()

	svc := newTestService(t, &fakeEngine{})

	req := model.PortraitRequest{Prompt: "a face"}
	req.WebhookURL = hook.URL
	acc := svc.StartPortrait(req)

	select {
	case p := <-received:
		if p.JobID != acc.JobID || p.Status != string(queue.StatusComplete) {
			t.Errorf("unexpected webhook payload: %+v", p)
		}
		if p.Queue != model.QueuePortrait {
			t.Errorf("unexpected queue in payload: %s", p.Queue)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestGetStatusUnknownJob(t *testing.T) {
	svc := newTestService(t, &fakeEngine{})
	if _, ok := svc.GetStatus("missing"); ok {
		t.Error("expected no status for an unknown job id")
	}
	if _, err := svc.GetResult("missing"); !errors.Is(err, queue.ErrQueueNotFound) {
		t.Errorf("expected ErrQueueNotFound, got %v", err)
	}
}

func TestListJobsSpansQueues(t *testing.T) {
	svc := newTestService(t, &fakeEngine{})

	svc.StartPortrait(model.PortraitRequest{Prompt: "a"})
	svc.StartTTS(model.TTSRequest{Text: "b"})
	svc.StartLipsync(model.LipsyncRequest{PortraitImage: "f.png", Audio: "a.wav"})

	jobs := svc.ListJobs()
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	queues := map[string]bool{}
	for _, j := range jobs {
		queues[j.Queue] = true
	}
	for _, name := range []string{model.QueuePortrait, model.QueueTTS, model.QueueLipsync} {
		if !queues[name] {
			t.Errorf("queue %s missing from job list", name)
		}
	}
}
