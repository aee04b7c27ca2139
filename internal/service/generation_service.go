package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Peleke/comfyui-mcp-sub002/internal/client"
	"github.com/Peleke/comfyui-mcp-sub002/internal/config"
	"github.com/Peleke/comfyui-mcp-sub002/internal/model"
	"github.com/Peleke/comfyui-mcp-sub002/internal/queue"
	"github.com/Peleke/comfyui-mcp-sub002/internal/webhook"
	"github.com/Peleke/comfyui-mcp-sub002/internal/websocket"
)

// The driving audio length passed to the video sampler when the caller
// does not supply one.
const defaultLipsyncDuration = 5.0

const signedURLExpiry = 24 * time.Hour

// GenerationService owns the per-type job queues and runs generation
// jobs against the remote ComfyUI engine. Artifacts are uploaded to
// object storage when a storage client is configured; otherwise results
// reference files on the engine host.
type GenerationService struct {
	registry *queue.Registry
	engine   client.Engine
	storage  client.StorageClient // nil disables uploads
	notifier *webhook.Notifier
	hub      *websocket.Hub

	portraitQueue *queue.Queue[model.PortraitRequest, model.GenerationResult]
	ttsQueue      *queue.Queue[model.TTSRequest, model.GenerationResult]
	lipsyncQueue  *queue.Queue[model.LipsyncRequest, model.GenerationResult]
}

// NewGenerationService registers the portrait, tts and lipsync queues
// and wires terminal-event fan-out to the hub and webhook notifier.
func NewGenerationService(
	cfg *config.QueuesConfig,
	engine client.Engine,
	storage client.StorageClient,
	notifier *webhook.Notifier,
	hub *websocket.Hub,
) (*GenerationService, error) {
	s := &GenerationService{
		registry: queue.NewRegistry(),
		engine:   engine,
		storage:  storage,
		notifier: notifier,
		hub:      hub,
	}

	var err error
	s.portraitQueue, err = queue.GetQueue(s.registry, model.QueuePortrait, s.runPortrait, queueOptions(cfg.Portrait))
	if err != nil {
		return nil, fmt.Errorf("failed to register portrait queue: %w", err)
	}
	s.ttsQueue, err = queue.GetQueue(s.registry, model.QueueTTS, s.runTTS, queueOptions(cfg.TTS))
	if err != nil {
		return nil, fmt.Errorf("failed to register tts queue: %w", err)
	}
	s.lipsyncQueue, err = queue.GetQueue(s.registry, model.QueueLipsync, s.runLipsync, queueOptions(cfg.Lipsync))
	if err != nil {
		return nil, fmt.Errorf("failed to register lipsync queue: %w", err)
	}

	watchQueue(s, s.portraitQueue)
	watchQueue(s, s.ttsQueue)
	watchQueue(s, s.lipsyncQueue)

	return s, nil
}

func queueOptions(cfg config.QueueConfig) queue.Options {
	return queue.Options{
		Concurrency: cfg.Concurrency,
		MaxRetries:  cfg.MaxRetries,
		Timeout:     cfg.Timeout,
	}
}

// watchQueue fans terminal job outcomes out to WebSocket subscribers
// and, when the payload carries a callback URL, to the webhook
// notifier. Webhook delivery runs off the dispatch goroutine so a slow
// receiver never stalls the queue.
func watchQueue[P model.NotifyTarget](s *GenerationService, q *queue.Queue[P, model.GenerationResult]) {
	name := q.Name()
	q.Subscribe(func(ev queue.Event[P, model.GenerationResult]) {
		switch ev.Type {
		case queue.EventComplete:
			s.hub.BroadcastComplete(ev.Job.ID, ev.Job.Result)
		case queue.EventFailed:
			s.hub.BroadcastFailed(ev.Job.ID, ev.Job.Error)
		}

		url := ev.Job.Payload.CallbackURL()
		if url == "" {
			return
		}
		payload := webhook.Payload{
			JobID:  ev.Job.ID,
			Queue:  name,
			Status: string(ev.Job.Status),
			Error:  ev.Job.Error,
		}
		if ev.Type == queue.EventComplete {
			payload.Result = ev.Job.Result
		}
		go s.notifier.Notify(context.Background(), url, payload)
	})
}

// StartPortrait enqueues a portrait generation job.
func (s *GenerationService) StartPortrait(req model.PortraitRequest) model.JobAcceptedResponse {
	return accepted(s.portraitQueue, model.QueuePortrait, s.portraitQueue.Enqueue(req))
}

// StartTTS enqueues a speech synthesis job.
func (s *GenerationService) StartTTS(req model.TTSRequest) model.JobAcceptedResponse {
	return accepted(s.ttsQueue, model.QueueTTS, s.ttsQueue.Enqueue(req))
}

// StartLipsync enqueues a lip-sync video job.
func (s *GenerationService) StartLipsync(req model.LipsyncRequest) model.JobAcceptedResponse {
	return accepted(s.lipsyncQueue, model.QueueLipsync, s.lipsyncQueue.Enqueue(req))
}

func accepted[P, R any](q *queue.Queue[P, R], name, id string) model.JobAcceptedResponse {
	job, _ := q.GetJob(id)
	return model.JobAcceptedResponse{
		JobID:     id,
		Queue:     name,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
	}
}

// GetStatus looks a job up across all queues.
func (s *GenerationService) GetStatus(jobID string) (*model.JobStatusResponse, bool) {
	if st, ok := snapshot(s.portraitQueue, model.QueuePortrait, jobID); ok {
		return st, true
	}
	if st, ok := snapshot(s.ttsQueue, model.QueueTTS, jobID); ok {
		return st, true
	}
	if st, ok := snapshot(s.lipsyncQueue, model.QueueLipsync, jobID); ok {
		return st, true
	}
	return nil, false
}

// GetResult returns the result of a complete job. The error reports
// jobs that are still running or have failed.
func (s *GenerationService) GetResult(jobID string) (*model.GenerationResult, error) {
	if r, ok, err := result(s.portraitQueue, jobID); ok {
		return r, err
	}
	if r, ok, err := result(s.ttsQueue, jobID); ok {
		return r, err
	}
	if r, ok, err := result(s.lipsyncQueue, jobID); ok {
		return r, err
	}
	return nil, fmt.Errorf("%w: %s", queue.ErrQueueNotFound, jobID)
}

// ListJobs returns the externally visible view of every tracked job.
func (s *GenerationService) ListJobs() []model.JobStatusResponse {
	var out []model.JobStatusResponse
	out = append(out, snapshots(s.portraitQueue, model.QueuePortrait)...)
	out = append(out, snapshots(s.ttsQueue, model.QueueTTS)...)
	out = append(out, snapshots(s.lipsyncQueue, model.QueueLipsync)...)
	return out
}

// StartSweeper periodically evicts old terminal jobs from every queue
// until ctx is cancelled.
func (s *GenerationService) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.registry.Each(func(c queue.Cleaner) {
					if n := c.Cleanup(maxAge); n > 0 {
						log.Printf("[sweeper] evicted %d old jobs from queue %s", n, c.Name())
					}
				})
			}
		}
	}()
}

func snapshot[P, R any](q *queue.Queue[P, R], name, jobID string) (*model.JobStatusResponse, bool) {
	job, ok := q.GetJob(jobID)
	if !ok {
		return nil, false
	}
	st := toStatusResponse(job, name)
	return &st, true
}

func snapshots[P, R any](q *queue.Queue[P, R], name string) []model.JobStatusResponse {
	jobs := q.GetAllJobs()
	out := make([]model.JobStatusResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toStatusResponse(job, name))
	}
	return out
}

func toStatusResponse[P, R any](job queue.Job[P, R], name string) model.JobStatusResponse {
	return model.JobStatusResponse{
		JobID:       job.ID,
		Queue:       name,
		Status:      string(job.Status),
		Error:       job.Error,
		Retries:     job.Retries,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

func result[P any](q *queue.Queue[P, model.GenerationResult], jobID string) (*model.GenerationResult, bool, error) {
	job, ok := q.GetJob(jobID)
	if !ok {
		return nil, false, nil
	}
	switch job.Status {
	case queue.StatusComplete:
		r := job.Result
		return &r, true, nil
	case queue.StatusFailed:
		return nil, true, fmt.Errorf("job %s failed: %s", jobID, job.Error)
	default:
		return nil, true, fmt.Errorf("job %s is not finished (status %s)", jobID, job.Status)
	}
}
