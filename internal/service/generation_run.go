package service

import (
	"context"
	"fmt"
	"log"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Peleke/comfyui-mcp-sub002/internal/client"
	"github.com/Peleke/comfyui-mcp-sub002/internal/model"
	"github.com/Peleke/comfyui-mcp-sub002/internal/workflow"
)

// runPortrait executes one portrait generation attempt.
func (s *GenerationService) runPortrait(ctx context.Context, req model.PortraitRequest) (model.GenerationResult, error) {
	graph, seed := workflow.Portrait(req)
	return s.execute(ctx, "portrait", graph, seed)
}

// runTTS executes one speech synthesis attempt.
func (s *GenerationService) runTTS(ctx context.Context, req model.TTSRequest) (model.GenerationResult, error) {
	graph, seed := workflow.TTS(req)
	return s.execute(ctx, "tts", graph, seed)
}

// runLipsync executes one lip-sync video attempt.
func (s *GenerationService) runLipsync(ctx context.Context, req model.LipsyncRequest) (model.GenerationResult, error) {
	duration := req.Duration
	if duration <= 0 {
		duration = defaultLipsyncDuration
	}
	graph, seed := workflow.Lipsync(req, duration)
	return s.execute(ctx, "lipsync", graph, seed)
}

// execute submits a workflow to the engine, waits for a terminal
// state and collects the produced artifacts.
func (s *GenerationService) execute(ctx context.Context, kind string, graph workflow.Graph, seed int64) (model.GenerationResult, error) {
	promptID, err := s.engine.QueuePrompt(ctx, graph)
	if err != nil {
		return model.GenerationResult{}, fmt.Errorf("failed to queue %s prompt: %w", kind, err)
	}
	log.Printf("[generate] %s prompt %s queued (seed %d)", kind, promptID, seed)

	history, err := s.engine.WaitForCompletion(ctx, promptID)
	if err != nil {
		return model.GenerationResult{}, err
	}

	files, storage := s.collectOutputs(ctx, history.OutputFiles())
	if len(files) == 0 {
		return model.GenerationResult{}, fmt.Errorf("%s prompt %s produced no outputs", kind, promptID)
	}

	return model.GenerationResult{
		PromptID: promptID,
		Seed:     seed,
		Files:    files,
		Storage:  storage,
	}, nil
}

// collectOutputs converts engine output refs into result files. With
// storage configured each file is downloaded from the engine and
// uploaded under a date-scoped key; otherwise the refs pass through
// and point at the engine host.
func (s *GenerationService) collectOutputs(ctx context.Context, refs []client.OutputRef) ([]model.OutputFile, string) {
	files := make([]model.OutputFile, 0, len(refs))

	if s.storage == nil {
		for _, ref := range refs {
			files = append(files, model.OutputFile{
				Type:      ref.Type,
				Filename:  ref.Filename,
				Subfolder: ref.Subfolder,
			})
		}
		return files, "engine"
	}

	prefix := fmt.Sprintf("outputs/%s/%s", time.Now().Format("2006-01-02"), uuid.New().String()[:8])
	for _, ref := range refs {
		file, err := s.uploadOutput(ctx, prefix, ref)
		if err != nil {
			log.Printf("[generate] upload of %s failed, keeping engine reference: %v", ref.Filename, err)
			files = append(files, model.OutputFile{
				Type:      ref.Type,
				Filename:  ref.Filename,
				Subfolder: ref.Subfolder,
			})
			continue
		}
		files = append(files, file)
	}
	return files, "s3"
}

func (s *GenerationService) uploadOutput(ctx context.Context, prefix string, ref client.OutputRef) (model.OutputFile, error) {
	body, err := s.engine.DownloadOutput(ctx, ref)
	if err != nil {
		return model.OutputFile{}, err
	}
	defer body.Close()

	key := prefix + "/" + ref.Filename
	url, err := s.storage.Upload(ctx, key, body, contentTypeFor(ref.Filename))
	if err != nil {
		return model.OutputFile{}, err
	}

	signedURL, err := s.storage.GetSignedURL(ctx, key, signedURLExpiry)
	if err != nil {
		log.Printf("[generate] failed to presign %s: %v", key, err)
	}

	return model.OutputFile{
		Type:      ref.Type,
		Filename:  ref.Filename,
		Subfolder: ref.Subfolder,
		URL:       url,
		SignedURL: signedURL,
	}, nil
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
