package model

// Queue names, one per generation type.
const (
	QueuePortrait = "portrait"
	QueueTTS      = "tts"
	QueueLipsync  = "lipsync"
)

// CallbackOptions is embedded in every generation request. When
// WebhookURL is set the gateway POSTs the terminal outcome to it,
// best effort, at most once.
type CallbackOptions struct {
	WebhookURL string `json:"webhookUrl,omitempty" validate:"omitempty,url"`
}

func (o CallbackOptions) CallbackURL() string { return o.WebhookURL }

// NotifyTarget is implemented by every generation request via
// CallbackOptions.
type NotifyTarget interface {
	CallbackURL() string
}

// PortraitRequest describes a txt2img portrait generation job.
type PortraitRequest struct {
	Prompt         string  `json:"prompt" validate:"required,min=1"`
	NegativePrompt string  `json:"negativePrompt,omitempty"`
	Model          string  `json:"model,omitempty"`
	Width          int     `json:"width,omitempty" validate:"omitempty,min=64,max=4096"`
	Height         int     `json:"height,omitempty" validate:"omitempty,min=64,max=4096"`
	Steps          int     `json:"steps,omitempty" validate:"omitempty,min=1,max=150"`
	CFGScale       float64 `json:"cfgScale,omitempty" validate:"omitempty,min=0,max=30"`
	Seed           int64   `json:"seed,omitempty"`
	CallbackOptions
}

// TTSRequest describes an F5-TTS voice-cloning job. VoiceSample and
// SampleText reference files already present in the engine's input
// directory (voices/...).
type TTSRequest struct {
	Text        string  `json:"text" validate:"required,min=1"`
	VoiceSample string  `json:"voiceSample,omitempty"`
	SampleText  string  `json:"sampleText,omitempty"`
	Model       string  `json:"model,omitempty"`
	Vocoder     string  `json:"vocoder,omitempty"`
	Speed       float64 `json:"speed,omitempty" validate:"omitempty,min=0.1,max=3"`
	Seed        int64   `json:"seed,omitempty"`
	CallbackOptions
}

// LipsyncRequest describes a SONIC lip-sync video job. PortraitImage
// and Audio reference files in the engine's input directory.
type LipsyncRequest struct {
	PortraitImage  string  `json:"portraitImage" validate:"required"`
	Audio          string  `json:"audio" validate:"required"`
	Duration       float64 `json:"duration,omitempty" validate:"omitempty,gt=0"`
	SVDCheckpoint  string  `json:"svdCheckpoint,omitempty"`
	SonicUnet      string  `json:"sonicUnet,omitempty"`
	InferenceSteps int     `json:"inferenceSteps,omitempty" validate:"omitempty,min=1,max=100"`
	FPS            float64 `json:"fps,omitempty" validate:"omitempty,min=1,max=60"`
	Seed           int64   `json:"seed,omitempty"`
	CallbackOptions
}

// OutputFile is a single artifact produced by a finished job.
type OutputFile struct {
	Type      string `json:"type"` // image | video | audio
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder,omitempty"`
	URL       string `json:"url,omitempty"`       // public storage URL when uploaded
	SignedURL string `json:"signedUrl,omitempty"` // time-limited storage URL
	Size      int64  `json:"size,omitempty"`
}

// GenerationResult is the domain result stored on a complete job.
type GenerationResult struct {
	PromptID string       `json:"promptId"`
	Seed     int64        `json:"seed"`
	Files    []OutputFile `json:"files"`
	Storage  string       `json:"storage"` // "s3" when uploaded, "engine" otherwise
}
