package workflow

import (
	"fmt"
	"math/rand"

	"github.com/Peleke/comfyui-mcp-sub002/internal/model"
)

// Defaults applied when a request leaves a knob unset.
const (
	DefaultCheckpoint     = "sd_xl_base_1.0.safetensors"
	DefaultNegativePrompt = "low quality, blurry, distorted"
	DefaultWidth          = 768
	DefaultHeight         = 1024
	DefaultSteps          = 20
	DefaultCFGScale       = 7.0

	DefaultTTSModel   = "F5TTS_v1_Base"
	DefaultVocoder    = "vocos"
	DefaultTTSSpeed   = 1.0
	DefaultVoiceInput = "voices/sample.wav"

	DefaultSVDCheckpoint  = "svd_xt_1_1.safetensors"
	DefaultSonicUnet      = "unet.pth"
	DefaultInferenceSteps = 25
	DefaultFPS            = 25.0

	// ComfyUI samplers reject seeds above the signed 32-bit range.
	maxSamplerSeed = 2147483647
)

// Graph is a ComfyUI API-format workflow: node id → node description.
type Graph map[string]interface{}

func node(classType string, inputs map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"class_type": classType,
		"inputs":     inputs,
	}
}

// link references another node's output slot.
func link(nodeID string, slot int) []interface{} {
	return []interface{}{nodeID, slot}
}

func resolveSeed(seed int64) int64 {
	if seed <= 0 {
		return int64(rand.Uint32())
	}
	return seed
}

// Portrait builds a txt2img graph. Returns the graph and the seed it
// will sample with, so callers can report it.
func Portrait(req model.PortraitRequest) (Graph, int64) {
	checkpoint := req.Model
	if checkpoint == "" {
		checkpoint = DefaultCheckpoint
	}
	negative := req.NegativePrompt
	if negative == "" {
		negative = DefaultNegativePrompt
	}
	width, height := req.Width, req.Height
	if width == 0 {
		width = DefaultWidth
	}
	if height == 0 {
		height = DefaultHeight
	}
	steps := req.Steps
	if steps == 0 {
		steps = DefaultSteps
	}
	cfg := req.CFGScale
	if cfg == 0 {
		cfg = DefaultCFGScale
	}
	seed := resolveSeed(req.Seed)

	return Graph{
		"3": node("KSampler", map[string]interface{}{
			"seed":         seed,
			"steps":        steps,
			"cfg":          cfg,
			"sampler_name": "euler_ancestral",
			"scheduler":    "normal",
			"denoise":      1.0,
			"model":        link("4", 0),
			"positive":     link("6", 0),
			"negative":     link("7", 0),
			"latent_image": link("5", 0),
		}),
		"4": node("CheckpointLoaderSimple", map[string]interface{}{
			"ckpt_name": checkpoint,
		}),
		"5": node("EmptyLatentImage", map[string]interface{}{
			"width":      width,
			"height":     height,
			"batch_size": 1,
		}),
		"6": node("CLIPTextEncode", map[string]interface{}{
			"text": req.Prompt,
			"clip": link("4", 1),
		}),
		"7": node("CLIPTextEncode", map[string]interface{}{
			"text": negative,
			"clip": link("4", 1),
		}),
		"8": node("VAEDecode", map[string]interface{}{
			"samples": link("3", 0),
			"vae":     link("4", 2),
		}),
		"9": node("SaveImage", map[string]interface{}{
			"filename_prefix": fmt.Sprintf("portrait_%d", seed),
			"images":          link("8", 0),
		}),
	}, seed
}

// TTS builds an F5-TTS voice-cloning graph. The voice sample is loaded
// from the engine's input directory and the synthesized audio is saved
// as a tensor output.
func TTS(req model.TTSRequest) (Graph, int64) {
	voiceSample := req.VoiceSample
	if voiceSample == "" {
		voiceSample = DefaultVoiceInput
	}
	ttsModel := req.Model
	if ttsModel == "" {
		ttsModel = DefaultTTSModel
	}
	vocoder := req.Vocoder
	if vocoder == "" {
		vocoder = DefaultVocoder
	}
	speed := req.Speed
	if speed == 0 {
		speed = DefaultTTSSpeed
	}
	seed := resolveSeed(req.Seed)

	return Graph{
		"1": node("LoadAudio", map[string]interface{}{
			"audio": voiceSample,
		}),
		"2": node("F5TTSAudioInputs", map[string]interface{}{
			"sample_audio": link("1", 0),
			"sample_text":  req.SampleText,
			"speech":       req.Text,
			"seed":         seed,
			"model":        ttsModel,
			"vocoder":      vocoder,
			"speed":        speed,
			"model_type":   "F5-TTS",
		}),
		"3": node("SaveAudioTensor", map[string]interface{}{
			"audio":           link("2", 0),
			"filename_prefix": "ComfyUI_TTS",
		}),
	}, seed
}

// Lipsync builds a SONIC lip-sync video graph. audioDuration is the
// length of the driving audio in seconds.
func Lipsync(req model.LipsyncRequest, audioDuration float64) (Graph, int64) {
	svdModel := req.SVDCheckpoint
	if svdModel == "" {
		svdModel = DefaultSVDCheckpoint
	}
	sonicUnet := req.SonicUnet
	if sonicUnet == "" {
		sonicUnet = DefaultSonicUnet
	}
	steps := req.InferenceSteps
	if steps == 0 {
		steps = DefaultInferenceSteps
	}
	fps := req.FPS
	if fps == 0 {
		fps = DefaultFPS
	}
	seed := resolveSeed(req.Seed) % maxSamplerSeed

	return Graph{
		"1": node("ImageOnlyCheckpointLoader", map[string]interface{}{
			"ckpt_name": "video/" + svdModel,
		}),
		"2": node("LoadImage", map[string]interface{}{
			"image": req.PortraitImage,
		}),
		"3": node("LoadAudio", map[string]interface{}{
			"audio": req.Audio,
		}),
		"4": node("SONICTLoader", map[string]interface{}{
			"model":          link("1", 0),
			"sonic_unet":     sonicUnet,
			"ip_audio_scale": 1.0,
			"use_interframe": true,
			"dtype":          "fp16",
		}),
		"5": node("SONIC_PreData", map[string]interface{}{
			"clip_vision":    link("1", 1),
			"vae":            link("1", 2),
			"audio":          link("3", 0),
			"image":          link("2", 0),
			"min_resolution": 512,
			"duration":       audioDuration,
			"expand_ratio":   1,
			"weight_dtype":   link("4", 1),
		}),
		"6": node("SONICSampler", map[string]interface{}{
			"model":           link("4", 0),
			"data_dict":       link("5", 0),
			"seed":            seed,
			"randomize":       "randomize",
			"inference_steps": steps,
			"dynamic_scale":   1.0,
			"fps":             fps,
		}),
		"7": node("VHS_VideoCombine", map[string]interface{}{
			"images":          link("6", 0),
			"audio":           link("3", 0),
			"frame_rate":      link("6", 1),
			"loop_count":      0,
			"filename_prefix": "ComfyUI_LipSync",
			"format":          "video/h264-mp4",
			"pingpong":        false,
			"save_output":     true,
		}),
	}, seed
}
