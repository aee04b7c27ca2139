package workflow

import (
	"testing"

	"github.com/Peleke/comfyui-mcp-sub002/internal/model"
)

func inputs(t *testing.T, g Graph, nodeID string) map[string]interface{} {
	t.Helper()
	n, ok := g[nodeID].(map[string]interface{})
	if !ok {
		t.Fatalf("graph has no node %s", nodeID)
	}
	in, ok := n["inputs"].(map[string]interface{})
	if !ok {
		t.Fatalf("node %s has no inputs", nodeID)
	}
	return in
}

func TestPortraitDefaults(t *testing.T) {
	g, seed := Portrait(model.PortraitRequest{Prompt: "a portrait"})

	if seed <= 0 {
		t.Errorf("expected a positive random seed, got %d", seed)
	}

	sampler := inputs(t, g, "3")
	if sampler["sampler_name"] != "euler_ancestral" {
		t.Errorf("unexpected sampler: %v", sampler["sampler_name"])
	}
	if sampler["steps"] != DefaultSteps || sampler["cfg"] != DefaultCFGScale {
		t.Errorf("defaults not applied: steps=%v cfg=%v", sampler["steps"], sampler["cfg"])
	}
	if sampler["seed"] != seed {
		t.Errorf("graph seed %v does not match returned seed %d", sampler["seed"], seed)
	}

	latent := inputs(t, g, "5")
	if latent["width"] != DefaultWidth || latent["height"] != DefaultHeight {
		t.Errorf("default dimensions not applied: %vx%v", latent["width"], latent["height"])
	}

	positive := inputs(t, g, "6")
	if positive["text"] != "a portrait" {
		t.Errorf("prompt not wired: %v", positive["text"])
	}
	negative := inputs(t, g, "7")
	if negative["text"] != DefaultNegativePrompt {
		t.Errorf("default negative prompt not applied: %v", negative["text"])
	}
}

func TestPortraitExplicitSeedIsStable(t *testing.T) {
	g, seed := Portrait(model.PortraitRequest{Prompt: "x", Seed: 42})
	if seed != 42 {
		t.Fatalf("expected seed 42, got %d", seed)
	}
	if inputs(t, g, "3")["seed"] != int64(42) {
		t.Errorf("explicit seed not wired into sampler")
	}
}

func TestTTSWiresTextAndVoice(t *testing.T) {
	g, _ := TTS(model.TTSRequest{
		Text:        "hello there",
		VoiceSample: "voices/alice.wav",
		SampleText:  "reference words",
	})

	load := inputs(t, g, "1")
	if load["audio"] != "voices/alice.wav" {
		t.Errorf("voice sample not wired: %v", load["audio"])
	}

	tts := inputs(t, g, "2")
	if tts["speech"] != "hello there" || tts["sample_text"] != "reference words" {
		t.Errorf("text not wired: %+v", tts)
	}
	if tts["model"] != DefaultTTSModel || tts["vocoder"] != DefaultVocoder {
		t.Errorf("defaults not applied: %+v", tts)
	}
}

func TestLipsyncSeedStaysInSamplerRange(t *testing.T) {
	g, seed := Lipsync(model.LipsyncRequest{
		PortraitImage: "face.png",
		Audio:         "speech.wav",
		Seed:          int64(maxSamplerSeed) + 100,
	}, 3.5)

	if seed >= maxSamplerSeed {
		t.Errorf("seed %d exceeds sampler range", seed)
	}
	if inputs(t, g, "6")["seed"] != seed {
		t.Errorf("graph seed does not match returned seed")
	}

	pre := inputs(t, g, "5")
	if pre["duration"] != 3.5 {
		t.Errorf("audio duration not wired: %v", pre["duration"])
	}

	combine := inputs(t, g, "7")
	if combine["format"] != "video/h264-mp4" {
		t.Errorf("unexpected video format: %v", combine["format"])
	}
}

func TestLipsyncWiresInputFiles(t *testing.T) {
	g, _ := Lipsync(model.LipsyncRequest{PortraitImage: "face.png", Audio: "speech.wav"}, 5)

	if inputs(t, g, "2")["image"] != "face.png" {
		t.Error("portrait image not wired")
	}
	if inputs(t, g, "3")["audio"] != "speech.wav" {
		t.Error("audio not wired")
	}
}
