package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Peleke/comfyui-mcp-sub002/internal/config"
)

func testClient(baseURL string) *ComfyClient {
	return NewComfyClient(&config.ComfyConfig{BaseURL: baseURL, ClientID: "test-client"})
}

func TestQueuePromptReturnsPromptID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prompt" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["client_id"] != "test-client" {
			t.Errorf("expected client_id to be forwarded, got %v", body["client_id"])
		}
		if _, ok := body["prompt"]; !ok {
			t.Error("expected prompt in body")
		}
		json.NewEncoder(w).Encode(map[string]string{"prompt_id": "p-123"})
	}))
	defer srv.Close()

	id, err := testClient(srv.URL).QueuePrompt(context.Background(), map[string]interface{}{"1": "node"})
	if err != nil {
		t.Fatalf("QueuePrompt failed: %v", err)
	}
	if id != "p-123" {
		t.Errorf("expected p-123, got %s", id)
	}
}

func TestQueuePromptSurfacesEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid prompt"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).QueuePrompt(context.Background(), map[string]interface{}{})
	if err == nil {
		t.Fatal("expected an error for a rejected prompt")
	}
}

func TestGetHistoryAbsentRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]History{})
	}))
	defer srv.Close()

	h, ok, err := testClient(srv.URL).GetHistory(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if ok || h != nil {
		t.Error("expected no record for an unfinished prompt")
	}
}

func TestDownloadOutputStreamsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/view" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("filename") != "out.png" || q.Get("type") != "output" {
			t.Errorf("unexpected query: %v", q)
		}
		w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	body, err := testClient(srv.URL).DownloadOutput(context.Background(), OutputRef{Filename: "out.png"})
	if err != nil {
		t.Fatalf("DownloadOutput failed: %v", err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if string(data) != "image-bytes" {
		t.Errorf("unexpected body: %q", data)
	}
}

func TestOutputFilesFlattensAndTypes(t *testing.T) {
	h := &History{
		Outputs: map[string]NodeOutput{
			"9": {Images: []OutputRef{{Filename: "a.png"}}},
			"7": {Gifs: []OutputRef{{Filename: "b.mp4"}}},
			"3": {Audio: []OutputRef{{Filename: "c.flac"}}},
		},
	}

	types := map[string]string{}
	for _, f := range h.OutputFiles() {
		types[f.Filename] = f.Type
	}

	want := map[string]string{"a.png": "image", "b.mp4": "video", "c.flac": "audio"}
	for name, typ := range want {
		if types[name] != typ {
			t.Errorf("expected %s to have type %s, got %s", name, typ, types[name])
		}
	}
}
