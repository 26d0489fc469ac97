package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scb10x/typhoon-scribe/internal/config"
	"github.com/scb10x/typhoon-scribe/internal/session"
	"github.com/scb10x/typhoon-scribe/internal/transcription"
	"github.com/scb10x/typhoon-scribe/internal/websocket"
	"github.com/scb10x/typhoon-scribe/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

// memSource stands in for the microphone during handler tests
type memSource struct {
	mu     sync.Mutex
	frames chan []byte
}

func (s *memSource) Start(ctx context.Context) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = make(chan []byte, 16)
	return s.frames, nil
}

func (s *memSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames != nil {
		close(s.frames)
		s.frames = nil
	}
	return nil
}

func (s *memSource) send(frame []byte) {
	s.mu.Lock()
	ch := s.frames
	s.mu.Unlock()
	ch <- frame
}

type testEnv struct {
	api    *httptest.Server
	source *memSource
}

// newTestEnv wires a full router against a stub engine: /transcribe answers
// one-shot calls, /transcribe/stream answers streaming calls
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := testLogger(t)

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transcribe":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintln(w, `{"text":"one-shot result","processing_time":0.1}`)
		case "/transcribe/stream":
			w.Header().Set("Content-Type", "application/x-ndjson")
			fmt.Fprintln(w, `{"status":"processing"}`)
			fmt.Fprintln(w, `{"status":"complete","result":{"text":"live result"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(engine.Close)

	cfg := &config.Config{}
	cfg.Server.Port = 8080
	cfg.Capture.SampleRate = 16000
	cfg.Capture.Channels = 1
	cfg.Transcription.UseAPI = false
	cfg.Transcription.Device = "auto"
	cfg.Transcription.EngineURL = engine.URL
	cfg.Session.FlushIntervalMs = 3600000 // only the final request fires in tests

	client := transcription.NewClient(transcription.Config{EngineURL: engine.URL}, log)

	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	source := &memSource{}
	manager := session.NewManager(context.Background(), session.Config{
		FlushInterval: time.Hour,
		SampleRate:    16000,
		Channels:      1,
		Device:        "auto",
	}, source, client, log, nil)
	t.Cleanup(func() { manager.Close() })

	handler := NewHandler(manager, client, wsServer, cfg, log)
	router := NewRouter(handler, NewMiddleware(log), cfg, log)

	apiServer := httptest.NewServer(router.Routes())
	t.Cleanup(apiServer.Close)

	return &testEnv{api: apiServer, source: source}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

func TestGetHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.api.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
	if body["session"] != "idle" {
		t.Errorf("Expected idle session, got %v", body["session"])
	}
}

func multipartUpload(t *testing.T, fields map[string]string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if audio != nil {
		fw, err := writer.CreateFormFile("file", "clip.wav")
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		fw.Write(audio)
	}
	for name, value := range fields {
		writer.WriteField(name, value)
	}
	writer.Close()
	return &buf, writer.FormDataContentType()
}

func TestTranscribeOneShot(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t, map[string]string{"use_api": "false"}, []byte("fake wav bytes"))
	resp, err := http.Post(env.api.URL+"/api/v1/transcribe", contentType, body)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	result := decodeBody(t, resp)
	if result["text"] != "one-shot result" {
		t.Errorf("Expected engine text, got %v", result["text"])
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t, map[string]string{"use_api": "false"}, nil)
	resp, err := http.Post(env.api.URL+"/api/v1/transcribe", contentType, body)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestTranscribeCloudWithoutKey(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t, map[string]string{"use_api": "true"}, []byte("fake wav"))
	resp, err := http.Post(env.api.URL+"/api/v1/transcribe", contentType, body)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}

	result := decodeBody(t, resp)
	if msg, _ := result["error"].(string); !strings.Contains(msg, "API key") {
		t.Errorf("Expected API key error, got %v", result["error"])
	}
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	// Start
	resp, err := http.Post(env.api.URL+"/api/v1/sessions/start", "application/json", nil)
	if err != nil {
		t.Fatalf("Start request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on start, got %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["status"] != "recording" {
		t.Errorf("Expected recording, got %v", body["status"])
	}

	// Starting again conflicts
	resp, err = http.Post(env.api.URL+"/api/v1/sessions/start", "application/json", nil)
	if err != nil {
		t.Fatalf("Second start request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 on double start, got %d", resp.StatusCode)
	}

	env.source.send([]byte{1, 2, 3, 4})

	// Status while recording
	resp, err = http.Get(env.api.URL + "/api/v1/sessions/status")
	if err != nil {
		t.Fatalf("Status request failed: %v", err)
	}
	if body := decodeBody(t, resp); body["status"] != "recording" {
		t.Errorf("Expected recording status, got %v", body["status"])
	}

	// Stop returns the reconciled outcome
	resp, err = http.Post(env.api.URL+"/api/v1/sessions/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("Stop request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on stop, got %d", resp.StatusCode)
	}
	outcome := decodeBody(t, resp)
	if outcome["text"] != "live result" {
		t.Errorf("Expected final transcript, got %v", outcome["text"])
	}
	if outcome["status"] != "idle" {
		t.Errorf("Expected idle, got %v", outcome["status"])
	}

	// Stopping again conflicts
	resp, err = http.Post(env.api.URL+"/api/v1/sessions/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("Second stop request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 on double stop, got %d", resp.StatusCode)
	}
}

func TestGetConfigHidesSecrets(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.api.URL + "/api/v1/config")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if _, leaked := body["api_key"]; leaked {
		t.Error("Config endpoint leaked the API key")
	}
	if _, ok := body["has_api_key"]; !ok {
		t.Error("Expected has_api_key indicator")
	}
}
