package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scb10x/typhoon-scribe/pkg/logger"
)

// Config represents the configuration for the transcription client
type Config struct {
	EngineURL      string // base URL of the self-hosted engine, no trailing slash
	CloudBaseURL   string // OpenAI-compatible cloud endpoint
	CloudModel     string // cloud ASR model name
	TimeoutSeconds int    // HTTP timeout for one-shot requests
}

// Stream is a finite, non-restartable sequence of events produced by one
// streaming transcription request. Next returns io.EOF after the body ends.
type Stream interface {
	Next() (*StreamEvent, error)
	Close() error
}

// Client talks to the transcription engine. One-shot calls go either to the
// self-hosted engine or, in cloud mode, to the OpenAI-compatible cloud
// endpoint; streaming calls always go to the engine, which forwards the
// backend-mode flag.
type Client struct {
	engineURL    string
	cloud        *CloudClient
	httpClient   *http.Client // one-shot requests, bounded by timeout
	streamClient *http.Client // streaming requests, no client-side timeout
	logger       *logger.Logger
}

// NewClient creates a new transcription client
func NewClient(config Config, logger *logger.Logger) *Client {
	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second // Default to 2 minutes if not specified
	}

	return &Client{
		engineURL: strings.TrimRight(config.EngineURL, "/"),
		cloud:     NewCloudClient(config.CloudBaseURL, config.CloudModel, logger),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		// An open event stream lives as long as the engine keeps emitting
		// frames, so no overall timeout here; stale streams are handled by
		// result arbitration upstream
		streamClient: &http.Client{},
		logger:       logger.Named("xscribe-client"),
	}
}

// OpenStream issues a streaming transcription request over the given audio
// snapshot and returns the decoded event sequence. Connection failures and
// non-success statuses are reported as *TransportError.
func (c *Client) OpenStream(ctx context.Context, req Request) (Stream, error) {
	body, contentType, err := buildMultipartBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	apiURL := c.engineURL + "/transcribe/stream"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &TransportError{Err: fmt.Errorf("unexpected status code: %d, response: %s", resp.StatusCode, string(bodyBytes))}
	}

	return &eventStream{
		dec:  NewDecoder(resp.Body),
		body: resp.Body,
	}, nil
}

// Transcribe performs a one-shot (non-streaming) transcription of the given
// audio, dispatching to the cloud endpoint or the self-hosted engine based
// on the request's backend-mode flag.
func (c *Client) Transcribe(ctx context.Context, req Request) (*Response, error) {
	if req.UseAPI {
		return c.cloud.Transcribe(ctx, req)
	}
	return c.transcribeEngine(ctx, req)
}

// transcribeEngine posts the audio to the self-hosted engine and parses the
// single JSON response
func (c *Client) transcribeEngine(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := buildMultipartBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	apiURL := c.engineURL + "/transcribe"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Err: fmt.Errorf("unexpected status code: %d, response: %s", resp.StatusCode, string(respBody))}
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("malformed engine response: %v", err)}
	}

	c.logger.Debug("Engine transcription complete",
		logger.Int("audio_bytes", len(req.Audio)),
		logger.Duration("elapsed", time.Since(start)))

	return &result, nil
}

// buildMultipartBody assembles the multipart request: the audio snapshot as
// a binary file field plus the scalar transcription options
func buildMultipartBody(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(req.Audio); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"api_key":         req.APIKey,
		"use_api":         strconv.FormatBool(req.UseAPI),
		"device":          req.Device,
		"with_timestamps": strconv.FormatBool(req.WithTimestamps),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// eventStream adapts a response body and decoder to the Stream interface
type eventStream struct {
	dec  *Decoder
	body io.Closer
}

// Next returns the next event in the stream. Read failures mid-stream are
// transport errors; io.EOF passes through unchanged.
func (s *eventStream) Next() (*StreamEvent, error) {
	ev, err := s.dec.Next()
	if err != nil && err != io.EOF {
		return nil, &TransportError{Err: err}
	}
	return ev, err
}

// Close releases the underlying response body
func (s *eventStream) Close() error {
	return s.body.Close()
}
