package transcription

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/scb10x/typhoon-scribe/pkg/logger"
)

// CloudClient performs one-shot transcriptions against the OpenAI-compatible
// Typhoon cloud endpoint. The credential arrives with each request rather
// than at construction time, so callers can forward per-user keys unchanged.
type CloudClient struct {
	baseURL string
	model   string
	logger  *logger.Logger
}

// NewCloudClient creates a new cloud transcription client
func NewCloudClient(baseURL, model string, logger *logger.Logger) *CloudClient {
	return &CloudClient{
		baseURL: baseURL,
		model:   model,
		logger:  logger.Named("cloud-asr"),
	}
}

// Transcribe sends the audio to the cloud ASR endpoint and returns the text
// plus processing time. The cloud API does not return word timestamps; when
// they were requested the response carries an empty list.
func (c *CloudClient) Transcribe(ctx context.Context, req Request) (*Response, error) {
	if req.APIKey == "" {
		return nil, &ServiceError{Message: "API key is required for API mode"}
	}

	client := openai.NewClient(
		option.WithAPIKey(req.APIKey),
		option.WithBaseURL(c.baseURL),
	)

	c.logger.Debug("Sending audio to cloud ASR",
		logger.String("model", c.model),
		logger.Int("audio_bytes", len(req.Audio)))

	start := time.Now()
	transcription, err := client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(c.model),
		File:  openai.File(bytes.NewReader(req.Audio), req.Filename, "audio/wav"),
	})
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("cloud transcription failed: %w", err)}
	}

	result := &Response{
		Text:           transcription.Text,
		ProcessingTime: time.Since(start).Seconds(),
	}
	if req.WithTimestamps {
		// The cloud endpoint does not provide word timestamps; return an
		// empty list so the field is present when asked for
		result.Timestamps = []WordTimestamp{}
	}

	return result, nil
}
