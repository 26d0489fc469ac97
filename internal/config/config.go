package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server        ServerConfig        `toml:"server"`        // HTTP server settings
	Logging       LoggingConfig       `toml:"logging"`       // Application logging settings
	Capture       CaptureConfig       `toml:"capture"`       // Microphone / audio input settings
	Transcription TranscriptionConfig `toml:"transcription"` // Transcription backend settings
	Session       SessionConfig       `toml:"session"`       // Live transcription session settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, required for streaming responses)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir     string   `toml:"static_files_dir"`      // Directory to serve static files from (e.g., "www")
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// CaptureConfig contains audio capture (microphone) configuration
type CaptureConfig struct {
	FFmpegPath  string `toml:"ffmpeg_path"`  // Path to FFmpeg executable used for device capture
	Input       string `toml:"input"`        // Capture input (e.g., "default" for ALSA, ":0" for avfoundation, or a stream URL)
	InputFormat string `toml:"input_format"` // FFmpeg input format (e.g., "alsa", "pulse", "avfoundation"; empty for URL inputs)
	SampleRate  int    `toml:"sample_rate"`  // Audio sample rate in Hz (16000 is what the ASR engine expects)
	Channels    int    `toml:"channels"`     // Number of audio channels (1 for mono, 2 for stereo)
	FrameMs     int    `toml:"frame_ms"`     // Size of emitted audio fragments in milliseconds
}

// TranscriptionConfig contains settings for the transcription backends.
// The credential is explicit configuration here rather than an ambient
// environment lookup at call sites; TYPHOON_API_KEY is honored as a
// fallback when the TOML value is empty.
type TranscriptionConfig struct {
	APIKey         string `toml:"api_key"`         // Credential forwarded to the transcription service (cloud mode)
	UseAPI         bool   `toml:"use_api"`         // true = cloud API backend, false = self-hosted engine
	Device         string `toml:"device"`          // Compute device hint for the self-hosted engine: "auto", "cpu", or "accelerated"
	WithTimestamps bool   `toml:"with_timestamps"` // Request word-level timestamps from the engine
	CloudBaseURL   string `toml:"cloud_base_url"`  // OpenAI-compatible cloud endpoint (defaults to https://api.opentyphoon.ai/v1)
	CloudModel     string `toml:"cloud_model"`     // Cloud ASR model name (e.g., "typhoon-asr-realtime")
	EngineURL      string `toml:"engine_url"`      // Base URL of the self-hosted ASR engine (e.g., http://127.0.0.1:8001)
	TimeoutSeconds int    `toml:"timeout_seconds"` // HTTP timeout for one-shot transcription requests in seconds
}

// SessionConfig contains settings for live streaming sessions
type SessionConfig struct {
	FlushIntervalMs int `toml:"flush_interval_ms"` // How often to re-transcribe the accumulated buffer while recording (milliseconds)
}

// Allowed compute device hints for the self-hosted engine
var validDevices = map[string]bool{
	"auto":        true,
	"cpu":         true,
	"accelerated": true,
}

// Load loads the configuration from the given TOML file
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // Location in configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// applyDefaults fills in values that have sensible defaults so a minimal
// config file still produces a working server
func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Capture.FFmpegPath == "" {
		c.Capture.FFmpegPath = "ffmpeg"
	}
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = 16000
	}
	if c.Capture.Channels == 0 {
		c.Capture.Channels = 1
	}
	if c.Capture.FrameMs == 0 {
		c.Capture.FrameMs = 250
	}
	if c.Transcription.Device == "" {
		c.Transcription.Device = "auto"
	}
	if c.Transcription.CloudBaseURL == "" {
		c.Transcription.CloudBaseURL = "https://api.opentyphoon.ai/v1"
	}
	if c.Transcription.CloudModel == "" {
		c.Transcription.CloudModel = "typhoon-asr-realtime"
	}
	if c.Transcription.TimeoutSeconds == 0 {
		c.Transcription.TimeoutSeconds = 120
	}
	if c.Transcription.APIKey == "" {
		c.Transcription.APIKey = os.Getenv("TYPHOON_API_KEY")
	}
	if c.Session.FlushIntervalMs == 0 {
		c.Session.FlushIntervalMs = 1000
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if err := c.ValidateCapture(); err != nil {
		return err
	}

	if err := c.ValidateTranscription(); err != nil {
		return err
	}

	if c.Session.FlushIntervalMs <= 0 {
		return fmt.Errorf("session flush_interval_ms must be positive, got %d", c.Session.FlushIntervalMs)
	}

	return nil
}

// ValidateCapture validates the audio capture configuration
func (c *Config) ValidateCapture() error {
	if c.Capture.Input == "" {
		return fmt.Errorf("capture input is required (e.g., \"default\" for ALSA)")
	}
	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("capture sample_rate must be positive, got %d", c.Capture.SampleRate)
	}
	if c.Capture.Channels != 1 && c.Capture.Channels != 2 {
		return fmt.Errorf("capture channels must be 1 or 2, got %d", c.Capture.Channels)
	}
	if c.Capture.FrameMs <= 0 {
		return fmt.Errorf("capture frame_ms must be positive, got %d", c.Capture.FrameMs)
	}
	return nil
}

// ValidateTranscription validates the transcription backend configuration
func (c *Config) ValidateTranscription() error {
	if !validDevices[c.Transcription.Device] {
		return fmt.Errorf("invalid transcription device %q (must be \"auto\", \"cpu\", or \"accelerated\")", c.Transcription.Device)
	}
	if c.Transcription.UseAPI && c.Transcription.APIKey == "" {
		return fmt.Errorf("transcription api_key is required when use_api is enabled (set it in the config file or via TYPHOON_API_KEY)")
	}
	if !c.Transcription.UseAPI && c.Transcription.EngineURL == "" {
		return fmt.Errorf("transcription engine_url is required when use_api is disabled")
	}
	return nil
}
