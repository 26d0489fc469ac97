package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scb10x/typhoon-scribe/internal/api"
	"github.com/scb10x/typhoon-scribe/internal/audio"
	"github.com/scb10x/typhoon-scribe/internal/config"
	"github.com/scb10x/typhoon-scribe/internal/session"
	"github.com/scb10x/typhoon-scribe/internal/transcription"
	"github.com/scb10x/typhoon-scribe/internal/websocket"
	"github.com/scb10x/typhoon-scribe/pkg/logger"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting typhoon-scribe server",
		logger.String("host", cfg.Server.Host),
		logger.Int("port", cfg.Server.Port),
		logger.Bool("use_api", cfg.Transcription.UseAPI))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket server for pushing live results to the UI
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	// Transcription client (cloud or self-hosted engine)
	client := transcription.NewClient(transcription.Config{
		EngineURL:      cfg.Transcription.EngineURL,
		CloudBaseURL:   cfg.Transcription.CloudBaseURL,
		CloudModel:     cfg.Transcription.CloudModel,
		TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
	}, log)

	// Microphone capture via ffmpeg
	source := audio.NewCaptureSource(audio.CaptureConfig{
		FFmpegPath:  cfg.Capture.FFmpegPath,
		Input:       cfg.Capture.Input,
		InputFormat: cfg.Capture.InputFormat,
		SampleRate:  cfg.Capture.SampleRate,
		Channels:    cfg.Capture.Channels,
		FrameMs:     cfg.Capture.FrameMs,
	}, log)

	// Session manager pushes every reconciled outcome to connected clients
	manager := session.NewManager(ctx, session.Config{
		FlushInterval:  time.Duration(cfg.Session.FlushIntervalMs) * time.Millisecond,
		SampleRate:     cfg.Capture.SampleRate,
		Channels:       cfg.Capture.Channels,
		APIKey:         cfg.Transcription.APIKey,
		UseAPI:         cfg.Transcription.UseAPI,
		Device:         cfg.Transcription.Device,
		WithTimestamps: cfg.Transcription.WithTimestamps,
	}, source, client, log, func(outcome session.Outcome) {
		wsServer.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeTranscriptionUpdate,
			Data: outcome,
		})
	})

	// HTTP API
	handler := api.NewHandler(manager, client, wsServer, cfg, log)
	mw := api.NewMiddleware(log)
	router := api.NewRouter(handler, mw, cfg, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	// Start the server in a goroutine so we can wait for signals
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal or server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("HTTP server failed", logger.Error(err))
	}

	// Graceful shutdown: stop any active session first so the device is
	// released and the final result is reconciled, then drain HTTP
	if err := manager.Close(); err != nil {
		log.Warn("Error closing session manager", logger.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", logger.Error(err))
	}

	log.Info("Server stopped")
}
