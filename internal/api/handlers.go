package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/scb10x/typhoon-scribe/internal/config"
	"github.com/scb10x/typhoon-scribe/internal/session"
	"github.com/scb10x/typhoon-scribe/internal/transcription"
	"github.com/scb10x/typhoon-scribe/internal/websocket"
	"github.com/scb10x/typhoon-scribe/pkg/logger"
)

// maxUploadBytes bounds one-shot transcription uploads (64 MiB).
const maxUploadBytes = 64 << 20

// Handler contains the HTTP handlers for the API
type Handler struct {
	manager  *session.Manager
	client   *transcription.Client
	wsServer *websocket.Server
	config   *config.Config
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(
	manager *session.Manager,
	client *transcription.Client,
	wsServer *websocket.Server,
	cfg *config.Config,
	logger *logger.Logger,
) *Handler {
	return &Handler{
		manager:  manager,
		client:   client,
		wsServer: wsServer,
		config:   cfg,
		logger:   logger.Named("api"),
	}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"session": h.manager.Status(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Transcribe handles POST /api/v1/transcribe: one-shot transcription of an
// uploaded audio file.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	req := transcription.Request{
		Audio:          audio,
		Filename:       header.Filename,
		APIKey:         h.config.Transcription.APIKey,
		UseAPI:         h.config.Transcription.UseAPI,
		Device:         h.config.Transcription.Device,
		WithTimestamps: h.config.Transcription.WithTimestamps,
	}

	// Per-request overrides
	if v := r.FormValue("api_key"); v != "" {
		req.APIKey = v
	}
	if v := r.FormValue("use_api"); v != "" {
		useAPI, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "use_api must be a boolean")
			return
		}
		req.UseAPI = useAPI
	}
	if v := r.FormValue("device"); v != "" {
		req.Device = v
	}
	if v := r.FormValue("with_timestamps"); v != "" {
		withTS, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "with_timestamps must be a boolean")
			return
		}
		req.WithTimestamps = withTS
	}

	if req.UseAPI && req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "API key is required for API mode")
		return
	}

	resp, err := h.client.Transcribe(r.Context(), req)
	if err != nil {
		h.logger.Error("One-shot transcription failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// StartSession handles POST /api/v1/sessions/start
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Start(); err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("Failed to start session", logger.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := h.manager.Status()
	h.wsServer.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeSessionStatus,
		Data: map[string]interface{}{"status": status},
	})

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
	})
}

// StopSession handles POST /api/v1/sessions/stop
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.manager.Stop()
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("Failed to stop session", logger.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.wsServer.Broadcast(&websocket.Message{
		Type: websocket.MessageTypeSessionStatus,
		Data: map[string]interface{}{"status": h.manager.Status()},
	})

	WriteJSON(w, http.StatusOK, outcome)
}

// GetSessionStatus handles GET /api/v1/sessions/status
func (h *Handler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  h.manager.Status(),
		"outcome": h.manager.Outcome(),
	})
}

// GetConfig handles GET /api/v1/config. Secrets are never exposed.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"use_api":         h.config.Transcription.UseAPI,
		"device":          h.config.Transcription.Device,
		"with_timestamps": h.config.Transcription.WithTimestamps,
		"cloud_model":     h.config.Transcription.CloudModel,
		"sample_rate":     h.config.Capture.SampleRate,
		"channels":        h.config.Capture.Channels,
		"flush_interval":  h.config.Session.FlushIntervalMs,
		"has_api_key":     h.config.Transcription.APIKey != "",
	})
}

// HandleWebSocket handles GET /api/v1/ws
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}
