package apihttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"streamgate/internal/domain"
)

type createStreamRequest struct {
	MagnetURL string `json:"magnetUrl"`
}

type createStreamResponse struct {
	StreamID  domain.StreamID     `json:"streamId"`
	Status    domain.StreamStatus `json:"status"`
	HLSURL    string              `json:"hlsUrl"`
	StatusURL string              `json:"statusUrl"`
}

type streamStatusResponse struct {
	StreamID  domain.StreamID     `json:"streamId"`
	Status    domain.StreamStatus `json:"status"`
	Progress  float64             `json:"progress"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

type pendingStreamResponse struct {
	Status   domain.StreamStatus `json:"status"`
	Progress float64             `json:"progress"`
	Message  string              `json:"message"`
}

func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req createStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.MagnetURL) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "magnetUrl is required")
		return
	}

	stream, err := s.streams.NewStream(req.MagnetURL)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_request", "magnetUrl is not a valid magnet uri")
			return
		}
		s.logger.Error("stream creation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "could not create stream")
		return
	}

	writeJSON(w, http.StatusOK, createStreamResponse{
		StreamID:  stream.ID,
		Status:    stream.Status,
		HLSURL:    "/stream/" + string(stream.ID),
		StatusURL: "/stream/" + string(stream.ID) + "/status",
	})
}

func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	id := domain.StreamID(chi.URLParam(r, "id"))
	stream, err := s.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "stream not found")
		return
	}
	_ = s.registry.KeepAlive(id)

	writeJSON(w, http.StatusOK, streamStatusResponse{
		StreamID:  stream.ID,
		Status:    stream.Status,
		Progress:  stream.Progress,
		Error:     stream.Error,
		CreatedAt: stream.CreatedAt,
		UpdatedAt: stream.UpdatedAt,
	})
}

// handlePlaylist serves the HLS playlist once the stream is playable. Until
// then clients get 202 with the current status so they can keep polling.
func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	id := domain.StreamID(chi.URLParam(r, "id"))
	stream, err := s.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "stream not found")
		return
	}
	_ = s.registry.KeepAlive(id)

	switch stream.Status {
	case domain.StatusReady:
		w.Header().Set("Content-Type", contentTypePlaylist)
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, s.paths.PlaylistPath(id))
	case domain.StatusError:
		// Cleanup may already have deleted the files.
		writeError(w, http.StatusNotFound, "not_found", "stream failed: "+stream.Error)
	default:
		writeJSON(w, http.StatusAccepted, pendingStreamResponse{
			Status:   stream.Status,
			Progress: stream.Progress,
			Message:  "stream is not ready yet",
		})
	}
}

func (s *Server) handleForceCleanup(w http.ResponseWriter, r *http.Request) {
	id := domain.StreamID(chi.URLParam(r, "id"))
	if _, err := s.registry.Get(id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "stream not found")
		return
	}
	s.streams.Cleanup(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}
