package apihttp

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"streamgate/internal/domain"
)

const (
	contentTypePlaylist = "application/vnd.apple.mpegurl"
	contentTypeSegment  = "video/mp2t"
)

// handleHLSFile serves any file inside the stream's HLS directory. Range
// requests are honoured via http.ServeContent (206, Content-Range,
// Accept-Ranges). Segments are immutable and cached hard; playlists roll
// and must never be cached.
func (s *Server) handleHLSFile(w http.ResponseWriter, r *http.Request) {
	id := domain.StreamID(chi.URLParam(r, "id"))
	stream, err := s.registry.Get(id)
	if err != nil || stream.Status == domain.StatusError {
		writeError(w, http.StatusNotFound, "not_found", "stream not found")
		return
	}
	_ = s.registry.KeepAlive(id)

	name := chi.URLParam(r, "file")
	full, err := safeHLSPath(s.paths.HLSDir(id), name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid file path")
		return
	}

	f, err := os.Open(full)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u8":
		w.Header().Set("Content-Type", contentTypePlaylist)
		w.Header().Set("Cache-Control", "no-cache")
	case ".ts":
		w.Header().Set("Content-Type", contentTypeSegment)
		w.Header().Set("Cache-Control", "public, max-age=31536000")
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// safeHLSPath joins name onto base, rejecting traversal outside it.
func safeHLSPath(base, name string) (string, error) {
	cleaned := filepath.Clean(name)
	if strings.Contains(cleaned, "..") || strings.HasPrefix(cleaned, string(filepath.Separator)) {
		return "", errors.New("invalid path")
	}
	full := filepath.Join(base, cleaned)
	if !strings.HasPrefix(full, base+string(filepath.Separator)) && full != base {
		return "", errors.New("invalid path")
	}
	return full, nil
}
