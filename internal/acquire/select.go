package acquire

import (
	"log/slog"
	"path"
	"sort"
	"strings"

	"streamgate/internal/domain/ports"
)

// videoExtensions is the set of container extensions accepted as playable.
var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
	".ts": true, ".mts": true, ".m2ts": true,
}

// junkPatterns excludes promotional and bonus material by basename.
var junkPatterns = []string{
	"sample", "trailer", "preview", "extra", "bonus", "behind", "making",
}

const minPreferredSize = 10 << 20 // 10 MiB

// IsVideoFile reports whether the name carries a known video extension.
func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(path.Ext(name))]
}

func looksLikeJunk(name string) bool {
	base := strings.ToLower(path.Base(name))
	for _, pattern := range junkPatterns {
		if strings.Contains(base, pattern) {
			return true
		}
	}
	return false
}

// SelectVideoFile applies the file-selection policy: keep video extensions,
// drop sample/trailer-style names, prefer files of at least 10 MiB (falling
// back to the largest survivor when none qualify), then pick the largest.
// Returns the index into files, or -1 when nothing survives.
func SelectVideoFile(files []ports.TorrentFile) int {
	type candidate struct {
		index int
		size  int64
	}

	var candidates []candidate
	for i, f := range files {
		if !IsVideoFile(f.Name()) {
			continue
		}
		if looksLikeJunk(f.Name()) {
			continue
		}
		candidates = append(candidates, candidate{index: i, size: f.Size()})
	}
	if len(candidates) == 0 {
		return -1
	}

	var preferred []candidate
	for _, c := range candidates {
		if c.size >= minPreferredSize {
			preferred = append(preferred, c)
		}
	}
	if len(preferred) == 0 {
		preferred = candidates
	}

	sort.Slice(preferred, func(i, j int) bool {
		return preferred[i].size > preferred[j].size
	})
	return preferred[0].index
}

// applySelection selects the winner on the engine and deselects every other
// file. Deselection and prioritisation are best-effort: some engines do not
// implement them, so their absence is tolerated (a missing Deselect is logged
// at debug level; a missing RaisePriority is skipped silently).
func applySelection(files []ports.TorrentFile, winner int, logger *slog.Logger) {
	for i, f := range files {
		if i == winner {
			f.Select()
			if p, ok := f.(ports.Prioritizer); ok {
				p.RaisePriority()
			}
			continue
		}
		if d, ok := f.(ports.Deselecter); ok {
			d.Deselect()
		} else {
			logger.Debug("engine does not support deselection",
				slog.String("file", f.Name()),
			)
		}
	}
}
