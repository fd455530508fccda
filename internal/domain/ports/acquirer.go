package ports

import (
	"context"

	"streamgate/internal/domain"
)

// TorrentFile is the capability surface the file-selection policy needs from
// an engine's file object. Engines that cannot deselect or prioritise
// implement only the required methods; the optional capabilities are detected
// by interface assertion and failures are tolerated.
type TorrentFile interface {
	Name() string
	Size() int64
	Select()
}

// Deselecter is implemented by files that can be excluded from download.
type Deselecter interface {
	Deselect()
}

// Prioritizer is implemented by files whose piece priority can be raised.
type Prioritizer interface {
	RaisePriority()
}

// Acquisition describes a successfully started swarm download.
type Acquisition struct {
	// File is the selected video file.
	File domain.FileRef
	// TorrentName is the display name announced by the torrent.
	TorrentName string
	// CandidatePath is where the engine is expected to place the file on disk.
	// The coordinator falls back to a directory scan when it is absent.
	CandidatePath string
}

// SwarmStats is a point-in-time snapshot of swarm health.
type SwarmStats struct {
	Peers           int
	DownloadSpeed   int64
	UploadSpeed     int64
	DownloadedBytes int64
}

// Acquirer wraps a BitTorrent engine keyed by stream ID.
type Acquirer interface {
	// Start begins acquisition and blocks until the engine is ready and the
	// target file is selected, or ctx expires. Error kinds: ErrInvalidInput,
	// ErrNoMedia, ErrEngine, ErrDeadTorrent (ctx expired before metadata
	// arrived with no peers connected), ErrCancelled.
	Start(ctx context.Context, id domain.StreamID, magnetURI string) (Acquisition, error)
	// Progress returns the overall torrent download percentage in [0,100].
	Progress(id domain.StreamID) (float64, error)
	// EffectiveBytes returns the best available estimate of downloaded bytes
	// for the selected file: max(on-disk size, engine-reported per-file bytes).
	EffectiveBytes(id domain.StreamID) (int64, error)
	Swarm(id domain.StreamID) (SwarmStats, error)
	// Cleanup destroys the session. Idempotent.
	Cleanup(id domain.StreamID)
}
