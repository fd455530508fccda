package ports

import (
	"context"

	"streamgate/internal/domain"
)

// PackagerEvents carries the callbacks through which a packager run reports
// its lifecycle. All callbacks are optional and are invoked from the
// supervising goroutine.
type PackagerEvents struct {
	// OnStart fires once the child process has started.
	OnStart func()
	// OnReady fires at the first progress report of at least 10 percent, or at
	// the first processed frame when the input duration is unknown, and again
	// when a run completes successfully; it may therefore fire more than once.
	OnReady func()
	// OnProgress reports packaging progress in [0,100] when duration is known.
	OnProgress func(percent float64)
}

// Packager supervises HLS packaging jobs keyed by stream ID.
type Packager interface {
	// Convert runs a packager job to completion. Error kinds:
	// ErrFileNotReady (input absent or unreadable at start; caller retries),
	// ErrCodec (after the internal re-encode fallback also failed, or from a
	// run that started in re-encode mode, which has no fallback),
	// anything else is fatal.
	Convert(ctx context.Context, id domain.StreamID, inputPath, outputDir string, events PackagerEvents) error
	// Stop terminates the job for the stream, if any. Idempotent.
	Stop(id domain.StreamID)
	Active() []domain.StreamID
}
