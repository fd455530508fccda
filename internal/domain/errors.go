package domain

import "errors"

// Error kinds reported by the acquirer and packager. The coordinator is the
// single point that decides which of these are recoverable; the HTTP layer
// never sees them directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNoMedia      = errors.New("no suitable video file in torrent")
	ErrDeadTorrent  = errors.New("dead torrent")
	ErrEngine       = errors.New("engine error")
	ErrFileNotReady = errors.New("file not ready")
	ErrCodec        = errors.New("codec error")
	ErrIO           = errors.New("io error")
	ErrCancelled    = errors.New("cancelled")
)
