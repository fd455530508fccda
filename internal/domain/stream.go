package domain

import (
	"errors"
	"time"
)

// StreamID is the full UUID assigned to a stream at creation. Filesystem
// paths use a short hash of it; the registry always keys by the full ID.
type StreamID string

// StreamStatus is the externally visible lifecycle state of a stream.
type StreamStatus string

const (
	StatusInitializing   StreamStatus = "initializing"
	StatusDownloading    StreamStatus = "downloading"
	StatusConverting     StreamStatus = "converting"
	StatusWaitingForData StreamStatus = "waiting_for_data"
	StatusReady          StreamStatus = "ready"
	StatusError          StreamStatus = "error"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// validTransitions is the adjacency list of allowed forward transitions.
// ready and error are terminal for forward transitions; cleanup removes the
// record entirely and is not a transition.
var validTransitions = map[StreamStatus][]StreamStatus{
	StatusInitializing:   {StatusDownloading, StatusError},
	StatusDownloading:    {StatusConverting, StatusWaitingForData, StatusError},
	StatusWaitingForData: {StatusConverting, StatusError},
	StatusConverting:     {StatusReady, StatusWaitingForData, StatusError},
	StatusReady:          {},
	StatusError:          {},
}

// CanTransition reports whether a stream may move from one status to another.
func CanTransition(from, to StreamStatus) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Active reports whether the status marks a stream the janitor must not sweep.
func (s StreamStatus) Active() bool {
	return s == StatusDownloading || s == StatusConverting
}

// Stream is the central registry record. It is mutated only through the
// registry's update operations.
type Stream struct {
	ID          StreamID     `json:"streamId"`
	MagnetURI   string       `json:"-"`
	Status      StreamStatus `json:"status"`
	Progress    float64      `json:"progress"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	AccessCount int64        `json:"-"`
	AccessedAt  time.Time    `json:"-"`
}

// Validate checks domain invariants for Stream.
func (s Stream) Validate() error {
	if s.ID == "" {
		return errors.New("stream id is required")
	}
	if s.Progress < 0 || s.Progress > 100 {
		return errors.New("progress must be within [0,100]")
	}
	switch s.Status {
	case StatusInitializing, StatusDownloading, StatusConverting,
		StatusWaitingForData, StatusReady, StatusError:
		// valid
	case "":
		return errors.New("status is required")
	default:
		return errors.New("invalid status: " + string(s.Status))
	}
	return nil
}
