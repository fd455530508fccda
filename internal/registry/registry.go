package registry

import (
	"fmt"
	"sync"
	"time"

	"streamgate/internal/domain"
)

// Registry is the in-memory index of live streams. A single mutex over the
// whole map suffices: the map holds tens of entries and updates are cheap.
// Status changes are immediately visible to the next reader; the HTTP
// surface polls, so no event bus is needed.
type Registry struct {
	mu      sync.RWMutex
	streams map[domain.StreamID]*domain.Stream
	now     func() time.Time
}

func New() *Registry {
	return &Registry{
		streams: make(map[domain.StreamID]*domain.Stream),
		now:     time.Now,
	}
}

// NewWithClock builds a registry with an injected clock for tests.
func NewWithClock(now func() time.Time) *Registry {
	r := New()
	r.now = now
	return r
}

func (r *Registry) Create(id domain.StreamID, magnetURI string) (domain.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[id]; exists {
		return domain.Stream{}, fmt.Errorf("stream %s already exists", id)
	}

	now := r.now().UTC()
	stream := &domain.Stream{
		ID:         id,
		MagnetURI:  magnetURI,
		Status:     domain.StatusInitializing,
		Progress:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
		AccessedAt: now,
	}
	r.streams[id] = stream
	return *stream, nil
}

func (r *Registry) Get(id domain.StreamID) (domain.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stream, ok := r.streams[id]
	if !ok {
		return domain.Stream{}, domain.ErrNotFound
	}
	return *stream, nil
}

// UpdateStatus applies a validated status transition. The error message is
// recorded only when the new status is error. Once a stream reaches error,
// only cleanup (Remove) is permitted.
func (r *Registry) UpdateStatus(id domain.StreamID, status domain.StreamStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, ok := r.streams[id]
	if !ok {
		return domain.ErrNotFound
	}
	if stream.Status == status {
		return nil
	}
	if !domain.CanTransition(stream.Status, status) {
		return fmt.Errorf("%w: %s -> %s for stream %s", domain.ErrInvalidTransition, stream.Status, status, id)
	}
	stream.Status = status
	if status == domain.StatusError {
		stream.Error = errMsg
	}
	if status == domain.StatusReady {
		// Reported progress is pinned at 100 once playable, even if the
		// swarm is still filling in the tail.
		stream.Progress = 100
	}
	stream.UpdatedAt = r.now().UTC()
	return nil
}

// UpdateProgress sets the overall download percentage, clamped to [0,100].
// Progress of a ready stream stays pinned at 100.
func (r *Registry) UpdateProgress(id domain.StreamID, progress float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, ok := r.streams[id]
	if !ok {
		return domain.ErrNotFound
	}
	if stream.Status == domain.StatusReady {
		return nil
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	stream.Progress = progress
	stream.UpdatedAt = r.now().UTC()
	return nil
}

// KeepAlive bumps the access counter and last-access timestamp.
func (r *Registry) KeepAlive(id domain.StreamID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, ok := r.streams[id]
	if !ok {
		return domain.ErrNotFound
	}
	stream.AccessCount++
	stream.AccessedAt = r.now().UTC()
	return nil
}

func (r *Registry) Remove(id domain.StreamID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.streams, id)
	return nil
}

func (r *Registry) ListByStatus(status domain.StreamStatus) []domain.Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Stream
	for _, stream := range r.streams {
		if stream.Status == status {
			out = append(out, *stream)
		}
	}
	return out
}

// ListOlderThan returns streams created before now-age. Streams in
// downloading or converting are exempt regardless of age so the janitor
// never sweeps a slow but healthy stream.
func (r *Registry) ListOlderThan(age time.Duration) []domain.Stream {
	cutoff := r.now().UTC().Add(-age)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Stream
	for _, stream := range r.streams {
		if stream.Status.Active() {
			continue
		}
		if stream.CreatedAt.Before(cutoff) {
			out = append(out, *stream)
		}
	}
	return out
}

// List returns all streams.
func (r *Registry) List() []domain.Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Stream, 0, len(r.streams))
	for _, stream := range r.streams {
		out = append(out, *stream)
	}
	return out
}

func (r *Registry) Stats() map[domain.StreamStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[domain.StreamStatus]int)
	for _, stream := range r.streams {
		stats[stream.Status]++
	}
	return stats
}
