package janitor

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"streamgate/internal/domain"
	"streamgate/internal/registry"
)

const testMagnet = "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567"

type fakeCleaner struct {
	mu      sync.Mutex
	cleaned []domain.StreamID
}

func (f *fakeCleaner) Cleanup(id domain.StreamID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, id)
}

func (f *fakeCleaner) ids() map[domain.StreamID]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[domain.StreamID]bool)
	for _, id := range f.cleaned {
		out[id] = true
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepPreservesActiveStreams(t *testing.T) {
	now := time.Now()
	clock := now
	reg := registry.NewWithClock(func() time.Time { return clock })

	for _, id := range []domain.StreamID{"slow-downloading", "old-ready", "old-error", "converting"} {
		if _, err := reg.Create(id, testMagnet); err != nil {
			t.Fatal(err)
		}
	}
	mustStatus(t, reg, "slow-downloading", domain.StatusDownloading)
	mustStatus(t, reg, "converting", domain.StatusDownloading, domain.StatusConverting)
	mustStatus(t, reg, "old-ready", domain.StatusDownloading, domain.StatusConverting, domain.StatusReady)
	mustStatus(t, reg, "old-error", domain.StatusError)

	// 35 minutes pass with the downloading stream stuck at 3%.
	_ = reg.UpdateProgress("slow-downloading", 3)
	clock = now.Add(35 * time.Minute)

	cleaner := &fakeCleaner{}
	j := New(reg, cleaner, discardLogger(), time.Minute, 30*time.Minute)
	j.Sweep()

	cleaned := cleaner.ids()
	if cleaned["slow-downloading"] {
		t.Fatal("downloading stream swept despite active-status exemption")
	}
	if cleaned["converting"] {
		t.Fatal("converting stream swept despite active-status exemption")
	}
	if !cleaned["old-ready"] {
		t.Fatal("expired ready stream not swept")
	}
	if !cleaned["old-error"] {
		t.Fatal("expired error stream not swept")
	}
}

func TestSweepIgnoresFreshStreams(t *testing.T) {
	reg := registry.New()
	if _, err := reg.Create("fresh", testMagnet); err != nil {
		t.Fatal(err)
	}

	cleaner := &fakeCleaner{}
	j := New(reg, cleaner, discardLogger(), time.Minute, 30*time.Minute)
	j.Sweep()

	if len(cleaner.ids()) != 0 {
		t.Fatalf("fresh stream swept: %v", cleaner.cleaned)
	}
}

func mustStatus(t *testing.T, reg *registry.Registry, id domain.StreamID, steps ...domain.StreamStatus) {
	t.Helper()
	for _, status := range steps {
		if err := reg.UpdateStatus(id, status, "x"); err != nil {
			t.Fatalf("UpdateStatus(%s, %s): %v", id, status, err)
		}
	}
}
