package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"streamgate/internal/domain"
)

const testMagnet = "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567"

func TestCreateAndGet(t *testing.T) {
	r := New()

	created, err := r.Create("stream-1", testMagnet)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != domain.StatusInitializing {
		t.Fatalf("new stream status = %s, want initializing", created.Status)
	}
	if created.Progress != 0 {
		t.Fatalf("new stream progress = %f, want 0", created.Progress)
	}

	got, err := r.Get("stream-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.MagnetURI != testMagnet {
		t.Fatalf("magnet = %q, want %q", got.MagnetURI, testMagnet)
	}

	if _, err := r.Create("stream-1", testMagnet); err == nil {
		t.Fatal("duplicate Create should fail")
	}
	if _, err := r.Get("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestUpdateStatusValidatesTransitions(t *testing.T) {
	r := New()
	mustCreate(t, r, "s")

	if err := r.UpdateStatus("s", domain.StatusDownloading, ""); err != nil {
		t.Fatalf("initializing -> downloading: %v", err)
	}
	if err := r.UpdateStatus("s", domain.StatusReady, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("downloading -> ready = %v, want ErrInvalidTransition", err)
	}
	if err := r.UpdateStatus("s", domain.StatusConverting, ""); err != nil {
		t.Fatalf("downloading -> converting: %v", err)
	}
	// Same-status updates are no-ops.
	if err := r.UpdateStatus("s", domain.StatusConverting, ""); err != nil {
		t.Fatalf("converting -> converting: %v", err)
	}
	if err := r.UpdateStatus("s", domain.StatusError, "boom"); err != nil {
		t.Fatalf("converting -> error: %v", err)
	}

	got, _ := r.Get("s")
	if got.Error != "boom" {
		t.Fatalf("error message = %q, want boom", got.Error)
	}

	// error is terminal for forward transitions.
	if err := r.UpdateStatus("s", domain.StatusDownloading, ""); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("error -> downloading = %v, want ErrInvalidTransition", err)
	}
}

func TestProgressClampAndReadyPin(t *testing.T) {
	r := New()
	mustCreate(t, r, "s")

	if err := r.UpdateProgress("s", 150); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if got, _ := r.Get("s"); got.Progress != 100 {
		t.Fatalf("progress = %f, want clamped 100", got.Progress)
	}
	if err := r.UpdateProgress("s", -5); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if got, _ := r.Get("s"); got.Progress != 0 {
		t.Fatalf("progress = %f, want clamped 0", got.Progress)
	}

	// Drive to ready; progress reports pin at 100 from then on.
	_ = r.UpdateStatus("s", domain.StatusDownloading, "")
	_ = r.UpdateStatus("s", domain.StatusConverting, "")
	_ = r.UpdateStatus("s", domain.StatusReady, "")
	if got, _ := r.Get("s"); got.Progress != 100 {
		t.Fatalf("ready progress = %f, want pinned 100", got.Progress)
	}
	_ = r.UpdateProgress("s", 37)
	if got, _ := r.Get("s"); got.Progress != 100 {
		t.Fatalf("ready progress after update = %f, want pinned 100", got.Progress)
	}
}

func TestKeepAlive(t *testing.T) {
	r := New()
	mustCreate(t, r, "s")

	for i := 0; i < 3; i++ {
		if err := r.KeepAlive("s"); err != nil {
			t.Fatalf("KeepAlive: %v", err)
		}
	}
	got, _ := r.Get("s")
	if got.AccessCount != 3 {
		t.Fatalf("access count = %d, want 3", got.AccessCount)
	}
	if err := r.KeepAlive("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("KeepAlive missing = %v, want ErrNotFound", err)
	}
}

func TestListOlderThanExemptsActiveStreams(t *testing.T) {
	now := time.Now()
	clock := now
	r := NewWithClock(func() time.Time { return clock })

	mustCreate(t, r, "stuck-downloading")
	mustCreate(t, r, "old-error")
	mustCreate(t, r, "fresh")

	_ = r.UpdateStatus("stuck-downloading", domain.StatusDownloading, "")
	_ = r.UpdateStatus("old-error", domain.StatusError, "dead")

	// 35 minutes later the downloading stream is still protected.
	clock = now.Add(35 * time.Minute)
	mustCreate(t, r, "fresh-late")

	expired := r.ListOlderThan(30 * time.Minute)
	ids := make(map[domain.StreamID]bool)
	for _, s := range expired {
		ids[s.ID] = true
	}
	if ids["stuck-downloading"] {
		t.Fatal("downloading stream must never be swept")
	}
	if !ids["old-error"] {
		t.Fatal("expired error stream should be listed")
	}
	if !ids["fresh"] {
		t.Fatal("expired initializing stream should be listed")
	}
	if ids["fresh-late"] {
		t.Fatal("recently created stream should not be listed")
	}
}

func TestRemoveIdempotentObservation(t *testing.T) {
	r := New()
	mustCreate(t, r, "s")

	if err := r.Remove("s"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := r.Remove("s"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second Remove = %v, want ErrNotFound", err)
	}
	if _, err := r.Get("s"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("stream still present after Remove")
	}
}

func TestStatsAndListByStatus(t *testing.T) {
	r := New()
	mustCreate(t, r, "a")
	mustCreate(t, r, "b")
	mustCreate(t, r, "c")
	_ = r.UpdateStatus("b", domain.StatusDownloading, "")
	_ = r.UpdateStatus("c", domain.StatusDownloading, "")

	stats := r.Stats()
	if stats[domain.StatusInitializing] != 1 || stats[domain.StatusDownloading] != 2 {
		t.Fatalf("stats = %v", stats)
	}
	if got := len(r.ListByStatus(domain.StatusDownloading)); got != 2 {
		t.Fatalf("ListByStatus(downloading) = %d entries, want 2", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	mustCreate(t, r, "s")
	_ = r.UpdateStatus("s", domain.StatusDownloading, "")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = r.UpdateProgress("s", float64(n))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = r.Get("s")
			_ = r.KeepAlive("s")
		}()
	}
	wg.Wait()

	got, err := r.Get("s")
	if err != nil {
		t.Fatalf("Get after concurrent access: %v", err)
	}
	if got.Progress < 0 || got.Progress > 100 {
		t.Fatalf("progress out of range: %f", got.Progress)
	}
}

func mustCreate(t *testing.T, r *Registry, id domain.StreamID) {
	t.Helper()
	if _, err := r.Create(id, testMagnet); err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
}
