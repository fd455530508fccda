package packager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/media"
	"streamgate/internal/metrics"
)

const (
	// minInputBytes is the least amount of input required before FFmpeg is
	// even attempted. Below this the run is doomed to an immediate probe
	// failure, so it is reported as file-not-ready without spawning.
	minInputBytes = 50 << 10

	// readyPercent is the packaging progress at which the stream is declared
	// playable. Several segments are committed by then.
	readyPercent = 10.0

	progressPollInterval = 500 * time.Millisecond
)

type Config struct {
	FFmpegPath string
	Prober     *media.Prober
	Logger     *slog.Logger
	// DefaultMode is the first mode attempted. Stream copy falls back to
	// re-encode once on codec errors; re-encode never falls back.
	DefaultMode Mode
}

type job struct {
	cancel   context.CancelFunc
	mode     Mode
	attempts int
}

// Packager supervises FFmpeg HLS jobs keyed by stream ID.
type Packager struct {
	ffmpegPath  string
	prober      *media.Prober
	logger      *slog.Logger
	defaultMode Mode

	mu   sync.Mutex
	jobs map[domain.StreamID]*job
}

var _ ports.Packager = (*Packager)(nil)

func New(cfg Config) *Packager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mode := cfg.DefaultMode
	if mode == "" {
		mode = ModeStreamCopy
	}
	ffmpegPath := cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Packager{
		ffmpegPath:  ffmpegPath,
		prober:      cfg.Prober,
		logger:      logger,
		defaultMode: mode,
		jobs:        make(map[domain.StreamID]*job),
	}
}

// Convert supervises a packager run to completion. Success means the input
// reached EOF with the playlist flushed; the OnReady event fires much
// earlier, as soon as enough leading segments are committed.
func (p *Packager) Convert(ctx context.Context, id domain.StreamID, inputPath, outputDir string, events ports.PackagerEvents) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("%w: input %s absent", domain.ErrFileNotReady, filepath.Base(inputPath))
	}
	if info.Size() < minInputBytes {
		return fmt.Errorf("%w: input only %d bytes", domain.ErrFileNotReady, info.Size())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entry := &job{cancel: cancel, mode: p.defaultMode}
	p.mu.Lock()
	if prev, ok := p.jobs[id]; ok {
		prev.cancel()
	}
	p.jobs[id] = entry
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.jobs[id] == entry {
			delete(p.jobs, id)
		}
		p.mu.Unlock()
	}()

	var duration float64
	if p.prober != nil {
		duration = p.prober.Duration(runCtx, inputPath)
	}

	mode := p.defaultMode
	for {
		entry.attempts++
		err := p.runOnce(runCtx, id, inputPath, outputDir, mode, duration, events)
		if err == nil {
			return nil
		}
		// One fallback from stream copy to re-encode, then give up.
		if mode == ModeStreamCopy && isRetryableAsReEncode(err) && entry.attempts == 1 {
			p.logger.Warn("stream copy failed, falling back to re-encode",
				slog.String("streamId", string(id)),
				slog.String("error", err.Error()),
			)
			mode = ModeReEncode
			entry.mode = mode
			continue
		}
		return err
	}
}

func (p *Packager) runOnce(ctx context.Context, id domain.StreamID, inputPath, outputDir string, mode Mode, duration float64, events ports.PackagerEvents) error {
	args := buildArgs(inputPath, mode)
	proc := newFFmpegProcess(ctx, p.ffmpegPath, args, outputDir)

	p.logger.Info("packager starting",
		slog.String("streamId", string(id)),
		slog.String("mode", string(mode)),
		slog.String("input", inputPath),
		slog.Float64("durationSec", duration),
	)

	started := time.Now()
	if err := proc.start(); err != nil {
		metrics.PackagerFailuresTotal.Inc()
		return fmt.Errorf("%w: ffmpeg start: %v", domain.ErrEngine, err)
	}
	metrics.PackagerJobsTotal.Inc()
	metrics.PackagerActiveJobs.Inc()
	defer metrics.PackagerActiveJobs.Dec()

	if events.OnStart != nil {
		events.OnStart()
	}

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		p.watchProgress(ctx, proc, outputDir, duration, events)
	}()

	waitErr := proc.wait()
	<-watchDone
	metrics.PackagerEncodeDuration.Observe(time.Since(started).Seconds())

	if waitErr != nil {
		classified := classifyExit(ctx, waitErr, proc.stderr())
		metrics.PackagerFailuresTotal.Inc()
		p.logger.Error("packager exited with error",
			slog.String("streamId", string(id)),
			slog.String("mode", string(mode)),
			slog.String("error", classified.Error()),
		)
		return classified
	}

	if !outputsExist(outputDir) {
		metrics.PackagerFailuresTotal.Inc()
		return fmt.Errorf("%w: playlist not produced", domain.ErrFileNotReady)
	}

	// Completion implies playability even if the ≥10% report never arrived
	// (very short inputs finish inside one poll interval).
	if events.OnReady != nil {
		events.OnReady()
	}
	if events.OnProgress != nil {
		events.OnProgress(100)
	}

	p.logger.Info("packager finished",
		slog.String("streamId", string(id)),
		slog.String("mode", string(mode)),
		slog.Int64("tookMs", time.Since(started).Milliseconds()),
	)
	return nil
}

// watchProgress surfaces FFmpeg progress. The stream becomes ready at the
// first report of at least 10 percent, or at the first processed frame when
// the input duration is unknown — never before the playlist and first
// segment exist on disk.
func (p *Packager) watchProgress(ctx context.Context, proc *ffmpegProcess, outputDir string, duration float64, events ports.PackagerEvents) {
	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	readyFired := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-proc.doneCh():
			return
		case <-ticker.C:
		}

		var percent float64
		if duration > 0 {
			percent = proc.progressSeconds() / duration * 100
			if percent > 100 {
				percent = 100
			}
			if events.OnProgress != nil && percent > 0 {
				events.OnProgress(percent)
			}
		}

		if readyFired {
			continue
		}
		reached := percent >= readyPercent
		if duration <= 0 && proc.frameCount() > 0 {
			reached = true
		}
		if reached && outputsExist(outputDir) {
			readyFired = true
			if events.OnReady != nil {
				events.OnReady()
			}
		}
	}
}

// outputsExist reports whether the playlist and at least one segment have
// been flushed.
func outputsExist(outputDir string) bool {
	if _, err := os.Stat(filepath.Join(outputDir, playlistFileName)); err != nil {
		return false
	}
	segments, err := filepath.Glob(filepath.Join(outputDir, "segment*.ts"))
	if err != nil {
		return false
	}
	return len(segments) > 0
}

// Stop terminates the job for the stream. Idempotent.
func (p *Packager) Stop(id domain.StreamID) {
	p.mu.Lock()
	entry, ok := p.jobs[id]
	if ok {
		delete(p.jobs, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	entry.cancel()
	p.logger.Info("packager stopped", slog.String("streamId", string(id)))
}

func (p *Packager) Active() []domain.StreamID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]domain.StreamID, 0, len(p.jobs))
	for id := range p.jobs {
		ids = append(ids, id)
	}
	return ids
}
