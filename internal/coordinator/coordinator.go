package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"streamgate/internal/acquire"
	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/media"
	"streamgate/internal/metrics"
	"streamgate/internal/storage/paths"
)

const (
	defaultMaxWait       = 60 * time.Second
	defaultPollInterval  = time.Second
	initialRequiredBytes = 2 << 20 // 2 MiB
	convertAttempts      = 3
	firstRetryDelay      = 10 * time.Second
	laterRetryDelay      = 15 * time.Second
)

type Config struct {
	// MaxStreams bounds concurrent stream orchestrations; 0 = unlimited.
	MaxStreams int
	// MaxWait bounds the readiness wait. Defaults to 60s.
	MaxWait time.Duration
	// PollInterval is the readiness/progress poll cadence. Defaults to 1s;
	// cancellation latency is bounded by it.
	PollInterval time.Duration
	// FirstRetryDelay and LaterRetryDelay pace packager retries after
	// file-not-ready failures. Defaults: 10s, then 15s.
	FirstRetryDelay time.Duration
	LaterRetryDelay time.Duration
}

// Coordinator orchestrates the stream pipeline: registry entry, torrent
// acquisition, readiness wait, packaging, and teardown. It is the only party
// that calls across components, always tearing down in the fixed order
// packager -> acquirer -> registry -> filesystem.
type Coordinator struct {
	registry ports.StreamRegistry
	acquirer ports.Acquirer
	packager ports.Packager
	paths    *paths.Service
	logger   *slog.Logger

	maxWait         time.Duration
	pollInterval    time.Duration
	firstRetryDelay time.Duration
	laterRetryDelay time.Duration
	sem             chan struct{}

	mu      sync.Mutex
	cancels map[domain.StreamID]context.CancelFunc
}

func New(reg ports.StreamRegistry, acq ports.Acquirer, pack ports.Packager, dirs *paths.Service, logger *slog.Logger, cfg Config) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	firstDelay := cfg.FirstRetryDelay
	if firstDelay <= 0 {
		firstDelay = firstRetryDelay
	}
	laterDelay := cfg.LaterRetryDelay
	if laterDelay <= 0 {
		laterDelay = laterRetryDelay
	}
	var sem chan struct{}
	if cfg.MaxStreams > 0 {
		sem = make(chan struct{}, cfg.MaxStreams)
	}
	return &Coordinator{
		registry:        reg,
		acquirer:        acq,
		packager:        pack,
		paths:           dirs,
		logger:          logger,
		maxWait:         maxWait,
		pollInterval:    poll,
		firstRetryDelay: firstDelay,
		laterRetryDelay: laterDelay,
		sem:             sem,
		cancels:         make(map[domain.StreamID]context.CancelFunc),
	}
}

// NewStream validates the magnet, allocates an ID, records the registry
// entry, prepares both directories, and launches the orchestration in the
// background. Creation never fails asynchronously: once this returns the
// caller has a stream ID to poll, even if the stream later fails.
func (c *Coordinator) NewStream(magnetURI string) (domain.Stream, error) {
	if err := acquire.ValidateMagnet(magnetURI); err != nil {
		return domain.Stream{}, err
	}

	id := domain.StreamID(uuid.NewString())
	stream, err := c.registry.Create(id, magnetURI)
	if err != nil {
		return domain.Stream{}, fmt.Errorf("%w: %v", domain.ErrEngine, err)
	}

	if err := c.paths.EnsureStreamDirs(id); err != nil {
		_ = c.registry.Remove(id)
		return domain.Stream{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels[id] = cancel
	c.mu.Unlock()

	metrics.StreamsCreatedTotal.Inc()
	c.logger.Info("stream created", slog.String("streamId", string(id)))

	go c.run(ctx, id, magnetURI)
	return stream, nil
}

func (c *Coordinator) run(ctx context.Context, id domain.StreamID, magnetURI string) {
	if c.sem != nil {
		select {
		case c.sem <- struct{}{}:
			defer func() { <-c.sem }()
		case <-ctx.Done():
			return
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, c.maxWait)
	acq, err := c.acquirer.Start(startCtx, id, magnetURI)
	cancel()
	if err != nil {
		c.fail(id, err)
		return
	}

	if err := c.registry.UpdateStatus(id, domain.StatusDownloading, ""); err != nil {
		c.logger.Warn("status update failed",
			slog.String("streamId", string(id)),
			slog.String("error", err.Error()),
		)
	}

	c.logger.Info("download started",
		slog.String("streamId", string(id)),
		slog.String("file", acq.File.Path),
		slog.String("size", humanize.IBytes(uint64(acq.File.Length))),
	)

	go c.pumpProgress(ctx, id)

	requiredBytes := int64(initialRequiredBytes)
	if err := c.awaitReadiness(ctx, id, acq.File.Length, requiredBytes); err != nil {
		c.fail(id, err)
		return
	}

	inputPath, err := c.resolveInputPath(id, acq)
	if err != nil {
		c.fail(id, err)
		return
	}

	if container, err := media.SniffContainer(inputPath); err == nil && container == media.ContainerUnknown {
		c.logger.Warn("unrecognised container signature, proceeding anyway",
			slog.String("streamId", string(id)),
			slog.String("input", inputPath),
		)
	}

	events := ports.PackagerEvents{
		OnStart: func() {
			_ = c.registry.UpdateStatus(id, domain.StatusConverting, "")
		},
		OnReady: func() {
			_ = c.registry.UpdateStatus(id, domain.StatusReady, "")
		},
	}

	for attempt := 1; ; attempt++ {
		err := c.packager.Convert(ctx, id, inputPath, c.paths.HLSDir(id), events)
		if err == nil {
			c.logger.Info("stream packaging complete", slog.String("streamId", string(id)))
			return
		}
		if !errors.Is(err, domain.ErrFileNotReady) || attempt >= convertAttempts {
			c.fail(id, err)
			return
		}

		_ = c.registry.UpdateStatus(id, domain.StatusWaitingForData, "")
		delay := c.firstRetryDelay
		if attempt > 1 {
			delay = c.laterRetryDelay
		}
		c.logger.Info("input not ready, retrying packager",
			slog.String("streamId", string(id)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		// requiredBytes doubles on each retry. awaitReadiness caps the
		// threshold at 1 MiB and 1% of the file length, so starting from
		// 2 MiB the effective threshold stays the same across retries.
		requiredBytes *= 2
		if err := c.awaitReadiness(ctx, id, acq.File.Length, requiredBytes); err != nil {
			c.fail(id, err)
			return
		}
	}
}

// pumpProgress mirrors the swarm's overall percentage into the registry
// until the orchestration context ends.
func (c *Coordinator) pumpProgress(ctx context.Context, id domain.StreamID) {
	ticker := time.NewTicker(2 * c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			percent, err := c.acquirer.Progress(id)
			if err != nil {
				return
			}
			_ = c.registry.UpdateProgress(id, percent)
		}
	}
}

// fail records a terminal error and tears the stream down, keeping the
// registry entry so clients can observe the failure. The janitor removes the
// entry later.
func (c *Coordinator) fail(id domain.StreamID, err error) {
	if errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled) {
		return
	}
	kind := errorKind(err)
	metrics.StreamFailuresTotal.WithLabelValues(kind).Inc()
	c.logger.Error("stream failed",
		slog.String("streamId", string(id)),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)

	if updateErr := c.registry.UpdateStatus(id, domain.StatusError, userMessage(err)); updateErr != nil {
		c.logger.Warn("error status update failed",
			slog.String("streamId", string(id)),
			slog.String("error", updateErr.Error()),
		)
	}

	c.packager.Stop(id)
	c.acquirer.Cleanup(id)
	if err := c.paths.RemoveStreamDirs(id); err != nil {
		c.logger.Warn("stream dir removal failed",
			slog.String("streamId", string(id)),
			slog.String("error", err.Error()),
		)
	}
}

// HandleDeadTorrent is wired to the acquirer's watchdog. It runs the same
// terminal path as any other failure and stops the orchestration task.
func (c *Coordinator) HandleDeadTorrent(id domain.StreamID, reason string) {
	c.mu.Lock()
	cancel := c.cancels[id]
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.fail(id, fmt.Errorf("%w: %s", domain.ErrDeadTorrent, reason))
}

// Cleanup cancels the orchestration and removes every trace of the stream:
// packager job, torrent session, registry entry, and both directories — in
// that order. Idempotent.
func (c *Coordinator) Cleanup(id domain.StreamID) {
	c.mu.Lock()
	cancel, ok := c.cancels[id]
	if ok {
		delete(c.cancels, id)
	}
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	c.packager.Stop(id)
	c.acquirer.Cleanup(id)
	if err := c.registry.Remove(id); err == nil {
		c.logger.Info("stream removed", slog.String("streamId", string(id)))
	}
	if err := c.paths.RemoveStreamDirs(id); err != nil {
		c.logger.Warn("stream dir removal failed",
			slog.String("streamId", string(id)),
			slog.String("error", err.Error()),
		)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrNoMedia):
		return "no_media"
	case errors.Is(err, domain.ErrDeadTorrent):
		return "dead_torrent"
	case errors.Is(err, domain.ErrFileNotReady):
		return "file_not_ready"
	case errors.Is(err, domain.ErrCodec):
		return "codec_error"
	case errors.Is(err, domain.ErrIO):
		return "io_error"
	case errors.Is(err, domain.ErrCancelled):
		return "cancelled"
	default:
		return "engine_error"
	}
}

// userMessage maps an internal error to the short human-readable message
// stored in the registry.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoMedia):
		return "torrent contains no playable video file"
	case errors.Is(err, domain.ErrDeadTorrent):
		return "torrent appears to be dead (no peers found)"
	case errors.Is(err, domain.ErrFileNotReady):
		return "could not read enough of the file to start playback"
	case errors.Is(err, domain.ErrCodec):
		return "media could not be repackaged for streaming"
	case errors.Is(err, domain.ErrIO):
		return "storage is not writable"
	default:
		return "stream failed"
	}
}
