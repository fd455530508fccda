package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"streamgate/internal/acquire"
	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

const (
	readinessCapBytes = 1 << 20  // never demand more than 1 MiB
	limpAlongBytes    = 50 << 10 // enough to let the packager limp forward
)

// awaitReadiness blocks until the selected file has enough leading bytes for
// the packager, or fails with ErrDeadTorrent. The thresholds, in order:
//
//  1. the file is complete on disk;
//  2. effective bytes >= min(requiredBytes, 1% of length, 1 MiB);
//  3. half the maximum wait has passed and at least 50 KiB are available —
//     proceed with what we have;
//  4. the maximum wait has passed and the swarm shows any life (peers or
//     speed) — proceed with what we have.
//
// Past the maximum wait with a silent swarm the torrent is declared dead.
func (c *Coordinator) awaitReadiness(ctx context.Context, id domain.StreamID, fileLength, requiredBytes int64) error {
	threshold := requiredBytes
	if fileLength > 0 && fileLength/100 < threshold {
		threshold = fileLength / 100
	}
	if threshold > readinessCapBytes {
		threshold = readinessCapBytes
	}
	if threshold < 1 {
		threshold = 1
	}

	start := time.Now()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		case <-ticker.C:
		}

		effective, err := c.acquirer.EffectiveBytes(id)
		if err != nil {
			return fmt.Errorf("%w: session lost during readiness wait", domain.ErrEngine)
		}
		elapsed := time.Since(start)

		switch {
		case fileLength > 0 && effective >= fileLength:
			return nil
		case effective >= threshold:
			return nil
		case elapsed > c.maxWait/2 && effective >= limpAlongBytes:
			c.logger.Info("proceeding with partial data",
				slog.String("streamId", string(id)),
				slog.Int64("bytes", effective),
			)
			return nil
		case elapsed > c.maxWait:
			swarm, err := c.acquirer.Swarm(id)
			if err != nil {
				return fmt.Errorf("%w: session lost during readiness wait", domain.ErrEngine)
			}
			if swarm.Peers > 0 || swarm.DownloadSpeed > 0 {
				c.logger.Info("readiness wait exceeded, swarm alive, proceeding",
					slog.String("streamId", string(id)),
					slog.Int64("bytes", effective),
					slog.Int("peers", swarm.Peers),
				)
				return nil
			}
			return fmt.Errorf("%w: no peers and no data after %s", domain.ErrDeadTorrent, c.maxWait)
		}
	}
}

// resolveInputPath finds where the engine actually placed the selected file.
// Engines differ: some write the fully-qualified torrent subpath, others
// drop the file directly in the stream directory. The last resort is a
// recursive scan for the base filename or any video extension.
func (c *Coordinator) resolveInputPath(id domain.StreamID, acq ports.Acquisition) (string, error) {
	if acq.CandidatePath != "" {
		if _, err := os.Stat(acq.CandidatePath); err == nil {
			return acq.CandidatePath, nil
		}
	}

	streamDir := c.paths.StreamDir(id)
	base := filepath.Base(filepath.FromSlash(acq.File.Path))
	flat := filepath.Join(streamDir, base)
	if _, err := os.Stat(flat); err == nil {
		return flat, nil
	}

	var found string
	walkErr := filepath.WalkDir(streamDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return nil
		}
		name := d.Name()
		if strings.EqualFold(name, base) || acquire.IsVideoFile(name) {
			found = path
		}
		return nil
	})
	if walkErr == nil && found != "" {
		return found, nil
	}
	return "", fmt.Errorf("%w: %s not found under %s", domain.ErrFileNotReady, base, streamDir)
}
