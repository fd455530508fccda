package acquire

import (
	"context"
	"log/slog"
	"time"

	"github.com/anacrolix/torrent"
)

const (
	watchdogInterval = 10 * time.Second
	// recoveryStalls is the tick count at which a pause/resume recovery is
	// attempted. The counter resets only when peers are connected: with an
	// empty swarm the recovery cannot help, so the counter keeps climbing
	// toward the dead threshold.
	recoveryStalls = 3
	deadStalls     = 6
)

const deadTorrentMessage = "torrent appears to be dead (no peers found)"

// runWatchdog monitors download liveness for one session. Every tick it
// compares total completed bytes against the previous tick; no growth
// increments the stall counter. Speed samples for Swarm() are taken here as
// a side effect.
func (e *Engine) runWatchdog(ctx context.Context, sess *session) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dead := e.watchdogTick(sess); dead {
				e.notifyDead(sess.id, deadTorrentMessage)
				return
			}
		}
	}
}

func (e *Engine) watchdogTick(sess *session) (dead bool) {
	t := sess.torrent
	stats := t.Stats()
	completed := t.BytesCompleted()
	now := time.Now()

	sess.mu.Lock()
	e.sampleSpeedLocked(sess, stats.BytesReadUsefulData.Int64(), stats.BytesWrittenData.Int64(), now)

	if completed > sess.lastCompleted {
		sess.lastCompleted = completed
		sess.stalls = 0
		sess.mu.Unlock()
		return false
	}
	sess.stalls++
	stalls := sess.stalls
	if stalls >= recoveryStalls && stats.ActivePeers > 0 {
		sess.stalls = 0
	}
	sess.mu.Unlock()

	if stalls >= deadStalls && stats.ActivePeers == 0 {
		e.logger.Warn("torrent declared dead",
			slog.String("streamId", string(sess.id)),
			slog.Int("stalledTicks", stalls),
		)
		return true
	}

	if stalls >= recoveryStalls {
		e.logger.Warn("download stalled, attempting swarm recovery",
			slog.String("streamId", string(sess.id)),
			slog.Int("stalledTicks", stalls),
			slog.Int("peers", stats.ActivePeers),
		)
		// Pause/resume kicks the client into re-evaluating peers and
		// requesting pieces again.
		t.DisallowDataDownload()
		t.AllowDataDownload()
		if sess.hasInfo() {
			sess.mu.Lock()
			file := sess.file
			sess.mu.Unlock()
			if file != nil {
				file.SetPriority(torrent.PiecePriorityHigh)
			}
		}
	}
	return false
}

// sampleSpeedLocked derives instantaneous speeds from the byte counters.
// Caller holds sess.mu.
func (e *Engine) sampleSpeedLocked(sess *session, read, written int64, now time.Time) {
	if !sess.lastSample.IsZero() {
		dt := now.Sub(sess.lastSample).Seconds()
		if dt > 0 {
			deltaRead := read - sess.lastRead
			deltaWritten := written - sess.lastWritten
			if deltaRead < 0 {
				deltaRead = 0
			}
			if deltaWritten < 0 {
				deltaWritten = 0
			}
			sess.downloadSpeed = int64(float64(deltaRead) / dt)
			sess.uploadSpeed = int64(float64(deltaWritten) / dt)
		}
	}
	sess.lastSample = now
	sess.lastRead = read
	sess.lastWritten = written
}

func (s *session) hasInfo() bool {
	select {
	case <-s.torrent.GotInfo():
		return true
	default:
		return false
	}
}
