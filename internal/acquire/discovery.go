package acquire

import (
	"context"
	"log/slog"
	"time"

	"github.com/anacrolix/torrent"
)

const (
	discoveryGracePeriod  = 5 * time.Second
	reannounceInterval    = 10 * time.Second
	maxReannounceAttempts = 5
)

// peerAddr satisfies anacrolix's peer address interface for x.pe hints.
type peerAddr string

func (a peerAddr) String() string { return string(a) }

// runDiscovery performs best-effort peer discovery recovery for one session.
// Explicit peer hints from the magnet are injected immediately; if the swarm
// is still empty after a grace period, trackers are re-announced and DHT
// bootstrap nodes injected on a fixed cadence. Failures here never affect
// stream status.
func (e *Engine) runDiscovery(ctx context.Context, sess *session, peerHints []string) {
	t := sess.torrent

	if len(peerHints) > 0 {
		peers := make([]torrent.PeerInfo, 0, len(peerHints))
		for _, hint := range peerHints {
			peers = append(peers, torrent.PeerInfo{Addr: peerAddr(hint)})
		}
		t.AddPeers(peers)
		e.logger.Info("injected magnet peer hints",
			slog.String("streamId", string(sess.id)),
			slog.Int("peers", len(peers)),
		)
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(discoveryGracePeriod):
	}

	if t.Stats().ActivePeers > 0 {
		return
	}

	e.logger.Info("no peers after grace period, starting periodic re-announce",
		slog.String("streamId", string(sess.id)),
	)

	ticker := time.NewTicker(reannounceInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= maxReannounceAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if t.Stats().ActivePeers > 0 {
			return
		}

		// Re-adding the tracker tiers forces a fresh announce cycle.
		t.AddTrackers([][]string{fallbackTrackers})
		e.client.AddDhtNodes(dhtBootstrapNodes)

		e.logger.Debug("re-announce attempt",
			slog.String("streamId", string(sess.id)),
			slog.Int("attempt", attempt),
		)
	}
}
