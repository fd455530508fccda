package acquire

import (
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"streamgate/internal/domain"
)

// fallbackTrackers is appended to whatever the magnet URI carries. UDP public
// trackers first, HTTP trackers as backup.
var fallbackTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.demonii.com:1337/announce",
	"udp://tracker.openbittorrent.com:6969/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://exodus.desync.com:6969/announce",
	"http://tracker.openbittorrent.com:80/announce",
	"http://tracker.opentrackr.org:1337/announce",
}

// dhtBootstrapNodes are injected into the DHT when peer discovery stalls.
var dhtBootstrapNodes = []string{
	"router.bittorrent.com:6881",
	"dht.transmissionbt.com:6881",
	"router.utorrent.com:6881",
}

// ValidateMagnet reports whether the URI is an acceptable BEP-9 magnet.
// Used by the coordinator to reject bad input synchronously, before a
// registry entry exists.
func ValidateMagnet(uri string) error {
	_, err := parseMagnet(uri)
	return err
}

// parsedMagnet is the subset of a BEP-9 magnet the acquirer consumes.
type parsedMagnet struct {
	infoHash    metainfo.Hash
	displayName string
	trackers    []string
	peerHints   []string
}

// parseMagnet validates and dissects a magnet URI. The xt, dn, tr and x.pe
// parameters are consumed; everything else is ignored.
func parseMagnet(uri string) (parsedMagnet, error) {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" {
		return parsedMagnet{}, fmt.Errorf("%w: empty magnet uri", domain.ErrInvalidInput)
	}
	m, err := metainfo.ParseMagnetUri(trimmed)
	if err != nil {
		return parsedMagnet{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	trackers := make([]string, 0, len(m.Trackers)+len(fallbackTrackers))
	trackers = append(trackers, m.Trackers...)
	trackers = append(trackers, fallbackTrackers...)

	var hints []string
	for _, hint := range m.Params["x.pe"] {
		hint = strings.TrimSpace(hint)
		if hint != "" {
			hints = append(hints, hint)
		}
	}

	return parsedMagnet{
		infoHash:    m.InfoHash,
		displayName: m.DisplayName,
		trackers:    trackers,
		peerHints:   hints,
	}, nil
}
