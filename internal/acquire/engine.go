package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"
	"github.com/dustin/go-humanize"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

const (
	// addTorrentTimeout caps the time we wait for the anacrolix client to
	// accept a spec. AddTorrentSpec can block on an internal client mutex
	// when the client is busy resolving metadata for another torrent.
	addTorrentTimeout = 10 * time.Second

	defaultMaxConns    = 100
	aggressiveMaxConns = 200

	defaultBTPort = 6881
)

// StreamDirs resolves the per-stream download directory. Satisfied by the
// path service.
type StreamDirs interface {
	StreamDir(id domain.StreamID) string
}

type Config struct {
	Dirs       StreamDirs
	Logger     *slog.Logger
	BTPort     int  // deterministic listen port; DHT shares the UDP socket
	Aggressive bool // raises per-torrent connection limit 100 -> 200
}

// session tracks one torrent acquisition keyed by stream ID.
type session struct {
	id            domain.StreamID
	torrent       *torrent.Torrent
	file          *torrent.File
	candidatePath string
	streamDir     string
	cancel        context.CancelFunc

	mu            sync.Mutex
	stalls        int
	lastCompleted int64
	downloadSpeed int64
	uploadSpeed   int64
	lastRead      int64
	lastWritten   int64
	lastSample    time.Time
}

// Engine wraps an anacrolix torrent client and implements ports.Acquirer.
// Each stream's torrent is stored under its own streams/<hash>/ directory
// via per-torrent file storage.
type Engine struct {
	client *torrent.Client
	dirs   StreamDirs
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[domain.StreamID]*session

	deadMu sync.RWMutex
	onDead func(id domain.StreamID, reason string)
}

func New(cfg Config) (*Engine, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.ListenPort = cfg.BTPort
	if clientConfig.ListenPort == 0 {
		clientConfig.ListenPort = defaultBTPort
	}
	clientConfig.NoDHT = false
	clientConfig.Seed = true
	clientConfig.EstablishedConnsPerTorrent = defaultMaxConns
	if cfg.Aggressive {
		clientConfig.EstablishedConnsPerTorrent = aggressiveMaxConns
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEngine, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		client:   client,
		dirs:     cfg.Dirs,
		logger:   logger,
		sessions: make(map[domain.StreamID]*session),
	}, nil
}

// SetDeadHandler registers the callback invoked when the watchdog declares a
// torrent dead. The coordinator wires this to its failure path.
func (e *Engine) SetDeadHandler(fn func(id domain.StreamID, reason string)) {
	e.deadMu.Lock()
	e.onDead = fn
	e.deadMu.Unlock()
}

func (e *Engine) Start(ctx context.Context, id domain.StreamID, magnetURI string) (ports.Acquisition, error) {
	m, err := parseMagnet(magnetURI)
	if err != nil {
		return ports.Acquisition{}, err
	}

	e.mu.RLock()
	_, exists := e.sessions[id]
	e.mu.RUnlock()
	if exists {
		return ports.Acquisition{}, fmt.Errorf("%w: stream %s already acquiring", domain.ErrEngine, id)
	}

	streamDir := e.dirs.StreamDir(id)
	spec := &torrent.TorrentSpec{
		AddTorrentOpts: torrent.AddTorrentOpts{
			InfoHash: m.infoHash,
			Storage:  storage.NewFile(streamDir),
		},
		DisplayName: m.displayName,
		Trackers:    [][]string{m.trackers},
	}

	t, err := e.addSpec(ctx, spec)
	if err != nil {
		return ports.Acquisition{}, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:        id,
		torrent:   t,
		streamDir: streamDir,
		cancel:    cancel,
	}
	e.mu.Lock()
	e.sessions[id] = sess
	e.mu.Unlock()

	// Peer hints and tracker/DHT recovery help metadata resolution too, so
	// discovery starts before GotInfo.
	go e.runDiscovery(watchCtx, sess, m.peerHints)

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		stats := t.Stats()
		e.Cleanup(id)
		if stats.ActivePeers == 0 {
			return ports.Acquisition{}, fmt.Errorf("%w: no peers while waiting for metadata", domain.ErrDeadTorrent)
		}
		return ports.Acquisition{}, fmt.Errorf("%w: metadata not received: %v", domain.ErrEngine, ctx.Err())
	}

	files := t.Files()
	wrapped := make([]ports.TorrentFile, len(files))
	for i, f := range files {
		wrapped[i] = torrentFile{f: f}
	}
	winner := SelectVideoFile(wrapped)
	if winner < 0 {
		e.Cleanup(id)
		return ports.Acquisition{}, fmt.Errorf("%w: %d files, none playable", domain.ErrNoMedia, len(files))
	}
	applySelection(wrapped, winner, e.logger)

	selected := files[winner]
	sess.mu.Lock()
	sess.file = selected
	sess.candidatePath = filepath.Join(streamDir, filepath.FromSlash(selected.Path()))
	sess.mu.Unlock()

	e.logger.Info("torrent ready",
		slog.String("streamId", string(id)),
		slog.String("name", t.Name()),
		slog.String("file", selected.DisplayPath()),
		slog.String("size", humanize.IBytes(uint64(selected.Length()))),
		slog.Int("files", len(files)),
	)

	go e.runWatchdog(watchCtx, sess)

	return ports.Acquisition{
		File: domain.FileRef{
			Index:          winner,
			Path:           selected.Path(),
			Length:         selected.Length(),
			BytesCompleted: selected.BytesCompleted(),
		},
		TorrentName:   t.Name(),
		CandidatePath: sess.candidatePath,
	}, nil
}

// addSpec hands the spec to the client with a timeout so a busy client never
// blocks the coordinator indefinitely.
func (e *Engine) addSpec(ctx context.Context, spec *torrent.TorrentSpec) (*torrent.Torrent, error) {
	type addResult struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, _, err := e.client.AddTorrentSpec(spec)
		ch <- addResult{t, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrEngine, res.err)
		}
		return res.t, nil
	case <-time.After(addTorrentTimeout):
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, fmt.Errorf("%w: torrent client busy", domain.ErrEngine)
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
	}
}

func (e *Engine) Progress(id domain.StreamID) (float64, error) {
	sess := e.getSession(id)
	if sess == nil {
		return 0, domain.ErrNotFound
	}
	t := sess.torrent
	length := t.Length()
	if length <= 0 {
		return 0, nil
	}
	percent := float64(t.BytesCompleted()) / float64(length) * 100
	if percent > 100 {
		percent = 100
	}
	return percent, nil
}

// EffectiveBytes returns the downloaded-byte estimate for the selected file:
// the larger of its on-disk size and the engine's per-file completed-bytes
// counter.
func (e *Engine) EffectiveBytes(id domain.StreamID) (int64, error) {
	sess := e.getSession(id)
	if sess == nil {
		return 0, domain.ErrNotFound
	}
	sess.mu.Lock()
	file := sess.file
	candidate := sess.candidatePath
	sess.mu.Unlock()

	var effective int64
	if candidate != "" {
		if info, err := os.Stat(candidate); err == nil {
			effective = info.Size()
		}
	}
	if file != nil {
		if reported := file.BytesCompleted(); reported > effective {
			effective = reported
		}
	}
	return effective, nil
}

func (e *Engine) Swarm(id domain.StreamID) (ports.SwarmStats, error) {
	sess := e.getSession(id)
	if sess == nil {
		return ports.SwarmStats{}, domain.ErrNotFound
	}
	stats := sess.torrent.Stats()
	sess.mu.Lock()
	download := sess.downloadSpeed
	upload := sess.uploadSpeed
	sess.mu.Unlock()
	return ports.SwarmStats{
		Peers:           stats.ActivePeers,
		DownloadSpeed:   download,
		UploadSpeed:     upload,
		DownloadedBytes: sess.torrent.BytesCompleted(),
	}, nil
}

// SelectedLength returns the announced length of the selected file.
func (e *Engine) SelectedLength(id domain.StreamID) (int64, error) {
	sess := e.getSession(id)
	if sess == nil {
		return 0, domain.ErrNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.file == nil {
		return 0, nil
	}
	return sess.file.Length(), nil
}

// Sessions returns the IDs of all live acquisitions.
func (e *Engine) Sessions() []domain.StreamID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]domain.StreamID, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Cleanup destroys the session for the stream. Idempotent.
func (e *Engine) Cleanup(id domain.StreamID) {
	e.mu.Lock()
	sess, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	sess.cancel()
	sess.torrent.Drop()
	e.logger.Info("torrent session destroyed", slog.String("streamId", string(id)))
}

func (e *Engine) Close() error {
	e.mu.Lock()
	for id, sess := range e.sessions {
		sess.cancel()
		sess.torrent.Drop()
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	errList := e.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

func (e *Engine) getSession(id domain.StreamID) *session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[id]
}

func (e *Engine) notifyDead(id domain.StreamID, reason string) {
	e.deadMu.RLock()
	fn := e.onDead
	e.deadMu.RUnlock()
	if fn != nil {
		fn(id, reason)
	}
}

// torrentFile adapts *torrent.File to the selection policy's capability
// interfaces. anacrolix supports deselection and prioritisation, both via
// piece priorities.
type torrentFile struct {
	f *torrent.File
}

func (tf torrentFile) Name() string { return tf.f.DisplayPath() }
func (tf torrentFile) Size() int64  { return tf.f.Length() }

func (tf torrentFile) Select() {
	tf.f.SetPriority(torrent.PiecePriorityNormal)
}

func (tf torrentFile) Deselect() {
	tf.f.SetPriority(torrent.PiecePriorityNone)
}

func (tf torrentFile) RaisePriority() {
	tf.f.SetPriority(torrent.PiecePriorityHigh)
}
