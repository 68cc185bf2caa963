package engine

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go-seedkeeper/internal/helpers"
	"go-seedkeeper/internal/models"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Config holds the engine settings taken from models.Settings.
type Config struct {
	DataDir    string
	ListenPort int
	Seed       bool
	NoDHT      bool
}

// ConfigFromSettings derives the engine configuration.
func ConfigFromSettings(s models.Settings) Config {
	return Config{
		DataDir:    s.EnginePath(),
		ListenPort: s.ListenPort,
		Seed:       s.Seed,
	}
}

type entry struct {
	t        *torrent.Torrent
	store    storage.ClientImplCloser
	savePath string
	trackers []string
	moving   bool
	dropped  bool
	last     Snapshot
	err      error
}

// Client is the Engine backed by an anacrolix torrent client.
type Client struct {
	client *torrent.Client
	fs     afero.Fs

	mu      sync.Mutex
	entries map[metainfo.Hash]*entry

	lastActivity atomic.Int64
}

var _ Engine = (*Client)(nil)

// NewClient starts the torrent client.
func NewClient(cfg Config) (*Client, error) {
	fs := afero.NewOsFs()
	if err := helpers.CheckAndMakeDir(fs, cfg.DataDir); err != nil {
		return nil, err
	}

	tc := torrent.NewDefaultClientConfig()
	tc.DataDir = cfg.DataDir
	tc.ListenPort = cfg.ListenPort
	tc.Seed = cfg.Seed
	tc.NoDHT = cfg.NoDHT

	cl, err := torrent.NewClient(tc)
	if err != nil {
		return nil, fmt.Errorf("starting torrent client: %w", err)
	}
	log.WithField("port", cfg.ListenPort).Debug("Torrent client started")

	c := &Client{
		client:  cl,
		fs:      fs,
		entries: make(map[metainfo.Hash]*entry),
	}
	c.lastActivity.Store(time.Now().UnixNano())
	return c, nil
}

func specFor(def models.Definition) (*torrent.TorrentSpec, error) {
	if def.HasInfo() {
		spec, err := torrent.TorrentSpecFromMetaInfoErr(def.MetaInfo)
		// an empty layer map makes the client demand v2 piece roots
		if spec != nil && len(spec.PieceLayers) == 0 {
			spec.PieceLayers = nil
		}
		return spec, err
	}
	if def.Magnet != nil {
		return torrent.TorrentSpecFromMagnetUri(def.Magnet.String())
	}
	return nil, fmt.Errorf("definition for %s is empty", def.InfoHash().HexString())
}

// AddSession registers a session with no resume data.
func (c *Client) AddSession(s *models.Session, def models.Definition) error {
	return c.add(s, def, nil)
}

// LoadFromResume registers a session whose piece completion is seeded from rec.
func (c *Client) LoadFromResume(s *models.Session, def models.Definition, rec models.ResumeRecord) error {
	return c.add(s, def, &rec)
}

func (c *Client) add(s *models.Session, def models.Definition, rec *models.ResumeRecord) error {
	spec, err := specFor(def)
	if err != nil {
		return err
	}
	if err := helpers.CheckAndMakeDir(c.fs, s.SavePath); err != nil {
		return err
	}

	store := storage.NewFileOpts(storage.NewFileClientOpts{
		ClientBaseDir:   s.SavePath,
		PieceCompletion: newResumeCompletion(s.InfoHash, rec),
	})
	spec.Storage = store
	if s.Name != "" {
		spec.DisplayName = s.Name
	}

	t, _, err := c.client.AddTorrentSpec(spec)
	if err != nil {
		store.Close()
		return fmt.Errorf("adding %s to engine: %w", s.Name, err)
	}
	go downloadWhenReady(t)

	c.mu.Lock()
	c.entries[s.InfoHash] = &entry{
		t:        t,
		store:    store,
		savePath: s.SavePath,
		trackers: def.Trackers(),
	}
	c.mu.Unlock()

	log.WithField("infohash", s.ID()).Debugf("Engine registered %s (resume=%v)", s.Name, rec != nil)
	return nil
}

func peerSources(t *torrent.Torrent) []torrent.PeerSource {
	conns := t.PeerConns()
	sources := make([]torrent.PeerSource, 0, len(conns))
	for _, pc := range conns {
		sources = append(sources, pc.Discovery)
	}
	return sources
}

// activeTracker names the primary tracker once a connected peer was found
// through a tracker. Which tracker answered is not reported per peer, so the
// first announce URL stands in for it.
func activeTracker(trackers []string, sources []torrent.PeerSource) string {
	if len(trackers) == 0 {
		return ""
	}
	for _, src := range sources {
		if src == torrent.PeerSourceTracker {
			return trackers[0]
		}
	}
	return ""
}

func downloadWhenReady(t *torrent.Torrent) {
	select {
	case <-t.GotInfo():
		t.DownloadAll()
	case <-t.Closed():
	}
}

func (c *Client) lookup(hash metainfo.Hash) (*entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, hash.HexString())
	}
	return e, nil
}

// Advance reads the current state of a session.
func (c *Client) Advance(s *models.Session) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[s.InfoHash]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownSession, s.ID())
	}
	if e.moving {
		return e.last, nil
	}
	e.last = e.snapshot()
	return e.last, nil
}

func (e *entry) snapshot() Snapshot {
	snap := Snapshot{Err: e.err}

	closed := false
	select {
	case <-e.t.Closed():
		closed = true
	default:
	}

	if !closed {
		snap.ActiveTracker = activeTracker(e.trackers, peerSources(e.t))
	}

	info := e.t.Info()
	snap.HasInfo = info != nil && !closed
	checking := false
	var missing int64
	if snap.HasInfo {
		for _, run := range e.t.PieceStateRuns() {
			if run.Checking {
				checking = true
				break
			}
		}
		snap.Length = info.TotalLength()
		missing = e.t.BytesMissing()
		snap.Progress = progressOf(snap.Length, missing)
		snap.Complete = missing == 0
		for _, f := range e.t.Files() {
			snap.Files = append(snap.Files, filepath.Join(e.savePath, filepath.FromSlash(f.Path())))
		}
	}
	snap.State = stateFor(e.err, closed, snap.HasInfo, checking, missing)
	return snap
}

// MetaInfo returns the full metainfo of a session once its info is known.
func (c *Client) MetaInfo(s *models.Session) (*metainfo.MetaInfo, bool) {
	e, err := c.lookup(s.InfoHash)
	if err != nil || e.t.Info() == nil {
		return nil, false
	}
	mi := e.t.Metainfo()
	return &mi, true
}

// ResumeRecord snapshots piece completion of a session.
func (c *Client) ResumeRecord(s *models.Session) (models.ResumeRecord, bool) {
	e, err := c.lookup(s.InfoHash)
	if err != nil || e.t.Info() == nil {
		return models.ResumeRecord{}, false
	}
	return recordOf(e.t), true
}

func recordOf(t *torrent.Torrent) models.ResumeRecord {
	return models.NewResumeRecord(t.NumPieces(), t.BytesCompleted(), func(i int) bool {
		return t.PieceState(i).Complete
	})
}

// Relocate drops the torrent, moves its content below dest and adds it again
// with the previous piece completion.
func (c *Client) Relocate(hash metainfo.Hash, dest string) ([]string, error) {
	c.mu.Lock()
	e, ok := c.entries[hash]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, hash.HexString())
	}
	info := e.t.Info()
	if info == nil {
		c.mu.Unlock()
		return nil, ErrNoInfo
	}
	e.moving = true
	rec := recordOf(e.t)
	mi := e.t.Metainfo()
	name := info.Name
	oldPath := e.savePath
	old := e.t
	oldStore := e.store
	e.dropped = true
	c.mu.Unlock()

	logger := log.WithField("infohash", hash.HexString())
	old.Drop()
	oldStore.Close()

	src := filepath.Join(oldPath, name)
	dst := filepath.Join(dest, name)
	logger.Debugf("Moving %s to %s", src, dst)
	moveErr := helpers.MoveFile(c.fs, src, dst)

	newPath := dest
	if moveErr != nil {
		logger.WithError(moveErr).Warnf("Failed to move %s, keeping it in %s", name, oldPath)
		newPath = oldPath
	}

	sess := &models.Session{InfoHash: hash, Name: name, SavePath: newPath}
	def := models.Definition{MetaInfo: &mi}
	addErr := c.add(sess, def, &rec)
	if addErr != nil && moveErr == nil {
		logger.WithError(addErr).Warnf("Failed to add %s in %s, moving it back", name, dest)
		if err := helpers.MoveFile(c.fs, dst, src); err != nil {
			logger.WithError(err).Errorf("Failed to move %s back to %s", name, oldPath)
		} else {
			sess.SavePath = oldPath
			if err := c.add(sess, def, &rec); err == nil {
				return nil, fmt.Errorf("re-adding %s after move: %w", name, addErr)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if addErr != nil {
		// The old torrent is gone; keep the entry so the session reports Error.
		e.moving = false
		e.err = addErr
		return nil, fmt.Errorf("re-adding %s after move: %w", name, addErr)
	}
	if moveErr != nil {
		return nil, fmt.Errorf("moving %s: %w", name, moveErr)
	}
	files := c.entries[hash].snapshot().Files
	return files, nil
}

// release drops the torrent of e unless that already happened.
func (c *Client) release(e *entry) error {
	c.mu.Lock()
	done := e.dropped
	e.dropped = true
	c.mu.Unlock()
	if done {
		return nil
	}
	e.t.Drop()
	return e.store.Close()
}

// RemoveSession drops a session from the engine. Content stays on disk.
func (c *Client) RemoveSession(hash metainfo.Hash) error {
	c.mu.Lock()
	e, ok := c.entries[hash]
	delete(c.entries, hash)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, hash.HexString())
	}
	return c.release(e)
}

// SetLastActivity records the last user activity.
func (c *Client) SetLastActivity(t time.Time) {
	c.lastActivity.Store(t.UnixNano())
}

// IdleFor is the time since the last recorded user activity.
func (c *Client) IdleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

// Close drops every torrent and stops the client.
func (c *Client) Close() error {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[metainfo.Hash]*entry)
	c.mu.Unlock()

	for _, e := range entries {
		if err := c.release(e); err != nil {
			log.WithError(err).Debug("Closing torrent storage")
		}
	}
	c.client.Close()
	log.Debug("Torrent client stopped")
	return nil
}
