package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go-seedkeeper/internal/helpers"
	"go-seedkeeper/internal/models"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	DefinitionExt = ".torrent"
	SidecarExt    = ".info"

	// loadConcurrency bounds parallel parsing of cached definitions at startup.
	loadConcurrency = 4
)

var (
	// ErrNoSidecar is returned for a cached definition without its sidecar file.
	ErrNoSidecar = errors.New("sidecar metadata missing")
	// ErrEmptyDefinition is returned when a definition has neither metainfo nor magnet.
	ErrEmptyDefinition = errors.New("definition is empty")
	// ErrIdentityMismatch is returned when the sidecar describes a different torrent.
	ErrIdentityMismatch = errors.New("sidecar identity does not match definition")
)

// magnetPlaceholder is the cached definition for a magnet whose metadata is not known yet.
type magnetPlaceholder struct {
	MagnetURI string `bencode:"magnet-uri"`
}

// Loaded is one session reconstructed from the cache directory.
type Loaded struct {
	Session    *models.Session
	Definition models.Definition
	// Resume is set when the fast-resume file held a record for this session.
	Resume *models.ResumeRecord
}

// Store reads and writes cached definitions, sidecars and the fast-resume file.
type Store struct {
	fs         afero.Fs
	cacheDir   string
	resumePath string

	// mu serialises cache file name allocation.
	mu sync.Mutex
}

func New(fs afero.Fs, cacheDir, resumePath string) *Store {
	return &Store{fs: fs, cacheDir: cacheDir, resumePath: resumePath}
}

// CacheDir is the directory holding definition and sidecar files.
func (s *Store) CacheDir() string {
	return s.cacheDir
}

// EncodeDefinition returns the bytes cached for a definition.
func EncodeDefinition(def models.Definition) ([]byte, error) {
	if def.HasInfo() {
		var buf bytes.Buffer
		if err := def.MetaInfo.Write(&buf); err != nil {
			return nil, fmt.Errorf("encoding metainfo: %w", err)
		}
		return buf.Bytes(), nil
	}
	if def.Magnet != nil {
		return bencode.Marshal(magnetPlaceholder{MagnetURI: def.Magnet.String()})
	}
	return nil, ErrEmptyDefinition
}

// DecodeDefinition parses cached definition bytes, including magnet placeholders.
func DecodeDefinition(data []byte) (models.Definition, error) {
	var ph magnetPlaceholder
	if err := bencode.Unmarshal(data, &ph); err == nil && ph.MagnetURI != "" {
		m, err := metainfo.ParseMagnetUri(ph.MagnetURI)
		if err != nil {
			return models.Definition{}, fmt.Errorf("parsing cached magnet: %w", err)
		}
		return models.Definition{Magnet: &m}, nil
	}

	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return models.Definition{}, fmt.Errorf("parsing cached definition: %w", err)
	}
	def := models.Definition{MetaInfo: mi}
	if !def.HasInfo() {
		return models.Definition{}, ErrEmptyDefinition
	}
	return def, nil
}

// Scan lists cached definition files in a stable order.
func (s *Store) Scan() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory %s: %w", s.cacheDir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), DefinitionExt) {
			continue
		}
		paths = append(paths, filepath.Join(s.cacheDir, e.Name()))
	}
	return paths, nil
}

// LoadAll parses every cached session in parallel and hands each one to emit
// as soon as it is ready. Items that fail to load are logged and skipped.
// A fast-resume file, if present, is attached by identity and then deleted,
// unless ctx ends the load early.
// emit is never called concurrently.
func (s *Store) LoadAll(ctx context.Context, emit func(Loaded)) error {
	paths, err := s.Scan()
	if err != nil {
		return err
	}

	resume, err := s.ReadResume()
	if err != nil {
		log.WithError(err).Warn("Ignoring fast-resume data")
		resume = nil
	}
	log.Debugf("Loading %d cached torrents (%d resume records)", len(paths), len(resume))

	var emitMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for _, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			l, err := s.Load(p)
			if err != nil {
				log.WithError(err).Warnf("Skipping cached torrent %s", filepath.Base(p))
				return nil
			}
			if rec, ok := resume[l.Session.ID()]; ok {
				l.Resume = &rec
			}
			emitMu.Lock()
			defer emitMu.Unlock()
			emit(l)
			return nil
		})
	}
	waitErr := g.Wait()
	if errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, context.DeadlineExceeded) {
		// some sessions were never emitted; their resume data is still needed
		return waitErr
	}

	if err := s.RemoveResume(); err != nil {
		log.WithError(err).Warn("Failed to remove fast-resume file")
	}
	return waitErr
}

// Load reads one cached definition and its sidecar.
func (s *Store) Load(path string) (Loaded, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return Loaded{}, fmt.Errorf("reading %s: %w", path, err)
	}
	def, err := DecodeDefinition(data)
	if err != nil {
		return Loaded{}, err
	}
	def.SourcePath = path

	infoPath := sidecarPath(path)
	info, err := s.readSidecar(infoPath)
	if err != nil {
		return Loaded{}, err
	}

	sess := &models.Session{
		InfoHash:      def.InfoHash(),
		Name:          def.Name(),
		CacheFilePath: path,
		InfoFilePath:  infoPath,
		Trackers:      def.Trackers(),
		State:         models.StateLoading,
	}
	if info.InfoHash != "" && !strings.EqualFold(info.InfoHash, sess.ID()) {
		return Loaded{}, fmt.Errorf("%w: %s", ErrIdentityMismatch, filepath.Base(infoPath))
	}
	sess.LoadInfo(info)
	if def.Magnet != nil && sess.MagnetURI == "" {
		sess.MagnetURI = def.Magnet.String()
	}
	return Loaded{Session: sess, Definition: def}, nil
}

func (s *Store) readSidecar(path string) (models.SessionInfo, error) {
	var info models.SessionInfo
	raw, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return info, fmt.Errorf("%w: %s", ErrNoSidecar, filepath.Base(path))
		}
		return info, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, fmt.Errorf("decoding %s: %w", path, err)
	}
	return info, nil
}

func sidecarPath(definitionPath string) string {
	return strings.TrimSuffix(definitionPath, filepath.Ext(definitionPath)) + SidecarExt
}

// allocate picks the cache file name for a session. A name already used by a
// different torrent gets the first eight hex digits of the identity appended.
func (s *Store) allocate(sess *models.Session) string {
	base := helpers.CleanFileName(sess.Name)
	candidates := []string{
		base,
		base + "." + sess.ID()[:8],
		base + "." + sess.ID(),
	}
	for _, c := range candidates {
		path := filepath.Join(s.cacheDir, c+DefinitionExt)
		exists, _ := afero.Exists(s.fs, path)
		if !exists {
			return path
		}
		info, err := s.readSidecar(sidecarPath(path))
		if err == nil && strings.EqualFold(info.InfoHash, sess.ID()) {
			return path
		}
	}
	return filepath.Join(s.cacheDir, sess.ID()+DefinitionExt)
}

// Persist writes the definition and then the sidecar for a session, setting
// its cache paths. Each file is written to a temporary name and renamed.
func (s *Store) Persist(sess *models.Session, def models.Definition) error {
	data, err := EncodeDefinition(def)
	if err != nil {
		return err
	}
	if err := helpers.CheckAndMakeDir(s.fs, s.cacheDir); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := sess.CacheFilePath
	if path == "" {
		path = s.allocate(sess)
	}
	if def.Magnet != nil && !def.HasInfo() {
		sess.MagnetURI = def.Magnet.String()
	}

	if err := helpers.WriteFileAtomic(s.fs, path, data); err != nil {
		return err
	}
	sess.CacheFilePath = path
	sess.InfoFilePath = sidecarPath(path)
	if err := s.writeSidecar(sess); err != nil {
		return err
	}
	log.WithField("file", filepath.Base(path)).Debugf("Cached torrent %s", sess.Name)
	return nil
}

// UpdateDefinition replaces a cached magnet placeholder with full metainfo.
func (s *Store) UpdateDefinition(sess *models.Session, mi *metainfo.MetaInfo) error {
	if sess.CacheFilePath == "" {
		return fmt.Errorf("session %s has no cache file", sess.ID())
	}
	data, err := EncodeDefinition(models.Definition{MetaInfo: mi})
	if err != nil {
		return err
	}
	if err := helpers.WriteFileAtomic(s.fs, sess.CacheFilePath, data); err != nil {
		return err
	}
	sess.MagnetURI = ""
	return s.UpdateInfo(sess)
}

// UpdateInfo rewrites the sidecar of a persisted session.
func (s *Store) UpdateInfo(sess *models.Session) error {
	if sess.InfoFilePath == "" {
		return fmt.Errorf("session %s has no sidecar", sess.ID())
	}
	return s.writeSidecar(sess)
}

func (s *Store) writeSidecar(sess *models.Session) error {
	raw, err := json.MarshalIndent(sess.Info(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sidecar: %w", err)
	}
	return helpers.WriteFileAtomic(s.fs, sess.InfoFilePath, raw)
}

// Remove deletes the cached files of a session. Missing files are ignored.
func (s *Store) Remove(sess *models.Session) error {
	for _, p := range []string{sess.CacheFilePath, sess.InfoFilePath} {
		if p == "" {
			continue
		}
		if err := s.fs.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}

// Clear deletes the whole cache directory and any fast-resume file.
func (s *Store) Clear() error {
	if err := s.fs.RemoveAll(s.cacheDir); err != nil {
		return fmt.Errorf("clearing cache %s: %w", s.cacheDir, err)
	}
	return s.RemoveResume()
}
