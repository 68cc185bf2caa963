package ingest

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go-seedkeeper/internal/helpers"
	"go-seedkeeper/internal/models"

	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var (
	// ErrAlreadyAdded is returned when a torrent with the same identity is active.
	ErrAlreadyAdded = errors.New("torrent already added")
	// ErrNoIdentity is returned for a definition without an info hash.
	ErrNoIdentity = errors.New("definition has no info hash")
)

// Registry is the set of active sessions new torrents are registered with.
type Registry interface {
	Has(hash metainfo.Hash) bool
	Register(s *models.Session, def models.Definition) error
}

// Persister stores a session before it is registered.
type Persister interface {
	Persist(s *models.Session, def models.Definition) error
}

// Gateway is the single path by which new torrents become sessions.
type Gateway struct {
	fs       afero.Fs
	store    Persister
	registry Registry

	deleteSource atomic.Bool
	// OnDuplicate is called with the torrent name when a duplicate is rejected
	// without suppression.
	OnDuplicate func(name string)
	now         func() time.Time
}

func NewGateway(fs afero.Fs, store Persister, registry Registry) *Gateway {
	return &Gateway{fs: fs, store: store, registry: registry, now: time.Now}
}

// SetDeleteSource controls removal of source .torrent files after they are cached.
func (g *Gateway) SetDeleteSource(v bool) {
	g.deleteSource.Store(v)
}

// Ingest deduplicates def against active sessions, caches it and registers it.
// A registration failure is returned together with the session, which stays
// cached and is picked up again on the next start.
func (g *Gateway) Ingest(def models.Definition, dest string, suppressDuplicate bool) (*models.Session, error) {
	hash := def.InfoHash()
	if hash == (metainfo.Hash{}) {
		return nil, ErrNoIdentity
	}
	name := def.Name()
	logger := log.WithField("infohash", hash.HexString())

	if g.registry.Has(hash) {
		logger.Debugf("%s is already added", name)
		if !suppressDuplicate && g.OnDuplicate != nil {
			g.OnDuplicate(name)
		}
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAdded, name)
	}

	dest = helpers.SanitizePath(dest)
	if err := helpers.CheckAndMakeDir(g.fs, dest); err != nil {
		return nil, err
	}

	sess := &models.Session{
		InfoHash: hash,
		Name:     name,
		SavePath: dest,
		Trackers: def.Trackers(),
		AddedAt:  g.now(),
		State:    models.StateLoading,
	}
	if err := g.store.Persist(sess, def); err != nil {
		return nil, fmt.Errorf("caching %s: %w", name, err)
	}

	if def.SourcePath != "" && g.deleteSource.Load() {
		if err := g.fs.Remove(def.SourcePath); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warnf("Failed to delete %s after adding", def.SourcePath)
		} else {
			logger.Debugf("Deleted source file %s", def.SourcePath)
		}
	}

	if err := g.registry.Register(sess, def); err != nil {
		return sess, fmt.Errorf("registering %s: %w", name, err)
	}
	logger.Infof("Added %s to %s", name, dest)
	return sess, nil
}
