package engine

import (
	"errors"
	"time"

	"go-seedkeeper/internal/models"

	"github.com/anacrolix/torrent/metainfo"
)

var (
	// ErrUnknownSession is returned for an identity the engine does not hold.
	ErrUnknownSession = errors.New("session not registered with engine")
	// ErrNoInfo is returned when an operation needs metadata that has not arrived.
	ErrNoInfo = errors.New("torrent metadata not available yet")
)

// Snapshot is the engine's view of one session at a point in time.
type Snapshot struct {
	State    models.State
	Progress float64
	Complete bool
	Length   int64
	// Files holds absolute paths of the content files.
	Files         []string
	ActiveTracker string
	HasInfo       bool
	Err           error
}

// Engine is the boundary to the torrent protocol implementation. All methods
// except Relocate are called from the coordination goroutine only.
type Engine interface {
	AddSession(s *models.Session, def models.Definition) error
	LoadFromResume(s *models.Session, def models.Definition, rec models.ResumeRecord) error
	Advance(s *models.Session) (Snapshot, error)
	// MetaInfo returns full metainfo once the engine has the info dictionary.
	MetaInfo(s *models.Session) (*metainfo.MetaInfo, bool)
	ResumeRecord(s *models.Session) (models.ResumeRecord, bool)
	// Relocate moves the content of a session below dest and returns the new
	// file list. It may be called from any goroutine.
	Relocate(hash metainfo.Hash, dest string) ([]string, error)
	RemoveSession(hash metainfo.Hash) error
	SetLastActivity(t time.Time)
	Close() error
}

// progressOf converts byte counts to a fraction in [0, 1].
func progressOf(length, missing int64) float64 {
	if length <= 0 {
		return 0
	}
	done := length - missing
	if done < 0 {
		done = 0
	}
	return float64(done) / float64(length)
}

// stateFor maps engine observations to a lifecycle state.
func stateFor(err error, closed, hasInfo, checking bool, missing int64) models.State {
	switch {
	case err != nil:
		return models.StateError
	case closed:
		return models.StateStopped
	case !hasInfo || checking:
		return models.StateLoading
	case missing == 0:
		return models.StateSeeding
	default:
		return models.StateDownloading
	}
}
