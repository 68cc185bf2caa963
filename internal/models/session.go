package models

import (
	"time"

	"github.com/anacrolix/torrent/metainfo"
)

// State is the lifecycle state of a session as reported by the engine.
type State string

const (
	StateLoading     State = "Loading"
	StateDownloading State = "Downloading"
	StateSeeding     State = "Seeding"
	StateStopped     State = "Stopped"
	StateError       State = "Error"
)

// validTransitions lists the allowed moves between states. Any state may move to Error.
var validTransitions = map[State][]State{
	StateLoading:     {StateDownloading, StateSeeding, StateError, StateStopped},
	StateDownloading: {StateSeeding},
	StateSeeding:     {StateStopped},
}

// CanTransition reports whether a session may move from one state to another.
func CanTransition(from, to State) bool {
	if from == to || to == StateError {
		return true
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the reconciliation loop treats the state as final.
func (s State) Terminal() bool {
	return s == StateError || s == StateStopped
}

// Session is one tracked downloadable item. It is only mutated on the
// coordination goroutine.
type Session struct {
	InfoHash      metainfo.Hash
	Name          string
	SavePath      string
	CacheFilePath string
	InfoFilePath  string
	// MagnetURI is set while the cached definition is a magnet placeholder.
	MagnetURI string
	Trackers  []string
	AddedAt   time.Time

	CompletedOnAdd   bool
	NotifiedComplete bool
	// Settled is set once the engine reports a state other than Loading.
	Settled bool

	State         State
	Progress      float64
	Complete      bool
	Length        int64
	Files         []string
	ActiveTracker string
}

// ID is the content identity in hexadecimal.
func (s *Session) ID() string {
	return s.InfoHash.HexString()
}

// Info returns the sidecar metadata for the session.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		InfoHash:  s.ID(),
		Name:      s.Name,
		Path:      s.SavePath,
		MagnetURI: s.MagnetURI,
		Trackers:  s.Trackers,
		AddedAt:   s.AddedAt,
	}
}

// LoadInfo applies sidecar metadata to the session.
func (s *Session) LoadInfo(info SessionInfo) {
	if info.Name != "" {
		s.Name = info.Name
	}
	s.SavePath = info.Path
	s.MagnetURI = info.MagnetURI
	if len(info.Trackers) > 0 {
		s.Trackers = info.Trackers
	}
	s.AddedAt = info.AddedAt
}

// SessionInfo is the sidecar record stored next to each cached definition.
type SessionInfo struct {
	InfoHash  string    `json:"infoHash"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	MagnetURI string    `json:"magnetUri,omitempty"`
	Trackers  []string  `json:"trackers,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}
