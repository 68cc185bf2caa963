package engine

import (
	"sync"

	"go-seedkeeper/internal/models"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
)

// resumeCompletion is an in-memory piece completion store seeded from a
// fast-resume record. Pieces without a seeded or recorded state are unknown
// to the engine and get hash checked.
type resumeCompletion struct {
	mu     sync.Mutex
	pieces map[metainfo.PieceKey]bool
}

var _ storage.PieceCompletion = (*resumeCompletion)(nil)

func newResumeCompletion(hash metainfo.Hash, rec *models.ResumeRecord) *resumeCompletion {
	pc := &resumeCompletion{pieces: make(map[metainfo.PieceKey]bool)}
	if rec == nil {
		return pc
	}
	for i := 0; i < rec.NumPieces; i++ {
		pc.pieces[metainfo.PieceKey{InfoHash: hash, Index: i}] = rec.PieceComplete(i)
	}
	return pc
}

func (pc *resumeCompletion) Get(pk metainfo.PieceKey) (storage.Completion, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	complete, ok := pc.pieces[pk]
	return storage.Completion{Complete: complete, Ok: ok}, nil
}

func (pc *resumeCompletion) Set(pk metainfo.PieceKey, complete bool) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.pieces[pk] = complete
	return nil
}

func (pc *resumeCompletion) Close() error {
	return nil
}
