package models

// ResumeRecord is a snapshot of piece-level progress for one session.
// Pieces is a bitfield, most significant bit first.
type ResumeRecord struct {
	NumPieces      int    `bencode:"num_pieces"`
	Pieces         []byte `bencode:"pieces"`
	BytesCompleted int64  `bencode:"bytes_completed"`
}

// NewResumeRecord builds a record for n pieces using complete to query each piece.
func NewResumeRecord(n int, bytesCompleted int64, complete func(i int) bool) ResumeRecord {
	rec := ResumeRecord{
		NumPieces:      n,
		Pieces:         make([]byte, (n+7)/8),
		BytesCompleted: bytesCompleted,
	}
	for i := 0; i < n; i++ {
		if complete(i) {
			rec.Pieces[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return rec
}

// PieceComplete reports whether piece i was complete when the record was taken.
func (r ResumeRecord) PieceComplete(i int) bool {
	if i < 0 || i >= r.NumPieces || i/8 >= len(r.Pieces) {
		return false
	}
	return r.Pieces[i/8]&(0x80>>uint(i%8)) != 0
}

// CompletePieces counts the pieces marked complete.
func (r ResumeRecord) CompletePieces() int {
	n := 0
	for i := 0; i < r.NumPieces; i++ {
		if r.PieceComplete(i) {
			n++
		}
	}
	return n
}
