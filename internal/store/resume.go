package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"go-seedkeeper/internal/helpers"
	"go-seedkeeper/internal/models"

	"github.com/anacrolix/torrent/bencode"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

const resumeVersion = 1

// ErrCorruptResume is returned when the fast-resume file fails to decode or verify.
var ErrCorruptResume = errors.New("fast-resume file is corrupt")

// resumeFile is the consolidated fast-resume file. Records holds the bencoded
// map of identity (hex) to record, and Checksum its BLAKE3 digest.
type resumeFile struct {
	Version  int           `bencode:"version"`
	Checksum string        `bencode:"checksum"`
	Records  bencode.Bytes `bencode:"records"`
}

func checksum(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// WriteResume replaces the fast-resume file with records keyed by hex identity.
func (s *Store) WriteResume(records map[string]models.ResumeRecord) error {
	inner, err := bencode.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding resume records: %w", err)
	}
	data, err := bencode.Marshal(resumeFile{
		Version:  resumeVersion,
		Checksum: checksum(inner),
		Records:  inner,
	})
	if err != nil {
		return fmt.Errorf("encoding resume file: %w", err)
	}
	if err := helpers.WriteFileAtomic(s.fs, s.resumePath, data); err != nil {
		return err
	}
	log.Debugf("Wrote %d fast-resume records to %s", len(records), s.resumePath)
	return nil
}

// ReadResume returns the records of the fast-resume file. A missing file
// yields no records and no error. A corrupt file is deleted.
func (s *Store) ReadResume() (map[string]models.ResumeRecord, error) {
	data, err := afero.ReadFile(s.fs, s.resumePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.resumePath, err)
	}

	records, err := decodeResume(data)
	if err != nil {
		if rmErr := s.RemoveResume(); rmErr != nil {
			log.WithError(rmErr).Debug("Could not delete corrupt fast-resume file")
		}
		return nil, err
	}
	return records, nil
}

func decodeResume(data []byte) (map[string]models.ResumeRecord, error) {
	var f resumeFile
	if err := bencode.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptResume, err)
	}
	if f.Version != resumeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptResume, f.Version)
	}
	if checksum(f.Records) != f.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptResume)
	}
	records := make(map[string]models.ResumeRecord)
	if err := bencode.Unmarshal(f.Records, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptResume, err)
	}
	return records, nil
}

// RemoveResume deletes the fast-resume file if it exists.
func (s *Store) RemoveResume() error {
	if err := s.fs.Remove(s.resumePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", s.resumePath, err)
	}
	return nil
}
