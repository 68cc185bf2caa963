package database

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go-seedkeeper/internal/models"

	"git.mills.io/prologic/bitcask"
	"github.com/segmentio/ksuid"
	log "github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

const (
	completedPrefix = "c_"
	historyPrefix   = "h_"
	feedPrefix      = "f_"
)

// DB wraps the bitcask store holding the completion history.
type DB struct {
	db        *bitcask.Bitcask
	closeOnce sync.Once
	closeErr  error
}

// Open opens or creates the database directory at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", path, err)
	}
	db, err := bitcask.Open(path, bitcask.WithSync(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database at %s: %w", path, err)
	}
	log.Debugf("History database opened at %s", path)
	return &DB{db: db}, nil
}

// Close closes the database. Further calls return the first result.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}

// Get retrieves a value by key.
func (d *DB) Get(key []byte) ([]byte, error) {
	val, err := d.db.Get(key)
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

// Put stores a key-value pair.
func (d *DB) Put(key, value []byte) error {
	if err := d.db.Put(key, value); err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}
	return nil
}

// Has reports whether key exists.
func (d *DB) Has(key []byte) bool {
	return d.db.Has(key)
}

// Delete removes a key. Deleting a missing key is not an error.
func (d *DB) Delete(key []byte) error {
	if err := d.db.Delete(key); err != nil && !errors.Is(err, bitcask.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Fold calls fn for every key with a prefix, in key order.
func (d *DB) Fold(prefix string, fn func(key, value []byte) error) error {
	var keys []string
	err := d.db.Scan([]byte(prefix), func(key []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %q: %w", prefix, err)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val, err := d.Get([]byte(k))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn([]byte(k), val); err != nil {
			return err
		}
	}
	return nil
}

// RecordCompletion stores a new history record and marks its torrent complete.
func (d *DB) RecordCompletion(rec *models.CompletionRecord) error {
	if rec.ID == "" {
		rec.ID = ksuid.New().String()
	}
	if err := d.putRecord(rec); err != nil {
		return err
	}
	return d.Put([]byte(completedPrefix+strings.ToLower(rec.InfoHash)), []byte(rec.ID))
}

// UpdateRecord rewrites an existing history record.
func (d *DB) UpdateRecord(rec models.CompletionRecord) error {
	if rec.ID == "" {
		return errors.New("record has no id")
	}
	return d.putRecord(&rec)
}

func (d *DB) putRecord(rec *models.CompletionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record for %s: %w", rec.Name, err)
	}
	return d.Put([]byte(historyPrefix+rec.ID), raw)
}

// Completed reports whether a completion was recorded for the torrent.
func (d *DB) Completed(infoHash string) bool {
	return d.Has([]byte(completedPrefix + strings.ToLower(infoHash)))
}

// Record returns the history record with the given id.
func (d *DB) Record(id string) (models.CompletionRecord, error) {
	var rec models.CompletionRecord
	raw, err := d.Get([]byte(historyPrefix + id))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return rec, nil
}

// Forget removes the completion mark of a torrent. History records stay.
func (d *DB) Forget(infoHash string) error {
	return d.Delete([]byte(completedPrefix + strings.ToLower(infoHash)))
}

// History returns every record, oldest first. Undecodable records are skipped.
func (d *DB) History() ([]models.CompletionRecord, error) {
	var out []models.CompletionRecord
	err := d.Fold(historyPrefix, func(key, value []byte) error {
		var rec models.CompletionRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			log.WithError(err).Warnf("Skipping unreadable history record %s", key)
			return nil
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

func feedKey(feed, item string) []byte {
	sum := blake3.Sum256([]byte(feed + "\x00" + item))
	return []byte(feedPrefix + hex.EncodeToString(sum[:16]))
}

// FeedItemSeen reports whether an item of the given feed was handled before.
func (d *DB) FeedItemSeen(feed, item string) bool {
	return d.Has(feedKey(feed, item))
}

// MarkFeedItem remembers a feed item so later polls skip it.
func (d *DB) MarkFeedItem(feed, item string) error {
	stamp := time.Now().UTC().Format(time.RFC3339)
	return d.Put(feedKey(feed, item), []byte(stamp))
}
