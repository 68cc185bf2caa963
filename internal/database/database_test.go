package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-seedkeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetPut(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Get([]byte("missing"))
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	val, err := db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", string(val))
	assert.True(t, db.Has([]byte("k")))

	require.NoError(t, db.Delete([]byte("k")))
	assert.False(t, db.Has([]byte("k")))
}

func TestRecordCompletion(t *testing.T) {
	db := openTestDB(t)

	rec := &models.CompletionRecord{
		InfoHash:    "0123456789ABCDEF0123456789ABCDEF01234567",
		Name:        "Movie",
		SavePath:    "/downloads/Movie",
		CompletedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.RecordCompletion(rec))
	require.NotEmpty(t, rec.ID, "an id is assigned")

	assert.True(t, db.Completed("0123456789abcdef0123456789abcdef01234567"))
	assert.False(t, db.Completed("89abcdef0123456789abcdef0123456789abcdef"))

	rec.RelocatedTo = "/archive"
	rec.Command = "notify Movie"
	require.NoError(t, db.UpdateRecord(*rec))

	got, err := db.Record(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "/archive", got.RelocatedTo)
	assert.Equal(t, "notify Movie", got.Command)
	assert.True(t, got.CompletedAt.Equal(rec.CompletedAt))

	require.NoError(t, db.Forget(rec.InfoHash))
	assert.False(t, db.Completed(rec.InfoHash))
	_, err = db.Record(rec.ID)
	assert.NoError(t, err, "history survives Forget")
}

func TestHistoryOrder(t *testing.T) {
	db := openTestDB(t)

	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, db.RecordCompletion(&models.CompletionRecord{
			InfoHash: name,
			Name:     name,
		}))
		// ksuid ordering has one-second resolution
		time.Sleep(1100 * time.Millisecond)
	}
	require.NoError(t, db.Put([]byte(historyPrefix+"zzz"), []byte("{broken")))

	history, err := db.History()
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Name)
	assert.Equal(t, "third", history[2].Name)
}

func TestUpdateRecordRequiresID(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, db.UpdateRecord(models.CompletionRecord{Name: "x"}))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.RecordCompletion(&models.CompletionRecord{InfoHash: "abcd", Name: "kept"}))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "closing twice is harmless")

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	assert.True(t, db.Completed("abcd"))
}

func TestFeedItems(t *testing.T) {
	db := openTestDB(t)

	assert.False(t, db.FeedItemSeen("https://a/rss", "guid-1"))
	require.NoError(t, db.MarkFeedItem("https://a/rss", "guid-1"))
	assert.True(t, db.FeedItemSeen("https://a/rss", "guid-1"))
	assert.False(t, db.FeedItemSeen("https://b/rss", "guid-1"), "items are tracked per feed")

	history, err := db.History()
	require.NoError(t, err)
	assert.Empty(t, history)
}
