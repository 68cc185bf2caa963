package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-seedkeeper/internal/models"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		closed   bool
		hasInfo  bool
		checking bool
		missing  int64
		want     models.State
	}{
		{name: "error wins", err: errors.New("boom"), closed: true, hasInfo: true, want: models.StateError},
		{name: "closed", closed: true, hasInfo: true, want: models.StateStopped},
		{name: "waiting for metadata", hasInfo: false, missing: 0, want: models.StateLoading},
		{name: "hash checking", hasInfo: true, checking: true, missing: 10, want: models.StateLoading},
		{name: "downloading", hasInfo: true, missing: 10, want: models.StateDownloading},
		{name: "seeding", hasInfo: true, missing: 0, want: models.StateSeeding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stateFor(tt.err, tt.closed, tt.hasInfo, tt.checking, tt.missing)
			if got != tt.want {
				t.Errorf("stateFor() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestProgressOf(t *testing.T) {
	assert.Equal(t, 0.0, progressOf(0, 0))
	assert.Equal(t, 0.5, progressOf(100, 50))
	assert.Equal(t, 1.0, progressOf(100, 0))
	assert.Equal(t, 0.0, progressOf(100, 200))
}

func TestActiveTracker(t *testing.T) {
	trackers := []string{"udp://a:80", "http://b/announce"}
	assert.Empty(t, activeTracker(trackers, nil), "no peers yet")
	assert.Empty(t, activeTracker(trackers, []torrent.PeerSource{torrent.PeerSourceDhtGetPeers, torrent.PeerSourceIncoming}))
	assert.Equal(t, "udp://a:80", activeTracker(trackers, []torrent.PeerSource{torrent.PeerSourceIncoming, torrent.PeerSourceTracker}))
	assert.Empty(t, activeTracker(nil, []torrent.PeerSource{torrent.PeerSourceTracker}))
}

func TestResumeCompletion(t *testing.T) {
	hash := metainfo.NewHashFromHex("0123456789abcdef0123456789abcdef01234567")
	rec := models.NewResumeRecord(4, 0, func(i int) bool { return i == 0 || i == 2 })
	pc := newResumeCompletion(hash, &rec)

	for i, want := range []bool{true, false, true, false} {
		c, err := pc.Get(metainfo.PieceKey{InfoHash: hash, Index: i})
		require.NoError(t, err)
		assert.True(t, c.Ok, "piece %d should be known", i)
		assert.Equal(t, want, c.Complete, "piece %d", i)
	}

	// Pieces beyond the record are unknown and get verified
	c, err := pc.Get(metainfo.PieceKey{InfoHash: hash, Index: 4})
	require.NoError(t, err)
	assert.False(t, c.Ok)

	require.NoError(t, pc.Set(metainfo.PieceKey{InfoHash: hash, Index: 1}, true))
	c, err = pc.Get(metainfo.PieceKey{InfoHash: hash, Index: 1})
	require.NoError(t, err)
	assert.True(t, c.Complete)
	assert.NoError(t, pc.Close())
}

func TestResumeCompletionWithoutRecord(t *testing.T) {
	hash := metainfo.NewHashFromHex("0123456789abcdef0123456789abcdef01234567")
	pc := newResumeCompletion(hash, nil)

	c, err := pc.Get(metainfo.PieceKey{InfoHash: hash, Index: 0})
	require.NoError(t, err)
	assert.False(t, c.Ok)
}

func buildTorrent(t *testing.T, dir, name string, content []byte) *metainfo.MetaInfo {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	info := metainfo.Info{PieceLength: 16 * 1024}
	require.NoError(t, info.BuildFromFilePath(path))
	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)
	return &metainfo.MetaInfo{InfoBytes: infoBytes}
}

// TestClientSeedsExistingContent starts a real engine on a local port with
// content already present, so the torrent settles into Seeding after checking.
func TestClientSeedsExistingContent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping engine test in short mode")
	}

	root := t.TempDir()
	savePath := filepath.Join(root, "downloads")
	require.NoError(t, os.MkdirAll(savePath, 0o755))
	content := make([]byte, 40*1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	mi := buildTorrent(t, savePath, "payload.bin", content)
	def := models.Definition{MetaInfo: mi}

	c, err := NewClient(Config{DataDir: filepath.Join(root, "engine"), ListenPort: 0, Seed: true, NoDHT: true})
	require.NoError(t, err)
	defer c.Close()

	sess := &models.Session{InfoHash: def.InfoHash(), Name: def.Name(), SavePath: savePath}
	require.NoError(t, c.AddSession(sess, def))

	var snap Snapshot
	require.Eventually(t, func() bool {
		snap, err = c.Advance(sess)
		return err == nil && snap.State == models.StateSeeding
	}, 20*time.Second, 50*time.Millisecond)

	assert.True(t, snap.Complete)
	assert.Equal(t, int64(len(content)), snap.Length)
	assert.Equal(t, []string{filepath.Join(savePath, "payload.bin")}, snap.Files)

	rec, ok := c.ResumeRecord(sess)
	require.True(t, ok)
	assert.Equal(t, rec.NumPieces, rec.CompletePieces())

	got, ok := c.MetaInfo(sess)
	require.True(t, ok)
	assert.Equal(t, mi.HashInfoBytes(), got.HashInfoBytes())

	// Relocation moves the content and keeps the session complete
	dest := filepath.Join(root, "archive")
	files, err := c.Relocate(sess.InfoHash, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dest, "payload.bin")}, files)
	_, err = os.Stat(filepath.Join(dest, "payload.bin"))
	assert.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err = c.Advance(sess)
		return err == nil && snap.State == models.StateSeeding
	}, 20*time.Second, 50*time.Millisecond, "relocated torrent keeps seeding")
	assert.NoError(t, snap.Err)

	// A torrent released once is not dropped again
	e, err := c.lookup(sess.InfoHash)
	require.NoError(t, err)
	require.NoError(t, c.release(e))
	assert.NotPanics(t, func() {
		require.NoError(t, c.RemoveSession(sess.InfoHash))
	})
	_, err = c.Advance(sess)
	assert.True(t, errors.Is(err, ErrUnknownSession))
}

func TestSpecForDropsEmptyPieceLayers(t *testing.T) {
	dir := t.TempDir()
	mi := buildTorrent(t, dir, "payload.bin", make([]byte, 40*1024))
	mi.PieceLayers = map[string]string{}

	spec, err := specFor(models.Definition{MetaInfo: mi})
	require.NoError(t, err)
	assert.Nil(t, spec.PieceLayers)
	assert.Equal(t, mi.HashInfoBytes(), spec.InfoHash)
}
