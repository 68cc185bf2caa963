package cmd

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go-seedkeeper/internal/clipboard"
	"go-seedkeeper/internal/models"
	"go-seedkeeper/internal/orchestrator"
	"go-seedkeeper/internal/store"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatStatus(t *testing.T) {
	sessions := []models.Session{
		{Name: "ubuntu-24.04-desktop-amd64.iso", State: models.StateDownloading, Progress: 0.5, Length: 6 << 30},
		{Name: strings.Repeat("x", 60), State: models.StateLoading},
	}
	out := formatStatus(sessions, nil)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2 torrents", lines[0])
	assert.Contains(t, lines[1], "Downloading")
	assert.Contains(t, lines[1], "50.0%")
	assert.Contains(t, lines[1], "6.0 GiB")
	assert.Contains(t, lines[2], strings.Repeat("x", statusNameWidth-1)+"…")
	assert.Contains(t, lines[2], "?")

	c := &clipboard.Candidate{Definition: models.Definition{Magnet: &metainfo.Magnet{DisplayName: "Clip"}}}
	assert.Contains(t, formatStatus(nil, c), "Clipboard: Clip")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc…", truncate("abcdef", 4))
	assert.Equal(t, "äö…", truncate("äöüß", 3))
}

func TestResolveAnswer(t *testing.T) {
	tests := []struct {
		answer string
		want   string
		ok     bool
	}{
		{"", "/suggested", true},
		{"   ", "/suggested", true},
		{"-", "", false},
		{" /elsewhere ", "/elsewhere", true},
	}
	for _, tt := range tests {
		got, ok := resolveAnswer(tt.answer, "/suggested")
		assert.Equal(t, tt.want, got, tt.answer)
		assert.Equal(t, tt.ok, ok, tt.answer)
	}
}

type fakeActivator struct {
	mu        sync.Mutex
	activated [][]string
	accepted  int
	dismissed int
}

func (f *fakeActivator) Activate(args []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, args)
}

func (f *fakeActivator) AcceptCandidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted++
}

func (f *fakeActivator) DismissCandidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed++
}

func TestConsoleCommands(t *testing.T) {
	target := &fakeActivator{}
	c := newConsole(io.Discard)
	c.target = target

	c.readLoop(strings.NewReader("a\n\nd\ns\nmagnet:?xt=urn:btih:abc\n"))

	assert.Equal(t, 1, target.accepted)
	assert.Equal(t, 1, target.dismissed)
	assert.Equal(t, [][]string{nil, {"magnet:?xt=urn:btih:abc"}}, target.activated)
}

func TestConsoleAnswersPrompt(t *testing.T) {
	target := &fakeActivator{}
	var out bytes.Buffer
	c := newConsole(&out)
	c.target = target

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		c.readLoop(pr)
		close(done)
	}()

	type answer struct {
		dest string
		ok   bool
	}
	answers := make(chan answer, 1)
	go func() {
		dest, ok := c.PromptDestination("Movie", "/downloads/Movie")
		answers <- answer{dest, ok}
	}()

	// wait for the prompt to be registered
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.pending != nil
	}, time.Second, 5*time.Millisecond)

	_, err := pw.Write([]byte("/elsewhere\n"))
	require.NoError(t, err)
	got := <-answers
	assert.True(t, got.ok)
	assert.Equal(t, "/elsewhere", got.dest)
	assert.Empty(t, target.activated, "the answer is not treated as a link")

	require.NoError(t, pw.Close())
	<-done
	_, ok := c.PromptDestination("Other", "/x")
	assert.False(t, ok, "no prompts once input is closed")
}

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", models.InstanceLockName)

	first, err := acquireLock(path)
	require.NoError(t, err)

	_, err = acquireLock(path)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	require.NoError(t, first.Unlock())
	again, err := acquireLock(path)
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}

func TestActivationArgs(t *testing.T) {
	assert.Equal(t, []string{orchestrator.MinimizedFlag}, activationArgs(true, []string{"ignored"}))
	assert.Equal(t, []string{"file.torrent"}, activationArgs(false, []string{"file.torrent"}))
	assert.Empty(t, activationArgs(false, nil))
}

func persistTorrent(t *testing.T, s *store.Store, name string) *models.Session {
	t.Helper()
	info := metainfo.Info{Name: name, PieceLength: 16384, Length: 2048, Pieces: make([]byte, 20)}
	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)
	def := models.Definition{MetaInfo: &metainfo.MetaInfo{InfoBytes: infoBytes}}
	sess := &models.Session{InfoHash: def.InfoHash(), Name: name, SavePath: "/downloads/" + name, AddedAt: time.Now()}
	require.NoError(t, s.Persist(sess, def))
	return sess
}

func TestCachedSessionsAndRegistry(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := store.New(fs, "/data/cache", "/data/fastresume")
	first := persistTorrent(t, s, "First")
	persistTorrent(t, s, "Second")
	require.NoError(t, afero.WriteFile(fs, "/data/cache/broken.torrent", []byte("junk"), 0o644))
	require.NoError(t, s.WriteResume(map[string]models.ResumeRecord{first.ID(): {NumPieces: 1}}))

	loaded, err := cachedSessions(s)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	records, err := s.ReadResume()
	require.NoError(t, err)
	assert.Len(t, records, 1, "listing leaves fast-resume data alone")

	reg := newCacheRegistry(loaded)
	assert.True(t, reg.Has(first.InfoHash))
	other := metainfo.NewHashFromHex("89abcdef0123456789abcdef0123456789abcdef")
	assert.False(t, reg.Has(other))
	require.NoError(t, reg.Register(&models.Session{InfoHash: other}, models.Definition{}))
	assert.True(t, reg.Has(other))

	var out bytes.Buffer
	printSessions(&out, loaded)
	assert.Contains(t, out.String(), "First")
	assert.Contains(t, out.String(), "2.0 KiB")
	assert.Contains(t, out.String(), "2 torrents")
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	printHistory(&out, []models.CompletionRecord{
		{Name: "Moved", SavePath: "/downloads/Moved", RelocatedTo: "/archive", Command: "notify Moved", CompletedAt: time.Now()},
		{Name: "Skipped", SavePath: "/downloads/Skipped", Filtered: true, CompletedAt: time.Now()},
		{Name: "Stuck", SavePath: "/downloads/Stuck", RelocateError: "disk full", CompletedAt: time.Now()},
	})
	text := out.String()
	assert.Contains(t, text, "move failed: disk full")
	assert.Contains(t, text, "/archive")
	assert.NotContains(t, text, "/downloads/Moved")
	assert.Contains(t, text, "filtered")
}
