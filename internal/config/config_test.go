package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go-seedkeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadMissingWritesDefaults tests that a fresh data directory gets a default settings file
func TestLoadMissingWritesDefaults(t *testing.T) {
	dir := t.TempDir()

	m, err := Load(dir, CliFlags{})
	require.NoError(t, err)

	s := m.Settings()
	assert.Equal(t, dir, s.DataPath)
	assert.Equal(t, DefaultListenPort, s.ListenPort)
	assert.True(t, s.SaveSession)
	assert.NotEmpty(t, s.DefaultDownloadLocation)

	_, err = os.Stat(filepath.Join(dir, models.SettingsFileName))
	assert.NoError(t, err, "defaults should be written to disk")
}

// TestLoadCorruptResetsToDefaults tests that an unparseable file is replaced by defaults
func TestLoadCorruptResetsToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, models.SettingsFileName)
	require.NoError(t, os.WriteFile(path, []byte("this is = = not toml [[["), 0o644))

	m, err := Load(dir, CliFlags{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt), "expected ErrCorrupt, got %v", err)
	require.NotNil(t, m)
	assert.Equal(t, Defaults(dir), m.Settings())

	// The file was rewritten, so the next load is clean
	_, err = Load(dir, CliFlags{})
	assert.NoError(t, err)
}

// TestLoadIgnoresUnknownKeys tests that extra keys in the file are tolerated
func TestLoadIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	content := "SomethingFromTheFuture = 5\nListenPort = 7000\nAutomaticAddDirectories = [\"/watch\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, models.SettingsFileName), []byte(content), 0o644))

	m, err := Load(dir, CliFlags{})
	require.NoError(t, err)

	s := m.Settings()
	assert.Equal(t, 7000, s.ListenPort)
	assert.Equal(t, []string{"/watch"}, s.AutomaticAddDirectories)
	// Keys absent from the file fall back to defaults
	assert.Equal(t, DefaultMinutesBetweenRssUpdates, s.MinutesBetweenRssUpdates)
}

// TestSaveRoundTrip tests that saved settings are read back unchanged
func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := Load(dir, CliFlags{})
	require.NoError(t, err)

	changed := m.Update(func(s *models.Settings) {
		s.PostCompletionDestination = "/archive"
		s.TorrentCompletionCommand = `"/usr/bin/notify" %N`
		s.SaveSession = false
	})
	assert.ElementsMatch(t, []string{"PostCompletionDestination", "TorrentCompletionCommand", "SaveSession"}, changed)
	require.NoError(t, m.Save())

	reloaded, err := Load(dir, CliFlags{})
	require.NoError(t, err)
	assert.Empty(t, Diff(m.Settings(), reloaded.Settings()))
}

// TestFlagOverrides tests that CLI flags override file values without being persisted
func TestFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	port := 51413
	level := "debug"

	m, err := Load(dir, CliFlags{ListenPort: &port, LogLevel: &level})
	require.NoError(t, err)
	assert.Equal(t, 51413, m.Settings().ListenPort)
	assert.Equal(t, "debug", m.Settings().LogLevel)

	require.NoError(t, m.Save())
	plain, err := Load(dir, CliFlags{})
	require.NoError(t, err)
	assert.Equal(t, DefaultListenPort, plain.Settings().ListenPort)
	assert.Equal(t, DefaultLogLevel, plain.Settings().LogLevel)
}

func TestDiff(t *testing.T) {
	base := Defaults("/data")

	assert.Empty(t, Diff(base, base))

	other := base
	other.AutomaticAddDirectories = nil
	assert.Empty(t, Diff(base, other), "nil and empty slices should compare equal")

	other.AutomaticAddDirectories = []string{"/watch"}
	other.ShowTrayIcon = !base.ShowTrayIcon
	assert.Equal(t, []string{"AutomaticAddDirectories", "ShowTrayIcon"}, Diff(base, other))
}

// TestUpdateFeedsDoesNotAlias tests that list settings are copied on update
func TestUpdateFeedsDoesNotAlias(t *testing.T) {
	m, err := Load(t.TempDir(), CliFlags{})
	require.NoError(t, err)

	changed := m.Update(func(s *models.Settings) {
		s.RssFeeds = append(s.RssFeeds, "https://tracker.example/rss")
		s.LogFeedRequests = true
	})
	assert.ElementsMatch(t, []string{"RssFeeds", "LogFeedRequests"}, changed)

	before := m.Settings()
	m.Update(func(s *models.Settings) { s.RssFeeds[0] = "https://other.example/rss" })
	assert.Equal(t, "https://tracker.example/rss", before.RssFeeds[0])
	assert.Equal(t, "https://other.example/rss", m.Settings().RssFeeds[0])
}
