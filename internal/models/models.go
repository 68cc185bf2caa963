package models

import (
	"path/filepath"
)

// Derived file and directory names inside Settings.DataPath.
const (
	CacheDirName      = "cache"
	FastResumeName    = "fastresume"
	HistoryDirName    = "history"
	SettingsFileName  = "settings.toml"
	EngineDirName     = "engine"
	InstanceLockName  = "seedkeeper.lock"
	FeedSpoolDirName  = "feeds"
	FeedLogName       = "feeds.log"
	DefaultTickMillis = 1000
)

type (
	// Settings holds the process-wide configuration. It is loaded once at startup,
	// saved on demand and at shutdown.
	Settings struct {
		DataPath                  string `toml:"-" json:"-" mapstructure:"-"`
		DefaultDownloadLocation   string `toml:"DefaultDownloadLocation" json:"DefaultDownloadLocation"`
		PostCompletionDestination string `toml:"PostCompletionDestination" json:"PostCompletionDestination"`
		TorrentCompletionCommand  string `toml:"TorrentCompletionCommand" json:"TorrentCompletionCommand"`
		CompletionFilter          string `toml:"CompletionFilter" json:"CompletionFilter"`
		LogLevel                  string `toml:"LogLevel" json:"LogLevel"`
		LogFormat                 string `toml:"LogFormat" json:"LogFormat"`

		AutomaticAddDirectories []string `toml:"AutomaticAddDirectories" json:"AutomaticAddDirectories"`
		RssFeeds                []string `toml:"RssFeeds" json:"RssFeeds"`

		MinutesBetweenRssUpdates int `toml:"MinutesBetweenRssUpdates" json:"MinutesBetweenRssUpdates"`
		ListenPort               int `toml:"ListenPort" json:"ListenPort"`

		DeleteTorrentsAfterAdd       bool `toml:"DeleteTorrentsAfterAdd" json:"DeleteTorrentsAfterAdd"`
		PromptForSaveOnShellLinks    bool `toml:"PromptForSaveOnShellLinks" json:"PromptForSaveOnShellLinks"`
		SaveSession                  bool `toml:"SaveSession" json:"SaveSession"`
		ShowTrayIcon                 bool `toml:"ShowTrayIcon" json:"ShowTrayIcon"`
		ShowNotificationOnCompletion bool `toml:"ShowNotificationOnCompletion" json:"ShowNotificationOnCompletion"`
		WatchClipboard               bool `toml:"WatchClipboard" json:"WatchClipboard"`
		AutoAddClipboardMagnets      bool `toml:"AutoAddClipboardMagnets" json:"AutoAddClipboardMagnets"`
		Seed                         bool `toml:"Seed" json:"Seed"`
		LogFeedRequests              bool `toml:"LogFeedRequests" json:"LogFeedRequests"`
	}
)

// TorrentCachePath is the directory holding cached definition and sidecar files.
func (s Settings) TorrentCachePath() string {
	return filepath.Join(s.DataPath, CacheDirName)
}

// FastResumePath is the consolidated fast-resume file written at shutdown.
func (s Settings) FastResumePath() string {
	return filepath.Join(s.DataPath, FastResumeName)
}

func (s Settings) HistoryPath() string {
	return filepath.Join(s.DataPath, HistoryDirName)
}

func (s Settings) SettingsFile() string {
	return filepath.Join(s.DataPath, SettingsFileName)
}

// EnginePath holds engine-owned state (DHT tables, default storage).
func (s Settings) EnginePath() string {
	return filepath.Join(s.DataPath, EngineDirName)
}

func (s Settings) LockPath() string {
	return filepath.Join(s.DataPath, InstanceLockName)
}

// FeedSpoolPath holds .torrent files downloaded from feeds until they are added.
func (s Settings) FeedSpoolPath() string {
	return filepath.Join(s.DataPath, FeedSpoolDirName)
}

func (s Settings) FeedLogPath() string {
	return filepath.Join(s.DataPath, FeedLogName)
}
