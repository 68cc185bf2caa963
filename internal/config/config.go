package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"

	"go-seedkeeper/internal/helpers"
	"go-seedkeeper/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Default values for settings
const (
	DefaultAppDirName               = "seedkeeper"
	DefaultLogLevel                 = "info"
	DefaultLogFormat                = "text"
	DefaultListenPort               = 42069
	DefaultMinutesBetweenRssUpdates = 30
	DefaultSaveSession              = true
	DefaultShowTrayIcon             = true
	DefaultShowNotification         = true
	DefaultWatchClipboard           = true
	DefaultAutoAddClipboardMagnets  = false
	DefaultPromptForSaveOnShell     = false
	DefaultDeleteTorrentsAfterAdd   = false
	DefaultSeed                     = true
	EnvPrefix                       = "SEEDKEEPER"
)

// ErrCorrupt is returned by Load when the settings file could not be parsed.
// The returned Manager holds defaults in that case.
var ErrCorrupt = errors.New("settings file is corrupted")

// DefaultDataPath is the directory holding settings, cache and history.
func DefaultDataPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, DefaultAppDirName)
	}
	return "." + DefaultAppDirName
}

// DefaultDownloadLocation is where new sessions are saved unless configured otherwise.
func DefaultDownloadLocation() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads")
	}
	return "downloads"
}

// Defaults returns the default settings rooted at dataPath.
func Defaults(dataPath string) models.Settings {
	return models.Settings{
		DataPath:                     dataPath,
		DefaultDownloadLocation:      DefaultDownloadLocation(),
		LogLevel:                     DefaultLogLevel,
		LogFormat:                    DefaultLogFormat,
		AutomaticAddDirectories:      []string{},
		RssFeeds:                     []string{},
		MinutesBetweenRssUpdates:     DefaultMinutesBetweenRssUpdates,
		ListenPort:                   DefaultListenPort,
		DeleteTorrentsAfterAdd:       DefaultDeleteTorrentsAfterAdd,
		PromptForSaveOnShellLinks:    DefaultPromptForSaveOnShell,
		SaveSession:                  DefaultSaveSession,
		ShowTrayIcon:                 DefaultShowTrayIcon,
		ShowNotificationOnCompletion: DefaultShowNotification,
		WatchClipboard:               DefaultWatchClipboard,
		AutoAddClipboardMagnets:      DefaultAutoAddClipboardMagnets,
		Seed:                         DefaultSeed,
	}
}

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper, d models.Settings) {
	v.SetDefault("defaultdownloadlocation", d.DefaultDownloadLocation)
	v.SetDefault("postcompletiondestination", "")
	v.SetDefault("torrentcompletioncommand", "")
	v.SetDefault("completionfilter", "")
	v.SetDefault("loglevel", d.LogLevel)
	v.SetDefault("logformat", d.LogFormat)
	v.SetDefault("automaticadddirectories", []string{})
	v.SetDefault("rssfeeds", []string{})
	v.SetDefault("logfeedrequests", false)
	v.SetDefault("minutesbetweenrssupdates", d.MinutesBetweenRssUpdates)
	v.SetDefault("listenport", d.ListenPort)
	v.SetDefault("deletetorrentsafteradd", d.DeleteTorrentsAfterAdd)
	v.SetDefault("promptforsaveonshelllinks", d.PromptForSaveOnShellLinks)
	v.SetDefault("savesession", d.SaveSession)
	v.SetDefault("showtrayicon", d.ShowTrayIcon)
	v.SetDefault("shownotificationoncompletion", d.ShowNotificationOnCompletion)
	v.SetDefault("watchclipboard", d.WatchClipboard)
	v.SetDefault("autoaddclipboardmagnets", d.AutoAddClipboardMagnets)
	v.SetDefault("seed", d.Seed)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user. Flag values
// apply to the running process only and are never written back to the file.
type CliFlags struct {
	LogLevel                *string // --log-level
	LogFormat               *string // --log-format
	DefaultDownloadLocation *string // --download-dir
	ListenPort              *int    // --port
}

func (f CliFlags) apply(s models.Settings) models.Settings {
	if f.LogLevel != nil {
		s.LogLevel = *f.LogLevel
	}
	if f.LogFormat != nil {
		s.LogFormat = *f.LogFormat
	}
	if f.DefaultDownloadLocation != nil {
		s.DefaultDownloadLocation = *f.DefaultDownloadLocation
	}
	if f.ListenPort != nil {
		s.ListenPort = *f.ListenPort
	}
	return s
}

// Manager owns the settings file and the in-memory settings.
type Manager struct {
	v        *viper.Viper
	fs       afero.Fs
	path     string
	dataPath string
	flags    CliFlags

	mu      sync.Mutex
	current models.Settings
}

// Load reads settings from dataPath. A missing file is created with defaults.
// An unparseable file is replaced by defaults and ErrCorrupt is returned
// together with a usable Manager.
func Load(dataPath string, flags CliFlags) (*Manager, error) {
	path := filepath.Join(dataPath, models.SettingsFileName)
	m := &Manager{
		v:        viper.New(),
		fs:       afero.NewOsFs(),
		path:     path,
		dataPath: dataPath,
		flags:    flags,
	}

	setViperDefaults(m.v, Defaults(dataPath))
	m.v.SetConfigFile(path)
	m.v.SetConfigType("toml")
	m.v.SetEnvPrefix(EnvPrefix)
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.AutomaticEnv()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Infof("No settings file at %s, writing defaults", path)
		m.current = Defaults(dataPath)
		if err := m.Save(); err != nil {
			return m, err
		}
		return m, nil
	}

	if err := m.read(); err != nil {
		m.current = Defaults(dataPath)
		if saveErr := m.Save(); saveErr != nil {
			log.WithError(saveErr).Errorf("Failed to write default settings to %s", path)
		}
		return m, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	log.Debugf("Settings loaded from %s", path)
	return m, nil
}

func (m *Manager) read() error {
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", m.path, err)
	}
	var s models.Settings
	if err := m.v.Unmarshal(&s); err != nil {
		return fmt.Errorf("decoding %s: %w", m.path, err)
	}
	s.DataPath = m.dataPath
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return nil
}

// Path is the settings file location.
func (m *Manager) Path() string {
	return m.path
}

// Settings returns the effective settings, with flag overrides applied.
func (m *Manager) Settings() models.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags.apply(m.current)
}

// Update mutates the stored settings and returns the names of changed fields.
func (m *Manager) Update(fn func(*models.Settings)) []string {
	m.mu.Lock()
	old := m.current
	next := old
	next.AutomaticAddDirectories = slices.Clone(old.AutomaticAddDirectories)
	next.RssFeeds = slices.Clone(old.RssFeeds)
	fn(&next)
	next.DataPath = m.dataPath
	m.current = next
	m.mu.Unlock()
	return Diff(old, next)
}

// Save writes the stored settings to disk as TOML.
func (m *Manager) Save() error {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := helpers.CheckAndMakeDir(m.fs, m.dataPath); err != nil {
		return err
	}
	if err := helpers.WriteFileAtomic(m.fs, m.path, buf.Bytes()); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	log.Debugf("Settings saved to %s", m.path)
	return nil
}

// Watch calls onChange with the names of changed fields whenever the settings
// file is modified on disk. onChange runs on the watcher goroutine.
func (m *Manager) Watch(onChange func(fields []string)) {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		var s models.Settings
		if err := m.v.Unmarshal(&s); err != nil {
			log.WithError(err).Warnf("Ignoring unreadable settings change in %s", e.Name)
			return
		}
		s.DataPath = m.dataPath

		m.mu.Lock()
		old := m.current
		m.current = s
		m.mu.Unlock()

		if fields := Diff(old, s); len(fields) > 0 {
			log.WithField("fields", fields).Debug("Settings changed on disk")
			onChange(fields)
		}
	})
	m.v.WatchConfig()
}

// Diff returns the names of the Settings fields that differ between a and b.
// Nil and empty slices compare equal.
func Diff(a, b models.Settings) []string {
	var changed []string
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	t := va.Type()
	for i := 0; i < t.NumField(); i++ {
		fa, fb := va.Field(i), vb.Field(i)
		if fa.Kind() == reflect.Slice && fa.Len() == 0 && fb.Len() == 0 {
			continue
		}
		if !reflect.DeepEqual(fa.Interface(), fb.Interface()) {
			changed = append(changed, t.Field(i).Name)
		}
	}
	return changed
}
