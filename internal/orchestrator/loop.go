package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-seedkeeper/internal/clipboard"
	"go-seedkeeper/internal/completion"
	"go-seedkeeper/internal/engine"
	"go-seedkeeper/internal/ingest"
	"go-seedkeeper/internal/models"
	"go-seedkeeper/internal/store"
	"go-seedkeeper/internal/watch"

	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// MinimizedFlag starts the process without presenting the status display.
const MinimizedFlag = "--minimized"

const eventBuffer = 64

// SettingsSource provides and persists settings.
type SettingsSource interface {
	Settings() models.Settings
	Save() error
}

// History records completions so they fire once across restarts.
type History interface {
	Completed(infoHash string) bool
	RecordCompletion(rec *models.CompletionRecord) error
	UpdateRecord(rec models.CompletionRecord) error
}

// Options wires the loop to its collaborators. Settings, Store and Engine are required.
type Options struct {
	Settings  SettingsSource
	Store     *store.Store
	Engine    engine.Engine
	History   History
	Clipboard clipboard.Reader
	Indicator Indicator
	Notifier  Notifier
	Prompter  Prompter
	Fs        afero.Fs
	// Runner starts completion commands; nil uses completion.Execute.
	Runner     completion.Runner
	FeedPoller FeedPoller

	TickInterval time.Duration
	WatchSettle  time.Duration
}

// Loop is the reconciliation loop. Session state is only touched from the
// goroutine running Run; other goroutines hand work over with post.
type Loop struct {
	settings  SettingsSource
	store     *store.Store
	engine    engine.Engine
	history   History
	indicator Indicator
	notifier  Notifier
	prompter  Prompter
	fs        afero.Fs
	feeds     FeedPoller

	gateway  *ingest.Gateway
	pipeline *completion.Pipeline
	watchers *watch.Set
	monitor  *clipboard.Monitor
	filter   *completion.Filter

	tickInterval time.Duration
	now          func() time.Time

	sessions   []*models.Session
	byHash     map[metainfo.Hash]*models.Session
	resumeSeed map[string]models.ResumeRecord
	candidate  *clipboard.Candidate
	feedTicker *time.Ticker

	events  chan func()
	stopped chan struct{}
	bg      sync.WaitGroup
}

// New builds a loop. Nothing runs until Run is called.
func New(opts Options) (*Loop, error) {
	if opts.Settings == nil || opts.Store == nil || opts.Engine == nil {
		return nil, errors.New("orchestrator needs settings, store and engine")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Indicator == nil {
		opts.Indicator = nopIndicator{}
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = models.DefaultTickMillis * time.Millisecond
	}
	if opts.WatchSettle <= 0 {
		opts.WatchSettle = watch.DefaultSettle
	}

	l := &Loop{
		settings:     opts.Settings,
		store:        opts.Store,
		engine:       opts.Engine,
		history:      opts.History,
		indicator:    opts.Indicator,
		notifier:     opts.Notifier,
		prompter:     opts.Prompter,
		fs:           opts.Fs,
		feeds:        opts.FeedPoller,
		tickInterval: opts.TickInterval,
		now:          time.Now,
		byHash:       make(map[metainfo.Hash]*models.Session),
		resumeSeed:   make(map[string]models.ResumeRecord),
		events:       make(chan func(), eventBuffer),
		stopped:      make(chan struct{}),
	}
	if opts.Clipboard != nil {
		l.monitor = clipboard.NewMonitor(opts.Clipboard)
	}

	l.gateway = ingest.NewGateway(opts.Fs, opts.Store, l)
	l.gateway.OnDuplicate = l.notifier.Duplicate

	eng := opts.Engine
	l.pipeline = completion.NewPipeline(func(infoHash, dest string) ([]string, error) {
		return eng.Relocate(metainfo.NewHashFromHex(infoHash), dest)
	}, opts.Runner)

	l.watchers = watch.NewSet(opts.WatchSettle, func(path string) {
		l.post(func() { l.handleWatchedFile(path) })
	})

	st := l.settings.Settings()
	l.gateway.SetDeleteSource(st.DeleteTorrentsAfterAdd)
	l.compileFilter(st.CompletionFilter)
	return l, nil
}

// post hands fn to the loop goroutine. It reports false once the loop has stopped.
func (l *Loop) post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Run drives the loop until ctx is cancelled, then persists state. args are
// the activation arguments of the process.
func (l *Loop) Run(ctx context.Context, args []string) error {
	st := l.settings.Settings()
	l.indicator.SetVisible(st.ShowTrayIcon)
	l.watchers.Replace(st.AutomaticAddDirectories)
	l.resetFeedTimer(st.MinutesBetweenRssUpdates)

	l.bg.Add(1)
	go l.loadPrevious(ctx)

	l.HandleActivation(args)

	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()
	log.Debugf("Reconciliation loop running every %s", l.tickInterval)

	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		case <-ticker.C:
			l.tick()
		case fn := <-l.events:
			fn()
		case <-l.feedC():
			l.pollFeeds(ctx)
		}
	}
}

// loadPrevious restores cached sessions, handing each to the loop as soon as it is parsed.
func (l *Loop) loadPrevious(ctx context.Context) {
	defer l.bg.Done()
	start := time.Now()
	err := l.store.LoadAll(ctx, func(ld store.Loaded) {
		l.post(func() { l.restore(ld) })
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("Failed to load cached torrents")
	}
	l.post(func() {
		log.Infof("Restored %d torrents in %s", len(l.sessions), time.Since(start).Round(time.Millisecond))
	})
}

// restore registers one cached session. Restoring a session that is already
// active does nothing.
func (l *Loop) restore(ld store.Loaded) {
	s := ld.Session
	logger := log.WithField("infohash", s.ID())
	if l.Has(s.InfoHash) {
		logger.Debugf("%s is already active", s.Name)
		return
	}
	if l.history != nil && l.history.Completed(s.ID()) {
		s.NotifiedComplete = true
	}

	var err error
	if ld.Resume != nil {
		l.resumeSeed[s.ID()] = *ld.Resume
		err = l.engine.LoadFromResume(s, ld.Definition, *ld.Resume)
	} else {
		err = l.engine.AddSession(s, ld.Definition)
	}
	if err != nil {
		logger.WithError(err).Warnf("Could not restore %s", s.Name)
		return
	}
	l.track(s)
	logger.Debugf("Restored %s (resume=%v)", s.Name, ld.Resume != nil)
}

func (l *Loop) track(s *models.Session) {
	l.sessions = append(l.sessions, s)
	l.byHash[s.InfoHash] = s
}

// Has reports whether a session with hash is active. Loop goroutine only.
func (l *Loop) Has(hash metainfo.Hash) bool {
	_, ok := l.byHash[hash]
	return ok
}

// Register hands a new session to the engine and starts tracking it. Loop goroutine only.
func (l *Loop) Register(s *models.Session, def models.Definition) error {
	if err := l.engine.AddSession(s, def); err != nil {
		return err
	}
	l.track(s)
	return nil
}

// Sessions returns copies of the active sessions in registration order. Loop goroutine only.
func (l *Loop) Sessions() []models.Session {
	out := make([]models.Session, len(l.sessions))
	for i, s := range l.sessions {
		out[i] = *s
	}
	return out
}

// tick runs one reconciliation pass.
func (l *Loop) tick() {
	l.scanClipboard()
	for _, s := range l.sessions {
		snap, err := l.engine.Advance(s)
		if err != nil {
			log.WithError(err).Debugf("Skipping %s this tick", s.Name)
			continue
		}
		l.observe(s, snap)
	}
	l.indicator.Refresh(l.Sessions())
}

// observe applies an engine snapshot to a session and fires completion when due.
func (l *Loop) observe(s *models.Session, snap engine.Snapshot) {
	logger := log.WithField("infohash", s.ID())

	s.Progress = snap.Progress
	s.Complete = snap.Complete
	if snap.Length > 0 {
		s.Length = snap.Length
	}
	if snap.Files != nil {
		s.Files = snap.Files
	}
	if snap.ActiveTracker != "" {
		s.ActiveTracker = snap.ActiveTracker
	}

	if prev := s.State; snap.State != prev {
		if models.CanTransition(prev, snap.State) {
			logger.Debugf("%s: %s -> %s", s.Name, prev, snap.State)
		} else {
			logger.Warnf("%s: unexpected transition %s -> %s", s.Name, prev, snap.State)
		}
		s.State = snap.State
		if s.State == models.StateError {
			l.notifier.Error(s.Name, snap.Err)
		}
	}

	if !s.Settled && s.State != models.StateLoading {
		s.Settled = true
		s.CompletedOnAdd = s.Complete
		if s.CompletedOnAdd {
			logger.Debugf("%s was already complete when added", s.Name)
		}
	}

	if s.MagnetURI != "" && snap.HasInfo {
		l.upgradeDefinition(s)
	}

	if s.Complete && !s.CompletedOnAdd && !s.NotifiedComplete && s.State == models.StateSeeding {
		l.fireCompletion(s)
	}
}

// upgradeDefinition replaces the cached magnet placeholder once metadata arrived.
func (l *Loop) upgradeDefinition(s *models.Session) {
	mi, ok := l.engine.MetaInfo(s)
	if !ok {
		return
	}
	if info, err := mi.UnmarshalInfo(); err == nil && info.Name != "" && s.Name == s.ID() {
		s.Name = info.Name
	}
	if err := l.store.UpdateDefinition(s, mi); err != nil {
		log.WithError(err).Warnf("Failed to cache metadata for %s", s.Name)
		// The engine keeps the metadata; the next start fetches it again.
		s.MagnetURI = ""
		return
	}
	log.WithField("infohash", s.ID()).Debugf("Cached metadata for %s", s.Name)
}

// touch records user activity.
func (l *Loop) touch() {
	l.engine.SetLastActivity(l.now())
}

// drainUntil runs posted events until done is closed.
func (l *Loop) drainUntil(done <-chan struct{}) {
	for {
		select {
		case fn := <-l.events:
			fn()
		case <-done:
			for {
				select {
				case fn := <-l.events:
					fn()
				default:
					return
				}
			}
		}
	}
}

// shutdown stops watchers, lets background work finish and persists state.
func (l *Loop) shutdown() error {
	log.Info("Shutting down")
	l.watchers.Close()
	l.resetFeedTimer(0)

	done := make(chan struct{})
	go func() {
		l.bg.Wait()
		l.pipeline.Wait()
		close(done)
	}()
	l.drainUntil(done)
	close(l.stopped)

	st := l.settings.Settings()
	var errs []error
	if st.SaveSession {
		if err := l.writeResume(); err != nil {
			errs = append(errs, err)
		}
	} else {
		log.Debug("Session saving is off, clearing the torrent cache")
		if err := l.store.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.settings.Save(); err != nil {
		errs = append(errs, fmt.Errorf("saving settings: %w", err))
	}
	return errors.Join(errs...)
}

// writeResume stores fast-resume records for every incomplete session.
func (l *Loop) writeResume() error {
	records := make(map[string]models.ResumeRecord)
	for _, s := range l.sessions {
		if s.Complete {
			continue
		}
		rec, ok := l.engine.ResumeRecord(s)
		if !ok {
			if rec, ok = l.resumeSeed[s.ID()]; !ok {
				continue
			}
		}
		records[s.ID()] = rec
	}
	if len(records) == 0 {
		return l.store.RemoveResume()
	}
	return l.store.WriteResume(records)
}
