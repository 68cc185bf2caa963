package orchestrator

import (
	"context"
	"time"

	"go-seedkeeper/internal/completion"
	"go-seedkeeper/internal/ingest"

	log "github.com/sirupsen/logrus"
)

// SettingsChanged posts one onSettingChanged per field. It is safe from any goroutine.
func (l *Loop) SettingsChanged(fields []string) {
	for _, f := range fields {
		field := f
		l.post(func() { l.onSettingChanged(field) })
	}
}

func (l *Loop) onSettingChanged(field string) {
	st := l.settings.Settings()
	log.Debugf("Setting %s changed", field)

	switch field {
	case "SaveSession":
		// read at shutdown
	case "ShowTrayIcon":
		l.indicator.SetVisible(st.ShowTrayIcon)
	case "MinutesBetweenRssUpdates":
		l.resetFeedTimer(st.MinutesBetweenRssUpdates)
	case "AutomaticAddDirectories":
		added, removed := l.watchers.Replace(st.AutomaticAddDirectories)
		log.Debugf("Watched directories: +%v -%v", added, removed)
	case "CompletionFilter":
		l.compileFilter(st.CompletionFilter)
	case "DeleteTorrentsAfterAdd":
		l.gateway.SetDeleteSource(st.DeleteTorrentsAfterAdd)
	case "WatchClipboard":
		if !st.WatchClipboard {
			l.setCandidate(nil)
		}
	case "LogLevel":
		if lvl, err := log.ParseLevel(st.LogLevel); err == nil {
			log.SetLevel(lvl)
		}
	}
}

func (l *Loop) compileFilter(expression string) {
	f, err := completion.CompileFilter(expression)
	if err != nil {
		// A broken filter lets every completion through.
		log.WithError(err).Warn("Ignoring completion filter")
	}
	l.filter = f
}

// resetFeedTimer rebuilds the feed ticker. A non-positive interval or a
// missing poller disables it.
func (l *Loop) resetFeedTimer(minutes int) {
	if l.feedTicker != nil {
		l.feedTicker.Stop()
		l.feedTicker = nil
	}
	if l.feeds == nil || minutes <= 0 {
		return
	}
	l.feedTicker = time.NewTicker(time.Duration(minutes) * time.Minute)
	log.Debugf("Polling feeds every %d minutes", minutes)
}

// feedC is nil, and so never ready, while the feed timer is off.
func (l *Loop) feedC() <-chan time.Time {
	if l.feedTicker == nil {
		return nil
	}
	return l.feedTicker.C
}

func (l *Loop) pollFeeds(ctx context.Context) {
	poll := l.feeds
	l.bg.Add(1)
	go func() {
		defer l.bg.Done()
		items := poll(ctx)
		if len(items) == 0 {
			return
		}
		l.post(func() {
			for _, item := range items {
				l.addFeedItem(item)
			}
		})
	}()
}

// addFeedItem ingests one feed item. The item is acknowledged whatever the
// outcome, so a link that cannot be resolved is not offered again.
func (l *Loop) addFeedItem(item FeedItem) {
	if item.Done != nil {
		defer item.Done()
	}
	def, err := ingest.Resolve(l.fs, item.Ref)
	if err != nil {
		log.WithError(err).Warnf("Skipping feed item %s", item.Ref)
		return
	}
	st := l.settings.Settings()
	if s := l.ingest(def, ingest.DefaultDestination(st.DefaultDownloadLocation, def), true); s != nil {
		l.notifier.AutoAdded(s.Name)
	}
}
