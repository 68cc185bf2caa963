package orchestrator

import (
	"errors"

	"go-seedkeeper/internal/clipboard"
	"go-seedkeeper/internal/ingest"
	"go-seedkeeper/internal/models"

	log "github.com/sirupsen/logrus"
)

// HandleActivation interprets the arguments of a launch or a second activation.
// It never fails: problems are logged and dropped. Loop goroutine only; other
// goroutines use Activate.
func (l *Loop) HandleActivation(args []string) {
	l.touch()
	if len(args) == 0 {
		l.indicator.Foreground()
		return
	}
	if args[0] == MinimizedFlag {
		log.Debug("Started minimized")
		l.indicator.SetVisible(false)
		return
	}

	def, err := ingest.Resolve(l.fs, args[0])
	if err != nil {
		log.WithError(err).Warnf("Could not open %s", args[0])
		return
	}
	st := l.settings.Settings()
	suggested := ingest.DefaultDestination(st.DefaultDownloadLocation, def)

	if st.PromptForSaveOnShellLinks && l.prompter != nil {
		go func() {
			dest, ok := l.prompter.PromptDestination(def.Name(), suggested)
			if !ok {
				log.Debugf("Adding %s cancelled", def.Name())
				return
			}
			l.post(func() { l.ingest(def, dest, false) })
		}()
		return
	}
	l.ingest(def, suggested, true)
}

// Activate posts an activation to the loop. It is safe from any goroutine.
func (l *Loop) Activate(args []string) {
	l.post(func() { l.HandleActivation(args) })
}

func (l *Loop) ingest(def models.Definition, dest string, suppressDuplicate bool) *models.Session {
	s, err := l.gateway.Ingest(def, dest, suppressDuplicate)
	switch {
	case errors.Is(err, ingest.ErrAlreadyAdded):
		log.WithError(err).Debug("Skipping duplicate")
		return nil
	case err != nil:
		log.WithError(err).Warnf("Failed to add %s", def.Name())
		return nil
	}
	return s
}

// handleWatchedFile adds a torrent file that appeared in a watched directory.
func (l *Loop) handleWatchedFile(path string) {
	logger := log.WithField("path", path)
	def, err := ingest.LoadFile(l.fs, path)
	if err != nil {
		logger.WithError(err).Warn("Ignoring unreadable torrent file")
		return
	}
	// watched files land in the download location itself, not a per-name folder
	if s := l.ingest(def, l.settings.Settings().DefaultDownloadLocation, true); s != nil {
		l.notifier.AutoAdded(s.Name)
	}
}

// scanClipboard offers, or with auto-add accepts, a magnet link found on the clipboard.
func (l *Loop) scanClipboard() {
	if l.monitor == nil || !l.settings.Settings().WatchClipboard {
		l.setCandidate(nil)
		return
	}
	c, ok := l.monitor.Scan(l.Has)
	if !ok {
		l.setCandidate(nil)
		return
	}
	if l.settings.Settings().AutoAddClipboardMagnets {
		l.acceptCandidate(c)
		return
	}
	l.setCandidate(&c)
}

func (l *Loop) setCandidate(c *clipboard.Candidate) {
	if c == nil && l.candidate == nil {
		return
	}
	if c != nil && l.candidate != nil && c.Text == l.candidate.Text {
		return
	}
	l.candidate = c
	l.indicator.ShowCandidate(c)
}

func (l *Loop) acceptCandidate(c clipboard.Candidate) {
	l.touch()
	l.monitor.Ignore(c.Text)
	l.setCandidate(nil)
	st := l.settings.Settings()
	if s := l.ingest(c.Definition, ingest.DefaultDestination(st.DefaultDownloadLocation, c.Definition), false); s != nil {
		log.Infof("Added %s from the clipboard", s.Name)
	}
}

// AcceptCandidate adds the magnet currently offered from the clipboard.
func (l *Loop) AcceptCandidate() {
	l.post(func() {
		if l.candidate != nil {
			l.acceptCandidate(*l.candidate)
		}
	})
}

// DismissCandidate hides the offered magnet until the clipboard changes.
func (l *Loop) DismissCandidate() {
	l.post(func() {
		if l.candidate == nil {
			return
		}
		l.touch()
		l.monitor.Ignore(l.candidate.Text)
		l.setCandidate(nil)
	})
}
