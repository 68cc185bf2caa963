package orchestrator

import (
	"go-seedkeeper/internal/completion"
	"go-seedkeeper/internal/models"

	log "github.com/sirupsen/logrus"
)

// fireCompletion runs once per session. NotifiedComplete is set before any
// side effect is dispatched.
func (l *Loop) fireCompletion(s *models.Session) {
	s.NotifiedComplete = true
	st := l.settings.Settings()
	logger := log.WithField("infohash", s.ID())
	logger.Infof("%s finished downloading", s.Name)

	if st.ShowNotificationOnCompletion {
		l.notifier.Completed(s.Name)
	}

	job := completion.JobFor(s)
	rec := &models.CompletionRecord{
		InfoHash:    s.ID(),
		Name:        s.Name,
		SavePath:    s.SavePath,
		CompletedAt: l.now(),
	}

	match, err := l.filter.Match(job)
	if err != nil {
		logger.WithError(err).Warnf("Completion filter %q failed, skipping side effects", l.filter)
	}
	rec.Filtered = !match || err != nil
	if rec.Filtered {
		logger.Debugf("Completion filter excluded %s", s.Name)
	}

	l.recordCompletion(rec)
	if rec.Filtered {
		return
	}

	dispatched := l.pipeline.Dispatch(job, st.PostCompletionDestination, st.TorrentCompletionCommand, func(res completion.Result) {
		l.post(func() { l.completed(s, *rec, res) })
	})
	if !dispatched {
		logger.Debug("No completion actions configured")
	}
}

func (l *Loop) recordCompletion(rec *models.CompletionRecord) {
	if l.history == nil {
		return
	}
	if err := l.history.RecordCompletion(rec); err != nil {
		log.WithError(err).Warnf("Failed to record completion of %s", rec.Name)
	}
}

// completed folds the outcome of dispatched side effects back into the session.
func (l *Loop) completed(s *models.Session, rec models.CompletionRecord, res completion.Result) {
	if res.RelocatedTo != "" {
		s.SavePath = res.RelocatedTo
		if res.Files != nil {
			s.Files = res.Files
		}
		if err := l.store.UpdateInfo(s); err != nil {
			log.WithError(err).Warnf("Failed to update cached location of %s", s.Name)
		}
		rec.RelocatedTo = res.RelocatedTo
	}
	if res.RelocateErr != nil {
		rec.RelocateError = res.RelocateErr.Error()
	}
	rec.Command = res.Command
	if res.CommandErr != nil {
		rec.CommandError = res.CommandErr.Error()
	}

	if l.history == nil || rec.ID == "" {
		return
	}
	if err := l.history.UpdateRecord(rec); err != nil {
		log.WithError(err).Warnf("Failed to update completion record of %s", s.Name)
	}
}
