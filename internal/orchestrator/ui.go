package orchestrator

import (
	"context"

	"go-seedkeeper/internal/clipboard"
	"go-seedkeeper/internal/models"

	log "github.com/sirupsen/logrus"
)

// Indicator is the live status surface of the process.
type Indicator interface {
	// Refresh receives copies of every session after each tick.
	Refresh(sessions []models.Session)
	SetVisible(visible bool)
	Foreground()
	// ShowCandidate offers a clipboard magnet for one-step adding. nil hides it.
	ShowCandidate(c *clipboard.Candidate)
}

// Notifier surfaces events to the user.
type Notifier interface {
	Completed(name string)
	AutoAdded(name string)
	Duplicate(name string)
	Error(name string, err error)
}

// Prompter asks the user where to save a torrent. It is called off the
// coordination goroutine and may block.
type Prompter interface {
	PromptDestination(name, suggested string) (string, bool)
}

// FeedItem is a magnet link or torrent file path found in a feed. Done, when
// set, runs on the coordination goroutine once the item has been handled.
type FeedItem struct {
	Ref  string
	Done func()
}

// FeedPoller fetches new items from subscribed feeds.
type FeedPoller func(ctx context.Context) []FeedItem

type nopIndicator struct{}

func (nopIndicator) Refresh([]models.Session)           {}
func (nopIndicator) SetVisible(bool)                    {}
func (nopIndicator) Foreground()                        {}
func (nopIndicator) ShowCandidate(*clipboard.Candidate) {}

// LogNotifier reports events through the logger.
type LogNotifier struct{}

func (LogNotifier) Completed(name string) {
	log.WithField("torrent", name).Info("Download complete")
}

func (LogNotifier) AutoAdded(name string) {
	log.WithField("torrent", name).Info("Torrent added automatically")
}

func (LogNotifier) Duplicate(name string) {
	log.WithField("torrent", name).Warn("This torrent has already been added")
}

func (LogNotifier) Error(name string, err error) {
	log.WithField("torrent", name).WithError(err).Error("Torrent stopped with an error")
}
