package clipboard

import (
	"errors"
	"strings"
	"sync"

	"go-seedkeeper/internal/ingest"
	"go-seedkeeper/internal/models"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"
)

// ErrUnsupported is returned when no clipboard utility is available.
var ErrUnsupported = errors.New("clipboard not supported on this system")

// Reader returns the current clipboard text.
type Reader interface {
	ReadText() (string, error)
}

// System reads the desktop clipboard.
type System struct{}

func (System) ReadText() (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnsupported
	}
	return clipboard.ReadAll()
}

// Candidate is a magnet link found on the clipboard.
type Candidate struct {
	Text       string
	Definition models.Definition
}

// Monitor detects unseen magnet links on the clipboard. It is used from the
// coordination goroutine only.
type Monitor struct {
	reader  Reader
	ignored string

	lastText string
	lastDef  *models.Definition
	warnOnce sync.Once
}

func NewMonitor(reader Reader) *Monitor {
	return &Monitor{reader: reader}
}

// Scan returns a candidate when the clipboard holds a magnet link that was
// neither accepted nor dismissed before and is not registered yet.
func (m *Monitor) Scan(registered func(metainfo.Hash) bool) (Candidate, bool) {
	text, err := m.reader.ReadText()
	if err != nil {
		m.warnOnce.Do(func() {
			log.WithError(err).Warn("Clipboard is not readable, magnet detection disabled until it is")
		})
		return Candidate{}, false
	}
	text = strings.TrimSpace(text)
	if text == "" || text == m.ignored || !ingest.IsMagnet(text) {
		return Candidate{}, false
	}

	if text != m.lastText {
		m.lastText = text
		m.lastDef = nil
		def, err := ingest.ParseMagnet(text)
		if err != nil {
			log.WithError(err).Debug("Ignoring malformed magnet link on clipboard")
		} else {
			m.lastDef = &def
		}
	}
	if m.lastDef == nil || registered(m.lastDef.InfoHash()) {
		return Candidate{}, false
	}
	return Candidate{Text: text, Definition: *m.lastDef}, true
}

// Ignore hides text from future scans until the clipboard changes.
func (m *Monitor) Ignore(text string) {
	m.ignored = strings.TrimSpace(text)
}

// Ignored returns the text currently hidden from scans.
func (m *Monitor) Ignored() string {
	return m.ignored
}
