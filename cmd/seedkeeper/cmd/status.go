package cmd

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go-seedkeeper/internal/clipboard"
	"go-seedkeeper/internal/models"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uilive"
	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
)

const statusNameWidth = 40

// statusDisplay is the live session table shown while seedkeeper runs in a terminal.
type statusDisplay struct {
	mu        sync.Mutex
	w         *uilive.Writer
	live      bool
	visible   bool
	candidate *clipboard.Candidate
	last      []models.Session
}

func newStatusDisplay(out *os.File) *statusDisplay {
	w := uilive.New()
	w.Out = out
	return &statusDisplay{
		w:    w,
		live: isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()),
	}
}

func (d *statusDisplay) Start() {
	if d.live {
		d.w.Start()
	}
}

func (d *statusDisplay) Stop() {
	if d.live {
		d.w.Stop()
	}
}

func (d *statusDisplay) Refresh(sessions []models.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = sessions
	d.render()
}

func (d *statusDisplay) SetVisible(visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visible = visible
	d.render()
}

func (d *statusDisplay) Foreground() {
	d.SetVisible(true)
}

func (d *statusDisplay) ShowCandidate(c *clipboard.Candidate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.candidate = c
	if c != nil && !d.live {
		log.Infof("Magnet on clipboard: %s (type \"a\" to add, \"d\" to dismiss)", c.Definition.Name())
	}
	d.render()
}

// render must be called with mu held.
func (d *statusDisplay) render() {
	if !d.live || !d.visible {
		return
	}
	fmt.Fprint(d.w, formatStatus(d.last, d.candidate))
}

// formatStatus renders the session table.
func formatStatus(sessions []models.Session, c *clipboard.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d torrents\n", len(sessions))
	for _, s := range sessions {
		size := "?"
		if s.Length > 0 {
			size = humanize.IBytes(uint64(s.Length))
		}
		fmt.Fprintf(&b, "%-*s %-11s %6.1f%% %10s\n", statusNameWidth, truncate(s.Name, statusNameWidth), s.State, s.Progress*100, size)
	}
	if c != nil {
		fmt.Fprintf(&b, "Clipboard: %s (type \"a\" to add, \"d\" to dismiss)\n", c.Definition.Name())
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
