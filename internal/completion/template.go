package completion

import (
	"strings"

	"go-seedkeeper/internal/models"
)

// Placeholders understood in completion commands.
const (
	PlaceholderFile     = "%F"
	PlaceholderDir      = "%D"
	PlaceholderName     = "%N"
	PlaceholderInfoHash = "%I"
	PlaceholderTracker  = "%T"
)

// Job is the data a completion needs, copied from the session so it can be
// used off the coordination goroutine.
type Job struct {
	InfoHash string
	Name     string
	SavePath string
	Files    []string
	Tracker  string
	Size     int64
}

// JobFor copies the completion data of a session.
func JobFor(s *models.Session) Job {
	return Job{
		InfoHash: s.ID(),
		Name:     s.Name,
		SavePath: s.SavePath,
		Files:    append([]string(nil), s.Files...),
		Tracker:  s.ActiveTracker,
		Size:     s.Length,
	}
}

// ResolveCommand substitutes placeholders in template verbatim. %F is only
// replaced for single-file torrents and %T only when a tracker is active.
func ResolveCommand(template string, j Job) string {
	cmd := template
	if len(j.Files) == 1 {
		cmd = strings.ReplaceAll(cmd, PlaceholderFile, j.Files[0])
	}
	cmd = strings.ReplaceAll(cmd, PlaceholderDir, j.SavePath)
	cmd = strings.ReplaceAll(cmd, PlaceholderName, j.Name)
	cmd = strings.ReplaceAll(cmd, PlaceholderInfoHash, j.InfoHash)
	if j.Tracker != "" {
		cmd = strings.ReplaceAll(cmd, PlaceholderTracker, j.Tracker)
	}
	return cmd
}
