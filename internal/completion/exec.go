package completion

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrEmptyCommand is returned when there is nothing to execute.
	ErrEmptyCommand = errors.New("command is empty")
	// ErrUnterminatedQuote is returned for a quoted executable path without a closing quote.
	ErrUnterminatedQuote = errors.New("unterminated quote in command")
)

// SplitCommand separates the executable from its argument string. A leading
// double quote makes the quoted segment the executable; otherwise the
// executable ends at the first space.
func SplitCommand(command string) (path, args string, err error) {
	if strings.TrimSpace(command) == "" {
		return "", "", ErrEmptyCommand
	}
	if strings.HasPrefix(command, `"`) {
		end := strings.Index(command[1:], `"`)
		if end < 0 {
			return "", "", ErrUnterminatedQuote
		}
		path = command[1 : end+1]
		args = strings.TrimSpace(command[end+2:])
		if path == "" {
			return "", "", ErrEmptyCommand
		}
		return path, args, nil
	}
	if i := strings.IndexByte(command, ' '); i >= 0 {
		return command[:i], command[i+1:], nil
	}
	return command, "", nil
}

// commandArgs splits the argument string shell style. Substituted values may
// carry stray quotes, as in "Ocean's Eleven", so unparseable input falls back
// to splitting on whitespace.
func commandArgs(args string) []string {
	argv, err := shellwords.Parse(args)
	if err != nil {
		log.WithError(err).Debugf("Splitting arguments %q on whitespace", args)
		return strings.Fields(args)
	}
	return argv
}

// Execute starts command without waiting for it to finish. Only failures to
// start are reported.
func Execute(command string) error {
	path, args, err := SplitCommand(command)
	if err != nil {
		return err
	}
	argv := commandArgs(args)

	cmd := exec.Command(path, argv...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", path, err)
	}
	log.WithField("pid", cmd.Process.Pid).Debugf("Started completion command %s", path)
	go func() {
		if err := cmd.Wait(); err != nil {
			log.WithError(err).Debugf("Completion command %s exited", path)
		}
	}()
	return nil
}
