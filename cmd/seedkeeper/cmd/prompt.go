package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// activator is the part of the reconciliation loop the console drives.
type activator interface {
	Activate(args []string)
	AcceptCandidate()
	DismissCandidate()
}

// console reads stdin lines. A line answers a pending destination prompt;
// otherwise "a" and "d" accept or dismiss the clipboard magnet and anything
// else is added like a command line argument.
type console struct {
	out    io.Writer
	target activator

	mu      sync.Mutex
	pending chan string
	closed  bool
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

// PromptDestination asks for a save location and blocks until a line is read.
func (c *console) PromptDestination(name, suggested string) (string, bool) {
	ch := make(chan string, 1)
	c.mu.Lock()
	if c.closed || c.pending != nil {
		c.mu.Unlock()
		return "", false
	}
	c.pending = ch
	c.mu.Unlock()

	fmt.Fprintf(c.out, "Save %s to [%s] (\"-\" cancels): ", name, suggested)
	answer, ok := <-ch
	if !ok {
		return "", false
	}
	return resolveAnswer(answer, suggested)
}

// resolveAnswer maps a prompt answer to a destination. Empty keeps the suggestion.
func resolveAnswer(answer, suggested string) (string, bool) {
	answer = strings.TrimSpace(answer)
	switch answer {
	case "":
		return suggested, true
	case "-":
		return "", false
	}
	return answer, true
}

// readLoop consumes r until EOF.
func (c *console) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		c.mu.Lock()
		ch := c.pending
		c.pending = nil
		c.mu.Unlock()
		if ch != nil {
			ch <- line
			continue
		}
		c.command(strings.TrimSpace(line))
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Debug("Console input closed")
	}

	c.mu.Lock()
	c.closed = true
	if c.pending != nil {
		close(c.pending)
		c.pending = nil
	}
	c.mu.Unlock()
}

func (c *console) command(line string) {
	if c.target == nil {
		return
	}
	switch line {
	case "":
	case "a":
		c.target.AcceptCandidate()
	case "d":
		c.target.DismissCandidate()
	case "s":
		c.target.Activate(nil)
	default:
		c.target.Activate([]string{line})
	}
}
