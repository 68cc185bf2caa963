package completion

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Relocator moves the content of the session with the given hex identity below
// dest and returns the new file list.
type Relocator func(infoHash, dest string) ([]string, error)

// Runner starts a resolved command.
type Runner func(command string) error

// Result describes what a dispatched completion did.
type Result struct {
	Job         Job
	RelocatedTo string
	Files       []string
	Command     string
	RelocateErr error
	CommandErr  error
}

// Pipeline runs completion side effects off the coordination goroutine.
type Pipeline struct {
	relocate Relocator
	run      Runner
	wg       sync.WaitGroup
}

// NewPipeline creates a pipeline. A nil run uses Execute.
func NewPipeline(relocate Relocator, run Runner) *Pipeline {
	if run == nil {
		run = Execute
	}
	return &Pipeline{relocate: relocate, run: run}
}

// Dispatch starts the side effects for j in the background and reports false
// when there is nothing to do. Relocation to dest runs first; the command
// then runs with the relocated paths. A failed relocation skips the command.
// done, if set, is called from the background goroutine.
func (p *Pipeline) Dispatch(j Job, dest, template string, done func(Result)) bool {
	if dest == "" && template == "" {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		res := p.process(j, dest, template)
		if done != nil {
			done(res)
		}
	}()
	return true
}

func (p *Pipeline) process(j Job, dest, template string) Result {
	res := Result{Job: j}
	logger := log.WithField("infohash", j.InfoHash)

	if dest != "" && p.relocate != nil {
		files, err := p.relocate(j.InfoHash, dest)
		if err != nil {
			logger.WithError(err).Warnf("Failed to move %s to %s", j.Name, dest)
			res.RelocateErr = err
			return res
		}
		logger.Infof("Moved %s to %s", j.Name, dest)
		res.RelocatedTo = dest
		res.Files = files
		j.SavePath = dest
		if files != nil {
			j.Files = files
		}
	}

	if template != "" {
		res.Command = ResolveCommand(template, j)
		logger.Debugf("Running completion command: %s", res.Command)
		if err := p.run(res.Command); err != nil {
			logger.WithError(err).Warn("Completion command failed to start")
			res.CommandErr = err
		}
	}
	return res
}

// Wait blocks until every dispatched completion has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
