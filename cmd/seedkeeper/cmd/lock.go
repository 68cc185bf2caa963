package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"go-seedkeeper/internal/helpers"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

// ErrAlreadyRunning is returned when another process holds the instance lock.
var ErrAlreadyRunning = errors.New("another seedkeeper instance is running")

// acquireLock takes the instance lock at path without waiting.
func acquireLock(path string) (*flock.Flock, error) {
	if err := helpers.CheckAndMakeDir(afero.NewOsFs(), filepath.Dir(path)); err != nil {
		return nil, err
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}
	return fl, nil
}
