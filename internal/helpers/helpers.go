package helpers

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Characters that are not allowed in file names on at least one supported OS.
var badFileNameChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)

// CleanFileName makes name safe to use as a single path component.
func CleanFileName(name string) string {
	cleaned := badFileNameChars.ReplaceAllString(name, "_")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimRight(cleaned, ". ")
	if cleaned == "" || cleaned == ".." {
		return "torrent"
	}
	return cleaned
}

// SanitizePath cleans a path so it can be handed to filesystem calls.
func SanitizePath(p string) string {
	return filepath.Clean(p)
}

// DecodeURLComponent percent-decodes s once, leaving "+" alone. Input that is not valid
// percent-encoding is returned unchanged.
func DecodeURLComponent(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// BytesToSize formats a byte count for humans.
func BytesToSize(b uint64) string {
	return humanize.IBytes(b)
}

// CheckAndMakeDir ensures dir exists, creating it and any parents.
func CheckAndMakeDir(fs afero.Fs, dir string) error {
	dir = SanitizePath(dir)
	info, err := fs.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("checking directory %s: %w", dir, err)
	}
	log.Debugf("Creating directory %s", dir)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temporary sibling and renames it over path.
func WriteFileAtomic(fs afero.Fs, path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

// MoveFile moves a file or directory tree, falling back to copy and delete
// when a rename is not possible (for example across devices).
func MoveFile(fs afero.Fs, source, dest string) error {
	if err := CheckAndMakeDir(fs, filepath.Dir(dest)); err != nil {
		return err
	}
	err := fs.Rename(source, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return fmt.Errorf("moving %s to %s: %w", source, dest, err)
	}
	log.WithError(err).Debugf("Rename of %s failed, copying instead", source)
	if err := copyTree(fs, source, dest); err != nil {
		return fmt.Errorf("copying %s to %s: %w", source, dest, err)
	}
	return fs.RemoveAll(source)
}

func copyTree(fs afero.Fs, source, dest string) error {
	return afero.Walk(fs, source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return fs.MkdirAll(target, 0o755)
		}
		return copyFile(fs, path, target, info.Mode())
	})
}

func copyFile(fs afero.Fs, source, dest string, mode os.FileMode) error {
	src, err := fs.Open(source)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp")
	dst, err := fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = fs.Remove(tmp)
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		_ = fs.Remove(tmp)
		return err
	}
	if err := dst.Close(); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return fs.Rename(tmp, dest)
}
