package ingest

import (
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"go-seedkeeper/internal/helpers"
	"go-seedkeeper/internal/models"

	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ErrNotMagnet is returned by ParseMagnet for text that is not a magnet link.
var ErrNotMagnet = errors.New("not a magnet link")

const magnetScheme = "magnet:"

// IsMagnet reports whether s looks like a magnet link.
func IsMagnet(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), magnetScheme)
}

// DecodeName decodes a display name that upstream sources may have left
// percent-encoded or HTML-escaped.
func DecodeName(name string) string {
	return html.UnescapeString(helpers.DecodeURLComponent(name))
}

// DecodeTracker decodes an announce URL that may have been encoded twice.
func DecodeTracker(tracker string) string {
	return helpers.DecodeURLComponent(tracker)
}

// ParseMagnet parses and normalises a magnet link.
func ParseMagnet(uri string) (models.Definition, error) {
	uri = strings.TrimSpace(uri)
	if !IsMagnet(uri) {
		return models.Definition{}, ErrNotMagnet
	}
	m, err := metainfo.ParseMagnetUri(uri)
	if err != nil {
		return models.Definition{}, fmt.Errorf("parsing magnet link: %w", err)
	}
	m.DisplayName = DecodeName(m.DisplayName)
	for i, tr := range m.Trackers {
		m.Trackers[i] = DecodeTracker(tr)
	}
	return models.Definition{Magnet: &m}, nil
}

// LoadFile reads a .torrent file.
func LoadFile(fs afero.Fs, path string) (models.Definition, error) {
	f, err := fs.Open(path)
	if err != nil {
		return models.Definition{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	mi, err := metainfo.Load(f)
	if err != nil {
		return models.Definition{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	def := models.Definition{MetaInfo: mi, SourcePath: path}
	if !def.HasInfo() {
		return models.Definition{}, fmt.Errorf("%s has no info dictionary", path)
	}
	return def, nil
}

// Resolve interprets arg as a magnet link, falling back to a torrent file path.
func Resolve(fs afero.Fs, arg string) (models.Definition, error) {
	def, err := ParseMagnet(arg)
	if err == nil {
		return def, nil
	}
	if !errors.Is(err, ErrNotMagnet) {
		log.WithError(err).Debug("Argument is not a usable magnet link, trying it as a file")
	}
	return LoadFile(fs, arg)
}

// DefaultDestination is root joined with the sanitised name of the definition.
func DefaultDestination(root string, def models.Definition) string {
	return filepath.Join(root, helpers.CleanFileName(def.Name()))
}
