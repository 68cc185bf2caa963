package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go-seedkeeper/internal/helpers"

	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Custom Downloader Errors
var (
	ErrHttpStatus  = errors.New("unexpected HTTP status code")
	ErrFileSystem  = errors.New("filesystem error") // Covers create, remove, rename
	ErrHttpRequest = errors.New("HTTP request creation/execution error")
	ErrNotTorrent  = errors.New("downloaded file is not a torrent")
	ErrTooLarge    = errors.New("torrent file too large")
)

// MaxTorrentSize bounds the size of a downloaded .torrent file.
const MaxTorrentSize = 16 << 20

const userAgent = "seedkeeper"

// Downloader fetches .torrent files.
type Downloader struct {
	client *http.Client
	fs     afero.Fs
}

// NewDownloader creates a new Downloader instance.
func NewDownloader(client *http.Client, fs afero.Fs) *Downloader {
	if client == nil {
		client = &http.Client{
			Timeout: time.Minute,
		}
	}
	return &Downloader{client: client, fs: fs}
}

// createHTTPRequest creates and configures an HTTP request for downloading
func createHTTPRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/x-bittorrent, */*")
	return req, nil
}

// extractFilenameFromResponse extracts filename from Content-Disposition header
func extractFilenameFromResponse(resp *http.Response) string {
	contentDisposition := resp.Header.Get("Content-Disposition")
	if contentDisposition == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(contentDisposition)
	if err == nil && params["filename"] != "" {
		log.Debugf("Received filename from Content-Disposition: %s", params["filename"])
		return params["filename"]
	}
	log.WithError(err).Debugf("Could not parse Content-Disposition header: %s", contentDisposition)
	return ""
}

// fileNameFor picks the name of the saved file: the server's name, then the
// last URL path element, then fallback.
func fileNameFor(resp *http.Response, rawURL, fallback string) string {
	name := extractFilenameFromResponse(resp)
	if name == "" {
		if u, err := url.Parse(rawURL); err == nil {
			if base := path.Base(u.Path); base != "/" && base != "." && strings.HasSuffix(strings.ToLower(base), ".torrent") {
				name = base
			}
		}
	}
	if name == "" {
		name = fallback
	}
	name = strings.TrimSuffix(helpers.CleanFileName(name), ".torrent")
	return name + ".torrent"
}

// DownloadTorrent fetches rawURL into dir and returns the saved path. The body
// is parsed as metainfo before anything is written. fallback names the file
// when the response does not.
func (d *Downloader) DownloadTorrent(ctx context.Context, rawURL, dir, fallback string) (string, error) {
	req, err := createHTTPRequest(ctx, rawURL)
	if err != nil {
		return "", err
	}

	log.Debugf("Downloading torrent from %s", rawURL)
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: performing request for %s: %v", ErrHttpRequest, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxTorrentSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrHttpRequest, rawURL, err)
	}
	if len(data) > MaxTorrentSize {
		return "", fmt.Errorf("%w: %s exceeds %s", ErrTooLarge, rawURL, helpers.BytesToSize(MaxTorrentSize))
	}
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil || len(mi.InfoBytes) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotTorrent, rawURL)
	}

	if err := helpers.CheckAndMakeDir(d.fs, dir); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileSystem, err)
	}
	finalPath := filepath.Join(dir, fileNameFor(resp, rawURL, fallback))
	if err := helpers.WriteFileAtomic(d.fs, finalPath, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileSystem, err)
	}

	log.Debugf("Saved %s (%s)", finalPath, helpers.BytesToSize(uint64(len(data))))
	return finalPath, nil
}
