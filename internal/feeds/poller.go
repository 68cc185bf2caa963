package feeds

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	fetchConcurrency = 4
	// SpoolMaxAge is how long a downloaded .torrent may sit in the spool.
	SpoolMaxAge = 24 * time.Hour
)

// SeenStore remembers handled feed items.
type SeenStore interface {
	FeedItemSeen(feed, item string) bool
	MarkFeedItem(feed, item string) error
}

// TorrentDownloader saves the .torrent file at url into dir.
type TorrentDownloader interface {
	DownloadTorrent(ctx context.Context, url, dir, fallback string) (string, error)
}

// Poller turns new feed items into magnet links and local .torrent files.
type Poller struct {
	client     *Client
	downloader TorrentDownloader
	seen       SeenStore
	fs         afero.Fs
	spoolDir   string
	now        func() time.Time
}

func NewPoller(client *Client, downloader TorrentDownloader, seen SeenStore, fs afero.Fs, spoolDir string) *Poller {
	return &Poller{
		client:     client,
		downloader: downloader,
		seen:       seen,
		fs:         fs,
		spoolDir:   spoolDir,
		now:        time.Now,
	}
}

// Found is a new feed item: a magnet link or the path of a downloaded
// .torrent file. It stays new until passed to Mark.
type Found struct {
	Ref  string
	feed string
	key  string
}

type feedResult struct {
	url  string
	feed *Feed
}

// Poll fetches every feed and returns the items not marked before, in feed
// order. A feed that fails is logged and skipped.
func (p *Poller) Poll(ctx context.Context, urls []string) []Found {
	if len(urls) == 0 {
		return nil
	}
	p.pruneSpool()

	results := make([]feedResult, len(urls))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			feed, err := p.client.Fetch(gctx, u)
			if err != nil {
				log.WithError(err).WithField("feed", u).Warn("Failed to fetch feed")
				return nil
			}
			mu.Lock()
			results[i] = feedResult{url: u, feed: feed}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var out []Found
	for _, r := range results {
		if r.feed == nil {
			continue
		}
		for _, it := range r.feed.Items {
			if ctx.Err() != nil {
				return out
			}
			if f, ok := p.handle(ctx, r.url, it); ok {
				out = append(out, f)
			}
		}
	}
	if len(out) > 0 {
		log.Infof("Found %d new feed items", len(out))
	}
	return out
}

func (p *Poller) handle(ctx context.Context, feedURL string, it Item) (Found, bool) {
	key := it.Key()
	if key == "" || p.seen.FeedItemSeen(feedURL, key) {
		return Found{}, false
	}
	entry := log.WithField("feed", feedURL).WithField("item", it.Title)
	found := Found{feed: feedURL, key: key}

	if magnet, ok := it.Magnet(); ok {
		found.Ref = magnet
		return found, true
	}
	if url, ok := it.TorrentURL(); ok {
		path, err := p.downloader.DownloadTorrent(ctx, url, p.spoolDir, it.Title)
		if err != nil {
			// not marked, so the next poll retries
			entry.WithError(err).Warn("Failed to download feed torrent")
			return Found{}, false
		}
		found.Ref = path
		return found, true
	}

	entry.Debug("Feed item has no magnet link or torrent file")
	p.Mark(found)
	return Found{}, false
}

// Mark remembers an item so later polls skip it.
func (p *Poller) Mark(f Found) {
	if err := p.seen.MarkFeedItem(f.feed, f.key); err != nil {
		log.WithError(err).WithField("feed", f.feed).Warn("Failed to remember feed item")
	}
}

// pruneSpool removes downloaded files older than SpoolMaxAge.
func (p *Poller) pruneSpool() {
	entries, err := afero.ReadDir(p.fs, p.spoolDir)
	if err != nil {
		return
	}
	cutoff := p.now().Add(-SpoolMaxAge)
	for _, e := range entries {
		if e.IsDir() || !e.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(p.spoolDir, e.Name())
		if err := p.fs.Remove(path); err != nil {
			log.WithError(err).Debugf("Could not prune %s", path)
		}
	}
}
