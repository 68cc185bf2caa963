package feeds

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"go-seedkeeper/internal/ingest"

	"github.com/mmcdole/gofeed"
)

const torrentMIME = "application/x-bittorrent"

// Feed is a parsed RSS channel.
type Feed struct {
	Title string
	Items []Item
}

// Item is one feed entry.
type Item struct {
	Title     string
	Link      string
	GUID      string
	Enclosure Enclosure
	// Attrs holds torznab/newznab attributes by name.
	Attrs map[string]string
}

type Enclosure struct {
	URL    string
	Type   string
	Length int64
}

// Parse reads an RSS, Atom or JSON feed.
func Parse(r io.Reader) (*Feed, error) {
	parsed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	feed := &Feed{Title: strings.TrimSpace(parsed.Title)}
	for _, gi := range parsed.Items {
		if gi == nil {
			continue
		}
		feed.Items = append(feed.Items, itemFrom(gi))
	}
	return feed, nil
}

func itemFrom(gi *gofeed.Item) Item {
	it := Item{
		Title: strings.TrimSpace(gi.Title),
		Link:  strings.TrimSpace(gi.Link),
		GUID:  strings.TrimSpace(gi.GUID),
	}
	if enc := pickEnclosure(gi.Enclosures); enc != nil {
		it.Enclosure = Enclosure{URL: strings.TrimSpace(enc.URL), Type: enc.Type}
		it.Enclosure.Length, _ = strconv.ParseInt(strings.TrimSpace(enc.Length), 10, 64)
	}
	it.Attrs = indexerAttrs(gi)
	return it
}

// pickEnclosure prefers a torrent enclosure over any other.
func pickEnclosure(encs []*gofeed.Enclosure) *gofeed.Enclosure {
	var first *gofeed.Enclosure
	for _, e := range encs {
		if e == nil || e.URL == "" {
			continue
		}
		if strings.EqualFold(e.Type, torrentMIME) {
			return e
		}
		if first == nil {
			first = e
		}
	}
	return first
}

// indexerAttrs collects <prefix:attr name=".." value=".."/> elements, whatever
// prefix the feed binds the torznab or newznab namespace to.
func indexerAttrs(gi *gofeed.Item) map[string]string {
	var attrs map[string]string
	for _, elems := range gi.Extensions {
		for _, a := range elems["attr"] {
			name := a.Attrs["name"]
			if name == "" {
				continue
			}
			if attrs == nil {
				attrs = make(map[string]string)
			}
			attrs[name] = a.Attrs["value"]
		}
	}
	return attrs
}

// Key identifies the item across polls.
func (it Item) Key() string {
	switch {
	case it.GUID != "":
		return it.GUID
	case it.Link != "":
		return it.Link
	case it.Enclosure.URL != "":
		return it.Enclosure.URL
	}
	return it.Title
}

// Magnet returns the magnet link of the item, if it has one.
func (it Item) Magnet() (string, bool) {
	for _, candidate := range []string{it.Attrs["magneturl"], it.Enclosure.URL, it.Link} {
		if ingest.IsMagnet(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// TorrentURL returns the address of the item's .torrent file, if it has one.
func (it Item) TorrentURL() (string, bool) {
	if it.Enclosure.URL != "" && !ingest.IsMagnet(it.Enclosure.URL) {
		if strings.EqualFold(it.Enclosure.Type, torrentMIME) || hasTorrentExt(it.Enclosure.URL) {
			return it.Enclosure.URL, true
		}
	}
	if hasTorrentExt(it.Link) {
		return it.Link, true
	}
	return "", false
}

func hasTorrentExt(u string) bool {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(strings.ToLower(u), ".torrent")
}
