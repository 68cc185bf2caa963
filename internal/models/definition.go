package models

import (
	"github.com/anacrolix/torrent/metainfo"
)

// Definition is the torrent definition behind a session: either full metainfo
// or, for magnets whose metadata is not yet known, the parsed magnet link.
type Definition struct {
	MetaInfo *metainfo.MetaInfo
	Magnet   *metainfo.Magnet
	// SourcePath is the file the definition was read from, if any.
	SourcePath string
}

// HasInfo reports whether the definition carries the info dictionary.
func (d Definition) HasInfo() bool {
	return d.MetaInfo != nil && len(d.MetaInfo.InfoBytes) > 0
}

// InfoHash is the content identity of the definition.
func (d Definition) InfoHash() metainfo.Hash {
	if d.HasInfo() {
		return d.MetaInfo.HashInfoBytes()
	}
	if d.Magnet != nil {
		return d.Magnet.InfoHash
	}
	return metainfo.Hash{}
}

// Name returns the display name carried by the definition.
func (d Definition) Name() string {
	if d.HasInfo() {
		if info, err := d.MetaInfo.UnmarshalInfo(); err == nil && info.Name != "" {
			return info.Name
		}
	}
	if d.Magnet != nil && d.Magnet.DisplayName != "" {
		return d.Magnet.DisplayName
	}
	return d.InfoHash().HexString()
}

// Trackers flattens the announce URLs of the definition, keeping first-seen order.
func (d Definition) Trackers() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	if d.MetaInfo != nil {
		for _, tier := range d.MetaInfo.UpvertedAnnounceList() {
			for _, u := range tier {
				add(u)
			}
		}
	}
	if d.Magnet != nil {
		for _, u := range d.Magnet.Trackers {
			add(u)
		}
	}
	return out
}
