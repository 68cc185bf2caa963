package models

import (
	"path/filepath"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

func TestStateConstants(t *testing.T) {
	// Sidecar files and logs rely on these exact spellings
	if StateLoading != "Loading" {
		t.Errorf("StateLoading = %q, want %q", StateLoading, "Loading")
	}
	if StateSeeding != "Seeding" {
		t.Errorf("StateSeeding = %q, want %q", StateSeeding, "Seeding")
	}
	if StateError != "Error" {
		t.Errorf("StateError = %q, want %q", StateError, "Error")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateLoading, StateDownloading, true},
		{StateLoading, StateSeeding, true},
		{StateLoading, StateStopped, true},
		{StateDownloading, StateSeeding, true},
		{StateSeeding, StateStopped, true},
		{StateSeeding, StateError, true},
		{StateStopped, StateError, true},
		{StateSeeding, StateSeeding, true},
		{StateSeeding, StateDownloading, false},
		{StateStopped, StateSeeding, false},
		{StateError, StateLoading, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	if !StateError.Terminal() || !StateStopped.Terminal() {
		t.Error("Error and Stopped should be terminal")
	}
	if StateSeeding.Terminal() || StateLoading.Terminal() || StateDownloading.Terminal() {
		t.Error("Loading, Downloading and Seeding should not be terminal")
	}
}

func TestSettingsDerivedPaths(t *testing.T) {
	s := Settings{DataPath: filepath.Join("data", "seedkeeper")}

	if got := s.TorrentCachePath(); got != filepath.Join("data", "seedkeeper", "cache") {
		t.Errorf("TorrentCachePath() = %q", got)
	}
	if got := s.FastResumePath(); got != filepath.Join("data", "seedkeeper", "fastresume") {
		t.Errorf("FastResumePath() = %q", got)
	}
	if got := s.SettingsFile(); got != filepath.Join("data", "seedkeeper", "settings.toml") {
		t.Errorf("SettingsFile() = %q", got)
	}
}

func TestSessionInfoRoundTrip(t *testing.T) {
	s := &Session{
		InfoHash: metainfo.NewHashFromHex("0123456789abcdef0123456789abcdef01234567"),
		Name:     "Example",
		SavePath: "/downloads/example",
		Trackers: []string{"http://tracker.example/announce"},
	}

	restored := &Session{InfoHash: s.InfoHash}
	restored.LoadInfo(s.Info())

	if restored.Name != s.Name || restored.SavePath != s.SavePath {
		t.Errorf("LoadInfo(Info()) = %+v, want name/path of %+v", restored, s)
	}
	if s.Info().InfoHash != "0123456789abcdef0123456789abcdef01234567" {
		t.Errorf("Info().InfoHash = %q", s.Info().InfoHash)
	}
}

func TestResumeRecordBits(t *testing.T) {
	complete := map[int]bool{0: true, 3: true, 8: true, 10: true}
	rec := NewResumeRecord(11, 4096, func(i int) bool { return complete[i] })

	if len(rec.Pieces) != 2 {
		t.Fatalf("expected 2 bitfield bytes, got %d", len(rec.Pieces))
	}
	for i := 0; i < 11; i++ {
		if rec.PieceComplete(i) != complete[i] {
			t.Errorf("PieceComplete(%d) = %v, want %v", i, rec.PieceComplete(i), complete[i])
		}
	}
	if rec.PieceComplete(11) || rec.PieceComplete(-1) {
		t.Error("out of range pieces should report incomplete")
	}
	if rec.CompletePieces() != 4 {
		t.Errorf("CompletePieces() = %d, want 4", rec.CompletePieces())
	}
}

func TestDefinitionFromMetaInfo(t *testing.T) {
	info := metainfo.Info{Name: "linux.iso", PieceLength: 16384, Length: 10, Pieces: make([]byte, 20)}
	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		t.Fatalf("marshal info: %v", err)
	}
	mi := &metainfo.MetaInfo{
		InfoBytes:    infoBytes,
		Announce:     "http://a.example/announce",
		AnnounceList: [][]string{{"http://a.example/announce", "udp://b.example:80"}},
	}
	def := Definition{MetaInfo: mi}

	if !def.HasInfo() {
		t.Fatal("expected HasInfo")
	}
	if def.InfoHash() != mi.HashInfoBytes() {
		t.Error("InfoHash should hash the info bytes")
	}
	if def.Name() != "linux.iso" {
		t.Errorf("Name() = %q", def.Name())
	}
	trackers := def.Trackers()
	if len(trackers) != 2 || trackers[0] != "http://a.example/announce" {
		t.Errorf("Trackers() = %v", trackers)
	}
}

func TestDefinitionFromMagnet(t *testing.T) {
	m := metainfo.Magnet{
		InfoHash:    metainfo.NewHashFromHex("0123456789abcdef0123456789abcdef01234567"),
		DisplayName: "My File",
		Trackers:    []string{"http://tracker"},
	}
	def := Definition{Magnet: &m}

	if def.HasInfo() {
		t.Error("magnet definitions carry no info")
	}
	if def.InfoHash() != m.InfoHash {
		t.Error("InfoHash should come from the magnet")
	}
	if def.Name() != "My File" {
		t.Errorf("Name() = %q", def.Name())
	}
}
