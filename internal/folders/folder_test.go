package folders

import (
	"strings"
	"testing"
	"time"

	"mixpress/internal/media"
)

func track(path string) media.FileInfo {
	return media.FileInfo{Path: path, Codec: "mp3", Lossy: true, DurationSeconds: 100, SizeBytes: 1_000_000, BitrateKbps: 128}
}

func TestNewIDStableForSameInputs(t *testing.T) {
	a := NewID("/music/album", 1700000000)
	b := NewID("/music/album", 1700000000)
	if a != b {
		t.Fatalf("same inputs produced different ids: %s vs %s", a, b)
	}
	if c := NewID("/music/album", 1700000001); c == a {
		t.Fatal("mtime change did not change the id")
	}
	if c := NewID("/music/other", 1700000000); c == a {
		t.Fatal("path change did not change the id")
	}
}

func TestMixtapeID(t *testing.T) {
	id := NewMixtapeID()
	if !id.IsMixtape() {
		t.Fatalf("mixtape id %q not recognized", id)
	}
	if NewID("/music/album", 1).IsMixtape() {
		t.Fatal("album id classified as mixtape")
	}
	if id == NewMixtapeID() {
		t.Fatal("mixtape ids must be unique")
	}
}

func TestActiveTracksAppliesOrderThenExclusions(t *testing.T) {
	folder := &MusicFolder{
		AudioFiles: []media.FileInfo{track("/m/a.mp3"), track("/m/b.mp3"), track("/m/c.mp3")},
		TrackOrder: []string{"/m/c.mp3", "/m/a.mp3"},
		ExcludedTracks: map[string]struct{}{
			"/m/a.mp3": {},
		},
	}
	active := folder.ActiveTracks()
	want := []string{"/m/c.mp3", "/m/b.mp3"}
	if len(active) != len(want) {
		t.Fatalf("ActiveTracks returned %d tracks, want %d", len(active), len(want))
	}
	for i, path := range want {
		if active[i].Path != path {
			t.Errorf("track %d = %s, want %s", i, active[i].Path, path)
		}
	}
}

func TestActiveTracksUnorderedKeepsScanOrder(t *testing.T) {
	folder := &MusicFolder{
		AudioFiles: []media.FileInfo{track("/m/a.mp3"), track("/m/b.mp3")},
	}
	active := folder.ActiveTracks()
	if len(active) != 2 || active[0].Path != "/m/a.mp3" || active[1].Path != "/m/b.mp3" {
		t.Fatalf("unexpected order: %v", active)
	}
	// The returned slice is a copy.
	active[0].Path = "/mutated"
	if folder.AudioFiles[0].Path != "/m/a.mp3" {
		t.Fatal("ActiveTracks leaked the internal slice")
	}
}

func TestContentHashSensitiveToOrder(t *testing.T) {
	a := ContentHash([]ID{"one", "two", "three"})
	if a != ContentHash([]ID{"one", "two", "three"}) {
		t.Fatal("hash not deterministic")
	}
	if a == ContentHash([]ID{"two", "one", "three"}) {
		t.Fatal("reorder did not change the hash")
	}
	if a == ContentHash([]ID{"one", "two"}) {
		t.Fatal("membership change did not change the hash")
	}
	// Concatenation across boundaries must not collide.
	if ContentHash([]ID{"ab", "c"}) == ContentHash([]ID{"a", "bc"}) {
		t.Fatal("boundary collision between adjacent ids")
	}
}

func TestHasCustomLayout(t *testing.T) {
	album := &MusicFolder{Kind: KindAlbum}
	if album.HasCustomLayout() {
		t.Fatal("plain album flagged as custom layout")
	}
	album.TrackOrder = []string{"/m/a.mp3"}
	if !album.HasCustomLayout() {
		t.Fatal("custom track order not flagged")
	}
	mix := NewMixtape("Road Trip", []media.FileInfo{track("/m/a.mp3")})
	if !mix.HasCustomLayout() {
		t.Fatal("mixtape not flagged")
	}
}

func TestNewMixtapeTotals(t *testing.T) {
	mix := NewMixtape("Road Trip", []media.FileInfo{track("/m/a.mp3"), track("/m/b.mp3")})
	if mix.FileCount != 2 || mix.TotalSize != 2_000_000 || mix.TotalDuration != 200 {
		t.Fatalf("unexpected totals: count=%d size=%d duration=%v", mix.FileCount, mix.TotalSize, mix.TotalDuration)
	}
	if len(mix.TrackOrder) != 2 || mix.TrackOrder[0] != "/m/a.mp3" {
		t.Fatalf("track order not recorded: %v", mix.TrackOrder)
	}
	if mix.Kind != KindMixtape {
		t.Fatalf("kind = %s", mix.Kind)
	}
}

func TestConversionStatusStrings(t *testing.T) {
	if got := NotConverted().String(); got != "not converted" {
		t.Errorf("NotConverted = %q", got)
	}
	if got := Converting(3, 12).String(); got != "converting 3/12" {
		t.Errorf("Converting = %q", got)
	}
	bitrate := 192
	converted := Converted("/out/abc", &bitrate, 1024, time.Now())
	if got := converted.String(); got != "converted at 192 kbps" {
		t.Errorf("Converted = %q", got)
	}
	if !converted.IsConverted() {
		t.Error("Converted status not reported as converted")
	}
	lossyOnly := Converted("/out/abc", nil, 1024, time.Now())
	if got := lossyOnly.String(); got != "converted" {
		t.Errorf("lossy-only Converted = %q", got)
	}
	reencode := NeedsReencode(ReencodeReason{Kind: ReencodeBitrateChanged, OldBitrate: 256, NewBitrate: 192})
	if got := reencode.String(); !strings.Contains(got, "256 -> 192") {
		t.Errorf("NeedsReencode = %q", got)
	}
	if reencode.IsConverted() {
		t.Error("NeedsReencode reported as converted")
	}
}

func TestDisplayName(t *testing.T) {
	f := &MusicFolder{AlbumName: "Blue Train", Path: "/music/blue-train"}
	if f.DisplayName() != "Blue Train" {
		t.Errorf("DisplayName = %q", f.DisplayName())
	}
	f.AlbumName = ""
	if f.DisplayName() != "blue-train" {
		t.Errorf("DisplayName fallback = %q", f.DisplayName())
	}
}
