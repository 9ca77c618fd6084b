package folders

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mixpress/internal/media"
	"mixpress/internal/services"
)

type fakeProber struct {
	failPaths map[string]struct{}
}

func (p *fakeProber) Probe(_ context.Context, path string) (media.FileInfo, error) {
	if _, fail := p.failPaths[path]; fail {
		return media.FileInfo{}, errors.New("probe exploded")
	}
	return media.FileInfo{Path: path, Codec: "mp3", Lossy: true, DurationSeconds: 60, SizeBytes: 500_000, BitrateKbps: 128}, nil
}

func writeTracks(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanFolderNumericTrackOrder(t *testing.T) {
	dir := t.TempDir()
	writeTracks(t, dir, "10 - Finale.mp3", "2 - Middle.mp3", "1 - Opener.mp3", "notes.txt")

	scanner := NewScanner(&fakeProber{}, nil)
	folder, err := scanner.ScanFolder(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1 - Opener.mp3", "2 - Middle.mp3", "10 - Finale.mp3"}
	if folder.FileCount != len(want) {
		t.Fatalf("FileCount = %d, want %d", folder.FileCount, len(want))
	}
	for i, name := range want {
		if got := filepath.Base(folder.AudioFiles[i].Path); got != name {
			t.Errorf("track %d = %s, want %s", i, got, name)
		}
	}
	if folder.TotalDuration != 180 || folder.TotalSize != 1_500_000 {
		t.Errorf("totals: duration=%v size=%d", folder.TotalDuration, folder.TotalSize)
	}
	if folder.Kind != KindAlbum || !folder.SourceAvailable {
		t.Errorf("kind=%s sourceAvailable=%v", folder.Kind, folder.SourceAvailable)
	}
	// No readable tags in the fixture, so the directory name stands in.
	if folder.AlbumName != filepath.Base(dir) {
		t.Errorf("AlbumName = %q", folder.AlbumName)
	}
}

func TestScanFolderSkipsUnreadableTracks(t *testing.T) {
	dir := t.TempDir()
	writeTracks(t, dir, "a.mp3", "b.mp3")

	prober := &fakeProber{failPaths: map[string]struct{}{filepath.Join(dir, "a.mp3"): {}}}
	folder, err := NewScanner(prober, nil).ScanFolder(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if folder.FileCount != 1 || filepath.Base(folder.AudioFiles[0].Path) != "b.mp3" {
		t.Fatalf("unexpected scan result: %+v", folder.AudioFiles)
	}
}

func TestScanFolderEmptyIsValidationError(t *testing.T) {
	dir := t.TempDir()
	writeTracks(t, dir, "readme.txt")

	_, err := NewScanner(&fakeProber{}, nil).ScanFolder(context.Background(), dir)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation marker", err)
	}
}

func TestScanFolderMissingDirectory(t *testing.T) {
	_, err := NewScanner(&fakeProber{}, nil).ScanFolder(context.Background(), filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation marker", err)
	}
}

func TestRehydrateKeepsConvertedWhenSourceUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeTracks(t, dir, "a.mp3", "b.mp3")
	scanner := NewScanner(&fakeProber{}, nil)

	stored, err := scanner.ScanFolder(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	bitrate := 192
	stored.Status = Converted(t.TempDir(), &bitrate, 4_000, time.Now())
	stored.AudioFiles = nil // profiles persist no track list

	folder, err := scanner.Rehydrate(context.Background(), stored)
	if err != nil {
		t.Fatal(err)
	}
	if folder.ID != stored.ID {
		t.Fatalf("identity changed on unchanged source: %s -> %s", stored.ID, folder.ID)
	}
	if !folder.Status.IsConverted() || *folder.Status.LosslessBitrate != 192 {
		t.Fatalf("status not preserved: %v", folder.Status)
	}
	if folder.FileCount != 2 {
		t.Fatalf("track list not reattached: %+v", folder.AudioFiles)
	}
}

func TestRehydrateFlagsModifiedSource(t *testing.T) {
	dir := t.TempDir()
	writeTracks(t, dir, "a.mp3")
	scanner := NewScanner(&fakeProber{}, nil)

	stored, err := scanner.ScanFolder(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	bitrate := 128
	stored.Status = Converted(t.TempDir(), &bitrate, 2_000, time.Now())

	// Shift the directory mtime the way adding or removing a track would.
	later := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(dir, later, later); err != nil {
		t.Fatal(err)
	}

	folder, err := scanner.Rehydrate(context.Background(), stored)
	if err != nil {
		t.Fatal(err)
	}
	if folder.ID == stored.ID {
		t.Fatal("identity unchanged after source modification")
	}
	if folder.Status.State != StateNeedsReencode || folder.Status.Reason.Kind != ReencodeSourceFilesModified {
		t.Fatalf("status = %v, want needs re-encode for modified source", folder.Status)
	}
}

func TestRehydrateMixtapeRebuildsTracks(t *testing.T) {
	dir := t.TempDir()
	writeTracks(t, dir, "x.mp3", "y.mp3")
	stored := &MusicFolder{
		ID:              NewMixtapeID(),
		Kind:            KindMixtape,
		AlbumName:       "Road Trip",
		SourceAvailable: true,
		Status:          NotConverted(),
		TrackOrder:      []string{filepath.Join(dir, "y.mp3"), filepath.Join(dir, "x.mp3")},
		ExcludedTracks:  map[string]struct{}{},
	}

	folder, err := NewScanner(&fakeProber{}, nil).Rehydrate(context.Background(), stored)
	if err != nil {
		t.Fatal(err)
	}
	if folder.ID != stored.ID {
		t.Fatalf("mixtape identity changed: %s -> %s", stored.ID, folder.ID)
	}
	if folder.FileCount != 2 || filepath.Base(folder.AudioFiles[0].Path) != "y.mp3" {
		t.Fatalf("track list not rebuilt in saved order: %+v", folder.AudioFiles)
	}
}

func TestScanFolderCancellation(t *testing.T) {
	dir := t.TempDir()
	writeTracks(t, dir, "a.mp3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScanner(&fakeProber{}, nil).ScanFolder(ctx, dir)
	if !services.IsCancelled(err) {
		t.Fatalf("err = %v, want cancellation marker", err)
	}
}
