package folders

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"mixpress/internal/logging"
	"mixpress/internal/media"
	"mixpress/internal/services"
)

// Prober abstracts track inspection so scans can run against fakes.
type Prober interface {
	Probe(ctx context.Context, path string) (media.FileInfo, error)
}

// Scanner builds MusicFolder snapshots from source directories.
type Scanner struct {
	prober Prober
	logger *slog.Logger
}

// NewScanner constructs a scanner. A nil logger is replaced with a no-op.
func NewScanner(prober Prober, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{prober: prober, logger: logging.NewComponentLogger(logger, "scanner")}
}

// numeric collation keeps "2 - Track" ahead of "10 - Track".
var trackCollator = collate.New(language.Und, collate.Numeric, collate.IgnoreCase)

// ScanFolder probes every audio file under the directory and assembles the
// folder snapshot. Track order is the collated path order, which is stable
// across rescans of an unchanged directory.
func (s *Scanner) ScanFolder(ctx context.Context, path string) (*MusicFolder, error) {
	id, err := IDForPath(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "scan", "stat_folder", "music folder is not readable", err)
	}

	var paths []string
	walkErr := filepath.WalkDir(path, func(entry string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if media.IsAudioFile(entry) {
			paths = append(paths, entry)
		}
		return nil
	})
	if walkErr != nil {
		return nil, services.Wrap(services.ErrValidation, "scan", "walk_folder", "failed to list music folder", walkErr)
	}
	if len(paths) == 0 {
		return nil, services.Wrap(services.ErrValidation, "scan", "walk_folder", "folder contains no audio files", nil)
	}

	sort.Slice(paths, func(i, j int) bool {
		return trackCollator.CompareString(paths[i], paths[j]) < 0
	})

	folder := &MusicFolder{
		ID:              id,
		Path:            path,
		Kind:            KindAlbum,
		Status:          NotConverted(),
		SourceAvailable: true,
		ExcludedTracks:  map[string]struct{}{},
	}

	for _, trackPath := range paths {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrCancelled, "scan", "probe_tracks", "scan cancelled", err)
		}
		info, err := s.prober.Probe(ctx, trackPath)
		if err != nil {
			s.logger.Warn("skipping unreadable track",
				logging.String("path", trackPath),
				logging.Error(err))
			continue
		}
		folder.AudioFiles = append(folder.AudioFiles, info)
		folder.TotalSize += info.SizeBytes
		folder.TotalDuration += info.DurationSeconds
	}
	if len(folder.AudioFiles) == 0 {
		return nil, services.Wrap(services.ErrValidation, "scan", "probe_tracks", "no readable audio files in folder", nil)
	}
	folder.FileCount = len(folder.AudioFiles)

	tags := media.ReadTags(folder.AudioFiles[0].Path)
	folder.AlbumName = tags.Album
	folder.ArtistName = tags.Artist
	folder.Year = tags.Year
	if folder.AlbumName == "" {
		folder.AlbumName = filepath.Base(path)
	}

	s.logger.Info("scanned folder",
		logging.String(logging.FieldFolderID, string(folder.ID)),
		logging.String("album", folder.AlbumName),
		logging.Int("tracks", folder.FileCount),
		logging.Int64("bytes", folder.TotalSize))
	return folder, nil
}

// Rehydrate re-probes a profile-restored folder, reattaching the track list
// the profile does not persist. When an album's source directory changed
// since the save, the folder adopts the fresh identity and a Converted
// status is demoted to NeedsReencode so stale output is never trusted.
// Folders whose source is gone are returned as stored.
func (s *Scanner) Rehydrate(ctx context.Context, stored *MusicFolder) (*MusicFolder, error) {
	if !stored.SourceAvailable {
		return stored, nil
	}
	if stored.Kind == KindMixtape {
		return s.rehydrateMixtape(ctx, stored)
	}

	fresh, err := s.ScanFolder(ctx, stored.Path)
	if err != nil {
		return nil, err
	}
	fresh.TrackOrder = append([]string(nil), stored.TrackOrder...)
	for path := range stored.ExcludedTracks {
		fresh.ExcludedTracks[path] = struct{}{}
	}
	if fresh.ID == stored.ID {
		fresh.Status = stored.Status
		return fresh, nil
	}
	s.logger.Info("source folder changed since it was saved",
		logging.String(logging.FieldFolderID, string(stored.ID)),
		logging.String("path", stored.Path))
	if stored.Status.IsConverted() {
		fresh.Status = NeedsReencode(ReencodeReason{Kind: ReencodeSourceFilesModified})
	}
	return fresh, nil
}

// rehydrateMixtape rebuilds the track list from the saved playback order.
// Mixtape identity is random, so there is no source-change detection; a
// vanished track is dropped with a warning like any unreadable scan entry.
func (s *Scanner) rehydrateMixtape(ctx context.Context, stored *MusicFolder) (*MusicFolder, error) {
	restored := *stored
	restored.AudioFiles = nil
	restored.TotalSize = 0
	restored.TotalDuration = 0
	for _, trackPath := range stored.TrackOrder {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrCancelled, "scan", "probe_tracks", "scan cancelled", err)
		}
		info, err := s.prober.Probe(ctx, trackPath)
		if err != nil {
			s.logger.Warn("skipping unreadable track",
				logging.String("path", trackPath),
				logging.Error(err))
			continue
		}
		restored.AudioFiles = append(restored.AudioFiles, info)
		restored.TotalSize += info.SizeBytes
		restored.TotalDuration += info.DurationSeconds
	}
	if len(restored.AudioFiles) == 0 {
		return nil, services.Wrap(services.ErrValidation, "scan", "probe_tracks", "no readable audio files in mixtape", nil)
	}
	restored.FileCount = len(restored.AudioFiles)
	return &restored, nil
}

// NewMixtape assembles a mixtape folder from an explicit track list. The
// given order is the playback order.
func NewMixtape(name string, tracks []media.FileInfo) *MusicFolder {
	folder := &MusicFolder{
		ID:              NewMixtapeID(),
		Kind:            KindMixtape,
		AlbumName:       name,
		Status:          NotConverted(),
		SourceAvailable: true,
		ExcludedTracks:  map[string]struct{}{},
		AudioFiles:      make([]media.FileInfo, len(tracks)),
	}
	copy(folder.AudioFiles, tracks)
	for _, track := range tracks {
		folder.TrackOrder = append(folder.TrackOrder, track.Path)
		folder.TotalSize += track.SizeBytes
		folder.TotalDuration += track.DurationSeconds
	}
	folder.FileCount = len(tracks)
	return folder
}
