// Package folders models the source music folders fed into the pipeline and
// the lifecycle of their conversion state.
package folders

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mixpress/internal/media"
)

// Kind distinguishes whole-album folders from user-assembled mixtapes.
type Kind string

const (
	KindAlbum   Kind = "album"
	KindMixtape Kind = "mixtape"
)

const mixtapePrefix = "mixtape:"

// ID identifies a source folder. Album IDs are derived from the source path
// and its modification time, so editing the source produces a new identity
// and the old conversion output is no longer trusted. Mixtape IDs are random
// because a mixtape has no single source directory.
type ID string

// NewID derives the identity for an album folder from its path and the mtime
// of the directory in whole seconds.
func NewID(path string, mtimeSeconds int64) ID {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", path, mtimeSeconds)))
	return ID(hex.EncodeToString(sum[:16]))
}

// NewMixtapeID mints a fresh mixtape identity.
func NewMixtapeID() ID {
	return ID(mixtapePrefix + uuid.NewString())
}

// IsMixtape reports whether the id belongs to a mixtape folder.
func (id ID) IsMixtape() bool {
	return strings.HasPrefix(string(id), mixtapePrefix)
}

// IDForPath stats the directory and derives its album identity.
func IDForPath(path string) (ID, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat folder: %w", err)
	}
	return NewID(path, info.ModTime().Unix()), nil
}

// MusicFolder is one ordered entry in the compilation. Album folders mirror
// a source directory; mixtape folders are assembled track lists with an
// explicit order.
type MusicFolder struct {
	ID              ID
	Path            string
	Kind            Kind
	AlbumName       string
	ArtistName      string
	Year            int
	FileCount       int
	TotalSize       int64
	TotalDuration   float64
	AudioFiles      []media.FileInfo
	Status          ConversionStatus
	SourceAvailable bool

	// ExcludedTracks holds source paths the user removed from the folder.
	ExcludedTracks map[string]struct{}
	// TrackOrder, when non-empty, is the explicit playback order by source
	// path. Paths absent from AudioFiles are ignored.
	TrackOrder []string
}

// ActiveTracks returns the files that will actually be encoded, with the
// custom order applied first and exclusions filtered after.
func (f *MusicFolder) ActiveTracks() []media.FileInfo {
	ordered := f.AudioFiles
	if len(f.TrackOrder) > 0 {
		byPath := make(map[string]media.FileInfo, len(f.AudioFiles))
		for _, file := range f.AudioFiles {
			byPath[file.Path] = file
		}
		ordered = make([]media.FileInfo, 0, len(f.TrackOrder))
		seen := make(map[string]struct{}, len(f.TrackOrder))
		for _, path := range f.TrackOrder {
			if file, ok := byPath[path]; ok {
				ordered = append(ordered, file)
				seen[path] = struct{}{}
			}
		}
		// Files not named by the order keep their scan position at the end.
		for _, file := range f.AudioFiles {
			if _, ok := seen[file.Path]; !ok {
				ordered = append(ordered, file)
			}
		}
	}

	if len(f.ExcludedTracks) == 0 {
		out := make([]media.FileInfo, len(ordered))
		copy(out, ordered)
		return out
	}
	out := make([]media.FileInfo, 0, len(ordered))
	for _, file := range ordered {
		if _, excluded := f.ExcludedTracks[file.Path]; excluded {
			continue
		}
		out = append(out, file)
	}
	return out
}

// HasCustomLayout reports whether staging must preserve per-track numbering
// rather than mirroring the source directory.
func (f *MusicFolder) HasCustomLayout() bool {
	return f.Kind == KindMixtape || len(f.TrackOrder) > 0
}

// DisplayName is the human label used in staging entries and status output.
func (f *MusicFolder) DisplayName() string {
	if f.AlbumName != "" {
		return f.AlbumName
	}
	if f.Path != "" {
		return filepath.Base(f.Path)
	}
	return string(f.ID)
}

// ContentHash fingerprints the ordered folder list. Any change in membership
// or position produces a different hash, which is what gates burning a
// previously built image.
func ContentHash(ids []ID) string {
	hasher := sha256.New()
	for _, id := range ids {
		hasher.Write([]byte(id))
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
