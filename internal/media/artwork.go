package media

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// AlbumTags carries the folder-level metadata read from a representative track.
type AlbumTags struct {
	Album  string
	Artist string
	Year   int
}

// ReadTags extracts album metadata from the file's tag atoms. Missing or
// unreadable tags yield a zero value, never an error.
func ReadTags(path string) AlbumTags {
	file, err := os.Open(path)
	if err != nil {
		return AlbumTags{}
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return AlbumTags{}
	}
	return AlbumTags{
		Album:  strings.TrimSpace(meta.Album()),
		Artist: strings.TrimSpace(meta.AlbumArtist()),
		Year:   meta.Year(),
	}
}

// ExtractArtwork writes the file's embedded cover image into cacheDir and
// returns its path. The file name is keyed by a hash of the image bytes so
// identical covers across an album share one extraction. Returns "" when the
// file has no usable artwork.
func ExtractArtwork(path, cacheDir string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return "", nil
	}
	picture := meta.Picture()
	if picture == nil || len(picture.Data) == 0 {
		return "", nil
	}

	ext := extensionForMIME(picture.MIMEType, picture.Ext)
	hasher := fnv.New64a()
	hasher.Write(picture.Data)
	name := fmt.Sprintf("cover_%016x%s", hasher.Sum64(), ext)
	target := filepath.Join(cacheDir, name)

	if _, err := os.Stat(target); err == nil {
		return target, nil
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create artwork cache dir: %w", err)
	}
	if err := os.WriteFile(target, picture.Data, 0o644); err != nil {
		return "", fmt.Errorf("write artwork: %w", err)
	}
	return target, nil
}

func extensionForMIME(mime, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	fallback = strings.TrimSpace(strings.ToLower(fallback))
	if fallback != "" && !strings.HasPrefix(fallback, ".") {
		fallback = "." + fallback
	}
	if fallback == "" {
		fallback = ".jpg"
	}
	return fallback
}
