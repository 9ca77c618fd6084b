// Package iso tracks disc image validity against the folder list and builds
// images from the staging tree.
package iso

import (
	"os"
	"strings"

	"mixpress/internal/folders"
)

// ImageSizeCeiling is the hard cap on a built image's byte size. It is
// deliberately below the 700 MB content budget used while encoding, leaving
// margin for filesystem overhead inside the image.
const ImageSizeCeiling int64 = 699 * 1024 * 1024

// State records a previously built image.
type State struct {
	Path        string
	ContentHash string
	SizeBytes   int64
	Valid       bool
}

// Exists reports whether the recorded image is still present and valid.
func (s *State) Exists() bool {
	if s == nil || !s.Valid || s.Path == "" {
		return false
	}
	info, err := os.Stat(s.Path)
	return err == nil && info.Size() > 0
}

// ExceedsCapacity reports whether the image is too large for the disc.
func (s *State) ExceedsCapacity() bool {
	return s != nil && s.SizeBytes > ImageSizeCeiling
}

// ActionKind enumerates what stands between the current folder list and a
// burnable image.
type ActionKind string

const (
	// FullConversion means nothing usable exists yet.
	FullConversion ActionKind = "full_conversion"
	// BurnExisting means the recorded image matches the list as-is.
	BurnExisting ActionKind = "burn_existing"
	// RegenerateIso means every folder is encoded and only the image layer
	// is stale, which happens on pure reorders.
	RegenerateIso ActionKind = "regenerate_iso"
	// EncodeAndRegenerate means some folders still need encoding first.
	EncodeAndRegenerate ActionKind = "encode_and_regenerate"
)

// Action is the tracker's verdict plus the folders still missing encodes.
type Action struct {
	Kind            ActionKind
	FoldersToEncode []folders.ID
}

// DetermineAction decides how to reach a burnable image for the ordered
// folder list given the set of already-encoded folder ids and an optional
// previous image.
func DetermineAction(ordered []folders.ID, encoded map[folders.ID]struct{}, image *State) Action {
	if len(ordered) == 0 {
		return Action{Kind: FullConversion}
	}

	var missing []folders.ID
	for _, id := range ordered {
		if _, ok := encoded[id]; !ok {
			missing = append(missing, id)
		}
	}
	hash := folders.ContentHash(ordered)

	if image.Exists() {
		if image.ContentHash == hash {
			return Action{Kind: BurnExisting}
		}
		if len(missing) == 0 {
			return Action{Kind: RegenerateIso}
		}
		return Action{Kind: EncodeAndRegenerate, FoldersToEncode: missing}
	}

	switch {
	case len(missing) == 0:
		return Action{Kind: RegenerateIso}
	case len(missing) == len(ordered):
		return Action{Kind: FullConversion}
	default:
		return Action{Kind: EncodeAndRegenerate, FoldersToEncode: missing}
	}
}

const labelExcluded = `*/:;?\`
const maxLabelLength = 16

// SanitizeVolumeLabel makes an arbitrary name safe as a Joliet volume label:
// excluded characters are dropped and the result is truncated to 16
// characters. An empty result falls back to MIXPRESS.
func SanitizeVolumeLabel(name string) string {
	var b strings.Builder
	count := 0
	for _, r := range strings.TrimSpace(name) {
		if strings.ContainsRune(labelExcluded, r) {
			continue
		}
		b.WriteRune(r)
		count++
		if count >= maxLabelLength {
			break
		}
	}
	label := strings.TrimSpace(b.String())
	if label == "" {
		return "MIXPRESS"
	}
	return label
}
