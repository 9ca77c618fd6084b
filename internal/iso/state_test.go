package iso

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"mixpress/internal/folders"
	"mixpress/internal/services"
)

func encodedSet(ids ...folders.ID) map[folders.ID]struct{} {
	set := make(map[folders.ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func existingImage(t *testing.T, ordered []folders.ID) *State {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mixpress.iso")
	if err := os.WriteFile(path, []byte("iso"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &State{Path: path, ContentHash: folders.ContentHash(ordered), SizeBytes: 3, Valid: true}
}

func TestDetermineActionEmptyList(t *testing.T) {
	got := DetermineAction(nil, nil, nil)
	if got.Kind != FullConversion {
		t.Fatalf("Kind = %s", got.Kind)
	}
}

func TestDetermineActionMatchingImage(t *testing.T) {
	ids := []folders.ID{"a", "b"}
	image := existingImage(t, ids)
	got := DetermineAction(ids, encodedSet("a", "b"), image)
	if got.Kind != BurnExisting {
		t.Fatalf("Kind = %s", got.Kind)
	}
}

func TestDetermineActionReorderRegeneratesOnly(t *testing.T) {
	ids := []folders.ID{"a", "b", "c"}
	image := existingImage(t, ids)
	reordered := []folders.ID{"c", "a", "b"}
	got := DetermineAction(reordered, encodedSet("a", "b", "c"), image)
	if got.Kind != RegenerateIso {
		t.Fatalf("reorder produced %s, want %s", got.Kind, RegenerateIso)
	}
	if len(got.FoldersToEncode) != 0 {
		t.Fatalf("reorder demanded encodes: %v", got.FoldersToEncode)
	}
}

func TestDetermineActionNewFolderNeedsEncode(t *testing.T) {
	ids := []folders.ID{"a", "b"}
	image := existingImage(t, ids)
	extended := []folders.ID{"a", "b", "new"}
	got := DetermineAction(extended, encodedSet("a", "b"), image)
	if got.Kind != EncodeAndRegenerate {
		t.Fatalf("Kind = %s", got.Kind)
	}
	if len(got.FoldersToEncode) != 1 || got.FoldersToEncode[0] != "new" {
		t.Fatalf("FoldersToEncode = %v", got.FoldersToEncode)
	}
}

func TestDetermineActionNoImage(t *testing.T) {
	ids := []folders.ID{"a", "b"}
	if got := DetermineAction(ids, encodedSet("a", "b"), nil); got.Kind != RegenerateIso {
		t.Fatalf("all encoded, no image: %s", got.Kind)
	}
	if got := DetermineAction(ids, nil, nil); got.Kind != FullConversion {
		t.Fatalf("nothing encoded, no image: %s", got.Kind)
	}
	got := DetermineAction(ids, encodedSet("a"), nil)
	if got.Kind != EncodeAndRegenerate || len(got.FoldersToEncode) != 1 || got.FoldersToEncode[0] != "b" {
		t.Fatalf("partial encode: %+v", got)
	}
}

func TestDetermineActionMissingImageFile(t *testing.T) {
	ids := []folders.ID{"a"}
	// Recorded as valid but the file is gone.
	stale := &State{Path: filepath.Join(t.TempDir(), "absent.iso"), ContentHash: folders.ContentHash(ids), Valid: true}
	if got := DetermineAction(ids, encodedSet("a"), stale); got.Kind != RegenerateIso {
		t.Fatalf("Kind = %s", got.Kind)
	}
}

func TestExceedsCapacity(t *testing.T) {
	if (&State{SizeBytes: ImageSizeCeiling}).ExceedsCapacity() {
		t.Fatal("image at the ceiling flagged as oversized")
	}
	if !(&State{SizeBytes: ImageSizeCeiling + 1}).ExceedsCapacity() {
		t.Fatal("oversized image not flagged")
	}
}

func TestSanitizeVolumeLabel(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Road Trip 2026", "Road Trip 2026"},
		{"AC/DC: Greatest", "ACDC Greatest"},
		{"a very long compilation name", "a very long comp"},
		{"**??//", "MIXPRESS"},
		{"", "MIXPRESS"},
	}
	for _, tc := range cases {
		if got := SanitizeVolumeLabel(tc.in); got != tc.want {
			t.Errorf("SanitizeVolumeLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildProducesStampedState(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "_iso_staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	setHelperCommand(t, "success")

	state, err := NewCLI().Build(context.Background(), staging, "Road Trip")
	if err != nil {
		t.Fatal(err)
	}
	if state.Path != filepath.Join(filepath.Dir(staging), "mixpress.iso") {
		t.Fatalf("image path = %s", state.Path)
	}
	if state.SizeBytes <= 0 || !state.Valid {
		t.Fatalf("state = %+v", state)
	}
	ids := []folders.ID{"a", "b"}
	state.Stamp(ids)
	if state.ContentHash != folders.ContentHash(ids) {
		t.Fatal("Stamp did not record the content hash")
	}
	if !state.Exists() {
		t.Fatal("built image not detected")
	}
}

func TestBuildToolFailure(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "_iso_staging")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	setHelperCommand(t, "failure")

	_, err := NewCLI().Build(context.Background(), staging, "X")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, want external tool marker", err)
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(),
			"GO_WANT_HELPER_PROCESS=1",
			fmt.Sprintf("ISO_HELPER_MODE=%s", mode),
			fmt.Sprintf("ISO_HELPER_ARGS=%s", strings.Join(args, " ")),
		)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("ISO_HELPER_MODE") {
	case "success":
		// The tool writes the image at the path following -o.
		args := strings.Fields(os.Getenv("ISO_HELPER_ARGS"))
		for i, arg := range args {
			if arg == "-o" && i+1 < len(args) {
				if err := os.WriteFile(args[i+1], []byte("fake iso"), 0o644); err != nil {
					fmt.Fprintln(os.Stderr, err)
					os.Exit(1)
				}
			}
		}
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "hdiutil: makehybrid failed - Operation not permitted")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}
