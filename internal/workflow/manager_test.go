package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mixpress/internal/burn"
	"mixpress/internal/config"
	"mixpress/internal/disc"
	"mixpress/internal/engine"
	"mixpress/internal/folders"
	"mixpress/internal/iso"
	"mixpress/internal/logging"
	"mixpress/internal/media"
	"mixpress/internal/output"
	"mixpress/internal/services"
	"mixpress/internal/services/ffmpeg"
)

type fakeTranscoder struct {
	mu    sync.Mutex
	calls []ffmpeg.Request
	fail  map[string]error
}

func (f *fakeTranscoder) Transcode(ctx context.Context, req ffmpeg.Request) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if err := f.fail[req.InputPath]; err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, []byte("encoded audio"), 0o644)
}

func (f *fakeTranscoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeProber struct {
	state disc.MediaState
}

func (f *fakeProber) Status(ctx context.Context) (disc.MediaState, error) {
	return f.state, nil
}

type fakeBurner struct {
	mu       sync.Mutex
	requests []burn.Request
	progress []float64
	err      error
}

func (f *fakeBurner) Burn(ctx context.Context, req burn.Request, onProgress func(float64)) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	for _, p := range f.progress {
		onProgress(p)
	}
	return f.err
}

func (f *fakeBurner) burnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeBuilder struct {
	mu          sync.Mutex
	calls       int
	lastStaging string
	lastLabel   string
	sizeBytes   int64
	err         error
}

func (f *fakeBuilder) Build(ctx context.Context, stagingDir, volumeLabel string) (*iso.State, error) {
	f.mu.Lock()
	f.calls++
	f.lastStaging = stagingDir
	f.lastLabel = volumeLabel
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(filepath.Dir(stagingDir), "mixpress.iso")
	if err := os.WriteFile(path, []byte("image"), 0o644); err != nil {
		return nil, err
	}
	size := f.sizeBytes
	if size == 0 {
		size = 5
	}
	return &iso.State{Path: path, SizeBytes: size, Valid: true}, nil
}

func (f *fakeBuilder) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Burning.MediaTimeout = 2
	cfg.Burning.VolumeLabel = "MIX TAPE"
	return cfg
}

func testFolder(t *testing.T, name string, withLossless bool) *folders.MusicFolder {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := []media.FileInfo{
		{Path: filepath.Join(dir, "one.ogg"), DurationSeconds: 200, BitrateKbps: 160, SizeBytes: 4_000_000, Codec: "ogg", Lossy: true},
	}
	if withLossless {
		files = append(files, media.FileInfo{
			Path: filepath.Join(dir, "two.flac"), DurationSeconds: 240, BitrateKbps: 900, SizeBytes: 27_000_000, Codec: "flac",
		})
	}
	folder := &folders.MusicFolder{
		ID:        folders.NewID(dir, time.Now().Unix()),
		Path:      dir,
		Kind:      folders.KindAlbum,
		AlbumName: name,
		FileCount: len(files),
		Status:    folders.NotConverted(),
	}
	for _, f := range files {
		folder.TotalDuration += f.DurationSeconds
		folder.TotalSize += f.SizeBytes
	}
	folder.AudioFiles = files
	return folder
}

type testHarness struct {
	manager    *Manager
	engine     *engine.Engine
	transcoder *fakeTranscoder
	burner     *fakeBurner
	builder    *fakeBuilder
}

func newHarness(t *testing.T, cfg *config.Config, state disc.MediaState, opts ...Option) *testHarness {
	t.Helper()
	transcoder := &fakeTranscoder{}
	out := output.NewSessionManager(t.TempDir(), logging.NewNop())
	eng := engine.New(engine.Config{Workers: 2}, out, transcoder, logging.NewNop())
	eng.Start()
	t.Cleanup(eng.Stop)

	burner := &fakeBurner{progress: []float64{10, 50, 96, -1}}
	builder := &fakeBuilder{}
	manager := NewManager(cfg, eng, out, &fakeProber{state: state}, burner, builder, logging.NewNop(), opts...)
	return &testHarness{manager: manager, engine: eng, transcoder: transcoder, burner: burner, builder: builder}
}

func TestRunFullBurn(t *testing.T) {
	h := newHarness(t, testConfig(), disc.Blank)
	folder := testFolder(t, "First Album", true)

	outcome, err := h.manager.Run(context.Background(), []*folders.MusicFolder{folder})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != burn.OutcomeComplete {
		t.Fatalf("outcome = %s, want complete", outcome)
	}
	if h.manager.Stage() != burn.StageComplete {
		t.Fatalf("stage = %s, want complete", h.manager.Stage())
	}

	if h.builder.buildCount() != 1 {
		t.Fatalf("builder called %d times, want 1", h.builder.buildCount())
	}
	entries, err := os.ReadDir(h.builder.lastStaging)
	if err != nil {
		t.Fatalf("read staging: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "01-First Album" {
		t.Fatalf("unexpected staging layout: %v", entries)
	}

	image := h.manager.Image()
	if image == nil || !image.Exists() {
		t.Fatal("expected a valid image after the run")
	}
	if image.ContentHash != folders.ContentHash([]folders.ID{folder.ID}) {
		t.Fatal("image not stamped with the folder list hash")
	}

	if h.burner.burnCount() != 1 {
		t.Fatalf("burner called %d times, want 1", h.burner.burnCount())
	}
	req := h.burner.requests[0]
	if req.ImagePath != image.Path {
		t.Fatalf("burned %q, want %q", req.ImagePath, image.Path)
	}
	if req.EraseFirst {
		t.Fatal("blank media must not trigger an erase")
	}
}

func TestRunImageBuildFailureKeepsEncoding(t *testing.T) {
	h := newHarness(t, testConfig(), disc.Blank)
	h.builder.err = services.Wrap(services.ErrExternalTool, "iso", "build", "tool exploded", nil)
	folder := testFolder(t, "Album", false)

	outcome, err := h.manager.Run(context.Background(), []*folders.MusicFolder{folder})
	if outcome != burn.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", outcome)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, want external tool marker", err)
	}
	if h.burner.burnCount() != 0 {
		t.Fatal("burner must not run after an image failure")
	}
	if !h.engine.AllConverted() {
		t.Fatal("encoding state must survive an image failure")
	}

	// A retry reuses the encoded output instead of transcoding again.
	calls := h.transcoder.callCount()
	h.builder.err = nil
	outcome, err = h.manager.Run(context.Background(), []*folders.MusicFolder{folder})
	if err != nil || outcome != burn.OutcomeComplete {
		t.Fatalf("retry: outcome=%s err=%v", outcome, err)
	}
	if h.transcoder.callCount() != calls {
		t.Fatalf("retry re-transcoded: %d extra calls", h.transcoder.callCount()-calls)
	}
}

func TestRunBurnExistingSkipsEncodeAndBuild(t *testing.T) {
	folder := testFolder(t, "Album", false)
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outDir, "one.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	folder.Status = folders.Converted(outDir, nil, 1, time.Now())

	imagePath := filepath.Join(t.TempDir(), "mixpress.iso")
	if err := os.WriteFile(imagePath, []byte("image"), 0o644); err != nil {
		t.Fatal(err)
	}
	image := &iso.State{
		Path:        imagePath,
		ContentHash: folders.ContentHash([]folders.ID{folder.ID}),
		SizeBytes:   5,
		Valid:       true,
	}

	h := newHarness(t, testConfig(), disc.Blank, WithImage(image))
	outcome, err := h.manager.Run(context.Background(), []*folders.MusicFolder{folder})
	if err != nil || outcome != burn.OutcomeComplete {
		t.Fatalf("outcome=%s err=%v", outcome, err)
	}
	if h.transcoder.callCount() != 0 {
		t.Fatal("matching image must skip encoding")
	}
	if h.builder.buildCount() != 0 {
		t.Fatal("matching image must skip the image build")
	}
	if h.burner.requests[0].ImagePath != imagePath {
		t.Fatalf("burned %q, want seeded image", h.burner.requests[0].ImagePath)
	}
}

func TestRunOversizeImageFlagsReencode(t *testing.T) {
	h := newHarness(t, testConfig(), disc.Blank)
	h.builder.sizeBytes = iso.ImageSizeCeiling + 1
	folder := testFolder(t, "Album", true)

	outcome, err := h.manager.Run(context.Background(), []*folders.MusicFolder{folder})
	if outcome != burn.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", outcome)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation marker", err)
	}
	if h.burner.burnCount() != 0 {
		t.Fatal("oversize image must not reach the burner")
	}

	status := h.engine.Statuses()[folder.ID]
	if status.State != folders.StateNeedsReencode {
		t.Fatalf("status = %s, want needs_reencode", status.State)
	}
	if status.Reason.Kind != folders.ReencodeIsoSizeExceeded {
		t.Fatalf("reason = %s, want iso_size_exceeded", status.Reason.Kind)
	}
}

func TestRunEncodeFailureAbortsBurn(t *testing.T) {
	h := newHarness(t, testConfig(), disc.Blank)
	folder := testFolder(t, "Album", false)
	h.transcoder.fail = map[string]error{
		folder.AudioFiles[0].Path: errors.New("encoder crashed"),
	}

	outcome, err := h.manager.Run(context.Background(), []*folders.MusicFolder{folder})
	if outcome != burn.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", outcome)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want transient marker", err)
	}
	if h.builder.buildCount() != 0 {
		t.Fatal("image must not be built from a failed conversion")
	}
}

func TestRunSimulateSkipsBurner(t *testing.T) {
	cfg := testConfig()
	cfg.Burning.Simulate = true
	h := newHarness(t, cfg, disc.NoDisc)
	folder := testFolder(t, "Album", false)

	outcome, err := h.manager.Run(context.Background(), []*folders.MusicFolder{folder})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != burn.OutcomeSimulated {
		t.Fatalf("outcome = %s, want simulated", outcome)
	}
	if h.builder.buildCount() != 1 {
		t.Fatal("simulate mode still builds the image")
	}
	if h.burner.burnCount() != 0 {
		t.Fatal("simulate mode must not invoke the burner")
	}
}

func TestRunEmptyListRejected(t *testing.T) {
	h := newHarness(t, testConfig(), disc.Blank)
	_, err := h.manager.Run(context.Background(), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation marker", err)
	}
}
