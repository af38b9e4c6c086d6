package preview

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"segment-video-pipeline/config"
	"segment-video-pipeline/project"
	"segment-video-pipeline/types"
	"segment-video-pipeline/worker"
)

func TestOffset(t *testing.T) {
	e := New(config.Default())
	if got := e.Offset(&types.Segment{FootageStart: 40, FootageTrimmed: true}); got != 1 {
		t.Errorf("trimmed offset = %v, want 1", got)
	}
	if got := e.Offset(&types.Segment{FootageStart: 40}); got != 41 {
		t.Errorf("untrimmed offset = %v, want 41", got)
	}
}

func TestRunSkipsMissingAndCaches(t *testing.T) {
	proj, err := project.Create(filepath.Join(t.TempDir(), "demo"), types.FormatShort)
	if err != nil {
		t.Fatal(err)
	}
	script := &types.Script{Title: "demo", Segments: []types.Segment{
		{ID: 0, Text: "a"},
		{ID: 1, Text: "b", FootageStart: 5},
		{ID: 2, Text: "c", FootageTrimmed: true},
	}}
	for _, id := range []int{1, 2} {
		os.WriteFile(filepath.Join(proj.Dir, project.FootageDir, project.SegmentFile(id, "mp4")), []byte("mp4"), 0644)
	}

	var mu sync.Mutex
	offsets := map[string]float64{}
	e := New(config.Default())
	e.extract = func(_ context.Context, in, out string, at float64) error {
		mu.Lock()
		offsets[filepath.Base(in)] = at
		mu.Unlock()
		return os.WriteFile(out, []byte("jpg"), 0644)
	}

	sum, err := e.Run(context.Background(), proj, script, Options{Segment: project.AllSegments})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count(worker.StatusSkipped) != 1 || sum.Count(worker.StatusDone) != 2 {
		t.Fatalf("summary = %s", sum)
	}
	if offsets["segment_01.mp4"] != 6 || offsets["segment_02.mp4"] != 1 {
		t.Errorf("offsets = %v", offsets)
	}

	sum, _ = e.Run(context.Background(), proj, script, Options{Segment: project.AllSegments})
	if sum.Count(worker.StatusCached) != 2 {
		t.Errorf("second run = %s", sum)
	}
}

func TestExtractFrameWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	if err := exec.Command("ffmpeg", "-y", "-f", "lavfi", "-i", "testsrc=size=320x240:rate=10:duration=3",
		"-pix_fmt", "yuv420p", clip).Run(); err != nil {
		t.Skipf("cannot build test clip: %v", err)
	}
	out := filepath.Join(dir, "frame.jpg")
	if err := ExtractFrame(context.Background(), clip, out, 1); err != nil {
		t.Fatalf("ExtractFrame: %v", err)
	}
	if !project.Exists(out) {
		t.Error("no frame written")
	}
}
