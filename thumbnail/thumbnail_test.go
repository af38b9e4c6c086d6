package thumbnail

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"segment-video-pipeline/config"
	"segment-video-pipeline/project"
	"segment-video-pipeline/types"
)

func decode(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func TestRunFromPreview(t *testing.T) {
	proj, err := project.Create(filepath.Join(t.TempDir(), "demo"), types.FormatShort)
	if err != nil {
		t.Fatal(err)
	}
	frame := image.NewRGBA(image.Rect(0, 0, 108, 192))
	for y := 0; y < 192; y++ {
		for x := 0; x < 108; x++ {
			frame.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	f, _ := os.Create(proj.PreviewPath(0))
	png.Encode(f, frame)
	f.Close()

	script := &types.Script{Title: "Red car wins", Segments: []types.Segment{{ID: 0, Text: "x"}}}
	r := New(config.Default())
	out, err := r.Run(proj, script, Options{Font: filepath.Join(t.TempDir(), "missing.ttf")})
	if err != nil {
		t.Fatal(err)
	}
	img := decode(t, out)
	if b := img.Bounds(); b.Dx() != Width || b.Dy() != Height {
		t.Errorf("size = %v", b)
	}
	// top of the frame is untouched by the band
	if r, g, _, _ := img.At(Width/2, 40).RGBA(); r>>8 < 150 || g>>8 > 60 {
		t.Errorf("expected red frame at top, got r=%d g=%d", r>>8, g>>8)
	}

	if _, err := r.Run(proj, script, Options{Segment: 4}); err != nil {
		t.Errorf("cached thumbnail should short-circuit: %v", err)
	}
	if _, err := r.Run(proj, script, Options{Segment: 4, Force: true}); err == nil {
		t.Error("unknown segment accepted")
	}
}

func TestRenderWithoutFrame(t *testing.T) {
	out := filepath.Join(t.TempDir(), "thumb.jpg")
	if err := Render(nil, "No footage yet", "", out); err != nil {
		t.Fatal(err)
	}
	if b := decode(t, out).Bounds(); b.Dx() != Width {
		t.Errorf("size = %v", b)
	}
}
