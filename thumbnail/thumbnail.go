package thumbnail

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"segment-video-pipeline/config"
	"segment-video-pipeline/project"
	"segment-video-pipeline/types"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("stage", "thumbnail")

const (
	Width  = 1280
	Height = 720

	bandHeight = 240
	margin     = 60
	fontSize   = 72
)

// Options are the thumbnail flags from the command line.
type Options struct {
	Segment int    // preview frame source; AllSegments means the first segment
	Font    string // overrides paths.font_file
	Title   string // overrides the script title
	Force   bool
}

// Renderer draws output/thumbnail.jpg from a preview frame and the title.
type Renderer struct {
	cfg *config.Config
}

// New creates a Renderer.
func New(cfg *config.Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// Run draws output/thumbnail.jpg and returns its path. An existing
// thumbnail is kept unless opts.Force is set.
func (r *Renderer) Run(proj *project.Project, script *types.Script, opts Options) (string, error) {
	out := proj.ThumbnailPath()
	if !opts.Force && project.Exists(out) {
		log.Infof("%s exists (use --force to redraw)", out)
		return out, nil
	}
	if opts.Segment == project.AllSegments && len(script.Segments) > 0 {
		opts.Segment = script.Segments[0].ID
	}
	if _, ok := script.Segment(opts.Segment); !ok {
		return "", errors.Errorf("no segment %d", opts.Segment)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", errors.Wrap(err, "create output dir")
	}

	var frame image.Image
	if src := proj.PreviewPath(opts.Segment); project.Exists(src) {
		img, err := gg.LoadImage(src)
		if err != nil {
			return "", errors.Wrapf(err, "load %s", src)
		}
		frame = img
	} else {
		log.Warnf("no preview for segment %d, drawing on a plain background", opts.Segment)
	}

	font := opts.Font
	if font == "" {
		font = r.cfg.Paths.FontFile
	}
	title := opts.Title
	if title == "" {
		title = script.Title
	}
	if err := Render(frame, title, font, out); err != nil {
		return "", err
	}
	log.Infof("thumbnail written to %s", out)
	return out, nil
}

// Render draws frame scaled to cover the canvas with title on a shaded band
// along the bottom, and saves it as JPEG. A nil frame gives a dark canvas.
func Render(frame image.Image, title, fontPath, out string) error {
	dc := gg.NewContext(Width, Height)
	dc.SetColor(color.RGBA{R: 0x11, G: 0x11, B: 0x11, A: 0xff})
	dc.Clear()

	if frame != nil {
		b := frame.Bounds()
		scale := max(float64(Width)/float64(b.Dx()), float64(Height)/float64(b.Dy()))
		dc.Push()
		dc.Scale(scale, scale)
		dc.DrawImageAnchored(frame, int(Width/2/scale), int(Height/2/scale), 0.5, 0.5)
		dc.Pop()
	}

	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawRectangle(0, Height-bandHeight, Width, bandHeight)
	dc.Fill()

	if fontPath != "" {
		if err := dc.LoadFontFace(fontPath, fontSize); err != nil {
			log.Warnf("font %s: %v, using built-in face", fontPath, err)
		}
	}

	text := strings.ToUpper(strings.TrimSpace(title))
	cx, cy := float64(Width)/2, float64(Height)-bandHeight/2
	wrap := float64(Width - 2*margin)

	// drop shadow
	dc.SetRGB(0, 0, 0)
	dc.DrawStringWrapped(text, cx+3, cy+3, 0.5, 0.5, wrap, 1.15, gg.AlignCenter)
	dc.SetRGB(1, 1, 1)
	dc.DrawStringWrapped(text, cx, cy, 0.5, 0.5, wrap, 1.15, gg.AlignCenter)

	if err := gg.SaveJPG(out, dc.Image(), 90); err != nil {
		return errors.Wrap(err, "save thumbnail")
	}
	return nil
}
