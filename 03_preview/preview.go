package preview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"segment-video-pipeline/config"
	"segment-video-pipeline/media"
	"segment-video-pipeline/project"
	"segment-video-pipeline/types"
	"segment-video-pipeline/worker"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

var log = logrus.WithField("stage", "preview")

// Options are the preview flags from the command line.
type Options struct {
	Segment    int
	Workers    int
	Sequential bool
	Force      bool
}

// Extractor grabs one frame per segment so footage can be checked by eye.
type Extractor struct {
	cfg     *config.Config
	extract func(ctx context.Context, in, out string, at float64) error
}

// New creates an Extractor that runs ffmpeg.
func New(cfg *config.Config) *Extractor {
	return &Extractor{cfg: cfg, extract: ExtractFrame}
}

// Offset is where in the footage file the preview frame is taken. Trimmed
// footage already starts at footage_start.
func (e *Extractor) Offset(seg *types.Segment) float64 {
	if seg.FootageTrimmed {
		return e.cfg.Preview.OffsetSec
	}
	return float64(seg.FootageStart) + e.cfg.Preview.OffsetSec
}

// Run writes previews/segment_NN.jpg for every selected segment with
// footage.
func (e *Extractor) Run(ctx context.Context, proj *project.Project, script *types.Script, opts Options) (*worker.Summary, error) {
	if err := os.MkdirAll(filepath.Join(proj.Dir, project.PreviewDir), 0755); err != nil {
		return nil, errors.Wrap(err, "create previews dir")
	}
	segs, err := project.Select(script, opts.Segment)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = e.cfg.Preview.Workers
	}
	if opts.Sequential {
		workers = 1
	}

	tasks := make([]worker.Task, len(segs))
	for i, seg := range segs {
		seg := seg
		tasks[i] = worker.Task{ID: seg.ID, Run: func(ctx context.Context) (worker.Status, string, error) {
			in := proj.FootagePath(seg)
			out := proj.PreviewPath(seg.ID)
			if !project.Exists(in) {
				return worker.StatusSkipped, "no footage", nil
			}
			if !opts.Force && project.Exists(out) {
				return worker.StatusCached, "", nil
			}
			at := e.Offset(seg)
			if err := e.extract(ctx, in, out, at); err != nil {
				log.WithField("segment", seg.ID).Errorf("frame at %.1fs: %v", at, err)
				return worker.StatusFailed, "", err
			}
			return worker.StatusDone, fmt.Sprintf("frame at %.1fs", at), nil
		}}
	}
	sum := worker.Run(ctx, workers, tasks)
	log.Infof("previews: %s", sum)
	return sum, nil
}

// ExtractFrame writes a single JPEG taken at seconds into in.
func ExtractFrame(ctx context.Context, in, out string, at float64) error {
	stream := ffmpeg.Input(in, ffmpeg.KwArgs{"ss": media.Secs(at)}).
		Output(out, ffmpeg.KwArgs{"frames:v": 1, "q:v": 2})
	if err := media.RunStream(ctx, stream); err != nil {
		return err
	}
	if !project.Exists(out) {
		return errors.Errorf("no frame at %.1fs (footage shorter?)", at)
	}
	return nil
}
