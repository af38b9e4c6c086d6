package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	audio "segment-video-pipeline/01_audio"
	"segment-video-pipeline/config"
	"segment-video-pipeline/media"
	"segment-video-pipeline/project"
	"segment-video-pipeline/types"
	"segment-video-pipeline/worker"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("stage", "assemble")

// Options are the assemble flags from the command line.
type Options struct {
	Segment    int
	Workers    int
	Sequential bool
	Encoder    string
	Force      bool
	NoMusic    bool
	NoCredits  bool   // long-form only: skip the outro clip
	Resolution string // long-form only: hd | 4k
	Captions   bool   // burn captions into long-form
}

// Result reports the finished video.
type Result struct {
	Summary  *worker.Summary
	Final    string
	Captions string
	Duration float64
	Music    bool
	Outro    bool
}

// Assembler renders each segment and joins them into output/final.mp4.
type Assembler struct {
	cfg   *config.Config
	probe media.Prober
	run   func(ctx context.Context, args []string) error
}

// New creates an Assembler that runs the ffmpeg and ffprobe binaries.
func New(cfg *config.Config) *Assembler {
	return &Assembler{
		cfg:   cfg,
		probe: media.Probe,
		run: func(ctx context.Context, args []string) error {
			return media.Run(ctx, "ffmpeg", args...)
		},
	}
}

// Run renders the selected segments, joins every segment render in script
// order and writes output/final.mp4. The final file is only replaced once
// the joined video passes the duration check.
func (a *Assembler) Run(ctx context.Context, proj *project.Project, script *types.Script, opts Options) (*Result, error) {
	durations, missing, err := audio.Durations(proj, script, a.probe)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, errors.Errorf("missing audio for segment(s) %v; run the audio stage first", missing)
	}
	profile, err := ProfileFor(a.cfg, script, opts.Resolution)
	if err != nil {
		return nil, err
	}
	encName := lo.Ternary(opts.Encoder != "", opts.Encoder, a.cfg.Video.Encoder)
	enc, err := EncoderArgs(encName, a.cfg.Video.Preset, profile)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{project.TempDir, project.OutputDir} {
		if err := os.MkdirAll(filepath.Join(proj.Dir, dir), 0755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}

	segs, err := project.Select(script, opts.Segment)
	if err != nil {
		return nil, err
	}
	// A single-segment run re-renders only that segment.
	force := opts.Force || opts.Segment != project.AllSegments
	vertical := !script.IsLongform()
	captions := vertical || opts.Captions

	workers := lo.Ternary(opts.Workers > 0, opts.Workers, a.cfg.Video.Workers)
	if opts.Sequential {
		workers = 1
	}
	log.Infof("rendering %d segment(s) at %dx%d with %s (%d workers)", len(segs), profile.Width, profile.Height, encName, workers)

	tasks := lo.Map(segs, func(seg *types.Segment, _ int) worker.Task {
		return worker.Task{ID: seg.ID, Run: func(ctx context.Context) (worker.Status, string, error) {
			return a.renderSegment(ctx, proj, seg, durations[seg.ID], profile, enc, vertical, captions, force)
		}}
	})
	sum := worker.Run(ctx, workers, tasks)
	log.Infof("segments: %s", sum)
	if err := sum.Err(); err != nil {
		return &Result{Summary: sum}, err
	}

	renders := make([]string, 0, len(script.Segments))
	var absent []int
	for _, seg := range script.Segments {
		r := proj.SegmentRenderPath(seg.ID)
		if !project.Exists(r) {
			absent = append(absent, seg.ID)
		}
		renders = append(renders, r)
	}
	if len(absent) > 0 {
		return &Result{Summary: sum}, errors.Errorf("segment render(s) %v missing; assemble without --segment first", absent)
	}

	res := &Result{Summary: sum, Final: proj.FinalPath()}
	total := lo.Sum(lo.Values(durations))
	if script.IsLongform() && !opts.NoCredits {
		outro, dur, err := a.renderOutro(ctx, proj, profile, enc)
		switch {
		case err != nil:
			log.Warnf("outro failed: %v, continuing without credits", err)
		case outro != "":
			renders = append(renders, outro)
			total += dur
			res.Outro = true
		}
	}

	joined := filepath.Join(proj.Dir, project.TempDir, "joined.mp4")
	if err := a.concat(ctx, proj, renders, joined, enc, profile); err != nil {
		return res, err
	}

	staged := joined
	if !opts.NoMusic && project.Exists(profile.Music) {
		mixed := filepath.Join(proj.Dir, project.TempDir, "mixed.mp4")
		args := MusicArgs(joined, profile.Music, mixed, total, profile.MusicVolume, a.cfg.Video.FadeSec, profile.AudioBitrate)
		if err := a.run(ctx, args); err != nil {
			return res, errors.Wrap(err, "mix background music")
		}
		staged = mixed
		res.Music = true
		log.Infof("mixed music %s at volume %.2f", filepath.Base(profile.Music), profile.MusicVolume)
	} else if !opts.NoMusic {
		log.Warnf("no background music at %s, continuing without", profile.Music)
	}

	info, err := a.probe(staged)
	if err != nil {
		return res, errors.Wrap(err, "probe joined video")
	}
	res.Duration = info.Duration
	if err := CheckDurations(info, a.cfg.Video.ToleranceSec); err != nil {
		os.Remove(staged)
		// an older final.mp4 no longer matches the segments
		if rmErr := os.Remove(res.Final); rmErr == nil {
			log.Warnf("removed stale %s", res.Final)
		}
		return res, err
	}
	if err := os.Rename(staged, res.Final); err != nil {
		return res, errors.Wrap(err, "move final video")
	}

	if script.IsLongform() {
		res.Captions = proj.CaptionsPath()
		if err := WriteSRT(res.Captions, script, durations); err != nil {
			return res, err
		}
		log.Infof("captions written to %s", res.Captions)
	}
	log.Infof("final video %s (%.1fs, narration %.1fs)", res.Final, info.Duration, total)
	return res, nil
}

func (a *Assembler) renderSegment(ctx context.Context, proj *project.Project, seg *types.Segment, duration float64, profile config.Profile, enc []string, vertical, captions, force bool) (worker.Status, string, error) {
	out := proj.SegmentRenderPath(seg.ID)
	audioPath := proj.AudioPath(seg.ID)
	footage := proj.FootagePath(seg)
	hasFootage := project.Exists(footage)

	deps := []string{audioPath, proj.ScriptPath()}
	if hasFootage {
		deps = append(deps, footage)
	}
	if !force && !Stale(out, deps...) {
		return worker.StatusCached, "", nil
	}

	plan := SegmentPlan{
		Audio:      audioPath,
		Duration:   duration,
		Vertical:   vertical,
		Profile:    profile,
		Encoder:    enc,
		Background: a.cfg.Video.Background,
		BlurSigma:  a.cfg.Video.BlurSigma,
		FontFile:   a.cfg.Paths.FontFile,
		FontSize:   a.cfg.Video.CaptionSize,
		Output:     out,
	}
	detail := "footage"
	if hasFootage {
		plan.Footage = footage
		if !seg.FootageTrimmed {
			plan.FootageStart = float64(seg.FootageStart)
		}
		info, err := a.probe(footage)
		if err != nil {
			return worker.StatusFailed, "", errors.Wrap(err, "probe footage")
		}
		usable := info.Duration - plan.FootageStart
		if usable < duration {
			if plan.FootageStart > 0 && usable <= 0 {
				return worker.StatusFailed, "", errors.Errorf("footage_start %.1fs is past the end of %.1fs footage", plan.FootageStart, info.Duration)
			}
			plan.Loop = true
			detail = "looped footage"
		}
	} else {
		detail = "no footage, solid background"
		log.WithField("segment", seg.ID).Warn(detail)
	}

	if captions && seg.Text != "" {
		plan.CaptionFile = filepath.Join(proj.Dir, project.TempDir, project.SegmentFile(seg.ID, "txt"))
		text := WrapCaption(seg.Text, a.cfg.Video.CaptionChars)
		if err := os.WriteFile(plan.CaptionFile, []byte(text), 0644); err != nil {
			return worker.StatusFailed, "", errors.Wrap(err, "write caption")
		}
	}

	start := time.Now()
	if err := a.run(ctx, SegmentArgs(plan)); err != nil {
		os.Remove(out)
		return worker.StatusFailed, "", err
	}
	if !project.Exists(out) {
		return worker.StatusFailed, "", errors.New("ffmpeg produced no output")
	}
	return worker.StatusDone, fmt.Sprintf("%s, %.1fs in %s", detail, duration, time.Since(start).Round(time.Millisecond)), nil
}

func (a *Assembler) concat(ctx context.Context, proj *project.Project, renders []string, out string, enc []string, profile config.Profile) error {
	list := filepath.Join(proj.Dir, project.TempDir, "concat.txt")
	if err := writeList(list, renders); err != nil {
		return err
	}
	log.Infof("joining %d segment(s)", len(renders))
	if err := a.run(ctx, ConcatArgs(list, out, enc, profile.AudioBitrate)); err != nil {
		return errors.Wrap(err, "concatenate segments")
	}
	if !project.Exists(out) {
		return errors.New("concatenation produced no output")
	}
	return nil
}

// Stale reports whether out is missing or older than any existing input.
func Stale(out string, inputs ...string) bool {
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return true
	}
	for _, in := range inputs {
		st, err := os.Stat(in)
		if err == nil && st.ModTime().After(info.ModTime()) {
			return true
		}
	}
	return false
}
