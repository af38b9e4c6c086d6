package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"segment-video-pipeline/config"
	"segment-video-pipeline/media"
	"segment-video-pipeline/project"
	"segment-video-pipeline/types"
	"segment-video-pipeline/worker"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("stage", "audio")

// Options are the per-run overrides from the command line.
type Options struct {
	Voice      string
	Speed      float64
	Workers    int
	Sequential bool
	Segment    int
	Force      bool
}

// Result reports what the stage did.
type Result struct {
	Summary   *worker.Summary
	Durations map[int]float64
	Total     float64
}

// Generator voices every segment of a script.
type Generator struct {
	cfg       *config.Config
	synth     Synthesizer
	phonetics *Phonetics
	probe     media.Prober
	speed     func(ctx context.Context, in, out string, factor float64) error
}

// New creates a Generator around synth.
func New(cfg *config.Config, synth Synthesizer) *Generator {
	return &Generator{
		cfg:       cfg,
		synth:     synth,
		phonetics: NewPhonetics(cfg.Audio.Phonetics),
		probe:     media.Probe,
		speed:     ApplySpeed,
	}
}

// WithProber swaps the duration probe.
func (g *Generator) WithProber(p media.Prober) *Generator {
	g.probe = p
	return g
}

// Run writes audio/segment_NN.mp3 for each selected segment. Existing files
// are reused without calling the engine unless opts.Force is set.
func (g *Generator) Run(ctx context.Context, proj *project.Project, script *types.Script, opts Options) (*Result, error) {
	if err := os.MkdirAll(filepath.Join(proj.Dir, project.AudioDir), 0755); err != nil {
		return nil, errors.Wrap(err, "create audio dir")
	}
	segs, err := project.Select(script, opts.Segment)
	if err != nil {
		return nil, err
	}

	voice := opts.Voice
	if voice == "" {
		voice = script.Voice
	}
	speed := opts.Speed
	if speed == 0 {
		speed = g.cfg.Audio.Speed
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = g.cfg.Audio.Workers
	}
	if opts.Sequential {
		workers = 1
	}
	if c, ok := g.synth.(workerCap); ok && c.MaxWorkers() > 0 && workers > c.MaxWorkers() {
		log.Infof("%s allows %d concurrent requests", g.synth.Name(), c.MaxWorkers())
		workers = c.MaxWorkers()
	}

	log.Infof("generating audio for %d segment(s) with %s, %d worker(s)", len(segs), g.synth.Name(), workers)

	res := &Result{Durations: make(map[int]float64)}
	var mu sync.Mutex
	tasks := make([]worker.Task, len(segs))
	for i, seg := range segs {
		seg := seg
		tasks[i] = worker.Task{ID: seg.ID, Run: func(ctx context.Context) (worker.Status, string, error) {
			st, dur, err := g.segment(ctx, proj, seg, voice, speed, opts.Force)
			if err != nil {
				log.WithField("segment", seg.ID).Errorf("failed: %v", err)
				return st, "", err
			}
			mu.Lock()
			res.Durations[seg.ID] = dur
			mu.Unlock()
			log.WithField("segment", seg.ID).Infof("%s (%.1fs)", st, dur)
			return st, fmt.Sprintf("%.1fs", dur), nil
		}}
	}
	res.Summary = worker.Run(ctx, workers, tasks)
	for _, d := range res.Durations {
		res.Total += d
	}

	log.Infof("generated %d | cached %d | failed %d | total %.1fs",
		res.Summary.Count(worker.StatusDone), res.Summary.Count(worker.StatusCached),
		res.Summary.Count(worker.StatusFailed), res.Total)
	return res, nil
}

func (g *Generator) segment(ctx context.Context, proj *project.Project, seg *types.Segment, voice string, speed float64, force bool) (worker.Status, float64, error) {
	out := proj.AudioPath(seg.ID)
	if !force && project.Exists(out) {
		dur, err := g.duration(out)
		return worker.StatusCached, dur, err
	}

	tag := uuid.NewString()[:8]
	tmp := filepath.Join(filepath.Dir(out), fmt.Sprintf(".%s.%s.mp3", filepath.Base(out), tag))
	defer os.Remove(tmp)

	req := Request{Text: g.spoken(seg), Voice: voice, Emotion: seg.Emotion}
	if err := g.synth.Synthesize(ctx, req, tmp); err != nil {
		return worker.StatusFailed, 0, err
	}
	if !project.Exists(tmp) {
		return worker.StatusFailed, 0, errors.New("engine produced no audio")
	}

	if speed > 0 && speed != 1.0 {
		timed := filepath.Join(filepath.Dir(out), fmt.Sprintf(".%s.%s.speed.mp3", filepath.Base(out), tag))
		defer os.Remove(timed)
		if err := g.speed(ctx, tmp, timed, speed); err != nil {
			return worker.StatusFailed, 0, errors.Wrap(err, "apply speed")
		}
		tmp = timed
	}

	if err := os.Rename(tmp, out); err != nil {
		return worker.StatusFailed, 0, errors.Wrap(err, "move audio into place")
	}
	dur, err := g.duration(out)
	return worker.StatusDone, dur, err
}

// spoken prefers the script's text_phonetic, then the configured phonetic
// map, then the caption text.
func (g *Generator) spoken(seg *types.Segment) string {
	if spoken := seg.SpokenText(); spoken != seg.Text {
		return spoken
	}
	text, reps := g.phonetics.Apply(seg.Text)
	if len(reps) > 0 {
		log.WithField("segment", seg.ID).Debugf("%d phonetic replacement(s)", len(reps))
	}
	return text
}

func (g *Generator) duration(path string) (float64, error) {
	info, err := g.probe(path)
	if err != nil {
		return 0, errors.Wrap(err, "measure duration")
	}
	return info.Duration, nil
}

// Durations measures existing audio for every segment. Missing files are
// returned in missing; they are not an error here.
func Durations(proj *project.Project, script *types.Script, probe media.Prober) (map[int]float64, []int, error) {
	out := make(map[int]float64, len(script.Segments))
	var missing []int
	for _, seg := range script.Segments {
		path := proj.AudioPath(seg.ID)
		if !project.Exists(path) {
			missing = append(missing, seg.ID)
			continue
		}
		info, err := probe(path)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "segment %d audio", seg.ID)
		}
		out[seg.ID] = info.Duration
	}
	return out, missing, nil
}
