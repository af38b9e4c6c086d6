package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"segment-video-pipeline/config"
	"segment-video-pipeline/media"
	"segment-video-pipeline/project"
	"segment-video-pipeline/types"
	"segment-video-pipeline/worker"
)

type fakeSynth struct {
	mu    sync.Mutex
	calls []Request
	fail  map[string]bool
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(_ context.Context, req Request, out string) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fail[req.Text] {
		return errors.New("synthetic failure")
	}
	return os.WriteFile(out, []byte("ID3 "+req.Text), 0644)
}

func (f *fakeSynth) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func fakeProbe(string) (*media.Info, error) {
	return &media.Info{Duration: 2.5, AudioDuration: 2.5, HasAudio: true}, nil
}

func newTestProject(t *testing.T) (*project.Project, *types.Script) {
	t.Helper()
	p, err := project.Create(filepath.Join(t.TempDir(), "demo"), types.FormatShort)
	if err != nil {
		t.Fatal(err)
	}
	s := &types.Script{Title: "demo", Segments: []types.Segment{
		{ID: 0, Text: "one", Emotion: "excited"},
		{ID: 1, Text: "two"},
		{ID: 2, Text: "three"},
	}}
	return p, s
}

func TestRunCachesExistingAudio(t *testing.T) {
	proj, script := newTestProject(t)
	synth := &fakeSynth{}
	gen := New(config.Default(), synth).WithProber(fakeProbe)

	res, err := gen.Run(context.Background(), proj, script, Options{Segment: project.AllSegments})
	if err != nil {
		t.Fatal(err)
	}
	if synth.count() != 3 || res.Summary.Count(worker.StatusDone) != 3 {
		t.Fatalf("first run: calls=%d summary=%s", synth.count(), res.Summary)
	}
	if res.Total != 7.5 {
		t.Errorf("total = %v, want 7.5", res.Total)
	}

	res, err = gen.Run(context.Background(), proj, script, Options{Segment: project.AllSegments})
	if err != nil {
		t.Fatal(err)
	}
	if synth.count() != 3 {
		t.Errorf("second run called engine %d more times", synth.count()-3)
	}
	if res.Summary.Count(worker.StatusCached) != 3 {
		t.Errorf("second run summary = %s", res.Summary)
	}
}

func TestRunSingleSegmentForce(t *testing.T) {
	proj, script := newTestProject(t)
	synth := &fakeSynth{}
	gen := New(config.Default(), synth).WithProber(fakeProbe)
	ctx := context.Background()

	if _, err := gen.Run(ctx, proj, script, Options{Segment: project.AllSegments}); err != nil {
		t.Fatal(err)
	}
	before, _ := os.Stat(proj.AudioPath(0))

	res, err := gen.Run(ctx, proj, script, Options{Segment: 1, Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if synth.count() != 4 || synth.calls[3].Text != "two" {
		t.Fatalf("calls = %+v", synth.calls)
	}
	if len(res.Summary.Outcomes()) != 1 {
		t.Errorf("outcomes = %+v", res.Summary.Outcomes())
	}
	after, _ := os.Stat(proj.AudioPath(0))
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("segment 0 audio was touched by a segment 1 run")
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	proj, script := newTestProject(t)
	synth := &fakeSynth{fail: map[string]bool{"two": true}}
	gen := New(config.Default(), synth).WithProber(fakeProbe)

	res, err := gen.Run(context.Background(), proj, script, Options{Segment: project.AllSegments, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Summary.Failed(); len(got) != 1 || got[0] != 1 {
		t.Errorf("failed = %v", got)
	}
	if project.Exists(proj.AudioPath(1)) {
		t.Error("failed segment left an audio file")
	}
	entries, _ := os.ReadDir(filepath.Join(proj.Dir, project.AudioDir))
	for _, e := range entries {
		if e.Name()[0] == '.' {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestRunAppliesSpeedAndEmotion(t *testing.T) {
	proj, script := newTestProject(t)
	synth := &fakeSynth{}
	gen := New(config.Default(), synth).WithProber(fakeProbe)
	var factors []float64
	gen.speed = func(_ context.Context, in, out string, factor float64) error {
		factors = append(factors, factor)
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		return os.WriteFile(out, data, 0644)
	}

	if _, err := gen.Run(context.Background(), proj, script, Options{Segment: 0, Speed: 1.25, Voice: "narrator"}); err != nil {
		t.Fatal(err)
	}
	if len(factors) != 1 || factors[0] != 1.25 {
		t.Errorf("speed factors = %v", factors)
	}
	if synth.calls[0].Emotion != "excited" || synth.calls[0].Voice != "narrator" {
		t.Errorf("request = %+v", synth.calls[0])
	}
	if !project.Exists(proj.AudioPath(0)) {
		t.Error("audio not written")
	}
}

func TestDurationsReportsMissing(t *testing.T) {
	proj, script := newTestProject(t)
	os.WriteFile(proj.AudioPath(0), []byte("x"), 0644)
	os.WriteFile(proj.AudioPath(2), []byte("x"), 0644)
	durs, missing, err := Durations(proj, script, fakeProbe)
	if err != nil {
		t.Fatal(err)
	}
	if len(durs) != 2 || len(missing) != 1 || missing[0] != 1 {
		t.Errorf("durations=%v missing=%v", durs, missing)
	}
}

func TestAtempoChain(t *testing.T) {
	tests := []struct {
		in   float64
		want []float64
	}{
		{1.25, []float64{1.25}},
		{3, []float64{2, 1.5}},
		{0.25, []float64{0.5, 0.5}},
		{2, []float64{2}},
	}
	for _, tt := range tests {
		got := AtempoChain(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("AtempoChain(%v) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("AtempoChain(%v) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
	if AtempoChain(0) != nil {
		t.Error("zero factor should yield no filters")
	}
}

func TestCommandSynthArgs(t *testing.T) {
	edge := &CommandSynth{Command: "edge-tts", DefaultVoice: "en-US-GuyNeural"}
	name, args := edge.Args(Request{Text: "hi"}, "/tmp/o.mp3")
	if name != "edge-tts" || args[1] != "en-US-GuyNeural" || args[5] != "/tmp/o.mp3" {
		t.Errorf("edge-tts argv = %s %v", name, args)
	}

	py := &CommandSynth{Command: "tts.py"}
	name, args = py.Args(Request{Text: "hi"}, "/tmp/o.mp3")
	if name != "python3" || args[0] != "tts.py" {
		t.Errorf("python argv = %s %v", name, args)
	}

	custom := &CommandSynth{Command: "say-it --fast"}
	name, args = custom.Args(Request{Text: "hi", Voice: "v2"}, "/tmp/o.mp3")
	want := []string{"--fast", "--text", "hi", "--output", "/tmp/o.mp3", "--voice", "v2"}
	if name != "say-it" || len(args) != len(want) {
		t.Fatalf("custom argv = %s %v", name, args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestCommandSynthRetries(t *testing.T) {
	c := NewCommandSynth("say-it", "")
	c.Backoff = func(int) time.Duration { return 0 }
	var calls int
	c.run = func(_ context.Context, name string, args ...string) error {
		calls++
		if calls < 3 {
			return errors.New("exit status 1")
		}
		return nil
	}
	if err := c.Synthesize(context.Background(), Request{Text: "hi"}, "/tmp/o.mp3"); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestCommandSynthBackoffHonoursCancel(t *testing.T) {
	c := NewCommandSynth("say-it", "")
	c.Backoff = func(int) time.Duration { return time.Hour }
	c.run = func(context.Context, string, ...string) error { return errors.New("exit status 1") }

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	done := make(chan error, 1)
	go func() { done <- c.Synthesize(ctx, Request{Text: "hi"}, "/tmp/o.mp3") }()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("backoff ignored cancellation")
	}
}

func TestSettingsFor(t *testing.T) {
	neutral := settingsFor("", 0.5, 0.75)
	if neutral.Stability != 0.5 || neutral.SimilarityBoost != 0.75 || neutral.Style != 0 {
		t.Errorf("neutral = %+v", neutral)
	}
	excited := settingsFor("Excited", 0.5, 0.75)
	if excited.Stability >= 0.5 || !excited.UseSpeakerBoost {
		t.Errorf("excited = %+v", excited)
	}
	calm := settingsFor("calm", 0.9, 0.75)
	if calm.Stability != 1 {
		t.Errorf("calm stability not clamped: %+v", calm)
	}
}
