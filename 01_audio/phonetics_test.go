package audio

import (
	"context"
	"testing"

	"segment-video-pipeline/config"
	"segment-video-pipeline/project"
	"segment-video-pipeline/types"
)

var testPhonetics = map[string]string{
	"verstappen":     "Fur-STAH-pn",
	"max verstappen": "Max Fur-STAH-pn",
	"leclerc":        "Luh-CLAIR",
	"sainz":          "SINES",
}

func TestPhoneticsApply(t *testing.T) {
	p := NewPhonetics(testPhonetics)
	got, reps := p.Apply("MAX VERSTAPPEN passes Leclerc, then Verstappen pits.")
	want := "Max Fur-STAH-pn passes Luh-CLAIR, then Fur-STAH-pn pits."
	if got != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}
	if len(reps) != 3 || reps[0].Found != "MAX VERSTAPPEN" {
		t.Errorf("replacements = %+v", reps)
	}

	if got, reps := p.Apply("Sainzy is not a driver"); got != "Sainzy is not a driver" || len(reps) != 0 {
		t.Errorf("partial word replaced: %q", got)
	}
	if got, _ := NewPhonetics(nil).Apply("Leclerc"); got != "Leclerc" {
		t.Errorf("empty map changed text: %q", got)
	}
}

func TestPhoneticsAnnotate(t *testing.T) {
	script := &types.Script{Segments: []types.Segment{
		{ID: 0, Text: "Sainz leads."},
		{ID: 1, Text: "Rain arrives.", TextPhonetic: "hand written"},
	}}
	reps := NewPhonetics(testPhonetics).Annotate(script)
	if script.Segments[0].TextPhonetic != "SINES leads." || len(reps[0]) != 1 {
		t.Errorf("segment 0 = %+v", script.Segments[0])
	}
	if script.Segments[1].TextPhonetic != "hand written" {
		t.Errorf("segment 1 overwritten: %+v", script.Segments[1])
	}
	if script.Segments[0].Text != "Sainz leads." {
		t.Error("caption text changed")
	}
}

func TestRunSpeaksPhoneticText(t *testing.T) {
	proj, _ := newTestProject(t)
	script := &types.Script{Title: "demo", Segments: []types.Segment{
		{ID: 0, Text: "Leclerc on pole"},
		{ID: 1, Text: "Sainz second", TextPhonetic: "Carlos SINES second"},
		{ID: 2, Text: "rain later"},
	}}
	cfg := config.Default()
	cfg.Audio.Phonetics = testPhonetics
	synth := &fakeSynth{}
	if _, err := New(cfg, synth).WithProber(fakeProbe).Run(context.Background(), proj, script, Options{Segment: project.AllSegments, Sequential: true}); err != nil {
		t.Fatal(err)
	}
	spoken := map[string]bool{}
	for _, c := range synth.calls {
		spoken[c.Text] = true
	}
	for _, want := range []string{"Luh-CLAIR on pole", "Carlos SINES second", "rain later"} {
		if !spoken[want] {
			t.Errorf("engine never asked to speak %q (got %v)", want, synth.calls)
		}
	}
}
