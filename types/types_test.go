package types

import (
	"encoding/json"
	"strings"
	"testing"
)

const sampleScript = `{
  "title": "Monaco 1988",
  "duration_target": 60,
  "producer_notes": {"draft": 3},
  "references": ["FIA archive", {"title": "Race report", "url": "https://example.com/r", "source": "Motorsport"}],
  "segments": [
    {"id": 0, "text": "Senna leads.", "footage_query": "senna monaco 1988", "footage_start": "1:05", "camera": "onboard"},
    {"id": 1, "text": "Then the wall.", "footage_start": 12.5, "section": "Crash"}
  ]
}`

func TestScriptPreservesUnknownKeys(t *testing.T) {
	var s Script
	if err := json.Unmarshal([]byte(sampleScript), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := float64(s.Segments[0].FootageStart); got != 65 {
		t.Errorf("footage_start = %v, want 65", got)
	}
	if got := float64(s.Segments[1].FootageStart); got != 12.5 {
		t.Errorf("footage_start = %v, want 12.5", got)
	}

	s.Segments[0].Footage = "segment_00.mp4"
	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"producer_notes":{"draft":3}`, `"camera":"onboard"`, `"footage":"segment_00.mp4"`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
}

func TestReferenceForms(t *testing.T) {
	var s Script
	if err := json.Unmarshal([]byte(sampleScript), &s); err != nil {
		t.Fatal(err)
	}
	if len(s.References) != 2 {
		t.Fatalf("references = %d", len(s.References))
	}
	if s.References[0].Title != "FIA archive" {
		t.Errorf("bare string reference = %+v", s.References[0])
	}
	if got := s.References[1].Label(); got != "Race report (Motorsport)" {
		t.Errorf("Label = %q", got)
	}
}

func TestIsLongform(t *testing.T) {
	tests := []struct {
		name   string
		script Script
		want   bool
	}{
		{"default short", Script{Segments: []Segment{{Text: "a"}}}, false},
		{"section implies longform", Script{Segments: []Segment{{Text: "a", Section: "Intro"}}}, true},
		{"explicit short wins", Script{Format: FormatShort, Segments: []Segment{{Section: "Intro"}}}, false},
		{"explicit longform", Script{Format: FormatLongform}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.script.IsLongform(); got != tt.want {
				t.Errorf("IsLongform = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := map[string]float64{"": 0, "90": 90, "1:30": 90, "0:01:30": 90, "2:03.5": 123.5}
	for in, want := range tests {
		got, err := ParseTimestamp(in)
		if err != nil || got != want {
			t.Errorf("ParseTimestamp(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseTimestamp("1:xx"); err == nil {
		t.Error("expected error for 1:xx")
	}
}
