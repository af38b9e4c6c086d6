package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeIn(t, "", args...)
	return out, err
}

// executeIn runs each line as a separate invocation against a fresh projects
// dir, with extra appended to config.yaml.
func executeIn(t *testing.T, extra string, args ...string) (string, string, error) {
	t.Helper()
	dir := t.TempDir()
	projects := filepath.Join(dir, "projects")
	cfg := filepath.Join(dir, "config.yaml")
	os.WriteFile(cfg, []byte("paths:\n  projects_dir: "+projects+"\n"+extra), 0644)

	var out bytes.Buffer
	var last error
	for _, line := range args {
		cmd := newRootCommand()
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--config", cfg}, strings.Fields(line)...))
		last = cmd.Execute()
	}
	return out.String(), projects, last
}

func TestNewAndStatus(t *testing.T) {
	out, err := execute(t, "new demo --format longform", "status --project demo")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "demo (longform, 2 segments)") {
		t.Errorf("status output:\n%s", out)
	}
	if !strings.Contains(out, "Opening line of narration.") {
		t.Errorf("status missing segment text:\n%s", out)
	}
}

func TestStageCommandsNeedProject(t *testing.T) {
	for _, sub := range []string{"audio", "phonetics", "footage", "preview", "assemble", "thumbnail", "upload", "status", "run"} {
		if _, err := execute(t, sub); err == nil {
			t.Errorf("%s without --project succeeded", sub)
		}
	}
}

func TestStagePreconditions(t *testing.T) {
	if _, err := execute(t, "new demo", "assemble --project demo"); err == nil || !strings.Contains(err.Error(), "missing audio") {
		t.Errorf("assemble without audio: %v", err)
	}
	if _, err := execute(t, "new demo", "upload --project demo --dry-run"); err == nil {
		t.Error("upload without final video succeeded")
	}
	if _, err := execute(t, "new demo", "footage --project demo --url https://youtu.be/x"); err == nil {
		t.Error("--url without --segment accepted")
	}
	if _, err := execute(t, "status --project nope"); err == nil {
		t.Error("status of unknown project succeeded")
	}
	if _, err := execute(t, "new demo --format vertical"); err == nil {
		t.Error("bad --format accepted")
	}
}

func TestPhoneticsCommand(t *testing.T) {
	extra := "audio:\n  phonetics:\n    narration: nar-RAY-shun\n"
	out, projects, err := executeIn(t, extra, "new demo", "phonetics --project demo --dry-run")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "segment 0: narration -> nar-RAY-shun") {
		t.Errorf("output:\n%s", out)
	}
	script, _ := os.ReadFile(filepath.Join(projects, "demo", "script.json"))
	if strings.Contains(string(script), "text_phonetic") {
		t.Error("--dry-run saved script.json")
	}

	_, projects, err = executeIn(t, extra, "new demo", "phonetics --project demo")
	if err != nil {
		t.Fatal(err)
	}
	script, _ = os.ReadFile(filepath.Join(projects, "demo", "script.json"))
	if !strings.Contains(string(script), `"text_phonetic": "Opening line of nar-RAY-shun."`) {
		t.Errorf("script.json:\n%s", script)
	}
	if !strings.Contains(string(script), `"text": "Opening line of narration."`) {
		t.Error("caption text was rewritten")
	}
}
