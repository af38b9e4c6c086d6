package assemble

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"segment-video-pipeline/types"

	"github.com/pkg/errors"
)

const srtLineWidth = 42

// BuildSRT lays segment text end to end using measured narration lengths.
func BuildSRT(script *types.Script, durations map[int]float64) string {
	var b strings.Builder
	var elapsed float64
	cue := 0
	for _, seg := range script.Segments {
		d := durations[seg.ID]
		if d <= 0 {
			continue
		}
		cue++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", cue, srtTime(elapsed), srtTime(elapsed+d), WrapCaption(seg.Text, srtLineWidth))
		elapsed += d
	}
	return b.String()
}

func srtTime(sec float64) string {
	ms := int64(sec*1000 + 0.5)
	h := ms / 3_600_000
	m := ms % 3_600_000 / 60_000
	s := ms % 60_000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// WriteSRT writes captions and checks the result looks like an SRT file.
func WriteSRT(path string, script *types.Script, durations map[int]float64) error {
	if err := os.WriteFile(path, []byte(BuildSRT(script, durations)), 0644); err != nil {
		return errors.Wrap(err, "write captions")
	}
	return ValidateSRT(path)
}

// ValidateSRT checks that the SRT file is non-empty and well formed enough
// to carry at least one cue.
func ValidateSRT(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if lines < 3 {
		return errors.Errorf("SRT file appears empty or malformed (%d lines)", lines)
	}
	return scanner.Err()
}
