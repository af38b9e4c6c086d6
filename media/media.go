package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

var log = logrus.WithField("stage", "media")

// stderrTailLines is how much tool output is kept in a returned error.
const stderrTailLines = 12

// Info is the subset of ffprobe output the pipeline needs.
type Info struct {
	Duration      float64 // container
	VideoDuration float64
	AudioDuration float64
	Width         int
	Height        int
	HasVideo      bool
	HasAudio      bool
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Tags      struct {
			Duration string `json:"DURATION"`
		} `json:"tags"`
	} `json:"streams"`
}

// Prober measures a media file. The audio stage takes one so tests can avoid
// ffprobe.
type Prober func(path string) (*Info, error)

// Probe runs ffprobe through ffmpeg-go.
func Probe(path string) (*Info, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, errors.Wrapf(err, "ffprobe %s", path)
	}
	return ParseProbe(out)
}

// ParseProbe decodes ffprobe's -of json output.
func ParseProbe(raw string) (*Info, error) {
	var p probeOutput
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, errors.Wrap(err, "decode ffprobe output")
	}
	info := &Info{Duration: parseDuration(p.Format.Duration)}
	for _, s := range p.Streams {
		d := parseDuration(s.Duration)
		if d == 0 {
			d = parseDuration(s.Tags.Duration)
		}
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.VideoDuration = d
			info.Width, info.Height = s.Width, s.Height
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioDuration = d
		}
	}
	if info.Duration == 0 {
		info.Duration = max(info.VideoDuration, info.AudioDuration)
	}
	return info, nil
}

// parseDuration accepts seconds ("12.345") or matroska tag form
// ("00:00:12.345000000").
func parseDuration(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0
	}
	if !strings.Contains(s, ":") {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	var total float64
	for _, part := range strings.Split(s, ":") {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0
		}
		total = total*60 + f
	}
	return total
}

// Duration returns the container duration of path.
func Duration(path string) (float64, error) {
	info, err := Probe(path)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// Run executes name with args. On failure the last lines of stderr are
// attached to the error.
func Run(ctx context.Context, name string, args ...string) error {
	_, err := Output(ctx, name, args...)
	return err
}

// Output is Run that also returns stdout.
func Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	log.Debugf("%s %s", name, strings.Join(args, " "))
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "%s interrupted", name)
		}
		return nil, errors.Wrapf(err, "%s failed: %s", name, Tail(stderr.String(), stderrTailLines))
	}
	return stdout.Bytes(), nil
}

// RunStream runs an ffmpeg-go graph under ctx.
func RunStream(ctx context.Context, s *ffmpeg.Stream) error {
	return Run(ctx, "ffmpeg", s.OverWriteOutput().GetArgs()...)
}

// Tail keeps the last n non-empty lines of s.
func Tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	var kept []string
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			kept = append(kept, l)
		}
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, " | ")
}

// Available reports whether bin is on PATH.
func Available(bin string) bool {
	_, err := exec.LookPath(bin)
	return err == nil
}

// QuoteFilterPath quotes a path as a filter option value inside a
// filter_complex, e.g. textfile= or fontfile=. The graph parser and the option
// parser each strip one level, so an apostrophe leaves the quotes and is
// escaped for both: ' becomes '\\\''.
func QuoteFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, ":", "\\:")
	return "'" + strings.ReplaceAll(path, "'", `'\\\''`) + "'"
}

// ConcatLine is one entry of an ffmpeg concat demuxer list.
func ConcatLine(path string) string {
	return fmt.Sprintf("file '%s'", strings.ReplaceAll(path, "'", `'\''`))
}

// Secs formats a duration for ffmpeg arguments.
func Secs(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
