package assemble

import (
	"math"
	"os"
	"strings"

	"segment-video-pipeline/media"

	"github.com/pkg/errors"
)

// ConcatList is the concat demuxer input for renders, in the given order.
func ConcatList(renders []string) string {
	var b strings.Builder
	for _, r := range renders {
		b.WriteString(media.ConcatLine(r))
		b.WriteByte('\n')
	}
	return b.String()
}

// ConcatArgs joins segment renders from listFile and re-encodes so
// timestamps stay continuous across the joins.
func ConcatArgs(listFile, out string, encoder []string, audioBitrate string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listFile}
	args = append(args, encoder...)
	return append(args,
		"-c:a", "aac", "-b:a", audioBitrate, "-ar", "48000", "-ac", "2",
		"-movflags", "+faststart",
		out,
	)
}

// MusicArgs mixes music under the narration of in. Video is copied.
func MusicArgs(in, music, out string, duration, volume, fade float64, audioBitrate string) []string {
	return []string{"-y", "-hide_banner", "-loglevel", "error",
		"-i", in,
		"-i", music,
		"-filter_complex", MusicFilter(duration, volume, fade),
		"-map", "0:v", "-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", audioBitrate,
		"-movflags", "+faststart",
		out,
	}
}

// CheckDurations fails when the video and audio tracks drift apart by more
// than tolerance seconds.
func CheckDurations(info *media.Info, tolerance float64) error {
	if !info.HasVideo || !info.HasAudio {
		return errors.Errorf("final video is missing a stream (video=%v audio=%v)", info.HasVideo, info.HasAudio)
	}
	drift := math.Abs(info.VideoDuration - info.AudioDuration)
	if drift > tolerance {
		return errors.Errorf("video %.2fs and audio %.2fs differ by %.2fs (tolerance %.2fs)",
			info.VideoDuration, info.AudioDuration, drift, tolerance)
	}
	return nil
}

func writeList(path string, renders []string) error {
	return errors.Wrap(os.WriteFile(path, []byte(ConcatList(renders)), 0644), "write concat list")
}
