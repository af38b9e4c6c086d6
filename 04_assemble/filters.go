package assemble

import (
	"fmt"
	"strings"

	"segment-video-pipeline/config"
	"segment-video-pipeline/media"
)

// SegmentPlan describes one per-segment render.
type SegmentPlan struct {
	Footage      string  // empty renders a solid background
	FootageStart float64 // seek into footage; 0 when trimmed
	Loop         bool    // footage shorter than narration
	Audio        string
	Duration     float64 // narration length
	CaptionFile  string  // empty disables the burned caption
	Vertical     bool
	Profile      config.Profile
	Encoder      []string
	Background   string
	BlurSigma    int
	FontFile     string
	FontSize     int
	Output       string
}

// VideoFilter is the filter_complex for plan, ending in [vout].
func VideoFilter(p SegmentPlan) string {
	w, h, fps := p.Profile.Width, p.Profile.Height, p.Profile.FPS
	var chains []string
	switch {
	case p.Footage == "":
		chains = append(chains, fmt.Sprintf("[0:v]setsar=1,fps=%d,format=yuv420p[base]", fps))
	case p.Vertical:
		sigma := p.BlurSigma
		if sigma <= 0 {
			sigma = 20
		}
		chains = append(chains,
			"[0:v]split=2[bgsrc][fgsrc]",
			fmt.Sprintf("[bgsrc]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,boxblur=%d:1[bg]", w, h, w, h, sigma),
			fmt.Sprintf("[fgsrc]scale=%d:%d:force_original_aspect_ratio=decrease[fg]", w, h),
			fmt.Sprintf("[bg][fg]overlay=(W-w)/2:(H-h)/2,setsar=1,fps=%d,format=yuv420p[base]", fps),
		)
	default:
		chains = append(chains, fmt.Sprintf(
			"[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,fps=%d,format=yuv420p[base]",
			w, h, w, h, fps))
	}
	if p.CaptionFile != "" {
		chains = append(chains, "[base]"+CaptionFilter(p)+"[vout]")
	} else {
		chains = append(chains, "[base]null[vout]")
	}
	return strings.Join(chains, ";")
}

// CaptionFilter burns the wrapped caption text. Shorts sit it in the lower
// third, long-form near the bottom edge.
func CaptionFilter(p SegmentPlan) string {
	size := p.FontSize
	if size <= 0 {
		size = 64
	}
	if !p.Vertical {
		size = size * p.Profile.Height / 1920 * 2
	}
	y := "h*0.70"
	if !p.Vertical {
		y = "h-text_h-h*0.08"
	}
	opts := []string{
		"textfile=" + media.QuoteFilterPath(p.CaptionFile),
		"expansion=none",
	}
	if p.FontFile != "" {
		opts = append(opts, "fontfile="+media.QuoteFilterPath(p.FontFile))
	}
	opts = append(opts,
		fmt.Sprintf("fontsize=%d", size),
		"fontcolor=white",
		"line_spacing=12",
		"box=1",
		"boxcolor=black@0.55",
		fmt.Sprintf("boxborderw=%d", size/3),
		"x=(w-text_w)/2",
		"y="+y,
	)
	return "drawtext=" + strings.Join(opts, ":")
}

// SegmentArgs is the ffmpeg argv for plan.
func SegmentArgs(p SegmentPlan) []string {
	return renderArgs(p, VideoFilter(p))
}

func renderArgs(p SegmentPlan, filter string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if p.Footage == "" {
		bg := p.Background
		if bg == "" {
			bg = "black"
		}
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=%dx%d:r=%d:d=%s",
			bg, p.Profile.Width, p.Profile.Height, p.Profile.FPS, media.Secs(p.Duration)))
	} else {
		if p.Loop {
			args = append(args, "-stream_loop", "-1")
		}
		if p.FootageStart > 0 {
			args = append(args, "-ss", media.Secs(p.FootageStart))
		}
		args = append(args, "-i", p.Footage)
	}
	args = append(args, "-i", p.Audio,
		"-filter_complex", filter,
		"-map", "[vout]", "-map", "1:a",
		"-t", media.Secs(p.Duration),
	)
	args = append(args, p.Encoder...)
	args = append(args,
		"-r", fmt.Sprint(p.Profile.FPS),
		"-c:a", "aac", "-b:a", p.Profile.AudioBitrate, "-ar", "48000", "-ac", "2",
		"-movflags", "+faststart",
		p.Output,
	)
	return args
}

// WrapCaption breaks text into lines of at most width runes on word
// boundaries.
func WrapCaption(text string, width int) string {
	if width <= 0 {
		return text
	}
	var lines []string
	var line []rune
	for _, word := range strings.Fields(text) {
		wr := []rune(word)
		if len(line) > 0 && len(line)+1+len(wr) > width {
			lines = append(lines, string(line))
			line = nil
		}
		if len(line) > 0 {
			line = append(line, ' ')
		}
		line = append(line, wr...)
	}
	if len(line) > 0 {
		lines = append(lines, string(line))
	}
	return strings.Join(lines, "\n")
}

// MusicFilter loops the bed under the narration, fades it in and out and
// mixes it at volume without normalising the voice.
func MusicFilter(duration, volume, fade float64) string {
	if fade <= 0 {
		fade = 3
	}
	fadeOut := max(duration-fade, 0)
	return fmt.Sprintf(
		"[0:a]aformat=channel_layouts=stereo[voice];"+
			"[1:a]aloop=loop=-1:size=2e+09,atrim=0:%s,"+
			"afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s,"+
			"volume=%s[music];"+
			"[voice][music]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]",
		media.Secs(duration), trimFloat(fade), media.Secs(fadeOut), trimFloat(fade), trimFloat(volume),
	)
}

func trimFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", f), "0"), ".")
}
