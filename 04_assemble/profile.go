package assemble

import (
	"fmt"
	"strconv"
	"strings"

	"segment-video-pipeline/config"
	"segment-video-pipeline/types"

	"github.com/pkg/errors"
)

const (
	EncoderX264         = "libx264"
	EncoderNVENC        = "h264_nvenc"
	EncoderVideoToolbox = "h264_videotoolbox"
)

// ProfileFor picks the output profile. resolution only applies to long-form
// and is "hd" (default) or "4k".
func ProfileFor(cfg *config.Config, script *types.Script, resolution string) (config.Profile, error) {
	if !script.IsLongform() {
		return cfg.Video.Short, nil
	}
	switch strings.ToLower(resolution) {
	case "", "hd", "1080p":
		return cfg.Video.LongformHD, nil
	case "4k", "2160p":
		return cfg.Video.Longform4K, nil
	}
	return config.Profile{}, errors.Errorf("unknown resolution %q (want hd or 4k)", resolution)
}

// EncoderArgs returns the video codec and rate-control arguments.
func EncoderArgs(encoder, preset string, p config.Profile) ([]string, error) {
	rate := p.VideoBitrate
	buf := doubleRate(rate)
	switch encoder {
	case "", EncoderX264:
		if preset == "" {
			preset = "fast"
		}
		return []string{"-c:v", EncoderX264, "-preset", preset,
			"-b:v", rate, "-maxrate", rate, "-bufsize", buf, "-pix_fmt", "yuv420p"}, nil
	case EncoderNVENC:
		return []string{"-c:v", EncoderNVENC, "-preset", "p5", "-rc", "vbr",
			"-b:v", rate, "-maxrate", rate, "-bufsize", buf, "-pix_fmt", "yuv420p"}, nil
	case EncoderVideoToolbox:
		return []string{"-c:v", EncoderVideoToolbox, "-b:v", rate, "-allow_sw", "1", "-pix_fmt", "yuv420p"}, nil
	}
	return nil, errors.Errorf("unknown encoder %q (want %s, %s or %s)", encoder, EncoderX264, EncoderNVENC, EncoderVideoToolbox)
}

// doubleRate turns "8M" into "16M" for -bufsize.
func doubleRate(rate string) string {
	num := strings.TrimRightFunc(rate, func(r rune) bool { return r < '0' || r > '9' })
	unit := rate[len(num):]
	n, err := strconv.Atoi(num)
	if err != nil {
		return rate
	}
	return fmt.Sprintf("%d%s", n*2, unit)
}
