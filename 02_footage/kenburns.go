package footage

import (
	"context"
	"fmt"

	"segment-video-pipeline/config"
	"segment-video-pipeline/media"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// KenBurnsFilter zooms slowly from 1.0 to zoom over the whole clip, centred,
// and outputs profile-sized frames.
func KenBurnsFilter(p config.Profile, duration, zoom float64) string {
	frames := max(int(duration*float64(p.FPS)), 1)
	if zoom <= 1 {
		zoom = 1.15
	}
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
			"zoompan=z='1+(on/%d)*(%.3f-1)':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d,"+
			"format=yuv420p",
		p.Width*2, p.Height*2, p.Width*2, p.Height*2,
		frames, zoom, frames, p.Width, p.Height, p.FPS,
	)
}

// KenBurns renders still into a silent clip of duration seconds.
func KenBurns(ctx context.Context, still, out string, p config.Profile, duration, zoom float64) error {
	stream := ffmpeg.Input(still, ffmpeg.KwArgs{"loop": 1}).
		Output(out, ffmpeg.KwArgs{
			"vf":      KenBurnsFilter(p, duration, zoom),
			"t":       media.Secs(duration),
			"c:v":     "libx264",
			"preset":  "fast",
			"crf":     20,
			"pix_fmt": "yuv420p",
		})
	return media.RunStream(ctx, stream)
}
