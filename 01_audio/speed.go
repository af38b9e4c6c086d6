package audio

import (
	"context"
	"strconv"

	"segment-video-pipeline/media"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// AtempoChain splits factor into atempo stages. A single atempo only
// accepts 0.5..2.0.
func AtempoChain(factor float64) []float64 {
	if factor <= 0 {
		return nil
	}
	var chain []float64
	for factor > 2.0 {
		chain = append(chain, 2.0)
		factor /= 2.0
	}
	for factor < 0.5 {
		chain = append(chain, 0.5)
		factor /= 0.5
	}
	return append(chain, factor)
}

// ApplySpeed re-times in by factor into out without changing pitch.
func ApplySpeed(ctx context.Context, in, out string, factor float64) error {
	stream := ffmpeg.Input(in).Audio()
	for _, f := range AtempoChain(factor) {
		stream = stream.Filter("atempo", ffmpeg.Args{strconv.FormatFloat(f, 'f', -1, 64)})
	}
	return media.RunStream(ctx, stream.Output(out, ffmpeg.KwArgs{
		"c:a": "libmp3lame",
		"q:a": 2,
	}))
}
