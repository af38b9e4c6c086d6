package audio

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"segment-video-pipeline/config"

	"github.com/pkg/errors"
)

const (
	EngineElevenLabs = "elevenlabs"
	EngineGemini     = "gemini"
	EngineEdgeTTS    = "edge-tts"
	EngineCommand    = "command"
)

// Request is one narration line to voice.
type Request struct {
	Text    string
	Voice   string
	Emotion string
}

// Synthesizer writes speech for req to outFile (mp3).
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req Request, outFile string) error
}

// workerCap is implemented by engines whose quota allows only a few
// requests in flight.
type workerCap interface {
	MaxWorkers() int
}

// NewSynthesizer builds the engine named by engine, or by cfg.Audio.Engine
// when engine is empty.
func NewSynthesizer(cfg *config.Config, engine string) (Synthesizer, error) {
	if engine == "" {
		engine = cfg.Audio.Engine
	}
	switch strings.ToLower(engine) {
	case EngineElevenLabs:
		key, err := cfg.Credential("elevenlabs")
		if err != nil {
			return nil, err
		}
		return NewElevenLabs(cfg.Audio, key), nil
	case EngineGemini:
		key, err := cfg.Credential("google_ai")
		if err != nil {
			return nil, err
		}
		return NewGemini(cfg.Audio, key), nil
	case EngineEdgeTTS:
		if _, err := exec.LookPath("edge-tts"); err != nil {
			return nil, errors.New("edge-tts not found on PATH (pip install edge-tts)")
		}
		return NewCommandSynth("edge-tts", cfg.Audio.EdgeVoice), nil
	case EngineCommand:
		cmd := cfg.Audio.Command
		if cmd == "" {
			cmd = os.Getenv("TTS_COMMAND")
		}
		if cmd == "" {
			return nil, errors.New("audio.command is empty and TTS_COMMAND is not set")
		}
		return NewCommandSynth(cmd, ""), nil
	}
	return nil, errors.Errorf("unknown TTS engine %q", engine)
}
