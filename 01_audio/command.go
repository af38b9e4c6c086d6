package audio

import (
	"context"
	"strings"
	"time"

	"segment-video-pipeline/media"
)

// CommandSynth shells out to a TTS program. edge-tts is driven with its own
// flags; anything else must accept --text and --output.
type CommandSynth struct {
	Command      string
	DefaultVoice string
	Attempts     int
	Backoff      func(attempt int) time.Duration

	run func(ctx context.Context, name string, args ...string) error
}

// NewCommandSynth runs command with three attempts per request.
func NewCommandSynth(command, voice string) *CommandSynth {
	return &CommandSynth{
		Command:      command,
		DefaultVoice: voice,
		Attempts:     3,
		Backoff:      func(attempt int) time.Duration { return time.Duration(attempt) * 2 * time.Second },
		run:          media.Run,
	}
}

func (c *CommandSynth) Name() string {
	if c.Command == "edge-tts" {
		return EngineEdgeTTS
	}
	return EngineCommand
}

// Args builds the argv for one request.
func (c *CommandSynth) Args(req Request, outFile string) (string, []string) {
	ttsCmd := strings.TrimSpace(c.Command)
	voice := req.Voice
	if voice == "" {
		voice = c.DefaultVoice
	}
	switch {
	case ttsCmd == "edge-tts":
		return "edge-tts", []string{"--voice", voice, "--text", req.Text, "--write-media", outFile}
	case strings.HasSuffix(ttsCmd, ".py"):
		return "python3", []string{ttsCmd, "--text", req.Text, "--output", outFile}
	default:
		fields := strings.Fields(ttsCmd)
		args := append(fields[1:], "--text", req.Text, "--output", outFile)
		if voice != "" {
			args = append(args, "--voice", voice)
		}
		return fields[0], args
	}
}

// Synthesize runs the command, retrying failures until Attempts is used up
// or ctx ends.
func (c *CommandSynth) Synthesize(ctx context.Context, req Request, outFile string) error {
	name, args := c.Args(req, outFile)
	run := c.run
	if run == nil {
		run = media.Run
	}
	attempts := max(c.Attempts, 1)
	for attempt := 1; ; attempt++ {
		err := run(ctx, name, args...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt >= attempts {
			return err
		}
		log.Warnf("%s attempt %d failed: %v, retrying", name, attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.Backoff(attempt)):
		}
	}
}
