package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"segment-video-pipeline/config"
	"segment-video-pipeline/media"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/time/rate"
)

// Gemini TTS returns signed 16-bit mono PCM at this rate.
const geminiSampleRate = 24000

// Gemini voices text through the generateContent endpoint with an audio
// response and converts the PCM it returns to mp3.
type Gemini struct {
	BaseURL      string
	APIKey       string
	Model        string
	DefaultVoice string
	Attempts     int
	Workers      int
	// Backoff is the wait after a rate-limited attempt. hint is the delay the
	// API asked for, or zero.
	Backoff func(attempt int, hint time.Duration) time.Duration

	limiter *rate.Limiter
	client  *http.Client
	convert func(ctx context.Context, pcm, out string) error
}

// NewGemini creates a Gemini engine limited to cfg.GeminiRPM requests a
// minute across all workers.
func NewGemini(cfg config.AudioConfig, apiKey string) *Gemini {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rpm := cfg.GeminiRPM
	if rpm <= 0 {
		rpm = 10
	}
	base := time.Duration(cfg.GeminiRetry * float64(time.Second))
	if base <= 0 {
		base = 10 * time.Second
	}
	return &Gemini{
		BaseURL:      strings.TrimRight(cfg.GeminiURL, "/"),
		APIKey:       apiKey,
		Model:        cfg.GeminiModel,
		DefaultVoice: cfg.GeminiVoice,
		Attempts:     3,
		Workers:      2,
		Backoff:      func(attempt int, hint time.Duration) time.Duration { return geminiBackoff(base, attempt, hint) },
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		client:       &http.Client{Timeout: timeout},
		convert:      PCMToMP3,
	}
}

func (g *Gemini) Name() string { return EngineGemini }

// MaxWorkers caps the stage's concurrency for this engine.
func (g *Gemini) MaxWorkers() int { return g.Workers }

// geminiBackoff waits a second past the delay the API names, otherwise
// doubles base on each attempt.
func geminiBackoff(base time.Duration, attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint + time.Second
	}
	return base * time.Duration(math.Pow(2, float64(attempt-1)))
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type geminiGenConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       geminiSpeech `json:"speechConfig"`
}

type geminiSpeech struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// geminiError is a non-200 reply. retry is the delay the API asked for.
type geminiError struct {
	code    int
	status  string
	message string
	retry   time.Duration
}

func (e *geminiError) Error() string {
	return fmt.Sprintf("gemini HTTP %d %s: %s", e.code, e.status, e.message)
}

func (e *geminiError) rateLimited() bool {
	return e.code == http.StatusTooManyRequests || e.status == "RESOURCE_EXHAUSTED"
}

var retryInRe = regexp.MustCompile(`(?i)retry in (\d+(?:\.\d+)?)\s*s`)

// parseGeminiError reads the google.rpc status body. The delay comes from
// RetryInfo when present, else from "retry in Ns" in the message.
func parseGeminiError(code int, body []byte) *geminiError {
	var payload struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
			Details []struct {
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	e := &geminiError{code: code}
	if err := json.Unmarshal(body, &payload); err != nil {
		e.message = strings.TrimSpace(string(body))
	} else {
		e.status = payload.Error.Status
		e.message = payload.Error.Message
		for _, d := range payload.Error.Details {
			if dur, err := time.ParseDuration(d.RetryDelay); err == nil && d.RetryDelay != "" {
				e.retry = dur
			}
		}
	}
	if e.retry == 0 {
		if m := retryInRe.FindStringSubmatch(e.message); m != nil {
			secs, _ := strconv.ParseFloat(m[1], 64)
			e.retry = time.Duration(secs * float64(time.Second))
		}
	}
	if len(e.message) > 300 {
		e.message = e.message[:300]
	}
	return e
}

// Synthesize requests audio for req, waiting for the rate limiter and
// retrying quota errors, then writes it to outFile as mp3.
func (g *Gemini) Synthesize(ctx context.Context, req Request, outFile string) error {
	voice := req.Voice
	if voice == "" {
		voice = g.DefaultVoice
	}
	greq := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: req.Text}}}},
		GenerationConfig: geminiGenConfig{ResponseModalities: []string{"AUDIO"}},
	}
	greq.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voice
	body, err := json.Marshal(greq)
	if err != nil {
		return errors.Wrap(err, "encode tts request")
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.BaseURL, g.Model)

	attempts := max(g.Attempts, 1)
	for attempt := 1; ; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return errors.Wrap(err, "gemini rate limit")
			}
		}
		pcm, err := g.generate(ctx, url, body)
		if err == nil {
			return g.writeMP3(ctx, pcm, outFile)
		}
		var ge *geminiError
		if !errors.As(err, &ge) || !ge.rateLimited() || attempt >= attempts {
			return err
		}
		wait := g.Backoff(attempt, ge.retry)
		log.Warnf("gemini rate limited (attempt %d/%d), waiting %s", attempt, attempts, wait.Round(time.Second))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (g *Gemini) generate(ctx context.Context, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build tts request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "gemini request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, parseGeminiError(resp.StatusCode, raw)
	}
	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode gemini response")
	}
	for _, c := range out.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data, nil
			}
		}
	}
	return nil, errors.New("gemini returned no audio")
}

func (g *Gemini) writeMP3(ctx context.Context, pcm []byte, outFile string) error {
	raw := outFile + ".pcm"
	if err := os.WriteFile(raw, pcm, 0644); err != nil {
		return errors.Wrap(err, "write pcm")
	}
	defer os.Remove(raw)
	convert := g.convert
	if convert == nil {
		convert = PCMToMP3
	}
	return errors.Wrap(convert(ctx, raw, outFile), "convert pcm to mp3")
}

// PCMToMP3 encodes raw Gemini PCM at pcm into an mp3 at out.
func PCMToMP3(ctx context.Context, pcm, out string) error {
	in := ffmpeg.Input(pcm, ffmpeg.KwArgs{"f": "s16le", "ar": geminiSampleRate, "ac": 1})
	return media.RunStream(ctx, in.Output(out, ffmpeg.KwArgs{
		"c:a": "libmp3lame",
		"b:a": "256k",
	}))
}
