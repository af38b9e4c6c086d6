package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"segment-video-pipeline/config"

	"github.com/pkg/errors"
)

// ElevenLabs calls the text-to-speech REST endpoint.
type ElevenLabs struct {
	BaseURL      string
	APIKey       string
	DefaultVoice string
	ModelID      string
	Stability    float64
	Similarity   float64
	Attempts     int
	Backoff      func(attempt int) time.Duration

	client *http.Client
}

// NewElevenLabs creates an ElevenLabs engine with three attempts per request.
func NewElevenLabs(cfg config.AudioConfig, apiKey string) *ElevenLabs {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ElevenLabs{
		BaseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:       apiKey,
		DefaultVoice: cfg.VoiceID,
		ModelID:      cfg.ModelID,
		Stability:    cfg.Stability,
		Similarity:   cfg.SimilarityBoost,
		Attempts:     3,
		Backoff:      func(attempt int) time.Duration { return time.Duration(attempt) * 2 * time.Second },
		client:       &http.Client{Timeout: timeout},
	}
}

func (e *ElevenLabs) Name() string { return EngineElevenLabs }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// statusError carries the HTTP status so the retry loop can tell transient
// failures apart.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("HTTP %d: %s", e.code, e.body) }

func (e *statusError) transient() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Synthesize posts req and streams the mp3 reply to outFile. 429 and 5xx
// replies are retried.
func (e *ElevenLabs) Synthesize(ctx context.Context, req Request, outFile string) error {
	voice := req.Voice
	if voice == "" {
		voice = e.DefaultVoice
	}
	body, err := json.Marshal(ttsRequest{
		Text:          req.Text,
		ModelID:       e.ModelID,
		VoiceSettings: settingsFor(req.Emotion, e.Stability, e.Similarity),
	})
	if err != nil {
		return errors.Wrap(err, "encode tts request")
	}
	url := fmt.Sprintf("%s/v1/text-to-speech/%s", e.BaseURL, voice)

	attempts := max(e.Attempts, 1)
	for attempt := 1; ; attempt++ {
		err = e.post(ctx, url, body, outFile)
		if err == nil {
			return nil
		}
		var se *statusError
		if !errors.As(err, &se) || !se.transient() || attempt >= attempts {
			return err
		}
		log.Warnf("elevenlabs attempt %d failed: %v, retrying", attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.Backoff(attempt)):
		}
	}
}

func (e *ElevenLabs) post(ctx context.Context, url string, body []byte, outFile string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build tts request")
	}
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "elevenlabs request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}

	f, err := os.Create(outFile)
	if err != nil {
		return errors.Wrap(err, "create audio file")
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, "write audio file")
	}
	if n == 0 {
		return errors.New("elevenlabs returned empty audio")
	}
	return nil
}
