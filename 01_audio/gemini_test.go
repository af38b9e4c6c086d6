package audio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"segment-video-pipeline/config"
	"segment-video-pipeline/project"
)

func newTestGemini(url string) (*Gemini, *[]byte) {
	cfg := config.Default().Audio
	cfg.GeminiURL = url
	g := NewGemini(cfg, "test-key")
	g.limiter = nil
	g.Backoff = func(int, time.Duration) time.Duration { return time.Millisecond }
	pcm := new([]byte)
	g.convert = func(_ context.Context, in, out string) error {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		*pcm = data
		return os.WriteFile(out, []byte("ID3"), 0644)
	}
	return g, pcm
}

func audioReply(w http.ResponseWriter, pcm []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;rate=24000","data":"` +
		base64.StdEncoding.EncodeToString(pcm) + `"}}]}}]}`))
}

func TestGeminiRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash-preview-tts:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("x-goog-api-key"))
		}
		var body geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
			return
		}
		if body.Contents[0].Parts[0].Text != "Box box" {
			t.Errorf("text = %+v", body.Contents)
		}
		if got := body.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Alnilam" {
			t.Errorf("voice = %q", got)
		}
		if len(body.GenerationConfig.ResponseModalities) != 1 || body.GenerationConfig.ResponseModalities[0] != "AUDIO" {
			t.Errorf("modalities = %v", body.GenerationConfig.ResponseModalities)
		}
		audioReply(w, []byte{1, 2, 3, 4})
	}))
	defer srv.Close()

	g, pcm := newTestGemini(srv.URL)
	out := filepath.Join(t.TempDir(), "a.mp3")
	if err := g.Synthesize(context.Background(), Request{Text: "Box box"}, out); err != nil {
		t.Fatal(err)
	}
	if string(*pcm) != "\x01\x02\x03\x04" {
		t.Errorf("pcm handed to converter = %v", *pcm)
	}
	if _, err := os.Stat(out + ".pcm"); !os.IsNotExist(err) {
		t.Error("raw pcm left behind")
	}
}

func TestGeminiHonoursRetryDelay(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded. Please retry in 7.5s."}}`))
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota",
				"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"12s"}]}}`))
		default:
			audioReply(w, []byte{0, 0})
		}
	}))
	defer srv.Close()

	g, _ := newTestGemini(srv.URL)
	var hints []time.Duration
	g.Backoff = func(_ int, hint time.Duration) time.Duration {
		hints = append(hints, hint)
		return time.Millisecond
	}
	if err := g.Synthesize(context.Background(), Request{Text: "x"}, filepath.Join(t.TempDir(), "a.mp3")); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("hits = %d, want 3", n)
	}
	if len(hints) != 2 || hints[0] != 7500*time.Millisecond || hints[1] != 12*time.Second {
		t.Errorf("retry hints = %v", hints)
	}
}

func TestGeminiGivesUp(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota"}}`))
	}))
	defer srv.Close()

	g, _ := newTestGemini(srv.URL)
	if err := g.Synthesize(context.Background(), Request{Text: "x"}, filepath.Join(t.TempDir(), "a.mp3")); err == nil {
		t.Fatal("expected error after retries")
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("hits = %d, want 3 attempts", n)
	}
}

func TestGeminiPermanentErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"bad voice"}}`))
	}))
	defer srv.Close()

	g, _ := newTestGemini(srv.URL)
	err := g.Synthesize(context.Background(), Request{Text: "x", Voice: "Nobody"}, filepath.Join(t.TempDir(), "a.mp3"))
	if n := atomic.LoadInt32(&hits); err == nil || n != 1 {
		t.Fatalf("err = %v, hits = %d", err, n)
	}
}

func TestGeminiBackoff(t *testing.T) {
	if got := geminiBackoff(10*time.Second, 1, 0); got != 10*time.Second {
		t.Errorf("attempt 1 = %s", got)
	}
	if got := geminiBackoff(10*time.Second, 3, 0); got != 40*time.Second {
		t.Errorf("attempt 3 = %s", got)
	}
	if got := geminiBackoff(10*time.Second, 1, 4*time.Second); got != 5*time.Second {
		t.Errorf("hinted = %s", got)
	}
}

func TestEngineCapsWorkers(t *testing.T) {
	proj, script := newTestProject(t)
	synth := &cappedSynth{max: 1}
	gen := New(config.Default(), synth).WithProber(fakeProbe)
	if _, err := gen.Run(context.Background(), proj, script, Options{Segment: project.AllSegments, Workers: 8}); err != nil {
		t.Fatal(err)
	}
	if peak := atomic.LoadInt32(&synth.peak); peak != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak)
	}
}

type cappedSynth struct {
	max      int
	inFlight int32
	peak     int32
}

func (c *cappedSynth) Name() string    { return "capped" }
func (c *cappedSynth) MaxWorkers() int { return c.max }

func (c *cappedSynth) Synthesize(_ context.Context, req Request, out string) error {
	n := atomic.AddInt32(&c.inFlight, 1)
	defer atomic.AddInt32(&c.inFlight, -1)
	for {
		p := atomic.LoadInt32(&c.peak)
		if n <= p || atomic.CompareAndSwapInt32(&c.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return os.WriteFile(out, []byte("ID3"), 0644)
}
