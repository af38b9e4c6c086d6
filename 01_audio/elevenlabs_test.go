package audio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"segment-video-pipeline/config"
)

func newTestElevenLabs(url string) *ElevenLabs {
	cfg := config.Default().Audio
	cfg.BaseURL = url
	e := NewElevenLabs(cfg, "test-key")
	e.Backoff = func(int) time.Duration { return time.Millisecond }
	return e
}

func TestElevenLabsRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/c6SfcYrb2t09NHXiT80T" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("xi-api-key"))
		}
		var body ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
			return
		}
		if body.Text != "Box box" || body.ModelID != "eleven_multilingual_v2" {
			t.Errorf("body = %+v", body)
		}
		if body.VoiceSettings.Stability != 0.5 || body.VoiceSettings.SimilarityBoost != 0.75 {
			t.Errorf("voice settings = %+v", body.VoiceSettings)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "a.mp3")
	if err := newTestElevenLabs(srv.URL).Synthesize(context.Background(), Request{Text: "Box box"}, out); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "ID3audio" {
		t.Errorf("audio = %q", data)
	}
}

func TestElevenLabsRetriesTransient(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "a.mp3")
	if err := newTestElevenLabs(srv.URL).Synthesize(context.Background(), Request{Text: "x", Voice: "custom"}, out); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if hits != 3 {
		t.Errorf("hits = %d, want 3", hits)
	}
}

func TestElevenLabsNoRetryOnClientError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestElevenLabs(srv.URL).Synthesize(context.Background(), Request{Text: "x"}, filepath.Join(t.TempDir(), "a.mp3"))
	if err == nil {
		t.Fatal("expected error")
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

func TestElevenLabsGivesUpAfterAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestElevenLabs(srv.URL).Synthesize(context.Background(), Request{Text: "x"}, filepath.Join(t.TempDir(), "a.mp3"))
	if err == nil {
		t.Fatal("expected error")
	}
	if hits != 3 {
		t.Errorf("hits = %d, want 3", hits)
	}
}
