package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is config.yaml merged over Default.
type Config struct {
	Paths   PathsConfig   `yaml:"paths"`
	Audio   AudioConfig   `yaml:"audio"`
	Footage FootageConfig `yaml:"footage"`
	Stock   StockConfig   `yaml:"stock"`
	Preview PreviewConfig `yaml:"preview"`
	Video   VideoConfig   `yaml:"video"`
	Upload  UploadConfig  `yaml:"upload"`
	Log     LogConfig     `yaml:"log"`
}

// PathsConfig locates projects, shared assets and credentials.
type PathsConfig struct {
	BaseDir        string `yaml:"base_dir"`
	ProjectsDir    string `yaml:"projects_dir"`
	SharedDir      string `yaml:"shared_dir"`
	CredentialsDir string `yaml:"credentials_dir"`
	CacheDir       string `yaml:"cache_dir"`
	FontFile       string `yaml:"font_file"`
}

// AudioConfig selects and tunes the TTS engine.
type AudioConfig struct {
	Engine          string  `yaml:"engine"` // elevenlabs | gemini | edge-tts | command
	Command         string  `yaml:"command"`
	VoiceID         string  `yaml:"voice_id"`
	ModelID         string  `yaml:"model_id"`
	EdgeVoice       string  `yaml:"edge_voice"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	Speed           float64 `yaml:"speed"`
	Workers         int     `yaml:"workers"`
	BaseURL         string  `yaml:"base_url"`
	TimeoutSec      int     `yaml:"timeout_sec"`

	GeminiURL   string  `yaml:"gemini_url"`
	GeminiModel string  `yaml:"gemini_model"`
	GeminiVoice string  `yaml:"gemini_voice"`
	GeminiRPM   int     `yaml:"gemini_rpm"`
	GeminiRetry float64 `yaml:"gemini_retry_sec"` // first 429 backoff when the API names no delay

	// Phonetics maps a term to the spelling the TTS engine should read.
	// Matching ignores case and prefers the longest term.
	Phonetics map[string]string `yaml:"phonetics"`
}

// FootageConfig controls search, ranking and download of clips.
type FootageConfig struct {
	Workers           int      `yaml:"workers"`
	SearchResults     int      `yaml:"search_results"`
	MaxCandidates     int      `yaml:"max_candidates"`
	MaxSourceDuration float64  `yaml:"max_source_duration"`
	ClipMaxSec        float64  `yaml:"clip_max_sec"`
	FormatSelector    string   `yaml:"format_selector"`
	RequiredTerm      string   `yaml:"required_term"`
	DefaultSuffix     string   `yaml:"default_suffix"`
	PreferredChannels []string `yaml:"preferred_channels"`
	GoodKeywords      []string `yaml:"good_keywords"`
	BadKeywords       []string `yaml:"bad_keywords"`
	MinScore          float64  `yaml:"min_score"`
	StockFallback     bool     `yaml:"stock_fallback"`
	KenBurnsZoom      float64  `yaml:"ken_burns_zoom"`
}

// StockConfig is the Pexels and Unsplash fallback.
type StockConfig struct {
	PexelsURL   string            `yaml:"pexels_url"`
	UnsplashURL string            `yaml:"unsplash_url"`
	PerPage     int               `yaml:"per_page"`
	QueryMap    map[string]string `yaml:"query_map"`
	StripTerms  []string          `yaml:"strip_terms"`
}

// PreviewConfig controls preview frame extraction.
type PreviewConfig struct {
	Workers   int     `yaml:"workers"`
	OffsetSec float64 `yaml:"offset_sec"`
}

// VideoConfig holds the render profiles and encoder settings.
type VideoConfig struct {
	Short        Profile     `yaml:"short"`
	LongformHD   Profile     `yaml:"longform_hd"`
	Longform4K   Profile     `yaml:"longform_4k"`
	Encoder      string      `yaml:"encoder"`
	Preset       string      `yaml:"preset"`
	Workers      int         `yaml:"workers"`
	ToleranceSec float64     `yaml:"tolerance_sec"`
	CaptionChars int         `yaml:"caption_chars"`
	CaptionSize  int         `yaml:"caption_size"`
	BlurSigma    int         `yaml:"blur_sigma"`
	Background   string      `yaml:"background"`
	FadeSec      float64     `yaml:"music_fade_sec"`
	Outro        OutroConfig `yaml:"outro"`
}

// OutroConfig is the credits clip appended to long-form videos. It is skipped
// when Audio does not exist.
type OutroConfig struct {
	Audio      string  `yaml:"audio"`
	CreditsSec float64 `yaml:"credits_sec"`
	Title      string  `yaml:"title"`
	Channel    string  `yaml:"channel"`
	CTA        string  `yaml:"cta"`
	Accent     string  `yaml:"accent"`
}

// Profile fixes the output geometry and bitrates for one video format.
type Profile struct {
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	FPS          int     `yaml:"fps"`
	VideoBitrate string  `yaml:"video_bitrate"`
	AudioBitrate string  `yaml:"audio_bitrate"`
	Music        string  `yaml:"music"`
	MusicVolume  float64 `yaml:"music_volume"`
}

// UploadConfig holds YouTube metadata defaults and OAuth file names.
type UploadConfig struct {
	CategoryID        string   `yaml:"category_id"`
	Privacy           string   `yaml:"privacy"`
	MadeForKids       bool     `yaml:"made_for_kids"`
	NotifySubscribers bool     `yaml:"notify_subscribers"`
	DefaultLanguage   string   `yaml:"default_language"`
	BaseTags          []string `yaml:"base_tags"`
	Hashtags          []string `yaml:"hashtags"`
	ChannelFooter     string   `yaml:"channel_footer"`
	ClientSecrets     string   `yaml:"client_secrets"`
	TokenFile         string   `yaml:"token_file"`
	GeminiModel       string   `yaml:"gemini_model"`
}

// LogConfig sets the logrus level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration. A config.yaml only needs the
// keys it wants to change.
func Default() *Config {
	base := "."
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, "vidpipe")
	}
	shared := filepath.Join(base, "shared")
	return &Config{
		Paths: PathsConfig{
			BaseDir:        base,
			ProjectsDir:    filepath.Join(base, "projects"),
			SharedDir:      shared,
			CredentialsDir: filepath.Join(shared, "creds"),
			CacheDir:       filepath.Join(base, "cache"),
		},
		Audio: AudioConfig{
			Engine:          "elevenlabs",
			VoiceID:         "c6SfcYrb2t09NHXiT80T",
			ModelID:         "eleven_multilingual_v2",
			EdgeVoice:       "en-US-GuyNeural",
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           1.0,
			Workers:         4,
			BaseURL:         "https://api.elevenlabs.io",
			TimeoutSec:      60,
			GeminiURL:       "https://generativelanguage.googleapis.com",
			GeminiModel:     "gemini-2.5-flash-preview-tts",
			GeminiVoice:     "Alnilam",
			GeminiRPM:       10,
			GeminiRetry:     10,
		},
		Footage: FootageConfig{
			Workers:           3,
			SearchResults:     8,
			MaxCandidates:     5,
			MaxSourceDuration: 600,
			ClipMaxSec:        30,
			FormatSelector:    "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/best[height<=1080][ext=mp4]",
			DefaultSuffix:     "highlights",
			GoodKeywords: []string{
				"highlights", "onboard", "race edit", "best moments", "compilation",
				"season review", "battle", "overtake", "pit stop", "start", "finish",
				"podium", "top 10", "pole lap", "fastest lap", "crash", "incident",
				"qualifying", "sprint", "team radio",
			},
			BadKeywords: []string{
				"interview", "press conference", "reaction", "reacts", "podcast",
				"explained", "breakdown", "analysis", "vlog", "behind the scenes",
				"documentary", "full race", "live stream", "watch along",
				"my thoughts", "opinion", "review", "preview", "prediction",
			},
			MinScore:      0.2,
			StockFallback: true,
			KenBurnsZoom:  1.15,
		},
		Stock: StockConfig{
			PexelsURL:   "https://api.pexels.com",
			UnsplashURL: "https://api.unsplash.com",
			PerPage:     5,
			StripTerms:  []string{"explained", "analysis", "overview", "diagram"},
		},
		Preview: PreviewConfig{
			Workers:   4,
			OffsetSec: 1.0,
		},
		Video: VideoConfig{
			Short: Profile{
				Width: 1080, Height: 1920, FPS: 30,
				VideoBitrate: "8M", AudioBitrate: "192k",
				Music:       filepath.Join(shared, "music", "background.mp3"),
				MusicVolume: 0.08,
			},
			LongformHD: Profile{
				Width: 1920, Height: 1080, FPS: 30,
				VideoBitrate: "12M", AudioBitrate: "256k",
				Music:       filepath.Join(shared, "music", "background_longform.mp3"),
				MusicVolume: 0.05,
			},
			Longform4K: Profile{
				Width: 3840, Height: 2160, FPS: 30,
				VideoBitrate: "20M", AudioBitrate: "256k",
				Music:       filepath.Join(shared, "music", "background_longform.mp3"),
				MusicVolume: 0.05,
			},
			Encoder:      "libx264",
			Preset:       "fast",
			Workers:      min(4, runtime.NumCPU()),
			ToleranceSec: 1.0,
			CaptionChars: 28,
			CaptionSize:  64,
			BlurSigma:    20,
			Background:   "0x111111",
			FadeSec:      3,
			Outro: OutroConfig{
				Audio:      filepath.Join(shared, "audio", "outro_longform.mp3"),
				CreditsSec: 5,
				Title:      "Sources & References in Description",
				CTA:        "LIKE • SUBSCRIBE • BELL",
				Accent:     "0xE8002D",
			},
		},
		Upload: UploadConfig{
			CategoryID:      "17",
			Privacy:         "private",
			DefaultLanguage: "en",
			ClientSecrets:   "youtube_client_secrets.json",
			TokenFile:       "youtube_token.json",
			GeminiModel:     "gemini-1.5-flash",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config.yaml over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	cfg.expand()
	return cfg, nil
}

// expand resolves "~/" prefixes so config files can stay portable.
func (c *Config) expand() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, p := range []*string{
		&c.Paths.BaseDir, &c.Paths.ProjectsDir, &c.Paths.SharedDir,
		&c.Paths.CredentialsDir, &c.Paths.CacheDir, &c.Paths.FontFile,
		&c.Video.Short.Music, &c.Video.LongformHD.Music, &c.Video.Longform4K.Music,
		&c.Video.Outro.Audio,
	} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}
}

// ProjectDir returns the directory holding one project.
func (c *Config) ProjectDir(name string) string {
	return filepath.Join(c.Paths.ProjectsDir, name)
}

// CredentialPath returns the flat credential file for a provider.
func (c *Config) CredentialPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.CredentialsDir, name)
}

// Credential reads a provider key from the credentials dir, falling back to
// the <NAME>_API_KEY environment variable.
func (c *Config) Credential(name string) (string, error) {
	data, err := os.ReadFile(c.CredentialPath(name))
	if err == nil {
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
	}
	env := strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_API_KEY"
	if key := strings.TrimSpace(os.Getenv(env)); key != "" {
		return key, nil
	}
	return "", errors.Errorf("credential %q not found at %s and %s not set", name, c.CredentialPath(name), env)
}
