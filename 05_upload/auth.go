package upload

import (
	"bufio"
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
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"
)

var scopes = []string{youtube.YoutubeUploadScope, youtube.YoutubeForceSslScope}

// OAuth builds an authorised HTTP client for the YouTube API.
//
// Order: client secrets plus cached token from the credentials dir, then the
// YOUTUBE_CLIENT_ID / YOUTUBE_CLIENT_SECRET / YOUTUBE_REFRESH_TOKEN env vars,
// then an interactive consent flow whose token is cached for next time.
type OAuth struct {
	cfg *config.Config
	In  io.Reader
	Out io.Writer
}

// NewOAuth creates an OAuth helper reading files from the credentials dir.
func NewOAuth(cfg *config.Config) *OAuth {
	return &OAuth{cfg: cfg, In: os.Stdin, Out: os.Stderr}
}

// Client returns an authorised HTTP client. Refreshed tokens are saved
// back to the token file.
func (a *OAuth) Client(ctx context.Context) (*http.Client, error) {
	secretsPath := a.cfg.CredentialPath(a.cfg.Upload.ClientSecrets)
	tokenPath := a.cfg.CredentialPath(a.cfg.Upload.TokenFile)

	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "read client secrets")
		}
		return envClient(ctx)
	}
	conf, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, errors.Wrap(err, "parse client secrets")
	}

	tok, err := loadToken(tokenPath)
	if err != nil {
		if envTok := os.Getenv("YOUTUBE_REFRESH_TOKEN"); envTok != "" {
			tok = &oauth2.Token{RefreshToken: envTok, Expiry: time.Now().Add(-time.Hour)}
		} else {
			if tok, err = a.consent(ctx, conf); err != nil {
				return nil, err
			}
			if err := saveToken(tokenPath, tok); err != nil {
				log.Warnf("could not cache token: %v", err)
			} else {
				log.Infof("token saved to %s", tokenPath)
			}
		}
	}
	return oauth2.NewClient(ctx, &savingSource{
		src:  conf.TokenSource(ctx, tok),
		path: tokenPath,
		last: tok.AccessToken,
	}), nil
}

// envClient is the headless path for CI: a long-lived refresh token in env.
func envClient(ctx context.Context) (*http.Client, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, errors.New("no client secrets file and YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET or YOUTUBE_REFRESH_TOKEN not set")
	}
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return conf.Client(ctx, token), nil
}

func (a *OAuth) consent(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	if conf.RedirectURL == "" {
		conf.RedirectURL = "http://localhost"
	}
	url := conf.AuthCodeURL("vidpipe", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(a.Out, "Open this URL, approve access, then paste the code parameter from the redirect:\n\n%s\n\ncode: ", url)

	line, err := bufio.NewReader(a.In).ReadString('\n')
	if err != nil && line == "" {
		return nil, errors.Wrap(err, "read authorisation code")
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return nil, errors.New("empty authorisation code")
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "exchange authorisation code")
	}
	return tok, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if tok.RefreshToken == "" && !tok.Valid() {
		return nil, errors.Errorf("%s has no usable token", path)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// savingSource writes refreshed tokens back to the cache file.
type savingSource struct {
	src  oauth2.TokenSource
	path string
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := saveToken(s.path, tok); err != nil {
			log.Warnf("could not cache refreshed token: %v", err)
		}
	}
	return tok, nil
}
