package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"segment-video-pipeline/config"

	"golang.org/x/oauth2"
)

const secretsJSON = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"s3cret",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["http://localhost"]}}`

func authConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Paths.CredentialsDir = t.TempDir()
	return cfg
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}
	if err := saveToken(path, tok); err != nil {
		t.Fatal(err)
	}
	got, err := loadToken(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.RefreshToken != "r" || got.AccessToken != "a" {
		t.Errorf("token = %+v", got)
	}
	os.WriteFile(path, []byte(`{"access_token":"x","expiry":"2001-01-01T00:00:00Z"}`), 0600)
	if _, err := loadToken(path); err == nil {
		t.Error("expired token without refresh token accepted")
	}
}

func TestClientFromCachedToken(t *testing.T) {
	cfg := authConfig(t)
	os.WriteFile(cfg.CredentialPath(cfg.Upload.ClientSecrets), []byte(secretsJSON), 0600)
	saveToken(cfg.CredentialPath(cfg.Upload.TokenFile), &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)})

	client, err := NewOAuth(cfg).Client(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if client == nil {
		t.Fatal("nil client")
	}
}

func TestClientFallsBackToEnv(t *testing.T) {
	cfg := authConfig(t)
	t.Setenv("YOUTUBE_CLIENT_ID", "")
	t.Setenv("YOUTUBE_CLIENT_SECRET", "")
	t.Setenv("YOUTUBE_REFRESH_TOKEN", "")
	if _, err := NewOAuth(cfg).Client(context.Background()); err == nil {
		t.Error("no credentials accepted")
	}

	t.Setenv("YOUTUBE_CLIENT_ID", "id")
	t.Setenv("YOUTUBE_CLIENT_SECRET", "secret")
	t.Setenv("YOUTUBE_REFRESH_TOKEN", "refresh")
	if _, err := NewOAuth(cfg).Client(context.Background()); err != nil {
		t.Errorf("env credentials: %v", err)
	}
}
