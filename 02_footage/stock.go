package footage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"segment-video-pipeline/config"

	"github.com/pkg/errors"
)

// minImageBytes rejects error pages served with a 200.
const minImageBytes = 1000

// StockSource fetches a still image for query into out.
type StockSource interface {
	Fetch(ctx context.Context, query, out string) error
}

// StockFetcher searches Pexels and then Unsplash, caching hits by query hash.
type StockFetcher struct {
	cfg         config.StockConfig
	pexelsKey   string
	unsplashKey string
	cacheDir    string
	httpClient  *http.Client
	retryDelay  time.Duration
}

// NewStockFetcher returns nil when neither provider has a key.
func NewStockFetcher(cfg *config.Config) *StockFetcher {
	pexels, _ := cfg.Credential("pexels")
	unsplash, _ := cfg.Credential("unsplash")
	if pexels == "" && unsplash == "" {
		return nil
	}
	return &StockFetcher{
		cfg:         cfg.Stock,
		pexelsKey:   pexels,
		unsplashKey: unsplash,
		cacheDir:    filepath.Join(cfg.Paths.CacheDir, "stock_images"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		retryDelay:  3 * time.Second,
	}
}

type stockHit struct {
	URL          string
	Photographer string
	Provider     string
}

// CachePath is where the image for query is kept between projects.
func (s *StockFetcher) CachePath(query string) string {
	sum := md5.Sum([]byte(query))
	return filepath.Join(s.cacheDir, hex.EncodeToString(sum[:])[:12]+"_0.jpg")
}

// EnhanceQuery maps the footage query to terms stock libraries answer well.
func (s *StockFetcher) EnhanceQuery(query string) string {
	lower := strings.ToLower(query)
	for term, replacement := range s.cfg.QueryMap {
		if strings.Contains(lower, strings.ToLower(term)) {
			return replacement
		}
	}
	for _, t := range s.cfg.StripTerms {
		query = strings.ReplaceAll(query, t, "")
	}
	return strings.Join(strings.Fields(query), " ")
}

// Fetch saves the first usable stock image for query to out, reusing the
// image cache when it has one.
func (s *StockFetcher) Fetch(ctx context.Context, query, out string) error {
	cache := s.CachePath(query)
	if fileSize(cache) > minImageBytes {
		log.Debugf("stock cache hit for %q", query)
		return copyFile(cache, out)
	}

	q := s.EnhanceQuery(query)
	if q == "" {
		return errors.Errorf("stock query %q is empty after cleanup", query)
	}
	hits := s.search(ctx, q)
	if len(hits) == 0 && strings.Contains(q, " ") {
		hits = s.search(ctx, strings.Fields(q)[0])
	}
	if len(hits) == 0 {
		return errors.Errorf("no stock images for %q", q)
	}

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = s.download(ctx, hits[0].URL, out); err == nil {
			log.Infof("stock image from %s by %s", hits[0].Provider, hits[0].Photographer)
			if err := os.MkdirAll(s.cacheDir, 0755); err == nil {
				_ = copyFile(out, cache)
			}
			return nil
		}
		log.Warnf("stock download attempt %d failed: %v", attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.retryDelay):
		}
	}
	return errors.Wrap(err, "stock download failed after 3 attempts")
}

func (s *StockFetcher) search(ctx context.Context, q string) []stockHit {
	if s.pexelsKey != "" {
		hits, err := s.searchPexels(ctx, q)
		if err != nil {
			log.Warnf("pexels: %v", err)
		}
		if len(hits) > 0 {
			return hits
		}
	}
	if s.unsplashKey != "" {
		hits, err := s.searchUnsplash(ctx, q)
		if err != nil {
			log.Warnf("unsplash: %v", err)
		}
		return hits
	}
	return nil
}

type pexelsResponse struct {
	Photos []struct {
		Photographer string `json:"photographer"`
		Src          struct {
			Large2x string `json:"large2x"`
		} `json:"src"`
	} `json:"photos"`
}

func (s *StockFetcher) searchPexels(ctx context.Context, q string) ([]stockHit, error) {
	endpoint := fmt.Sprintf("%s/v1/search?query=%s&per_page=%d&orientation=landscape",
		strings.TrimRight(s.cfg.PexelsURL, "/"), url.QueryEscape(q), s.perPage())
	var resp pexelsResponse
	if err := s.getJSON(ctx, endpoint, s.pexelsKey, &resp); err != nil {
		return nil, err
	}
	var hits []stockHit
	for _, p := range resp.Photos {
		if p.Src.Large2x != "" {
			hits = append(hits, stockHit{URL: p.Src.Large2x, Photographer: p.Photographer, Provider: "pexels"})
		}
	}
	return hits, nil
}

type unsplashResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	} `json:"results"`
}

func (s *StockFetcher) searchUnsplash(ctx context.Context, q string) ([]stockHit, error) {
	endpoint := fmt.Sprintf("%s/search/photos?query=%s&per_page=%d&orientation=landscape",
		strings.TrimRight(s.cfg.UnsplashURL, "/"), url.QueryEscape(q), s.perPage())
	var resp unsplashResponse
	if err := s.getJSON(ctx, endpoint, "Client-ID "+s.unsplashKey, &resp); err != nil {
		return nil, err
	}
	var hits []stockHit
	for _, r := range resp.Results {
		if r.URLs.Regular != "" {
			hits = append(hits, stockHit{URL: r.URLs.Regular, Photographer: r.User.Name, Provider: "unsplash"})
		}
	}
	return hits, nil
}

func (s *StockFetcher) perPage() int {
	if s.cfg.PerPage > 0 {
		return s.cfg.PerPage
	}
	return 5
}

func (s *StockFetcher) getJSON(ctx context.Context, endpoint, auth string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (s *StockFetcher) download(ctx context.Context, imageURL, out string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; vidpipe/1.0)")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("HTTP %d fetching image", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) <= minImageBytes {
		return errors.Errorf("response too small (%d bytes), likely an error page", len(data))
	}
	return os.WriteFile(out, data, 0644)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
