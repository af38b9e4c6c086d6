package footage

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"segment-video-pipeline/media"

	"github.com/pkg/errors"
)

// Candidate is one search hit.
type Candidate struct {
	Title    string
	ID       string
	Channel  string
	Duration float64 // 0 when unknown
	Score    float64
	Official bool
}

// URL is the watch URL for the candidate.
func (c Candidate) URL() string { return WatchURL(c.ID) }

// Source finds and fetches online footage.
type Source interface {
	Search(ctx context.Context, query string, n int) ([]Candidate, error)
	Download(ctx context.Context, url string, start, length float64, out string) error
}

// YTDLP drives the yt-dlp binary.
type YTDLP struct {
	Bin    string
	Format string
}

const printTemplate = "%(title)s|||%(id)s|||%(channel)s|||%(duration)s"

func (y *YTDLP) bin() string {
	if y.Bin == "" {
		return "yt-dlp"
	}
	return y.Bin
}

// Search runs a ytsearch for query and returns up to n results.
func (y *YTDLP) Search(ctx context.Context, query string, n int) ([]Candidate, error) {
	out, err := media.Output(ctx, y.bin(), SearchArgs(query, n)...)
	if err != nil {
		return nil, errors.Wrap(err, "yt-dlp search")
	}
	return ParseSearchOutput(string(out)), nil
}

// Download fetches url to out, cutting length seconds from start when
// length is positive.
func (y *YTDLP) Download(ctx context.Context, url string, start, length float64, out string) error {
	if err := media.Run(ctx, y.bin(), DownloadArgs(url, y.Format, start, length, out)...); err != nil {
		return errors.Wrap(err, "yt-dlp download")
	}
	return nil
}

// SearchArgs is the argv for a metadata-only search.
func SearchArgs(query string, n int) []string {
	return []string{
		"--no-warnings",
		fmt.Sprintf("ytsearch%d:%s", n, query),
		"--print", printTemplate,
		"--no-download",
	}
}

// DownloadArgs is the argv for fetching url into out. A positive length
// limits the download to [start, start+length].
func DownloadArgs(url, format string, start, length float64, out string) []string {
	args := []string{"--no-warnings", "--no-playlist"}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, "--merge-output-format", "mp4")
	if length > 0 {
		args = append(args, "--download-sections", fmt.Sprintf("*%s-%s", media.Secs(start), media.Secs(start+length)))
	}
	return append(args, "-o", out, url)
}

// ParseSearchOutput reads the --print lines. Lines that do not carry all four
// fields are ignored.
func ParseSearchOutput(out string) []Candidate {
	var cands []Candidate
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "|||")
		if len(parts) < 4 || parts[1] == "" {
			continue
		}
		dur, _ := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		cands = append(cands, Candidate{
			Title:    parts[0],
			ID:       parts[1],
			Channel:  parts[2],
			Duration: dur,
		})
	}
	return cands
}

// WatchURL turns a video id into a YouTube URL.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// VideoID extracts the id from the common YouTube URL shapes. Anything else is
// returned unchanged.
func VideoID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	path := strings.Trim(u.Path, "/")
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		return path
	case strings.HasPrefix(path, "shorts/"), strings.HasPrefix(path, "embed/"), strings.HasPrefix(path, "live/"):
		return path[strings.Index(path, "/")+1:]
	}
	return raw
}
