package footage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"segment-video-pipeline/config"
	"segment-video-pipeline/media"
	"segment-video-pipeline/project"
	"segment-video-pipeline/types"
	"segment-video-pipeline/worker"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("stage", "footage")

// Options are the per-run overrides from the command line.
type Options struct {
	Segment    int
	Workers    int
	Sequential bool
	Force      bool
	URL        string // only with a single segment
	Query      string // only with a single segment
}

// Downloader resolves footage for each segment: ranked search results
// first, then a stock still rendered as a Ken Burns clip.
type Downloader struct {
	cfg      *config.Config
	src      Source
	stock    StockSource
	ranker   *Ranker
	kenBurns func(ctx context.Context, still, out string, p config.Profile, duration, zoom float64) error
	probe    media.Prober

	mu sync.Mutex // guards segment mutation + script save
}

// New creates a Downloader. stock may be nil to disable the fallback.
func New(cfg *config.Config, src Source, stock StockSource) *Downloader {
	d := &Downloader{
		cfg:      cfg,
		src:      src,
		ranker:   NewRanker(cfg.Footage),
		kenBurns: KenBurns,
		probe:    media.Probe,
	}
	if stock != nil && cfg.Footage.StockFallback {
		d.stock = stock
	}
	return d
}

// Ranker exposes the scoring rules used by the stage.
func (d *Downloader) Ranker() *Ranker { return d.ranker }

// Run fetches footage for the selected segments and records the result in
// script.json.
func (d *Downloader) Run(ctx context.Context, proj *project.Project, script *types.Script, opts Options) (*worker.Summary, error) {
	if (opts.URL != "" || opts.Query != "") && opts.Segment == project.AllSegments {
		return nil, errors.New("--url and --query need --segment")
	}
	if (opts.URL != "" || opts.Query != "") && !opts.Force {
		log.WithField("segment", opts.Segment).Info("explicit source given, replacing existing footage")
		opts.Force = true
	}
	if err := os.MkdirAll(filepath.Join(proj.Dir, project.FootageDir), 0755); err != nil {
		return nil, errors.Wrap(err, "create footage dir")
	}
	segs, err := project.Select(script, opts.Segment)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = d.cfg.Footage.Workers
	}
	if opts.Sequential {
		workers = 1
	}
	log.Infof("resolving footage for %d segment(s), %d worker(s)", len(segs), workers)

	tasks := make([]worker.Task, len(segs))
	for i, seg := range segs {
		seg := seg
		tasks[i] = worker.Task{ID: seg.ID, Run: func(ctx context.Context) (worker.Status, string, error) {
			st, detail, err := d.segment(ctx, proj, script, seg, opts)
			l := log.WithField("segment", seg.ID)
			if err != nil {
				l.Errorf("failed: %v", err)
			} else {
				l.Infof("%s %s", st, detail)
			}
			return st, detail, err
		}}
	}
	sum := worker.Run(ctx, workers, tasks)
	log.Infof("footage: %s", sum)
	return sum, nil
}

func (d *Downloader) segment(ctx context.Context, proj *project.Project, script *types.Script, seg *types.Segment, opts Options) (worker.Status, string, error) {
	out := proj.FootagePath(seg)
	if !opts.Force && project.Exists(out) {
		return worker.StatusCached, filepath.Base(out), nil
	}
	if filepath.Ext(out) != ".mp4" {
		out = filepath.Join(proj.Dir, project.FootageDir, project.SegmentFile(seg.ID, "mp4"))
	}
	tmp := filepath.Join(filepath.Dir(out), ".temp_"+filepath.Base(out))
	defer os.Remove(tmp)

	start := float64(seg.FootageStart)
	length := d.cfg.Footage.ClipMaxSec

	if opts.URL != "" {
		url := opts.URL
		if id := VideoID(url); id != url {
			url = WatchURL(id)
		}
		if err := d.fetch(ctx, url, start, length, tmp, out); err != nil {
			return worker.StatusFailed, "", err
		}
		d.commit(proj, script, func() { setFootage(seg, out, url, length > 0) })
		return worker.StatusDone, url, nil
	}

	query := firstNonEmpty(opts.Query, seg.FootageQuery, truncate(seg.Text, 50))
	cands, err := d.Search(ctx, query, start)
	if err != nil {
		log.WithField("segment", seg.ID).Warnf("search failed: %v", err)
	}
	limit := min(len(cands), max(d.cfg.Footage.MaxCandidates, 1))
	for _, c := range cands[:limit] {
		if err := d.fetch(ctx, c.URL(), start, length, tmp, out); err != nil {
			if ctx.Err() != nil {
				return worker.StatusFailed, "", ctx.Err()
			}
			log.WithField("segment", seg.ID).Warnf("candidate %s failed: %v", c.ID, err)
			continue
		}
		d.commit(proj, script, func() { setFootage(seg, out, c.URL(), length > 0) })
		return worker.StatusDone, fmt.Sprintf("%.2f %s", c.Score, truncate(c.Title, 50)), nil
	}

	if d.stock == nil {
		if len(cands) == 0 {
			return worker.StatusFailed, "", errors.Errorf("no usable search results for %q", query)
		}
		return worker.StatusFailed, "", errors.Errorf("all %d candidates failed", limit)
	}
	if err := d.stockClip(ctx, proj, script, seg, query, tmp, out); err != nil {
		return worker.StatusFailed, "", errors.Wrap(err, "stock fallback")
	}
	d.commit(proj, script, func() { setFootage(seg, out, "", true) })
	return worker.StatusDone, "stock image", nil
}

// Search returns ranked candidates for query.
func (d *Downloader) Search(ctx context.Context, query string, start float64) ([]Candidate, error) {
	enhanced := d.ranker.EnhanceQuery(query)
	cands, err := d.src.Search(ctx, enhanced, max(d.cfg.Footage.SearchResults, 1))
	if err != nil {
		return nil, err
	}
	return d.ranker.Rank(cands, start), nil
}

func (d *Downloader) fetch(ctx context.Context, url string, start, length float64, tmp, out string) error {
	os.Remove(tmp)
	if err := d.src.Download(ctx, url, start, length, tmp); err != nil {
		return err
	}
	if !project.Exists(tmp) {
		return errors.New("download produced no file")
	}
	return errors.Wrap(os.Rename(tmp, out), "move footage into place")
}

func (d *Downloader) stockClip(ctx context.Context, proj *project.Project, script *types.Script, seg *types.Segment, query, tmp, out string) error {
	still := filepath.Join(filepath.Dir(out), fmt.Sprintf(".stock_%02d.jpg", seg.ID))
	defer os.Remove(still)
	if err := d.stock.Fetch(ctx, query, still); err != nil {
		return err
	}
	duration := d.cfg.Footage.ClipMaxSec
	if info, err := d.probe(proj.AudioPath(seg.ID)); err == nil && info.Duration > 0 {
		duration = info.Duration + 0.5
	}
	if duration <= 0 {
		duration = 10
	}
	profile := d.cfg.Video.Short
	if script.IsLongform() {
		profile = d.cfg.Video.LongformHD
	}
	if err := d.kenBurns(ctx, still, tmp, profile, duration, d.cfg.Footage.KenBurnsZoom); err != nil {
		return err
	}
	if !project.Exists(tmp) {
		return errors.New("ken burns render produced no file")
	}
	return errors.Wrap(os.Rename(tmp, out), "move footage into place")
}

// commit applies a segment mutation and saves the script under one lock so
// concurrent workers never write a half-updated script.
func (d *Downloader) commit(proj *project.Project, script *types.Script, mutate func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mutate()
	if err := proj.SaveScript(script); err != nil {
		log.Errorf("save script: %v", err)
	}
}

func setFootage(seg *types.Segment, out, url string, trimmed bool) {
	seg.Footage = filepath.Base(out)
	seg.FootageURL = url
	seg.FootageTrimmed = trimmed
}

// List writes one line per segment with its footage status.
func List(w io.Writer, proj *project.Project, script *types.Script) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tFOOTAGE\tQUERY")
	for i := range script.Segments {
		seg := &script.Segments[i]
		path := proj.FootagePath(seg)
		status := "MISSING"
		if project.Exists(path) {
			status = "OK"
			if seg.FootageTrimmed {
				status = "OK (trimmed)"
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", seg.ID, status, filepath.Base(path), truncate(seg.FootageQuery, 50))
	}
	return tw.Flush()
}

// PrintCandidates writes a ranked search listing.
func PrintCandidates(w io.Writer, cands []Candidate) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tCHANNEL\tTITLE\tURL")
	for _, c := range cands {
		mark := " "
		if c.Official {
			mark = "*"
		}
		fmt.Fprintf(tw, "%.2f%s\t%s\t%s\t%s\n", c.Score, mark, truncate(c.Channel, 23), truncate(c.Title, 50), c.URL())
	}
	fmt.Fprintln(tw, "* = preferred channel")
	return tw.Flush()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
