package footage

import (
	"sort"
	"strings"

	"segment-video-pipeline/config"

	"github.com/samber/lo"
)

// Ranker scores search hits so clean B-roll sorts ahead of talking heads.
type Ranker struct {
	cfg config.FootageConfig
}

// NewRanker creates a Ranker from the footage keyword lists.
func NewRanker(cfg config.FootageConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// EnhanceQuery appends the configured required term when absent and the
// default suffix when the query names no good keyword.
func (r *Ranker) EnhanceQuery(query string) string {
	query = strings.TrimSpace(query)
	lower := strings.ToLower(query)
	if term := r.cfg.RequiredTerm; term != "" && !strings.Contains(lower, strings.ToLower(term)) {
		query += " " + term
	}
	hasGood := lo.SomeBy(r.cfg.GoodKeywords, func(kw string) bool {
		return strings.Contains(lower, strings.ToLower(kw))
	})
	if !hasGood && r.cfg.DefaultSuffix != "" {
		query += " " + r.cfg.DefaultSuffix
	}
	return query
}

// IsOfficial reports whether channel is one of the preferred channels.
func (r *Ranker) IsOfficial(channel string) bool {
	ch := strings.ToLower(channel)
	return lo.SomeBy(r.cfg.PreferredChannels, func(p string) bool {
		return p != "" && strings.Contains(ch, strings.ToLower(p))
	})
}

// Score rates a result between 0 and 1. Base 0.5, +0.25 for a preferred
// channel, +0.08 per good keyword and -0.25 per bad keyword in the title.
func (r *Ranker) Score(title, channel string) float64 {
	t := strings.ToLower(title)
	score := 0.5
	if r.IsOfficial(channel) {
		score += 0.25
	}
	for _, kw := range r.cfg.GoodKeywords {
		if strings.Contains(t, strings.ToLower(kw)) {
			score += 0.08
		}
	}
	for _, kw := range r.cfg.BadKeywords {
		if strings.Contains(t, strings.ToLower(kw)) {
			score -= 0.25
		}
	}
	return min(max(score, 0), 1)
}

// Rank scores cands, drops those under the minimum score or over the
// maximum source length, and sorts best first. start is the offset the
// segment wants; sources shorter than it are dropped too.
func (r *Ranker) Rank(cands []Candidate, start float64) []Candidate {
	scored := lo.Map(cands, func(c Candidate, _ int) Candidate {
		c.Score = r.Score(c.Title, c.Channel)
		c.Official = r.IsOfficial(c.Channel)
		return c
	})
	kept := lo.Filter(scored, func(c Candidate, _ int) bool {
		if c.Score < r.cfg.MinScore {
			return false
		}
		if c.Duration > 0 {
			if r.cfg.MaxSourceDuration > 0 && c.Duration > r.cfg.MaxSourceDuration {
				return false
			}
			if start > 0 && c.Duration <= start {
				return false
			}
		}
		return true
	})
	kept = lo.UniqBy(kept, func(c Candidate) string { return c.ID })
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}
