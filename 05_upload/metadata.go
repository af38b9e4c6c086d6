package upload

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"segment-video-pipeline/config"
	"segment-video-pipeline/types"

	"github.com/samber/lo"
)

const (
	maxTitle       = 100
	maxDescription = 5000
	maxTagChars    = 500
	shortsTag      = "#Shorts"
)

// Metadata is what gets sent with the video.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
	Language    string
}

// BuildMetadata drafts title, description and tags from the script.
// durations (segment id to narration seconds) feed long-form chapters and
// may be nil.
func BuildMetadata(cfg config.UploadConfig, script *types.Script, durations map[int]float64) *Metadata {
	return &Metadata{
		Title:       Title(script),
		Description: Description(cfg, script, durations),
		Tags:        Tags(cfg, script),
		CategoryID:  cfg.CategoryID,
		Privacy:     cfg.Privacy,
		Language:    cfg.DefaultLanguage,
	}
}

// Title clips to the platform limit and tags shorts when there is room.
func Title(script *types.Script) string {
	title := strings.Join(strings.Fields(script.Title), " ")
	if !script.IsLongform() && !strings.Contains(strings.ToLower(title), "#shorts") &&
		utf8.RuneCountInString(title)+1+len(shortsTag) <= maxTitle {
		title += " " + shortsTag
	}
	return clip(title, maxTitle)
}

// Description builds the video description: summary, context bullets,
// chapters and sources for long-form, then the footer and hashtags.
func Description(cfg config.UploadConfig, script *types.Script, durations map[int]float64) string {
	var parts []string
	if script.Description != "" {
		parts = append(parts, strings.TrimSpace(script.Description))
	} else if len(script.Segments) > 0 {
		parts = append(parts, strings.TrimSpace(script.Segments[0].Text))
	}

	contexts := lo.Uniq(lo.FilterMap(script.Segments, func(s types.Segment, _ int) (string, bool) {
		c := strings.TrimSpace(s.Context)
		return c, c != ""
	}))
	if len(contexts) > 0 {
		parts = append(parts, strings.Join(lo.Map(contexts, func(c string, _ int) string { return "• " + c }), "\n"))
	}

	if script.IsLongform() {
		if ch := Chapters(script, durations); len(ch) > 0 {
			parts = append(parts, "Chapters:\n"+strings.Join(ch, "\n"))
		}
		if refs := referenceLines(script); len(refs) > 0 {
			parts = append(parts, "Sources:\n"+strings.Join(refs, "\n"))
		}
	}
	if cfg.ChannelFooter != "" {
		parts = append(parts, strings.TrimSpace(cfg.ChannelFooter))
	}
	hashtags := lo.Map(cfg.Hashtags, func(h string, _ int) string {
		return "#" + strings.TrimPrefix(strings.TrimSpace(h), "#")
	})
	if !script.IsLongform() {
		hashtags = append(hashtags, shortsTag)
	}
	if hashtags = lo.Uniq(hashtags); len(hashtags) > 0 {
		parts = append(parts, strings.Join(hashtags, " "))
	}

	// angle brackets are rejected by the API
	desc := strings.NewReplacer("<", "", ">", "").Replace(strings.Join(parts, "\n\n"))
	return clip(desc, maxDescription)
}

// Chapters lists "m:ss Section" lines at each section change. The platform
// only shows chapters when there are at least three starting at 0:00.
func Chapters(script *types.Script, durations map[int]float64) []string {
	if durations == nil {
		return nil
	}
	var lines []string
	var at float64
	last := ""
	for _, seg := range script.Segments {
		if seg.Section != "" && seg.Section != last {
			lines = append(lines, fmt.Sprintf("%s %s", Timestamp(at), seg.Section))
			last = seg.Section
		}
		at += durations[seg.ID]
	}
	if len(lines) < 3 || !strings.HasPrefix(lines[0], "0:00 ") {
		return nil
	}
	return lines
}

// Timestamp formats seconds as m:ss, or h:mm:ss past the hour.
func Timestamp(sec float64) string {
	s := int(sec)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s%3600/60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func referenceLines(script *types.Script) []string {
	refs := append([]types.Reference{}, script.References...)
	for _, seg := range script.Segments {
		refs = append(refs, seg.References...)
	}
	refs = lo.UniqBy(refs, func(r types.Reference) string { return r.Label() + "|" + r.URL })
	return lo.FilterMap(refs, func(r types.Reference, _ int) (string, bool) {
		label := r.Label()
		if label == "" {
			return "", false
		}
		if r.URL != "" && r.URL != label {
			return "- " + label + ": " + r.URL, true
		}
		return "- " + label, true
	})
}

// Tags merges configured, script, title and footage query tags, without
// duplicates and within the platform's total length.
func Tags(cfg config.UploadConfig, script *types.Script) []string {
	var all []string
	all = append(all, cfg.BaseTags...)
	all = append(all, script.Tags...)
	all = append(all, titleWords(script.Title)...)
	for _, seg := range script.Segments {
		all = append(all, seg.FootageQuery)
	}
	all = lo.Map(all, func(t string, _ int) string {
		return strings.Join(strings.Fields(strings.ReplaceAll(t, ",", " ")), " ")
	})
	all = lo.UniqBy(lo.Compact(all), strings.ToLower)

	var out []string
	total := 0
	for _, t := range all {
		n := utf8.RuneCountInString(t)
		if strings.Contains(t, " ") {
			n += 2 // counted with quotes
		}
		if len(out) > 0 {
			n++ // separator
		}
		if total+n > maxTagChars {
			continue
		}
		total += n
		out = append(out, t)
	}
	return out
}

func titleWords(title string) []string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return lo.Filter(words, func(w string, _ int) bool { return utf8.RuneCountInString(w) > 3 })
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

// Print writes a human-readable preview of md.
func Print(w io.Writer, md *Metadata) {
	fmt.Fprintf(w, "Title:    %s\n", md.Title)
	fmt.Fprintf(w, "Privacy:  %s\n", md.Privacy)
	fmt.Fprintf(w, "Category: %s\n", md.CategoryID)
	fmt.Fprintf(w, "Tags:     %s\n", strings.Join(md.Tags, ", "))
	fmt.Fprintf(w, "\n%s\n", md.Description)
}
