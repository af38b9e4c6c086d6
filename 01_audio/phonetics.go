package audio

import (
	"regexp"
	"sort"
	"strings"

	"segment-video-pipeline/types"
)

// Phonetics rewrites names into spellings the TTS engine pronounces
// correctly. Longer terms are replaced first, so "max verstappen" wins over
// "verstappen". Matching ignores case and respects word boundaries.
type Phonetics struct {
	terms []phoneticTerm
}

type phoneticTerm struct {
	term   string
	re     *regexp.Regexp
	spoken string
}

// Replacement is one substitution made by Apply.
type Replacement struct {
	Found  string
	Spoken string
}

// NewPhonetics compiles the term to spelling map from audio.phonetics.
func NewPhonetics(m map[string]string) *Phonetics {
	p := &Phonetics{}
	for term, spoken := range m {
		term = strings.TrimSpace(term)
		if term == "" || spoken == "" {
			continue
		}
		p.terms = append(p.terms, phoneticTerm{
			term:   term,
			re:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`),
			spoken: spoken,
		})
	}
	sort.Slice(p.terms, func(i, j int) bool {
		if len(p.terms[i].term) != len(p.terms[j].term) {
			return len(p.terms[i].term) > len(p.terms[j].term)
		}
		return p.terms[i].term < p.terms[j].term
	})
	return p
}

// Empty reports whether there is nothing to replace.
func (p *Phonetics) Empty() bool { return p == nil || len(p.terms) == 0 }

// Apply returns text with every known term replaced.
func (p *Phonetics) Apply(text string) (string, []Replacement) {
	if p.Empty() {
		return text, nil
	}
	var reps []Replacement
	for _, t := range p.terms {
		text = t.re.ReplaceAllStringFunc(text, func(found string) string {
			reps = append(reps, Replacement{Found: found, Spoken: t.spoken})
			return t.spoken
		})
	}
	return text, reps
}

// Annotate sets TextPhonetic on each segment whose text contains a known
// term. Other segments are left alone. It returns the replacements per
// segment id.
func (p *Phonetics) Annotate(script *types.Script) map[int][]Replacement {
	out := make(map[int][]Replacement)
	for i := range script.Segments {
		seg := &script.Segments[i]
		spoken, reps := p.Apply(seg.Text)
		if len(reps) == 0 {
			continue
		}
		seg.TextPhonetic = spoken
		out[seg.ID] = reps
	}
	return out
}
