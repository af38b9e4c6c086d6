package types

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	FormatShort    = "short"
	FormatLongform = "longform"
)

// Script is the project's script.json. Fields not modelled here are kept in
// Extra and written back unchanged.
type Script struct {
	Title          string      `json:"title" validate:"required"`
	DurationTarget float64     `json:"duration_target,omitempty"`
	Format         string      `json:"format,omitempty" validate:"omitempty,oneof=short longform"`
	Host           string      `json:"host,omitempty"`
	Voice          string      `json:"voice,omitempty"`
	Description    string      `json:"description,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	References     []Reference `json:"references,omitempty"`
	Segments       []Segment   `json:"segments" validate:"required,min=1,dive"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Segment is one narrated unit. Later stages fill in Footage, FootageURL and
// FootageTrimmed. TextPhonetic, when set, is what the TTS engine reads; Text
// is still used for captions and metadata.
type Segment struct {
	ID                int         `json:"id"`
	Text              string      `json:"text" validate:"required"`
	TextPhonetic      string      `json:"text_phonetic,omitempty"`
	Context           string      `json:"context,omitempty"`
	FootageQuery      string      `json:"footage_query,omitempty"`
	FootageStart      Seconds     `json:"footage_start,omitempty"`
	Footage           string      `json:"footage,omitempty"`
	FootageURL        string      `json:"footage_url,omitempty"`
	FootageTrimmed    bool        `json:"footage_trimmed,omitempty"`
	Section           string      `json:"section,omitempty"`
	References        []Reference `json:"references,omitempty"`
	ReferencesSummary string      `json:"references_summary,omitempty"`
	Emotion           string      `json:"emotion,omitempty"`
	Host              string      `json:"host,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Reference is a citation. script.json may hold either a bare string or an
// object; a bare string is kept as Title.
type Reference struct {
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	Source string `json:"source,omitempty"`
}

// UploadRecord is written to upload_info.json after a successful upload.
type UploadRecord struct {
	VideoID           string  `json:"video_id"`
	URL               string  `json:"url"`
	Title             string  `json:"title"`
	Privacy           string  `json:"privacy"`
	Format            string  `json:"format"`
	UploadedAt        string  `json:"uploaded_at"`
	SegmentCount      int     `json:"segment_count"`
	TagCount          int     `json:"tag_count"`
	DurationSec       float64 `json:"duration_sec"`
	CaptionsUploaded  bool    `json:"captions_uploaded"`
	ThumbnailUploaded bool    `json:"thumbnail_uploaded"`
	RunID             string  `json:"run_id"`
}

// SpokenText is the text sent to the TTS engine.
func (s *Segment) SpokenText() string {
	if strings.TrimSpace(s.TextPhonetic) != "" {
		return s.TextPhonetic
	}
	return s.Text
}

// IsLongform reports whether the script renders as 16:9. An explicit format
// wins; otherwise any segment carrying a section marks it long-form.
func (s *Script) IsLongform() bool {
	switch s.Format {
	case FormatLongform:
		return true
	case FormatShort:
		return false
	}
	for _, seg := range s.Segments {
		if seg.Section != "" {
			return true
		}
	}
	return false
}

// EffectiveFormat returns FormatShort or FormatLongform.
func (s *Script) EffectiveFormat() string {
	if s.IsLongform() {
		return FormatLongform
	}
	return FormatShort
}

// Segment returns the segment with the given id.
func (s *Script) Segment(id int) (*Segment, bool) {
	for i := range s.Segments {
		if s.Segments[i].ID == id {
			return &s.Segments[i], true
		}
	}
	return nil, false
}

// Label is the display form of a reference.
func (r Reference) Label() string {
	switch {
	case r.Title != "" && r.Source != "":
		return r.Title + " (" + r.Source + ")"
	case r.Title != "":
		return r.Title
	case r.Source != "":
		return r.Source
	}
	return r.URL
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = Reference{Title: s}
		return nil
	}
	type plain Reference
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Wrap(err, "reference must be a string or {title,url,source}")
	}
	*r = Reference(p)
	return nil
}

// Seconds is an offset into source footage. It accepts a JSON number or a
// "m:ss" / "h:mm:ss" string.
type Seconds float64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*s = Seconds(f)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.Errorf("footage_start: want number or timestamp, got %s", data)
	}
	v, err := ParseTimestamp(str)
	if err != nil {
		return err
	}
	*s = Seconds(v)
	return nil
}

// ParseTimestamp parses "90", "1:30" or "0:01:30" into seconds.
func ParseTimestamp(str string) (float64, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return 0, nil
	}
	var total float64
	for _, part := range strings.Split(str, ":") {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, errors.Errorf("invalid timestamp %q", str)
		}
		total = total*60 + v
	}
	return total, nil
}

var scriptKeys = []string{
	"title", "duration_target", "format", "host", "voice", "description",
	"tags", "references", "segments",
}

var segmentKeys = []string{
	"id", "text", "text_phonetic", "context", "footage_query", "footage_start", "footage",
	"footage_url", "footage_trimmed", "section", "references",
	"references_summary", "emotion", "host",
}

func (s *Script) UnmarshalJSON(data []byte) error {
	type plain Script
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownKeys(data, scriptKeys)
	if err != nil {
		return err
	}
	*s = Script(p)
	s.Extra = extra
	return nil
}

func (s Script) MarshalJSON() ([]byte, error) {
	type plain Script
	return withExtra(plain(s), s.Extra)
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	type plain Segment
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownKeys(data, segmentKeys)
	if err != nil {
		return err
	}
	*s = Segment(p)
	s.Extra = extra
	return nil
}

func (s Segment) MarshalJSON() ([]byte, error) {
	type plain Segment
	return withExtra(plain(s), s.Extra)
}

func unknownKeys(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func withExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}
