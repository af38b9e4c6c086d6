package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"segment-video-pipeline/types"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	ScriptFile     = "script.json"
	UploadInfoFile = "upload_info.json"

	AudioDir   = "audio"
	FootageDir = "footage"
	PreviewDir = "previews"
	OutputDir  = "output"
	TempDir    = "temp"
)

// AllSegments selects every segment in Select.
const AllSegments = -1

var (
	log      = logrus.WithField("stage", "project")
	validate = validator.New()
)

// ErrNotFound is returned when a project or its script does not exist.
var ErrNotFound = errors.New("not found")

// Project is one directory under the projects root. It is the only store the
// pipeline has.
type Project struct {
	Name string
	Dir  string

	mu sync.Mutex
}

// Open returns the project at dir. The directory must already exist. Dir is
// made absolute so paths handed to ffmpeg do not depend on where they are read.
func Open(dir string) (*Project, error) {
	dir, err := absDir(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "project %s", dir)
		}
		return nil, errors.Wrapf(err, "stat project %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("project %s is not a directory", dir)
	}
	return &Project{Name: filepath.Base(dir), Dir: dir}, nil
}

// Create makes a project skeleton with a template script. It refuses to touch
// an existing script.json.
func Create(dir, format string) (*Project, error) {
	dir, err := absDir(dir)
	if err != nil {
		return nil, err
	}
	p := &Project{Name: filepath.Base(dir), Dir: dir}
	if Exists(p.ScriptPath()) {
		return nil, errors.Errorf("project %s already has a %s", dir, ScriptFile)
	}
	if err := p.EnsureDirs(); err != nil {
		return nil, err
	}
	if err := p.SaveScript(Template(p.Name, format)); err != nil {
		return nil, err
	}
	log.WithField("project", p.Name).Infof("created %s", dir)
	return p, nil
}

func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "resolve project dir %s", dir)
	}
	return abs, nil
}

// Template is the starter script written by Create.
func Template(title, format string) *types.Script {
	s := &types.Script{
		Title:          title,
		DurationTarget: 60,
		Format:         format,
		Segments: []types.Segment{
			{ID: 0, Text: "Opening line of narration.", Context: "hook", FootageQuery: "search terms for the opening shot"},
			{ID: 1, Text: "Second line of narration.", FootageQuery: "search terms for the second shot"},
		},
	}
	if format == types.FormatLongform {
		s.DurationTarget = 600
		s.Segments[0].Section = "Introduction"
		s.Segments[1].Section = "Introduction"
	}
	return s
}

// EnsureDirs creates the stage directories.
func (p *Project) EnsureDirs() error {
	for _, d := range []string{AudioDir, FootageDir, PreviewDir, OutputDir, TempDir} {
		if err := os.MkdirAll(filepath.Join(p.Dir, d), 0755); err != nil {
			return errors.Wrapf(err, "create %s", d)
		}
	}
	return nil
}

// Paths of the project-level files.
func (p *Project) ScriptPath() string     { return filepath.Join(p.Dir, ScriptFile) }
func (p *Project) UploadInfoPath() string { return filepath.Join(p.Dir, UploadInfoFile) }
func (p *Project) FinalPath() string      { return filepath.Join(p.Dir, OutputDir, "final.mp4") }
func (p *Project) CaptionsPath() string   { return filepath.Join(p.Dir, OutputDir, "captions.srt") }
func (p *Project) ThumbnailPath() string  { return filepath.Join(p.Dir, OutputDir, "thumbnail.jpg") }

// AudioPath is audio/segment_NN.mp3.
func (p *Project) AudioPath(id int) string {
	return filepath.Join(p.Dir, AudioDir, SegmentFile(id, "mp3"))
}

// PreviewPath is previews/segment_NN.jpg.
func (p *Project) PreviewPath(id int) string {
	return filepath.Join(p.Dir, PreviewDir, SegmentFile(id, "jpg"))
}

// SegmentRenderPath is the per-segment intermediate video used by assembly.
func (p *Project) SegmentRenderPath(id int) string {
	return filepath.Join(p.Dir, TempDir, SegmentFile(id, "mp4"))
}

// FootagePath honours a segment's recorded footage name and falls back to
// the id-derived default.
func (p *Project) FootagePath(seg *types.Segment) string {
	if seg.Footage != "" {
		if filepath.IsAbs(seg.Footage) {
			return seg.Footage
		}
		return filepath.Join(p.Dir, FootageDir, seg.Footage)
	}
	return filepath.Join(p.Dir, FootageDir, SegmentFile(seg.ID, "mp4"))
}

// SegmentFile is the id-derived artifact name, e.g. segment_03.mp3.
func SegmentFile(id int, ext string) string {
	return fmt.Sprintf("segment_%02d.%s", id, ext)
}

// Exists reports whether path is a non-empty regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// LoadScript reads, validates and orders script.json.
func (p *Project) LoadScript() (*types.Script, error) {
	data, err := os.ReadFile(p.ScriptPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s in %s", ScriptFile, p.Dir)
		}
		return nil, errors.Wrap(err, "read script")
	}
	var s types.Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "parse %s", p.ScriptPath())
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	NormalizeIDs(&s)
	return &s, nil
}

// Validate checks the fields every stage relies on.
func Validate(s *types.Script) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(err, "validate script")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		msgs = append(msgs, msg)
	}
	return errors.Errorf("invalid script: %s", strings.Join(msgs, "; "))
}

// NormalizeIDs makes segment ids usable as artifact keys. Missing or
// duplicated ids are replaced by positions; otherwise segments are sorted by
// id, which is narration and concatenation order.
func NormalizeIDs(s *types.Script) {
	seen := make(map[int]bool, len(s.Segments))
	valid := true
	for _, seg := range s.Segments {
		if seg.ID < 0 || seen[seg.ID] {
			valid = false
			break
		}
		seen[seg.ID] = true
	}
	if !valid {
		log.Warn("segment ids missing or duplicated, renumbering by position")
		for i := range s.Segments {
			s.Segments[i].ID = i
		}
		return
	}
	sort.SliceStable(s.Segments, func(i, j int) bool {
		return s.Segments[i].ID < s.Segments[j].ID
	})
}

// Select returns pointers to the segments a stage should touch. id ==
// AllSegments selects everything.
func Select(s *types.Script, id int) ([]*types.Segment, error) {
	if id == AllSegments {
		out := make([]*types.Segment, len(s.Segments))
		for i := range s.Segments {
			out[i] = &s.Segments[i]
		}
		return out, nil
	}
	seg, ok := s.Segment(id)
	if !ok {
		return nil, errors.Errorf("segment %d not in script (%d segments)", id, len(s.Segments))
	}
	return []*types.Segment{seg}, nil
}

// SaveScript writes script.json atomically. Safe for concurrent callers.
func (p *Project) SaveScript(s *types.Script) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return writeJSON(p.ScriptPath(), s)
}

// LoadUploadRecord returns nil, nil when the project has not been uploaded.
func (p *Project) LoadUploadRecord() (*types.UploadRecord, error) {
	data, err := os.ReadFile(p.UploadInfoPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read upload info")
	}
	var rec types.UploadRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "parse upload info")
	}
	return &rec, nil
}

// SaveUploadRecord writes upload_info.json.
func (p *Project) SaveUploadRecord(rec *types.UploadRecord) error {
	return writeJSON(p.UploadInfoPath(), rec)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode json")
	}
	data = append(data, '\n')
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "replace %s", path)
	}
	return nil
}
