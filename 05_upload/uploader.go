package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	audio "segment-video-pipeline/01_audio"
	"segment-video-pipeline/config"
	"segment-video-pipeline/media"
	"segment-video-pipeline/project"
	"segment-video-pipeline/types"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

var log = logrus.WithField("stage", "upload")

var privacyLevels = []string{"private", "unlisted", "public"}

// Options are the upload flags from the command line.
type Options struct {
	DryRun        bool
	Privacy       string
	AIDescription bool
	Force         bool
	NoCaptions    bool
	Out           io.Writer // dry-run preview; defaults to stdout
}

// Publisher is the slice of the YouTube API the stage needs.
type Publisher interface {
	InsertVideo(ctx context.Context, video *youtube.Video, r io.Reader) (*youtube.Video, error)
	InsertCaption(ctx context.Context, videoID, language, name string, r io.Reader) error
	SetThumbnail(ctx context.Context, videoID string, r io.Reader) error
}

// Uploader publishes output/final.mp4 with metadata drafted from the script.
type Uploader struct {
	cfg       *config.Config
	connect   func(ctx context.Context) (Publisher, error)
	describer Describer
	probe     media.Prober
}

// New creates an Uploader that authenticates with OAuth and talks to the
// YouTube Data API.
func New(cfg *config.Config) *Uploader {
	u := &Uploader{cfg: cfg, probe: media.Probe}
	u.connect = func(ctx context.Context) (Publisher, error) {
		client, err := NewOAuth(cfg).Client(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "youtube auth")
		}
		yt, err := NewYouTube(ctx, client)
		if err != nil {
			return nil, err
		}
		yt.Notify = cfg.Upload.NotifySubscribers
		return yt, nil
	}
	return u
}

// Run publishes output/final.mp4 and records the result in
// upload_info.json. A dry run only prints the metadata.
func (u *Uploader) Run(ctx context.Context, proj *project.Project, script *types.Script, opts Options) (*types.UploadRecord, error) {
	final := proj.FinalPath()
	if !project.Exists(final) {
		return nil, errors.Errorf("%s not found; run assemble first", final)
	}
	prev, err := proj.LoadUploadRecord()
	if err != nil {
		return nil, err
	}
	if prev != nil && !opts.Force && !opts.DryRun {
		return nil, errors.Errorf("already uploaded as %s (%s); use --force to upload again", prev.VideoID, prev.URL)
	}

	durations, missing, err := audio.Durations(proj, script, u.probe)
	switch {
	case err != nil:
		log.Warnf("no chapter timings: %v", err)
		durations = nil
	case len(missing) > 0:
		durations = nil
	}
	md := BuildMetadata(u.cfg.Upload, script, durations)
	if opts.Privacy != "" {
		md.Privacy = opts.Privacy
	}
	if !lo.Contains(privacyLevels, md.Privacy) {
		return nil, errors.Errorf("invalid privacy %q (want private, unlisted or public)", md.Privacy)
	}

	if opts.DryRun {
		out := opts.Out
		if out == nil {
			out = os.Stdout
		}
		if prev != nil {
			fmt.Fprintf(out, "Note: already uploaded as %s\n", prev.VideoID)
		}
		if opts.AIDescription {
			fmt.Fprintln(out, "Note: --ai-description is skipped in a dry run")
		}
		Print(out, md)
		return nil, nil
	}

	if opts.AIDescription {
		u.polish(ctx, script, md)
	}

	info, err := u.probe(final)
	if err != nil {
		return nil, errors.Wrap(err, "probe final video")
	}

	pub, err := u.connect(ctx)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(final)
	if err != nil {
		return nil, errors.Wrap(err, "open video file")
	}
	defer f.Close()
	if fi, err := f.Stat(); err == nil {
		log.Infof("uploading %q (%.1f MB)", md.Title, float64(fi.Size())/1024/1024)
	}

	uploaded, err := pub.InsertVideo(ctx, u.video(md), f)
	if err != nil {
		return nil, errors.Wrap(apiError(err), "youtube upload")
	}

	rec := &types.UploadRecord{
		VideoID:      uploaded.Id,
		URL:          WatchURL(uploaded.Id, !script.IsLongform()),
		Title:        md.Title,
		Privacy:      md.Privacy,
		Format:       script.EffectiveFormat(),
		UploadedAt:   time.Now().UTC().Format(time.RFC3339),
		SegmentCount: len(script.Segments),
		TagCount:     len(md.Tags),
		DurationSec:  info.Duration,
		RunID:        uuid.NewString()[:8],
	}
	log.Infof("uploaded %s", rec.URL)

	if script.IsLongform() && !opts.NoCaptions {
		rec.CaptionsUploaded = u.sendFile(proj.CaptionsPath(), "captions", func(r io.Reader) error {
			return pub.InsertCaption(ctx, rec.VideoID, md.Language, "English", r)
		})
	}
	rec.ThumbnailUploaded = u.sendFile(proj.ThumbnailPath(), "thumbnail", func(r io.Reader) error {
		return pub.SetThumbnail(ctx, rec.VideoID, r)
	})

	if err := proj.SaveUploadRecord(rec); err != nil {
		return rec, errors.Wrap(err, "write upload record")
	}
	return rec, nil
}

// polish swaps in a model-written description, keeping the draft on any
// failure.
func (u *Uploader) polish(ctx context.Context, script *types.Script, md *Metadata) {
	d := u.describer
	if d == nil {
		key, err := u.cfg.Credential("google_ai")
		if err != nil {
			log.Warnf("ai description skipped: %v", err)
			return
		}
		d = &Gemini{APIKey: key, Model: u.cfg.Upload.GeminiModel}
	}
	text, err := d.Describe(ctx, script, md.Description)
	if err != nil {
		log.Warnf("ai description failed, keeping draft: %v", err)
		return
	}
	md.Description = text
	log.Info("description rewritten")
}

// sendFile uploads an optional side file. Its absence or failure does not
// undo the video upload.
func (u *Uploader) sendFile(path, what string, send func(io.Reader) error) bool {
	if !project.Exists(path) {
		log.Infof("no %s at %s", what, path)
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		log.Warnf("%s: %v", what, err)
		return false
	}
	defer f.Close()
	if err := send(f); err != nil {
		log.Warnf("%s upload failed: %v", what, apiError(err))
		return false
	}
	log.Infof("%s uploaded", what)
	return true
}

func (u *Uploader) video(md *Metadata) *youtube.Video {
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                md.Title,
			Description:          md.Description,
			Tags:                 md.Tags,
			CategoryId:           md.CategoryID,
			DefaultLanguage:      md.Language,
			DefaultAudioLanguage: md.Language,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           md.Privacy,
			SelfDeclaredMadeForKids: u.cfg.Upload.MadeForKids,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}
}

// WatchURL is the public link for an uploaded video.
func WatchURL(id string, short bool) string {
	if short {
		return "https://youtube.com/shorts/" + id
	}
	return "https://www.youtube.com/watch?v=" + id
}

func apiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return errors.Errorf("api error %d: %s", gerr.Code, gerr.Message)
	}
	return err
}

// YouTube is the Data API v3 implementation of Publisher.
type YouTube struct {
	svc    *youtube.Service
	Notify bool
}

// NewYouTube wraps the YouTube Data API service.
func NewYouTube(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*YouTube, error) {
	svc, err := youtube.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)...)
	if err != nil {
		return nil, errors.Wrap(err, "youtube service")
	}
	return &YouTube{svc: svc}, nil
}

const chunkSize = 8 * 1024 * 1024

// InsertVideo uploads the video in resumable chunks.
func (y *YouTube) InsertVideo(ctx context.Context, video *youtube.Video, r io.Reader) (*youtube.Video, error) {
	call := y.svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(y.Notify).
		Media(r, googleapi.ChunkSize(chunkSize)).
		ProgressUpdater(func(current, total int64) {
			log.Debugf("sent %.1f MB", float64(current)/1024/1024)
		})
	return call.Context(ctx).Do()
}

// InsertCaption attaches an SRT track to videoID.
func (y *YouTube) InsertCaption(ctx context.Context, videoID, language, name string, r io.Reader) error {
	caption := &youtube.Caption{Snippet: &youtube.CaptionSnippet{
		VideoId:  videoID,
		Language: language,
		Name:     name,
	}}
	_, err := y.svc.Captions.Insert([]string{"snippet"}, caption).Media(r).Context(ctx).Do()
	return err
}

// SetThumbnail replaces the thumbnail of videoID.
func (y *YouTube) SetThumbnail(ctx context.Context, videoID string, r io.Reader) error {
	_, err := y.svc.Thumbnails.Set(videoID).Media(r).Context(ctx).Do()
	return err
}
