package main

import (
	"context"
	"fmt"
	"time"

	audio "segment-video-pipeline/01_audio"
	footage "segment-video-pipeline/02_footage"
	preview "segment-video-pipeline/03_preview"
	assemble "segment-video-pipeline/04_assemble"
	upload "segment-video-pipeline/05_upload"
	"segment-video-pipeline/project"
	"segment-video-pipeline/thumbnail"
	"segment-video-pipeline/types"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	engine     string
	encoder    string
	resolution string
	noMusic    bool
	noCredits  bool
	skipUpload bool
	upload     upload.Options
}

func (a *app) newRunCommand() *cobra.Command {
	var (
		name string
		opts runOptions
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order: audio, footage, preview, assemble, thumbnail, upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, script, err := a.open(name)
			if err != nil {
				return err
			}
			opts.upload.Out = cmd.OutOrStdout()
			return a.pipeline(cmd.Context(), proj, script, opts)
		},
	}
	projectFlag(cmd, &name)
	cmd.Flags().StringVar(&opts.engine, "engine", "", "TTS engine (default from config)")
	cmd.Flags().StringVar(&opts.encoder, "encoder", "", "video encoder (default from config)")
	cmd.Flags().StringVar(&opts.resolution, "resolution", "hd", "long-form output: hd or 4k")
	cmd.Flags().BoolVar(&opts.noMusic, "no-music", false, "skip background music")
	cmd.Flags().BoolVar(&opts.noCredits, "no-credits", false, "skip the long-form outro clip")
	cmd.Flags().BoolVar(&opts.skipUpload, "skip-upload", false, "stop after the thumbnail")
	addUploadFlags(cmd, &opts.upload)
	return cmd
}

// pipeline chains the stages. Each stage reuses what earlier runs left on
// disk, so a failed run can simply be started again.
func (a *app) pipeline(ctx context.Context, proj *project.Project, script *types.Script, opts runOptions) error {
	runID := uuid.NewString()[:8]
	log := logrus.WithFields(logrus.Fields{"run": runID, "project": proj.Name})
	started := time.Now()
	log.Infof("pipeline starting (%s, %d segments)", script.EffectiveFormat(), len(script.Segments))

	stage := func(n int, name string) {
		log.Infof("━━━ STAGE %d: %s ━━━", n, name)
	}

	stage(1, "Audio")
	synth, err := audio.NewSynthesizer(a.cfg, opts.engine)
	if err != nil {
		return errors.Wrap(err, "audio")
	}
	audioRes, err := audio.New(a.cfg, synth).Run(ctx, proj, script, audio.Options{Segment: project.AllSegments})
	if err != nil {
		return errors.Wrap(err, "audio")
	}
	if err := audioRes.Summary.Err(); err != nil {
		return errors.Wrap(err, "audio")
	}

	stage(2, "Footage")
	sum, err := a.newDownloader().Run(ctx, proj, script, footage.Options{Segment: project.AllSegments})
	if err != nil {
		return errors.Wrap(err, "footage")
	}
	if failed := sum.Failed(); len(failed) > 0 {
		// assembly covers missing footage with a plain background
		log.Warnf("footage missing for segment(s) %v, continuing", failed)
	}

	stage(3, "Preview")
	if _, err := preview.New(a.cfg).Run(ctx, proj, script, preview.Options{Segment: project.AllSegments}); err != nil {
		log.Warnf("previews failed: %v, continuing", err)
	}

	stage(4, "Assemble")
	res, err := assemble.New(a.cfg).Run(ctx, proj, script, assemble.Options{
		Segment:    project.AllSegments,
		Encoder:    opts.encoder,
		Resolution: opts.resolution,
		NoMusic:    opts.noMusic,
		NoCredits:  opts.noCredits,
	})
	if err != nil {
		return errors.Wrap(err, "assemble")
	}

	stage(5, "Thumbnail")
	if _, err := thumbnail.New(a.cfg).Run(proj, script, thumbnail.Options{Segment: project.AllSegments}); err != nil {
		log.Warnf("thumbnail failed: %v, continuing without", err)
	}

	if opts.skipUpload {
		log.Infof("done in %s: %s", time.Since(started).Round(time.Second), res.Final)
		return nil
	}

	stage(6, "Upload")
	rec, err := upload.New(a.cfg).Run(ctx, proj, script, opts.upload)
	if err != nil {
		return errors.Wrap(err, "upload")
	}
	if rec != nil {
		log.Infof("done in %s: %s", time.Since(started).Round(time.Second), rec.URL)
	} else {
		log.Infof("done in %s: %s (not uploaded)", time.Since(started).Round(time.Second), res.Final)
	}
	fmt.Fprintf(opts.upload.Out, "Final video: %s\n", res.Final)
	return nil
}
