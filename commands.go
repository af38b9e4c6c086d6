package main

import (
	"fmt"
	"path/filepath"

	audio "segment-video-pipeline/01_audio"
	footage "segment-video-pipeline/02_footage"
	preview "segment-video-pipeline/03_preview"
	assemble "segment-video-pipeline/04_assemble"
	upload "segment-video-pipeline/05_upload"
	"segment-video-pipeline/config"
	"segment-video-pipeline/project"
	"segment-video-pipeline/thumbnail"
	"segment-video-pipeline/types"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries the state every command shares.
type app struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "vidpipe",
		Short:         "Turn a segment script into a narrated short or long-form video",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "path to config file")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		a.newNewCommand(),
		a.newAudioCommand(),
		a.newPhoneticsCommand(),
		a.newFootageCommand(),
		a.newPreviewCommand(),
		a.newAssembleCommand(),
		a.newThumbnailCommand(),
		a.newUploadCommand(),
		a.newStatusCommand(),
		a.newRunCommand(),
	)
	return cmd
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return errors.Wrap(err, "log.level")
	}
	if a.verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	return nil
}

// open loads a project and its script.
func (a *app) open(name string) (*project.Project, *types.Script, error) {
	if name == "" {
		return nil, nil, errors.New("--project is required")
	}
	proj, err := project.Open(a.cfg.ProjectDir(name))
	if err != nil {
		return nil, nil, err
	}
	script, err := proj.LoadScript()
	if err != nil {
		return nil, nil, err
	}
	return proj, script, nil
}

func projectFlag(cmd *cobra.Command, name *string) {
	cmd.Flags().StringVarP(name, "project", "p", "", "project name under paths.projects_dir")
	cmd.MarkFlagRequired("project")
}

func segmentFlag(cmd *cobra.Command, seg *int) {
	cmd.Flags().IntVar(seg, "segment", project.AllSegments, "only this segment id")
}

func (a *app) newNewCommand() *cobra.Command {
	var (
		format string
		title  string
	)
	cmd := &cobra.Command{
		Use:   "new NAME",
		Short: "Create a project with a template script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != types.FormatShort && format != types.FormatLongform {
				return errors.Errorf("--format must be %s or %s", types.FormatShort, types.FormatLongform)
			}
			proj, err := project.Create(a.cfg.ProjectDir(args[0]), format)
			if err != nil {
				return err
			}
			if title != "" {
				script, err := proj.LoadScript()
				if err != nil {
					return err
				}
				script.Title = title
				if err := proj.SaveScript(script); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Edit %s, then run: vidpipe run --project %s\n", proj.ScriptPath(), proj.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", types.FormatShort, "short or longform")
	cmd.Flags().StringVar(&title, "title", "", "video title")
	return cmd
}

func (a *app) newAudioCommand() *cobra.Command {
	var (
		name   string
		engine string
		opts   audio.Options
	)
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Voice every segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, script, err := a.open(name)
			if err != nil {
				return err
			}
			res, err := a.runAudio(cmd, proj, script, engine, opts)
			if err != nil {
				return err
			}
			return res.Summary.Err()
		},
	}
	projectFlag(cmd, &name)
	segmentFlag(cmd, &opts.Segment)
	cmd.Flags().StringVar(&engine, "engine", "", "elevenlabs, gemini, edge-tts or command (default from config)")
	cmd.Flags().StringVar(&opts.Voice, "voice", "", "voice id or name")
	cmd.Flags().Float64Var(&opts.Speed, "speed", 0, "playback speed factor, e.g. 1.1")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent segments")
	cmd.Flags().BoolVar(&opts.Sequential, "sequential", false, "one segment at a time")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "regenerate existing audio")
	return cmd
}

func (a *app) newPhoneticsCommand() *cobra.Command {
	var (
		name   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "phonetics",
		Short: "Write text_phonetic for segments naming terms in audio.phonetics",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, script, err := a.open(name)
			if err != nil {
				return err
			}
			p := audio.NewPhonetics(a.cfg.Audio.Phonetics)
			if p.Empty() {
				return errors.New("audio.phonetics is empty in the config")
			}
			reps := p.Annotate(script)
			out := cmd.OutOrStdout()
			total := 0
			for _, seg := range script.Segments {
				for _, r := range reps[seg.ID] {
					fmt.Fprintf(out, "segment %d: %s -> %s\n", seg.ID, r.Found, r.Spoken)
					total++
				}
			}
			fmt.Fprintf(out, "%d replacement(s) in %d segment(s)\n", total, len(reps))
			if dryRun || total == 0 {
				return nil
			}
			return proj.SaveScript(script)
		},
	}
	projectFlag(cmd, &name)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print replacements without saving script.json")
	return cmd
}

func (a *app) runAudio(cmd *cobra.Command, proj *project.Project, script *types.Script, engine string, opts audio.Options) (*audio.Result, error) {
	synth, err := audio.NewSynthesizer(a.cfg, engine)
	if err != nil {
		return nil, err
	}
	return audio.New(a.cfg, synth).Run(cmd.Context(), proj, script, opts)
}

func (a *app) newDownloader() *footage.Downloader {
	var stock footage.StockSource
	if f := footage.NewStockFetcher(a.cfg); f != nil {
		stock = f
	}
	src := &footage.YTDLP{Format: a.cfg.Footage.FormatSelector}
	return footage.New(a.cfg, src, stock)
}

func (a *app) newFootageCommand() *cobra.Command {
	var (
		name   string
		list   bool
		search bool
		opts   footage.Options
	)
	cmd := &cobra.Command{
		Use:   "footage",
		Short: "Search and download footage for each segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, script, err := a.open(name)
			if err != nil {
				return err
			}
			if list {
				return footage.List(cmd.OutOrStdout(), proj, script)
			}
			d := a.newDownloader()
			if search {
				if opts.Segment == project.AllSegments {
					return errors.New("--search needs --segment")
				}
				seg, ok := script.Segment(opts.Segment)
				if !ok {
					return errors.Errorf("no segment %d", opts.Segment)
				}
				query := opts.Query
				if query == "" {
					query = seg.FootageQuery
				}
				cands, err := d.Search(cmd.Context(), query, float64(seg.FootageStart))
				if err != nil {
					return err
				}
				return footage.PrintCandidates(cmd.OutOrStdout(), cands)
			}
			sum, err := d.Run(cmd.Context(), proj, script, opts)
			if err != nil {
				return err
			}
			return sum.Err()
		},
	}
	projectFlag(cmd, &name)
	segmentFlag(cmd, &opts.Segment)
	cmd.Flags().BoolVar(&list, "list", false, "show footage status per segment")
	cmd.Flags().BoolVar(&search, "search", false, "print ranked candidates for --segment without downloading")
	cmd.Flags().StringVar(&opts.Query, "query", "", "search with this query instead of footage_query")
	cmd.Flags().StringVar(&opts.URL, "url", "", "download this video for --segment")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent segments")
	cmd.Flags().BoolVar(&opts.Sequential, "sequential", false, "one segment at a time")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace existing footage")
	return cmd
}

func (a *app) newPreviewCommand() *cobra.Command {
	var (
		name string
		opts preview.Options
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Extract one frame per segment for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, script, err := a.open(name)
			if err != nil {
				return err
			}
			sum, err := preview.New(a.cfg).Run(cmd.Context(), proj, script, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Previews in %s\n", filepath.Join(proj.Dir, project.PreviewDir))
			return sum.Err()
		},
	}
	projectFlag(cmd, &name)
	segmentFlag(cmd, &opts.Segment)
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent segments")
	cmd.Flags().BoolVar(&opts.Sequential, "sequential", false, "one segment at a time")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "re-extract existing previews")
	return cmd
}

func (a *app) newAssembleCommand() *cobra.Command {
	var (
		name string
		opts assemble.Options
	)
	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Render segments and join them into output/final.mp4",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, script, err := a.open(name)
			if err != nil {
				return err
			}
			res, err := assemble.New(a.cfg).Run(cmd.Context(), proj, script, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Final video: %s (%.1fs)\n", res.Final, res.Duration)
			return nil
		},
	}
	projectFlag(cmd, &name)
	segmentFlag(cmd, &opts.Segment)
	cmd.Flags().StringVar(&opts.Encoder, "encoder", "", "libx264, h264_nvenc or h264_videotoolbox")
	cmd.Flags().StringVar(&opts.Resolution, "resolution", "hd", "long-form output: hd or 4k")
	cmd.Flags().BoolVar(&opts.NoMusic, "no-music", false, "skip background music")
	cmd.Flags().BoolVar(&opts.NoCredits, "no-credits", false, "skip the long-form outro clip")
	cmd.Flags().BoolVar(&opts.Captions, "captions", false, "burn captions into long-form video")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent segment renders")
	cmd.Flags().BoolVar(&opts.Sequential, "sequential", false, "one segment at a time")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "re-render cached segments")
	return cmd
}

func (a *app) newThumbnailCommand() *cobra.Command {
	var (
		name string
		opts thumbnail.Options
	)
	cmd := &cobra.Command{
		Use:   "thumbnail",
		Short: "Draw output/thumbnail.jpg from a preview frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, script, err := a.open(name)
			if err != nil {
				return err
			}
			out, err := thumbnail.New(a.cfg).Run(proj, script, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Thumbnail: %s\n", out)
			return nil
		},
	}
	projectFlag(cmd, &name)
	cmd.Flags().IntVar(&opts.Segment, "segment", project.AllSegments, "segment whose preview frame is used (default first)")
	cmd.Flags().StringVar(&opts.Font, "font", "", "TrueType font for the title")
	cmd.Flags().StringVar(&opts.Title, "title", "", "text to draw instead of the script title")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "redraw an existing thumbnail")
	return cmd
}

func (a *app) newUploadCommand() *cobra.Command {
	var (
		name string
		opts upload.Options
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload output/final.mp4 to YouTube",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, script, err := a.open(name)
			if err != nil {
				return err
			}
			opts.Out = cmd.OutOrStdout()
			rec, err := upload.New(a.cfg).Run(cmd.Context(), proj, script, opts)
			if err != nil {
				return err
			}
			if rec != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded: %s\n", rec.URL)
			}
			return nil
		},
	}
	projectFlag(cmd, &name)
	addUploadFlags(cmd, &opts)
	return cmd
}

func addUploadFlags(cmd *cobra.Command, opts *upload.Options) {
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print metadata without uploading")
	cmd.Flags().StringVar(&opts.Privacy, "privacy", "", "private, unlisted or public (default from config)")
	cmd.Flags().BoolVar(&opts.AIDescription, "ai-description", false, "polish the description with Gemini")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "upload even if upload_info.json exists")
	cmd.Flags().BoolVar(&opts.NoCaptions, "no-captions", false, "do not upload captions.srt")
}
