package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"segment-video-pipeline/project"
	"segment-video-pipeline/types"

	"github.com/spf13/cobra"
)

func (a *app) newStatusCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which artifacts exist for each segment",
		RunE: func(cmd *cobra.Command, args []string) error {
			proj, script, err := a.open(name)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), proj, script)
		},
	}
	projectFlag(cmd, &name)
	return cmd
}

func printStatus(w io.Writer, proj *project.Project, script *types.Script) error {
	fmt.Fprintf(w, "%s (%s, %d segments)\n\n", script.Title, script.EffectiveFormat(), len(script.Segments))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAUDIO\tFOOTAGE\tPREVIEW\tRENDER\tTEXT")
	for i := range script.Segments {
		seg := &script.Segments[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", seg.ID,
			mark(project.Exists(proj.AudioPath(seg.ID))),
			mark(project.Exists(proj.FootagePath(seg))),
			mark(project.Exists(proj.PreviewPath(seg.ID))),
			mark(project.Exists(proj.SegmentRenderPath(seg.ID))),
			clipText(seg.Text, 40),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	for _, f := range []struct {
		label, path string
	}{
		{"final", proj.FinalPath()},
		{"captions", proj.CaptionsPath()},
		{"thumbnail", proj.ThumbnailPath()},
	} {
		fmt.Fprintf(w, "%-10s %s %s\n", f.label, mark(project.Exists(f.path)), f.path)
	}
	rec, err := proj.LoadUploadRecord()
	if err != nil {
		return err
	}
	if rec != nil {
		fmt.Fprintf(w, "%-10s ✓ %s (%s, %s)\n", "uploaded", rec.URL, rec.Privacy, rec.UploadedAt)
	} else {
		fmt.Fprintf(w, "%-10s -\n", "uploaded")
	}
	return nil
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "-"
}

func clipText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
