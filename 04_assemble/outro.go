package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"segment-video-pipeline/config"
	"segment-video-pipeline/media"
	"segment-video-pipeline/project"

	"github.com/pkg/errors"
)

// OutroCard holds the text files drawn over the long-form credits clip.
// Empty paths are not drawn.
type OutroCard struct {
	TitleFile   string
	ChannelFile string
	CTAFile     string
	Credits     float64 // seconds the title shows before the channel card
	Accent      string
}

// OutroFilter draws the title card, then the channel name and call to action,
// over a plain background. It ends in [vout].
func OutroFilter(p SegmentPlan, card OutroCard) string {
	title, channel, cta := 48, 64, 32
	if p.Profile.Width >= 3840 {
		title, channel, cta = 72, 96, 48
	}
	centerY := int(float64(p.Profile.Height) * 0.45)
	ctaY := int(float64(p.Profile.Height) * 0.58)
	credits := trimFloat(card.Credits)
	accent := card.Accent
	if accent == "" {
		accent = "white"
	}

	draw := func(file string, size int, color string, y int, enable string) string {
		opts := []string{"textfile=" + media.QuoteFilterPath(file), "expansion=none"}
		if p.FontFile != "" {
			opts = append(opts, "fontfile="+media.QuoteFilterPath(p.FontFile))
		}
		opts = append(opts,
			fmt.Sprintf("fontsize=%d", size),
			"fontcolor="+color,
			"x=(w-text_w)/2",
			fmt.Sprintf("y=%d", y),
			fmt.Sprintf("enable='%s(t,%s)'", enable, credits),
		)
		return "drawtext=" + strings.Join(opts, ":")
	}

	chain := []string{"setsar=1", "format=yuv420p"}
	if card.TitleFile != "" {
		chain = append(chain, draw(card.TitleFile, title, "white", centerY, "lt"))
	}
	if card.ChannelFile != "" {
		chain = append(chain, draw(card.ChannelFile, channel, accent, centerY, "gte"))
	}
	if card.CTAFile != "" {
		chain = append(chain, draw(card.CTAFile, cta, "white", ctaY, "gte"))
	}
	return "[0:v]" + strings.Join(chain, ",") + "[vout]"
}

// OutroArgs is the ffmpeg argv for the credits clip. Its streams match the
// segment renders so the concat demuxer can join them.
func OutroArgs(p SegmentPlan, card OutroCard) []string {
	p.Footage = ""
	return renderArgs(p, OutroFilter(p, card))
}

// renderOutro writes temp/outro.mp4 and returns its path and length. It
// returns an empty path when no outro narration is configured.
func (a *Assembler) renderOutro(ctx context.Context, proj *project.Project, profile config.Profile, enc []string) (string, float64, error) {
	o := a.cfg.Video.Outro
	if !project.Exists(o.Audio) {
		log.Infof("no outro audio at %s, skipping credits", o.Audio)
		return "", 0, nil
	}
	info, err := a.probe(o.Audio)
	if err != nil {
		return "", 0, errors.Wrap(err, "probe outro audio")
	}
	temp := filepath.Join(proj.Dir, project.TempDir)

	card := OutroCard{Credits: o.CreditsSec, Accent: o.Accent}
	for _, t := range []struct {
		dst  *string
		name string
		text string
	}{
		{&card.TitleFile, "outro_title.txt", o.Title},
		{&card.ChannelFile, "outro_channel.txt", o.Channel},
		{&card.CTAFile, "outro_cta.txt", o.CTA},
	} {
		if strings.TrimSpace(t.text) == "" {
			continue
		}
		*t.dst = filepath.Join(temp, t.name)
		if err := os.WriteFile(*t.dst, []byte(t.text), 0644); err != nil {
			return "", 0, errors.Wrapf(err, "write %s", t.name)
		}
	}

	plan := SegmentPlan{
		Audio:      o.Audio,
		Duration:   info.Duration,
		Profile:    profile,
		Encoder:    enc,
		Background: "black",
		FontFile:   a.cfg.Paths.FontFile,
		Output:     filepath.Join(temp, "outro.mp4"),
	}
	if err := a.run(ctx, OutroArgs(plan, card)); err != nil {
		os.Remove(plan.Output)
		return "", 0, errors.Wrap(err, "render outro")
	}
	if !project.Exists(plan.Output) {
		return "", 0, errors.New("ffmpeg produced no outro")
	}
	return plan.Output, info.Duration, nil
}
