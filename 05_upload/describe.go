package upload

import (
	"context"
	"fmt"
	"strings"

	"segment-video-pipeline/types"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// Describer rewrites a drafted description.
type Describer interface {
	Describe(ctx context.Context, script *types.Script, draft string) (string, error)
}

// Gemini polishes descriptions with a Google AI model.
type Gemini struct {
	APIKey string
	Model  string
}

// Describe asks Gemini to polish draft for script.
func (g *Gemini) Describe(ctx context.Context, script *types.Script, draft string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return "", errors.Wrap(err, "create gemini client")
	}
	defer client.Close()

	model := client.GenerativeModel(g.Model)
	model.SetTemperature(0.6)

	resp, err := model.GenerateContent(ctx, genai.Text(describePrompt(script, draft)))
	if err != nil {
		return "", errors.Wrap(err, "gemini generation")
	}
	text, err := responseText(resp)
	if err != nil {
		return "", err
	}
	return CheckDescription(text, draft)
}

func describePrompt(script *types.Script, draft string) string {
	var sb strings.Builder
	sb.WriteString("Rewrite this YouTube description so it reads naturally and hooks viewers in the first two lines.\n")
	sb.WriteString("Keep every chapter timestamp line, source line and hashtag exactly as written.\n")
	sb.WriteString("Do not invent facts. Plain text only, no markdown, under 4500 characters.\n\n")
	fmt.Fprintf(&sb, "VIDEO TITLE: %s\n", script.Title)
	fmt.Fprintf(&sb, "FORMAT: %s, %d segments\n\n", script.EffectiveFormat(), len(script.Segments))
	sb.WriteString("DRAFT:\n")
	sb.WriteString(draft)
	return sb.String()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty response from gemini")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

// CheckDescription accepts a rewritten description only if it is usable and
// kept the draft's chapter lines.
func CheckDescription(text, draft string) (string, error) {
	text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "`"))
	if text == "" {
		return "", errors.New("model returned an empty description")
	}
	if len([]rune(text)) > maxDescription {
		return "", errors.Errorf("model description too long (%d chars)", len([]rune(text)))
	}
	for _, line := range strings.Split(draft, "\n") {
		if isChapterLine(line) && !strings.Contains(text, line) {
			return "", errors.Errorf("model dropped chapter %q", line)
		}
	}
	return strings.NewReplacer("<", "", ">", "").Replace(text), nil
}

func isChapterLine(line string) bool {
	ts, _, ok := strings.Cut(line, " ")
	if !ok {
		return false
	}
	_, err := types.ParseTimestamp(ts)
	return err == nil && strings.Contains(ts, ":")
}
