package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"
)

// Theme selects the mood of a card background.
type Theme string

const (
	ThemeStrong     Theme = "strong"
	ThemeSteady     Theme = "steady"
	ThemeStruggling Theme = "struggling"
	ThemeNeutral    Theme = "neutral"
)

// ThemeFor picks a theme from a mean final score.
func ThemeFor(meanFinal float64) Theme {
	switch {
	case math.IsNaN(meanFinal):
		return ThemeNeutral
	case meanFinal >= 5.5:
		return ThemeStrong
	case meanFinal >= 4:
		return ThemeSteady
	default:
		return ThemeStruggling
	}
}

var themePrompts = map[Theme]string{
	ThemeStrong:     "a bright classroom in warm morning light, chalkboard covered in neat diagrams, plants on the windowsill",
	ThemeSteady:     "a calm classroom in soft afternoon light, rows of wooden desks, open notebooks",
	ThemeStruggling: "a quiet classroom at dusk, desk lamp glowing over a stack of books, hopeful mood",
	ThemeNeutral:    "an empty classroom with large windows, early morning, muted colours",
}

// BuildPrompt returns the image prompt for theme.
func BuildPrompt(theme Theme) string {
	scene, ok := themePrompts[theme]
	if !ok {
		scene = themePrompts[ThemeNeutral]
	}
	return "Wide painterly illustration of " + scene + ". No people, no text, no letters. Leave the left third visually quiet."
}

// Generator creates card backgrounds using OpenAI's image API.
type Generator struct {
	client openai.Client
	model  string
}

func NewGenerator(apiKey string) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key not set")
	}
	return &Generator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  "gpt-image-1",
	}, nil
}

// Generate returns a PNG background for theme.
func (g *Generator) Generate(ctx context.Context, theme Theme) ([]byte, error) {
	log.Info().Str("theme", string(theme)).Msg("generating card background")

	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:        g.model,
		Prompt:       BuildPrompt(theme),
		Size:         openai.ImageGenerateParamsSize1536x1024,
		Quality:      openai.ImageGenerateParamsQualityLow,
		OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("no image data returned")
	}

	imageBytes, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}

	log.Info().Str("theme", string(theme)).Int("bytes", len(imageBytes)).Msg("generated card background")
	return imageBytes, nil
}
