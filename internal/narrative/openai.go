package narrative

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/rollbook/internal/htmlutil"
	"github.com/lox/rollbook/internal/httputil"
)

const systemPrompt = `You write two or three plain sentences for a teacher about their class results.
Grades use a 1.0 to 7.0 scale and 4.0 is the passing mark.
Be factual and encouraging. Never invent numbers that are not given. Do not use markdown or HTML.`

// OpenAI writes commentary with a chat completion.
type OpenAI struct {
	client openai.Client
	model  openai.ChatModel
}

func NewOpenAI(apiKey string, timeout time.Duration) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key not set")
	}
	return &OpenAI{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(httputil.NewClient(timeout)),
		),
		model: openai.ChatModelGPT4oMini,
	}, nil
}

func (o *OpenAI) Write(ctx context.Context, f Facts) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(Prompt(f)),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion returned")
	}
	return strings.Join(htmlutil.Paragraphs(resp.Choices[0].Message.Content), " "), nil
}

// Prompt renders facts as the user message sent to the model.
func Prompt(f Facts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scope: %s\n", f.Scope)
	fmt.Fprintf(&b, "Named students: %d\n", f.Students)
	fmt.Fprintf(&b, "Mean final score: %s\n", number(f.MeanFinal, 1))
	fmt.Fprintf(&b, "Mean attendance percent: %s\n", number(f.MeanAttendance, 0))
	fmt.Fprintf(&b, "Students below passing: %d\n", f.Failing)
	fmt.Fprintf(&b, "Students under half attendance: %d\n", f.LowAttendance)
	fmt.Fprintf(&b, "Students without a final score: %d\n", f.Undefined)
	for _, band := range f.Bands {
		fmt.Fprintf(&b, "Band %s: %d\n", band.Label, band.Count)
	}
	return b.String()
}

func number(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "unknown"
	}
	return fmt.Sprintf("%.*f", decimals, v)
}
