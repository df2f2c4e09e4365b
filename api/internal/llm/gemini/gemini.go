package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// model is the part of *genai.GenerativeModel the generator uses.
type model interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Generator struct {
	APIKey string
	Model  string

	connect func(ctx context.Context) (model, io.Closer, error)
}

func New(apiKey, model string) *Generator {
	g := &Generator{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
	g.connect = g.dial
	return g
}

func (g *Generator) Name() string { return "gemini" }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	connect := g.connect
	if connect == nil {
		connect = g.dial
	}
	m, cl, err := connect(ctx)
	if err != nil {
		return "", err
	}
	defer cl.Close()

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	txt := firstText(resp)
	if txt == "" {
		return "", fmt.Errorf("gemini: empty response%s", blockReason(resp))
	}
	return txt, nil
}

func (g *Generator) dial(ctx context.Context) (model, io.Closer, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return nil, nil, err
	}
	m := cl.GenerativeModel(g.Model)
	if m == nil {
		_ = cl.Close()
		return nil, nil, fmt.Errorf("gemini: model is nil")
	}
	return m, cl, nil
}

// firstText concatenates the text parts of the first candidate that has any.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || resp.PromptFeedback == nil {
		return ""
	}
	return fmt.Sprintf(" (blocked: %v)", resp.PromptFeedback.BlockReason)
}
