package gemini

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{name: "nil", resp: nil, want: ""},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, want: ""},
		{
			name: "joins text parts of first candidate",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []genai.Part{genai.Text("250 "), genai.Text("g")}}},
				{Content: &genai.Content{Parts: []genai.Part{genai.Text("other")}}},
			}},
			want: "250 g",
		},
		{
			name: "skips empty candidates",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
				nil,
				{Content: nil},
				{Content: &genai.Content{Parts: []genai.Part{&genai.Blob{MIMEType: "image/png"}}}},
				{Content: &genai.Content{Parts: []genai.Part{genai.Text("42.50 USD")}}},
			}},
			want: "42.50 USD",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, firstText(tt.resp))
		})
	}
}

func TestGenerate_RequiresKey(t *testing.T) {
	g := New("  ", "gemini-2.5-flash")
	assert.Equal(t, "gemini", g.Name())
	assert.Equal(t, "gemini-2.5-flash", g.Model)
	_, err := g.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

type fakeModel struct {
	resp   *genai.GenerateContentResponse
	err    error
	parts  []genai.Part
	closed bool
}

func (f *fakeModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.parts = parts
	return f.resp, f.err
}

func (f *fakeModel) Close() error {
	f.closed = true
	return nil
}

func withModel(m *fakeModel) *Generator {
	g := New("key", "gemini-2.5-flash")
	g.connect = func(context.Context) (model, io.Closer, error) { return m, m, nil }
	return g
}

func TestGenerate(t *testing.T) {
	prompt := `Given the entity "weight", search for that entity in "Net weight 250 g" and return the value of that entity with its unit.`

	t.Run("returns the text verbatim", func(t *testing.T) {
		m := &fakeModel{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("**250 g**\n")}}},
		}}}
		out, err := withModel(m).Generate(context.Background(), prompt)
		require.NoError(t, err)
		assert.Equal(t, "**250 g**\n", out)
		assert.Equal(t, []genai.Part{genai.Text(prompt)}, m.parts)
		assert.True(t, m.closed)
	})

	t.Run("api error", func(t *testing.T) {
		m := &fakeModel{err: errors.New("googleapi: Error 429: quota")}
		_, err := withModel(m).Generate(context.Background(), prompt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota")
		assert.True(t, m.closed)
	})

	t.Run("blocked prompt", func(t *testing.T) {
		m := &fakeModel{resp: &genai.GenerateContentResponse{
			PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
		}}
		_, err := withModel(m).Generate(context.Background(), prompt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty response")
		assert.Contains(t, err.Error(), "blocked")
	})

	t.Run("connect error", func(t *testing.T) {
		g := New("key", "gemini-2.5-flash")
		g.connect = func(context.Context) (model, io.Closer, error) { return nil, nil, errors.New("dial failed") }
		_, err := g.Generate(context.Background(), prompt)
		assert.EqualError(t, err, "dial failed")
	})
}
