package llm

import "context"

// Generator sends one prompt to a generative-language service and returns
// its text answer.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// BuildEntityPrompt fills the entity search template. keyword and text are
// inserted verbatim, without escaping.
func BuildEntityPrompt(keyword, text string) string {
	return `Given the entity "` + keyword + `", search for that entity in "` + text +
		`" and return the value of that entity with its unit.`
}
