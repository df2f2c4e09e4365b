package ocr

import "context"

// Word is a single recognized word. Confidence is 0..1, 0 when the engine
// does not report it.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

type Line struct {
	Text  string `json:"text"`
	Words []Word `json:"words,omitempty"`
}

type Block struct {
	Lines []Line `json:"lines"`
}

// Result is the ordered block -> line structure returned by an engine.
type Result struct {
	Engine string  `json:"engine"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	Blocks []Block `json:"blocks"`
}

// Lines returns every line text in source order.
func (r Result) Lines() []string {
	var out []string
	for _, b := range r.Blocks {
		for _, l := range b.Lines {
			out = append(out, l.Text)
		}
	}
	return out
}

// Engine performs line-level text recognition on JPEG or PNG bytes.
type Engine interface {
	Name() string
	Read(ctx context.Context, image []byte) (Result, error)
}
