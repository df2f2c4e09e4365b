//go:build !ocr

package tesseract

import (
	"context"

	"parimal/api/internal/ocr"
)

// Enabled reports whether this build links Tesseract.
const Enabled = false

type Engine struct {
	langs []string
}

func New(langs []string) *Engine { return &Engine{langs: langs} }

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Read(context.Context, []byte) (ocr.Result, error) {
	return ocr.Result{}, ErrNotEnabled
}
