//go:build ocr

// Package tesseract runs OCR locally through gosseract. It requires the
// Tesseract library at build and run time; build with -tags ocr.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"parimal/api/internal/ocr"
)

const Enabled = true

type Engine struct {
	langs         []string
	clientFactory func() *gosseract.Client
}

func New(langs []string) *Engine {
	return &Engine{langs: langs, clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Read groups Tesseract words into lines and blocks using the block,
// paragraph and line numbers reported for each word, keeping page order.
func (e *Engine) Read(ctx context.Context, image []byte) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	c := e.clientFactory()
	defer c.Close()

	if len(e.langs) > 0 {
		if err := c.SetLanguage(e.langs...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	words, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize words: %w", err)
	}
	return group(e.Name(), words), nil
}

func group(engine string, words []gosseract.BoundingBox) ocr.Result {
	res := ocr.Result{Engine: engine}
	type lineKey struct{ block, par, line int }
	lastBlock := -1
	var lastLine lineKey
	haveLine := false

	for _, w := range words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		if w.BlockNum != lastBlock || len(res.Blocks) == 0 {
			res.Blocks = append(res.Blocks, ocr.Block{})
			lastBlock = w.BlockNum
			haveLine = false
		}
		blk := &res.Blocks[len(res.Blocks)-1]
		key := lineKey{w.BlockNum, w.ParNum, w.LineNum}
		if !haveLine || key != lastLine {
			blk.Lines = append(blk.Lines, ocr.Line{})
			lastLine = key
			haveLine = true
		}
		l := &blk.Lines[len(blk.Lines)-1]
		if l.Text != "" {
			l.Text += " "
		}
		l.Text += text
		l.Words = append(l.Words, ocr.Word{Text: text, Confidence: w.Confidence / 100.0})
	}
	return res
}
