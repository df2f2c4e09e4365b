// Package entity runs the two user-facing stages: extracting text from an
// image into the session, and asking the generator for an entity's value in
// that text.
package entity

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"parimal/api/internal/apperr"
	"parimal/api/internal/imageutil"
	"parimal/api/internal/llm"
	"parimal/api/internal/logger"
	"parimal/api/internal/metrics"
	"parimal/api/internal/ocr"
	"parimal/api/internal/session"
)

type Service struct {
	engines   *ocr.Engines
	gen       llm.Generator
	log       *zap.Logger
	maxPixels int
}

// Answer is the outcome of one entity query. Text is the generator's
// response, unmodified.
type Answer struct {
	Keyword string `json:"keyword"`
	Prompt  string `json:"prompt"`
	Text    string `json:"response"`
}

func NewService(engines *ocr.Engines, gen llm.Generator, log *zap.Logger, maxPixels int) *Service {
	return &Service{engines: engines, gen: gen, log: logger.OrNop(log), maxPixels: maxPixels}
}

func (s *Service) Engines() *ocr.Engines { return s.engines }

func (s *Service) Generator() string { return s.gen.Name() }

// Extract recognizes the text in image and stores it in st, replacing any
// earlier extraction. onLine receives each line as it is consumed. On error
// st is left unchanged.
func (s *Service) Extract(ctx context.Context, st *session.State, image []byte, onLine func(string)) (string, error) {
	start := time.Now()
	text, err := s.extract(ctx, st, image, onLine)
	metrics.ObserveStage(metrics.StageExtract, status(err), start)
	return text, err
}

func (s *Service) extract(ctx context.Context, st *session.State, image []byte, onLine func(string)) (string, error) {
	if !imageutil.Supported(image) {
		return "", apperr.ErrUnsupportedImage
	}
	eng, err := s.engines.Get(st.Engine)
	if err != nil {
		return "", apperr.BadRequest(err.Error())
	}

	img, err := imageutil.Fit(image, s.maxPixels)
	if errors.Is(err, imageutil.ErrTooLarge) {
		s.log.Warn("image rejected", zap.String("session", st.ID), zap.Error(err))
		return "", apperr.ErrImageTooLarge
	}
	if err != nil {
		s.log.Warn("image downscale failed, sending original", zap.Error(err))
		img = image
	}

	res, err := eng.Read(ctx, img)
	metrics.ObserveCall("ocr", eng.Name(), err)
	if err != nil {
		s.log.Error("ocr failed", zap.String("session", st.ID), zap.String("engine", eng.Name()), zap.Error(err))
		return "", apperr.OCRFailed(eng.Name(), err)
	}

	lines := res.Lines()
	text := ocr.Flatten(res, onLine)
	st.SetText(text, lines)

	s.log.Info("text extracted",
		zap.String("session", st.ID),
		zap.String("engine", eng.Name()),
		zap.Int("width", res.Width),
		zap.Int("height", res.Height),
		zap.Int("lines", len(lines)),
		zap.Int("chars", len(text)))
	return text, nil
}

// Query asks the generator for the value of keyword in the stored text. It
// never calls the generator before a successful extraction or with an empty
// keyword.
func (s *Service) Query(ctx context.Context, st *session.State, keyword string) (Answer, error) {
	start := time.Now()
	ans, err := s.query(ctx, st, keyword)
	metrics.ObserveStage(metrics.StageQuery, status(err), start)
	return ans, err
}

func (s *Service) query(ctx context.Context, st *session.State, keyword string) (Answer, error) {
	if st == nil || !st.HasText {
		return Answer{}, apperr.ErrTextNotExtracted
	}
	// the keyword reaches the prompt as typed; blanks only count as empty
	if strings.TrimSpace(keyword) == "" {
		return Answer{}, apperr.ErrEmptyKeyword
	}

	prompt := llm.BuildEntityPrompt(keyword, st.ExtractedText)
	out, err := s.gen.Generate(ctx, prompt)
	metrics.ObserveCall("llm", s.gen.Name(), err)
	if err != nil {
		s.log.Error("generation failed", zap.String("session", st.ID), zap.String("provider", s.gen.Name()), zap.Error(err))
		return Answer{}, apperr.GenerationFailed(s.gen.Name(), err)
	}

	s.log.Info("entity answered",
		zap.String("session", st.ID),
		zap.String("keyword", keyword),
		zap.Int("response_chars", len(out)))
	return Answer{Keyword: keyword, Prompt: prompt, Text: out}, nil
}

// SetEngine validates name and stores it as the session's OCR engine; an
// empty name restores the default.
func (s *Service) SetEngine(st *session.State, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "" {
		if _, err := s.engines.Get(name); err != nil {
			return apperr.BadRequest(err.Error())
		}
	}
	st.Engine = name
	return nil
}

func status(err error) string {
	if err == nil {
		return "ok"
	}
	switch apperr.CategoryOf(err) {
	case apperr.CategoryValidation, apperr.CategoryPrecondition:
		return "rejected"
	}
	return "error"
}
