package entity

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parimal/api/internal/apperr"
	"parimal/api/internal/ocr"
	"parimal/api/internal/session"
)

type fakeEngine struct {
	name  string
	res   ocr.Result
	err   error
	calls int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Read(_ context.Context, _ []byte) (ocr.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakeGen struct {
	out     string
	err     error
	prompts []string
}

func (f *fakeGen) Name() string { return "fake" }

func (f *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

func lines(blocks ...[]string) ocr.Result {
	var res ocr.Result
	for _, b := range blocks {
		var blk ocr.Block
		for _, l := range b {
			blk.Lines = append(blk.Lines, ocr.Line{Text: l})
		}
		res.Blocks = append(res.Blocks, blk)
	}
	return res
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	return pngSized(t, 4, 4)
}

func pngSized(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newService(t *testing.T, gen *fakeGen, engines ...ocr.Engine) *Service {
	t.Helper()
	reg, err := ocr.NewEngines(engines[0].Name(), engines...)
	require.NoError(t, err)
	return NewService(reg, gen, zap.NewNop(), 0)
}

func TestExtract_JoinsLinesAndReportsEach(t *testing.T) {
	eng := &fakeEngine{name: "azure", res: lines([]string{"Total"}, []string{"Amount", "42.50", "USD"})}
	svc := newService(t, &fakeGen{}, eng)
	st := session.New("s1")

	var seen []string
	text, err := svc.Extract(context.Background(), st, pngBytes(t), func(l string) { seen = append(seen, l) })
	require.NoError(t, err)

	assert.Equal(t, "Total Amount 42.50 USD", text)
	assert.Equal(t, []string{"Total", "Amount", "42.50", "USD"}, seen)
	assert.True(t, st.HasText)
	assert.Equal(t, text, st.ExtractedText)
	assert.Equal(t, seen, st.Lines)
}

func TestExtract_SecondExtractionReplacesText(t *testing.T) {
	eng := &fakeEngine{name: "azure", res: lines([]string{"Net weight 250 g"})}
	svc := newService(t, &fakeGen{}, eng)
	st := session.New("s1")

	_, err := svc.Extract(context.Background(), st, pngBytes(t), nil)
	require.NoError(t, err)

	eng.res = lines([]string{"Price", "3 EUR"})
	_, err = svc.Extract(context.Background(), st, pngBytes(t), nil)
	require.NoError(t, err)

	assert.Equal(t, "Price 3 EUR", st.ExtractedText)
	assert.NotContains(t, st.ExtractedText, "weight")
}

func TestExtract_NoLinesStillMarksText(t *testing.T) {
	svc := newService(t, &fakeGen{}, &fakeEngine{name: "azure"})
	st := session.New("s1")

	text, err := svc.Extract(context.Background(), st, pngBytes(t), nil)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.True(t, st.HasText)
}

func TestExtract_FailureKeepsState(t *testing.T) {
	eng := &fakeEngine{name: "azure", err: errors.New("503 from vision")}
	svc := newService(t, &fakeGen{}, eng)
	st := session.New("s1")
	st.SetText("previous", []string{"previous"})

	_, err := svc.Extract(context.Background(), st, pngBytes(t), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, &apperr.Error{Code: apperr.CodeOCRFailed})
	assert.Equal(t, apperr.CategoryExternal, apperr.CategoryOf(err))
	assert.Equal(t, "previous", st.ExtractedText)
	assert.True(t, st.HasText)
}

func TestExtract_UnsupportedImage(t *testing.T) {
	eng := &fakeEngine{name: "azure"}
	svc := newService(t, &fakeGen{}, eng)

	_, err := svc.Extract(context.Background(), session.New("s1"), []byte("GIF89a..."), nil)
	assert.ErrorIs(t, err, apperr.ErrUnsupportedImage)
	assert.Zero(t, eng.calls)
}

func TestExtract_ImageTooLarge(t *testing.T) {
	eng := &fakeEngine{name: "azure", res: lines([]string{"x"})}
	reg, err := ocr.NewEngines("azure", eng)
	require.NoError(t, err)
	svc := NewService(reg, &fakeGen{}, zap.NewNop(), 100)
	st := session.New("s1")
	st.SetText("previous", []string{"previous"})

	_, err = svc.Extract(context.Background(), st, pngSized(t, 40, 40), nil)
	assert.ErrorIs(t, err, apperr.ErrImageTooLarge)
	assert.Zero(t, eng.calls)
	assert.Equal(t, "previous", st.ExtractedText)

	_, err = svc.Extract(context.Background(), st, pngSized(t, 15, 15), nil)
	require.NoError(t, err, "within 4x the limit is downscaled, not rejected")
	assert.Equal(t, 1, eng.calls)
}

func TestExtract_UsesSessionEngine(t *testing.T) {
	az := &fakeEngine{name: "azure", res: lines([]string{"from azure"})}
	ya := &fakeEngine{name: "yandex", res: lines([]string{"from yandex"})}
	svc := newService(t, &fakeGen{}, az, ya)
	st := session.New("s1")

	require.NoError(t, svc.SetEngine(st, "Yandex"))
	text, err := svc.Extract(context.Background(), st, pngBytes(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "from yandex", text)
	assert.Zero(t, az.calls)

	err = svc.SetEngine(st, "paddle")
	assert.ErrorIs(t, err, &apperr.Error{Code: apperr.CodeBadRequest})
	assert.Equal(t, "yandex", st.Engine)

	require.NoError(t, svc.SetEngine(st, ""))
	assert.Empty(t, st.Engine)
}

func TestQuery_BeforeExtractionWarns(t *testing.T) {
	gen := &fakeGen{out: "x"}
	svc := newService(t, gen, &fakeEngine{name: "azure"})

	_, err := svc.Query(context.Background(), session.New("s1"), "weight")
	assert.ErrorIs(t, err, apperr.ErrTextNotExtracted)
	assert.Equal(t, apperr.CategoryPrecondition, apperr.CategoryOf(err))
	assert.Empty(t, gen.prompts)

	_, err = svc.Query(context.Background(), nil, "weight")
	assert.ErrorIs(t, err, apperr.ErrTextNotExtracted)
	assert.Empty(t, gen.prompts)
}

func TestQuery_EmptyKeyword(t *testing.T) {
	gen := &fakeGen{out: "x"}
	svc := newService(t, gen, &fakeEngine{name: "azure"})
	st := session.New("s1")
	st.SetText("Net weight 250 g", nil)

	for _, kw := range []string{"", "   ", "\t"} {
		_, err := svc.Query(context.Background(), st, kw)
		assert.ErrorIs(t, err, apperr.ErrEmptyKeyword, "keyword %q", kw)
	}
	assert.Empty(t, gen.prompts)
}

func TestQuery_PromptAndVerbatimResponse(t *testing.T) {
	gen := &fakeGen{out: "  **250 g**\n"}
	svc := newService(t, gen, &fakeEngine{name: "azure"})
	st := session.New("s1")
	st.SetText("Net weight 250 g", nil)

	ans, err := svc.Query(context.Background(), st, "weight")
	require.NoError(t, err)

	want := `Given the entity "weight", search for that entity in "Net weight 250 g" and return the value of that entity with its unit.`
	require.Len(t, gen.prompts, 1)
	assert.Equal(t, want, gen.prompts[0])
	assert.Equal(t, want, ans.Prompt)
	assert.Equal(t, "weight", ans.Keyword)
	assert.Equal(t, "  **250 g**\n", ans.Text)
}

func TestQuery_KeywordKeptAsTyped(t *testing.T) {
	gen := &fakeGen{out: "250 g"}
	svc := newService(t, gen, &fakeEngine{name: "azure"})
	st := session.New("s1")
	st.SetText("Net weight 250 g", nil)

	ans, err := svc.Query(context.Background(), st, " weight")
	require.NoError(t, err)
	require.Len(t, gen.prompts, 1)
	assert.Equal(t,
		`Given the entity " weight", search for that entity in "Net weight 250 g" and return the value of that entity with its unit.`,
		gen.prompts[0])
	assert.Equal(t, " weight", ans.Keyword)
}

func TestExtractThenQuery_EndToEnd(t *testing.T) {
	gen := &fakeGen{out: "42.50 USD"}
	eng := &fakeEngine{name: "azure", res: lines([]string{"Total"}, []string{"Amount", "42.50", "USD"})}
	svc := newService(t, gen, eng)
	st := session.New("s1")

	_, err := svc.Extract(context.Background(), st, pngBytes(t), nil)
	require.NoError(t, err)
	ans, err := svc.Query(context.Background(), st, "Amount")
	require.NoError(t, err)

	assert.Equal(t,
		`Given the entity "Amount", search for that entity in "Total Amount 42.50 USD" and return the value of that entity with its unit.`,
		gen.prompts[0])
	assert.Equal(t, "42.50 USD", ans.Text)
}

func TestQuery_GenerationFailure(t *testing.T) {
	gen := &fakeGen{err: errors.New("quota exceeded")}
	svc := newService(t, gen, &fakeEngine{name: "azure"})
	st := session.New("s1")
	st.SetText("abc", nil)

	_, err := svc.Query(context.Background(), st, "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, &apperr.Error{Code: apperr.CodeGenerationFailed})
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Len(t, gen.prompts, 1, "no retry")
}
