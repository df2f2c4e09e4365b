package ocr

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocks(lines ...[]string) Result {
	var r Result
	for _, ls := range lines {
		var b Block
		for _, l := range ls {
			b.Lines = append(b.Lines, Line{Text: l})
		}
		r.Blocks = append(r.Blocks, b)
	}
	return r
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		name  string
		res   Result
		want  string
		lines []string
	}{
		{
			name:  "blocks keep order",
			res:   blocks([]string{"Total"}, []string{"Amount", "42.50", "USD"}),
			want:  "Total Amount 42.50 USD",
			lines: []string{"Total", "Amount", "42.50", "USD"},
		},
		{
			name:  "single line",
			res:   blocks([]string{"Net weight 250 g"}),
			want:  "Net weight 250 g",
			lines: []string{"Net weight 250 g"},
		},
		{
			name: "no blocks",
			res:  Result{},
			want: "",
		},
		{
			name:  "empty block in between",
			res:   blocks([]string{"a"}, nil, []string{"b"}),
			want:  "a b",
			lines: []string{"a", "b"},
		},
		{
			name:  "line text is not trimmed",
			res:   blocks([]string{" a ", "b"}),
			want:  " a  b",
			lines: []string{" a ", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []string
			got := Flatten(tt.res, func(s string) { seen = append(seen, s) })
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.lines, seen)
			assert.Equal(t, tt.lines, tt.res.Lines())
			if len(tt.lines) > 0 {
				assert.Equal(t, strings.Join(tt.lines, " "), got)
			}
		})
	}
}

func TestFlatten_NilCallback(t *testing.T) {
	assert.Equal(t, "x y", Flatten(blocks([]string{"x", "y"}), nil))
}

type namedEngine string

func (n namedEngine) Name() string { return string(n) }
func (n namedEngine) Read(context.Context, []byte) (Result, error) {
	return Result{Engine: string(n)}, nil
}

func TestEngines(t *testing.T) {
	engs, err := NewEngines("azure", namedEngine("azure"), namedEngine("Yandex"), nil)
	require.NoError(t, err)

	assert.Equal(t, "azure", engs.Default())
	assert.Equal(t, []string{"azure", "yandex"}, engs.Names())

	e, err := engs.Get("")
	require.NoError(t, err)
	assert.Equal(t, "azure", e.Name())

	e, err = engs.Get(" YANDEX ")
	require.NoError(t, err)
	assert.Equal(t, "Yandex", e.Name())

	_, err = engs.Get("tesseract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: azure, yandex")
}

func TestNewEngines_MissingDefault(t *testing.T) {
	_, err := NewEngines("azure", namedEngine("yandex"))
	require.Error(t, err)
}
