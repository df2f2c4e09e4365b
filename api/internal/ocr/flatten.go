package ocr

import "strings"

// Flatten walks res in block then line order, hands every line text to onLine
// (if non-nil) as it is consumed, and returns the texts joined by one space.
func Flatten(res Result, onLine func(string)) string {
	var b strings.Builder
	first := true
	for _, blk := range res.Blocks {
		for _, l := range blk.Lines {
			if onLine != nil {
				onLine(l.Text)
			}
			if !first {
				b.WriteByte(' ')
			}
			b.WriteString(l.Text)
			first = false
		}
	}
	return b.String()
}
