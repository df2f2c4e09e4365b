package tesseract

import "errors"

// ErrNotEnabled is returned when the binary was built without -tags ocr.
var ErrNotEnabled = errors.New("tesseract OCR support not enabled; rebuild with -tags ocr")
