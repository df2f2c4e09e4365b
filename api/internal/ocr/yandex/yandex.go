package yandex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"parimal/api/internal/imageutil"
	"parimal/api/internal/ocr"
)

const defaultOCRURL = "https://ocr.api.cloud.yandex.net/ocr/v1/recognizeText"

type Engine struct {
	iamc     *IamClient
	folderID string
	langs    []string
	model    string
	url      string
	httpc    *http.Client
}

func New(oauth2Token, folderID string, langs []string) *Engine {
	return &Engine{
		iamc:     NewIamClient(oauth2Token),
		folderID: folderID,
		langs:    langs,
		model:    "page",
		url:      defaultOCRURL,
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "yandex" }

type request struct {
	Content       string   `json:"content"`
	MimeType      string   `json:"mimeType,omitempty"`      // "JPEG" | "PNG"
	LanguageCodes []string `json:"languageCodes,omitempty"` // ["ru","en"]
	Model         string   `json:"model,omitempty"`         // "page" | "handwritten"
}

type response struct {
	Result *struct {
		TextAnnotation *struct {
			Width    string `json:"width,omitempty"`
			Height   string `json:"height,omitempty"`
			FullText string `json:"fullText,omitempty"`
			Blocks   []struct {
				Lines []struct {
					Text  string `json:"text,omitempty"`
					Words []struct {
						Text string `json:"text,omitempty"`
					} `json:"words,omitempty"`
				} `json:"lines,omitempty"`
			} `json:"blocks,omitempty"`
		} `json:"textAnnotation,omitempty"`
	} `json:"result,omitempty"`
}

func (e *Engine) Read(ctx context.Context, image []byte) (ocr.Result, error) {
	payload, _ := json.Marshal(request{
		Content:       base64.StdEncoding.EncodeToString(image),
		MimeType:      ocrMime(image),
		LanguageCodes: e.langs,
		Model:         e.model,
	})

	resp, err := e.do(ctx, payload)
	if err != nil {
		return ocr.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// one retry with a fresh IAM token
		resp.Body.Close()
		e.iamc.Invalidate()
		if resp, err = e.do(ctx, payload); err != nil {
			return ocr.Result{}, err
		}
		defer resp.Body.Close()
	}
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ocr.Result{}, fmt.Errorf("yandex ocr %d: %s", resp.StatusCode, string(x))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ocr.Result{}, err
	}
	res := ocr.Result{Engine: e.Name()}
	if out.Result == nil || out.Result.TextAnnotation == nil {
		return res, nil
	}
	ta := out.Result.TextAnnotation
	fmt.Sscan(ta.Width, &res.Width)
	fmt.Sscan(ta.Height, &res.Height)
	for _, b := range ta.Blocks {
		var blk ocr.Block
		for _, l := range b.Lines {
			line := ocr.Line{Text: l.Text}
			for _, w := range l.Words {
				line.Words = append(line.Words, ocr.Word{Text: w.Text})
			}
			blk.Lines = append(blk.Lines, line)
		}
		res.Blocks = append(res.Blocks, blk)
	}
	return res, nil
}

func (e *Engine) do(ctx context.Context, payload []byte) (*http.Response, error) {
	iamToken, err := e.iamc.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+iamToken)
	req.Header.Set("x-folder-id", e.folderID)
	return e.httpc.Do(req)
}

func ocrMime(b []byte) string {
	switch imageutil.Sniff(b) {
	case imageutil.MimeJPEG:
		return "JPEG"
	case imageutil.MimePNG:
		return "PNG"
	}
	return ""
}
