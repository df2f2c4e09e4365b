// Package azure reads text through the Azure AI Vision Image Analysis 4.0
// REST API with the "read" visual feature.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parimal/api/internal/ocr"
)

const apiVersion = "2024-02-01"

type Engine struct {
	endpoint string
	key      string
	httpc    *http.Client
}

func New(endpoint, key string) *Engine {
	return &Engine{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		key:      strings.TrimSpace(key),
		httpc:    &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient overrides the internal HTTP client.
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string { return "azure" }

type response struct {
	Metadata struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"metadata"`
	ReadResult *struct {
		Blocks []struct {
			Lines []struct {
				Text  string `json:"text"`
				Words []struct {
					Text       string  `json:"text"`
					Confidence float64 `json:"confidence"`
				} `json:"words,omitempty"`
			} `json:"lines"`
		} `json:"blocks"`
	} `json:"readResult"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *Engine) Read(ctx context.Context, image []byte) (ocr.Result, error) {
	if e.endpoint == "" || e.key == "" {
		return ocr.Result{}, fmt.Errorf("AI_SERVICE_ENDPOINT or AI_SERVICE_KEY is empty")
	}
	q := url.Values{}
	q.Set("features", "read")
	q.Set("api-version", apiVersion)
	u := e.endpoint + "/computervision/imageanalysis:analyze?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(image))
	if err != nil {
		return ocr.Result{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", e.key)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return ocr.Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var er errorResponse
		if json.Unmarshal(x, &er) == nil && er.Error.Message != "" {
			return ocr.Result{}, fmt.Errorf("azure vision %d %s: %s", resp.StatusCode, er.Error.Code, er.Error.Message)
		}
		return ocr.Result{}, fmt.Errorf("azure vision %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ocr.Result{}, fmt.Errorf("azure vision: decode: %w", err)
	}

	res := ocr.Result{
		Engine: e.Name(),
		Width:  out.Metadata.Width,
		Height: out.Metadata.Height,
	}
	if out.ReadResult == nil {
		return res, nil
	}
	for _, b := range out.ReadResult.Blocks {
		blk := ocr.Block{Lines: make([]ocr.Line, 0, len(b.Lines))}
		for _, l := range b.Lines {
			line := ocr.Line{Text: l.Text}
			for _, w := range l.Words {
				line.Words = append(line.Words, ocr.Word{Text: w.Text, Confidence: w.Confidence})
			}
			blk.Lines = append(blk.Lines, line)
		}
		res.Blocks = append(res.Blocks, blk)
	}
	return res, nil
}
