// Package openai talks to OpenAI-compatible chat completion endpoints
// (OpenAI, DeepSeek and similar) over plain HTTP.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

type Generator struct {
	APIKey  string
	Model   string
	BaseURL string
	httpc   *http.Client
}

func New(key, model, baseURL string) *Generator {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Generator{
		APIKey:  key,
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Transport: tr},
	}
}

// WithHTTPClient overrides the internal HTTP client.
func (g *Generator) WithHTTPClient(c *http.Client) *Generator {
	if c != nil {
		g.httpc = c
	}
	return g
}

func (g *Generator) Name() string { return "openai" }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.APIKey == "" {
		return "", errors.New("OPENAI_API_KEY is empty")
	}
	body := map[string]any{
		"model": g.Model,
		"messages": []any{
			map[string]any{"role": "user", "content": prompt},
		},
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("openai %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if len(raw.Choices) == 0 || raw.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: empty response")
	}
	return raw.Choices[0].Message.Content, nil
}
