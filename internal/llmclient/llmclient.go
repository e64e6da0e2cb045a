// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package llmclient is a plain HTTP JSON client for the local generative
// model host (spec.md §6). It deliberately does not speak gRPC/proto —
// the model RPCs are Ollama-style `POST /api/embeddings` (with a
// `/api/embed` fallback) and `POST /api/generate`.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the configured model host.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed computes one embedding vector for prompt. It tries
// `/api/embeddings` first and falls back to `/api/embed` if the model
// host does not implement the former (spec §6).
func (c *Client) Embed(ctx context.Context, model, prompt string) ([]float32, error) {
	vec, err := c.embedViaEmbeddings(ctx, model, prompt)
	if err == nil {
		return vec, nil
	}

	vec, fallbackErr := c.embedViaEmbed(ctx, model, prompt)
	if fallbackErr == nil {
		return vec, nil
	}
	return nil, fmt.Errorf("llmclient: embed via /api/embeddings (%v) and /api/embed (%v) both failed", err, fallbackErr)
}

func (c *Client) embedViaEmbeddings(ctx context.Context, model, prompt string) ([]float32, error) {
	var resp embeddingsResponse
	if err := c.postJSON(ctx, "/api/embeddings", embeddingsRequest{Model: model, Prompt: prompt}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("llmclient: empty embedding returned")
	}
	return resp.Embedding, nil
}

func (c *Client) embedViaEmbed(ctx context.Context, model, prompt string) ([]float32, error) {
	var resp embedResponse
	if err := c.postJSON(ctx, "/api/embed", embedRequest{Model: model, Input: prompt}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("llmclient: empty embeddings returned")
	}
	return resp.Embeddings[0], nil
}

// DimensionMismatchError marks an embedding whose dimension does not
// match the vector index's configured dimension. Callers treat this as
// fatal rather than a per-row error (spec §7 fatal-error class).
type DimensionMismatchError struct {
	Got, Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("llmclient: embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}

// CheckDimension fails loudly (rather than silently truncating or
// padding) when the embedding's dimension does not match the vector
// index's configured dimension (spec §6, §7 fatal-error class).
func CheckDimension(vec []float32, want int) error {
	if len(vec) != want {
		return &DimensionMismatchError{Got: len(vec), Want: want}
	}
	return nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate calls the model's text-generation endpoint with streaming
// disabled and returns the full response text.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	var resp generateResponse
	if err := c.postJSON(ctx, "/api/generate", generateRequest{Model: model, Prompt: prompt, Stream: false}, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llmclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("llmclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llmclient: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llmclient: %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llmclient: %s: decode response: %w", path, err)
	}
	return nil
}
