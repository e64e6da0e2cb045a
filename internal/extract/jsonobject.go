// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package extract implements the event and payment extractors (C11):
// a model call per message body, tolerant JSON parsing of the
// response, and normalization into the closed event/payment sets.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSONObject mirrors the legacy extractor's tolerant parse: try
// the raw response as JSON first, then fall back to the span from the
// first '{' to the last '}' in the response.
func extractJSONObject(raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var direct map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &direct); err == nil {
		return direct, nil
	}

	snippet := jsonObjectRe.FindString(raw)
	if snippet == "" {
		return nil, fmt.Errorf("model response did not contain a JSON object")
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(snippet), &obj); err != nil {
		return nil, fmt.Errorf("extracted JSON was not an object: %w", err)
	}
	return obj, nil
}

func stringField(obj map[string]interface{}, key string) *string {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func boolField(obj map[string]interface{}, key string) *bool {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

func floatField(obj map[string]interface{}, key string) *float64 {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		return nil
	}
	return nil
}

// rawFieldAsText returns a field's value rendered as text, whether the
// model emitted it as a JSON string or a bare number — used for the
// payment amount field, which legacy senders render either way.
func rawFieldAsText(obj map[string]interface{}, key string) *string {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case string:
		n = strings.TrimSpace(n)
		if n == "" {
			return nil
		}
		return &n
	case float64:
		s := fmt.Sprintf("%v", n)
		return &s
	}
	return nil
}
