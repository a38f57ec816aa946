package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes a surrounding Markdown code fence, with or without
// a language tag.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		tag := strings.TrimSpace(s[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{[\"") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeModelJSON parses model text into v. Prose around the JSON value is
// tolerated; anything else is ErrMalformedResponse.
func DecodeModelJSON(text string, v any) error {
	body := StripCodeFences(text)
	if err := json.Unmarshal([]byte(body), v); err == nil {
		return nil
	}
	if inner, ok := outermostJSON(body); ok {
		if err := json.Unmarshal([]byte(inner), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: model output is not valid JSON", ErrMalformedResponse)
}

func outermostJSON(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}
