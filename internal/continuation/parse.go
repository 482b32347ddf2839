package continuation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Concrete failures are reported as [*SchemaError] and
// [*IncompleteError], which match these via errors.Is.
var (
	// ErrNoJSON is returned by ExtractJSON when text holds no balanced object.
	ErrNoJSON = errors.New("continuation: no JSON object in model output")

	// ErrSchema marks model output that is not a valid continuation object.
	ErrSchema = errors.New("continuation: generated output does not match schema")

	// ErrIncomplete marks a continuation whose response prompt is a template
	// rather than a complete sentence.
	ErrIncomplete = errors.New("continuation: generated response prompt is incomplete")
)

// SchemaError reports missing fields or undecodable JSON.
type SchemaError struct {
	// Missing lists the JSON names of required fields that were absent or empty.
	Missing []string

	// Err is the underlying decode or extraction error, if any.
	Err error
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%v: missing or empty fields: %s", ErrSchema, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%v: %v", ErrSchema, e.Err)
}

// Is lets errors.Is(err, ErrSchema) match.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

func (e *SchemaError) Unwrap() error { return e.Err }

// IncompleteError reports a response prompt containing an ellipsis or a
// placeholder.
type IncompleteError struct {
	ResponsePrompt string
	Marker         string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%v: %q contains %q", ErrIncomplete, e.ResponsePrompt, e.Marker)
}

// Is lets errors.Is(err, ErrIncomplete) match.
func (e *IncompleteError) Is(target error) bool { return target == ErrIncomplete }

// placeholderMarkers are substrings that mark an unfinished template.
var placeholderMarkers = []string{"...", "…", "___"}

// ExtractJSON returns the first balanced {...} span in text. Braces inside
// JSON string literals (including escaped quotes) do not count.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end := matchBrace(text, start); end > 0 {
			return text[start : end+1], nil
		}
		// Unbalanced from here; try the next opening brace.
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSON
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// wireResult is the JSON object the model is asked to return.
type wireResult struct {
	NextPrompt                string `json:"nextPrompt"`
	NextPromptTranslation     string `json:"nextPromptTranslation"`
	ResponsePrompt            string `json:"responsePrompt"`
	ResponsePromptTranslation string `json:"responsePromptTranslation"`
}

// Parse extracts the continuation object from raw model output and validates
// it. It returns *SchemaError when the object is absent, malformed or missing
// a field, and *IncompleteError when the response prompt is not a complete
// sentence.
func Parse(text string) (*Result, error) {
	span, err := ExtractJSON(text)
	if err != nil {
		return nil, &SchemaError{Err: err}
	}

	var w wireResult
	if err := json.Unmarshal([]byte(span), &w); err != nil {
		return nil, &SchemaError{Err: fmt.Errorf("decode: %w", err)}
	}

	r := &Result{
		NextPrompt:                strings.TrimSpace(w.NextPrompt),
		NextPromptTranslation:     strings.TrimSpace(w.NextPromptTranslation),
		ResponsePrompt:            strings.TrimSpace(w.ResponsePrompt),
		ResponsePromptTranslation: strings.TrimSpace(w.ResponsePromptTranslation),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks that every field is present and that ResponsePrompt is a
// complete sentence.
func (r *Result) Validate() error {
	var missing []string
	for _, f := range []struct{ name, val string }{
		{"nextPrompt", r.NextPrompt},
		{"nextPromptTranslation", r.NextPromptTranslation},
		{"responsePrompt", r.ResponsePrompt},
		{"responsePromptTranslation", r.ResponsePromptTranslation},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	if m := placeholder(r.ResponsePrompt); m != "" {
		return &IncompleteError{ResponsePrompt: r.ResponsePrompt, Marker: m}
	}
	return nil
}

// placeholder returns the first template marker found in s, or "".
func placeholder(s string) string {
	for _, m := range placeholderMarkers {
		if strings.Contains(s, m) {
			return m
		}
	}
	for _, pair := range [][2]byte{{'[', ']'}, {'{', '}'}, {'<', '>'}} {
		if i := strings.IndexByte(s, pair[0]); i >= 0 {
			if j := strings.IndexByte(s[i+1:], pair[1]); j >= 0 {
				return s[i : i+j+2]
			}
		}
	}
	return ""
}
