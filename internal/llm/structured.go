package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaValidationError reports a model reply that could not be turned into
// the requested structure. Raw keeps the reply for diagnostics.
type SchemaValidationError struct {
	Raw string
	Err error
}

func (e *SchemaValidationError) Error() string {
	return "llm: structured output rejected: " + e.Err.Error()
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// GenerateStructured asks cli for JSON and decodes it into T. Provider
// failures are returned as-is; malformed or non-conforming replies come back
// as *SchemaValidationError.
func GenerateStructured[T any](ctx context.Context, cli LLMClient, prompt string, input any) (T, error) {
	var zero T
	schema, err := SchemaText[T]()
	if err != nil {
		return zero, err
	}
	raw, err := cli.GenerateJSON(ctx, prompt+"\n\n[OUTPUT JSON SCHEMA]\n"+schema, input)
	if err != nil {
		return zero, err
	}
	return DecodeStructured[T](raw)
}

// DecodeStructured extracts a JSON value from text, validates it against the
// schema inferred for T and unmarshals it.
func DecodeStructured[T any](text []byte) (T, error) {
	var zero T
	raw, err := ExtractJSON(string(text))
	if err != nil {
		return zero, &SchemaValidationError{Raw: string(text), Err: err}
	}
	resolved, err := resolvedFor[T]()
	if err != nil {
		return zero, err
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return zero, &SchemaValidationError{Raw: string(text), Err: err}
	}
	if err := resolved.Validate(instance); err != nil {
		return zero, &SchemaValidationError{Raw: string(text), Err: err}
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, &SchemaValidationError{Raw: string(text), Err: err}
	}
	return out, nil
}

type schemaEntry struct {
	resolved *jsonschema.Resolved
	text     string
}

var schemaCache sync.Map // reflect.Type -> *schemaEntry

func schemaFor[T any]() (*schemaEntry, error) {
	key := reflect.TypeFor[T]()
	if v, ok := schemaCache.Load(key); ok {
		return v.(*schemaEntry), nil
	}
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer schema for %s: %w", key, err)
	}
	relax(s)
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema for %s: %w", key, err)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode schema for %s: %w", key, err)
	}
	entry := &schemaEntry{resolved: resolved, text: string(b)}
	v, _ := schemaCache.LoadOrStore(key, entry)
	return v.(*schemaEntry), nil
}

func resolvedFor[T any]() (*jsonschema.Resolved, error) {
	e, err := schemaFor[T]()
	if err != nil {
		return nil, err
	}
	return e.resolved, nil
}

// SchemaText returns the JSON Schema for T as embedded in prompts.
func SchemaText[T any]() (string, error) {
	e, err := schemaFor[T]()
	if err != nil {
		return "", err
	}
	return e.text, nil
}

// relax lets models add keys we do not read.
func relax(s *jsonschema.Schema) {
	if s == nil {
		return
	}
	if s.Properties != nil {
		s.AdditionalProperties = nil
	}
	for _, p := range s.Properties {
		relax(p)
	}
	for _, d := range s.Defs {
		relax(d)
	}
	for _, a := range s.AnyOf {
		relax(a)
	}
	relax(s.Items)
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

// ExtractJSON finds a JSON document in a model reply: the whole text, a code
// fence, or the first balanced object/array embedded in prose.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, ErrInvalidJSON
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	for _, m := range fenceRe.FindAllStringSubmatch(s, -1) {
		body := strings.TrimSpace(m[1])
		if json.Valid([]byte(body)) {
			return json.RawMessage(body), nil
		}
	}
	for start := 0; start < len(s); start++ {
		if s[start] != '{' && s[start] != '[' {
			continue
		}
		if end := balancedEnd(s, start); end > start {
			cand := []byte(s[start:end])
			if json.Valid(cand) {
				return json.RawMessage(bytes.Clone(cand)), nil
			}
		}
	}
	return nil, ErrInvalidJSON
}

// balancedEnd returns the index just past the bracket closing s[start], or -1.
func balancedEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
