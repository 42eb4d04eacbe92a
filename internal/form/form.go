// Package form holds the questionnaire payload and the helpers that turn its
// loosely typed values into display text.
package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFallback is shown in prompts for any missing answer.
const DefaultFallback = "brak"

// ErrNotObject is returned when a payload decodes to anything but an object.
var ErrNotObject = errors.New("plan request must be a JSON object")

// ErrTrailingData is returned when anything but whitespace follows the object.
var ErrTrailingData = errors.New("plan request must contain a single JSON object")

// Form is one questionnaire submission. Every field is optional; values are
// strings, numbers, string lists or nested maps keyed by day name.
type Form map[string]any

// Decode reads a JSON object. An empty body yields an empty Form. Numbers
// are kept as json.Number so they render exactly as submitted.
func Decode(r io.Reader) (Form, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return Form{}, nil
		}
		return nil, fmt.Errorf("failed to decode plan request: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}
	return fromValue(v)
}

// DecodeYAML parses a YAML (or JSON, which is valid YAML) document.
func DecodeYAML(data []byte) (Form, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode plan request: %w", err)
	}
	if v == nil {
		return Form{}, nil
	}
	return fromValue(v)
}

func fromValue(v any) (Form, error) {
	switch m := v.(type) {
	case nil:
		return Form{}, nil
	case map[string]any:
		return Form(m), nil
	default:
		return nil, ErrNotObject
	}
}

// Scalar renders the value stored under key, see Scalar.
func (f Form) Scalar(key, fallback string) string {
	return Scalar(f[key], fallback)
}

// List renders the value stored under key, see List.
func (f Form) List(key, fallback string) string {
	return List(f[key], fallback)
}

// String is the untrimmed string form of the value, "" when absent.
func (f Form) String(key string) string {
	return stringify(f[key])
}

// Strings returns the elements of a list value. Non-list values yield nil.
func (f Form) Strings(key string) []string {
	return toStrings(f[key])
}

// Map returns a nested object value, or nil.
func (f Form) Map(key string) map[string]any {
	m, _ := f[key].(map[string]any)
	return m
}

// Scalar returns fallback when v is nil or blank after trimming, otherwise
// the trimmed string form of v.
func Scalar(v any, fallback string) string {
	s := strings.TrimSpace(stringify(v))
	if s == "" {
		return fallback
	}
	return s
}

// List joins a sequence with ", " (fallback when empty), trims a plain
// string (fallback when blank) and returns fallback for anything else.
func List(v any, fallback string) string {
	switch t := v.(type) {
	case []any, []string:
		items := toStrings(t)
		if len(items) == 0 {
			return fallback
		}
		return strings.Join(items, ", ")
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s
		}
		return fallback
	default:
		return fallback
	}
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringify(item))
		}
		return out
	default:
		return nil
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	case []any, []string:
		// Lists in a scalar slot render comma-joined without spaces.
		return strings.Join(toStrings(t), ",")
	default:
		return fmt.Sprint(t)
	}
}
