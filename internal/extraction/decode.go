package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/specd/internal/schema"
)

// errSchemaValidation indicates a decoded structure does not match the
// type's schema. It triggers strategy fallthrough and is never surfaced
// past the chain.
var errSchemaValidation = errors.New("decoded output does not match schema")

// errNoDecode indicates none of the parse steps produced valid JSON.
var errNoDecode = errors.New("no parseable structure in response")

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// parseFunc attempts to locate and parse one JSON value in free-form
// model output. A false result means this step found nothing; parsing
// then moves to the next step.
type parseFunc func(text string) (any, bool)

// decodeParsers is the ordered fallback decode: direct parse, first
// fenced code block, first balanced brace/bracket span. First success
// wins.
var decodeParsers = []parseFunc{parseDirect, parseFencedBlock, parseBalancedSpan}

// decodeResponse turns raw model output into schema-shaped fields. It
// returns errNoDecode when no step yields JSON, or errSchemaValidation
// when the decoded value cannot be shaped to the schema.
func decodeResponse(text string, s schema.Schema) (schema.Fields, error) {
	for _, parse := range decodeParsers {
		v, ok := parse(text)
		if !ok {
			continue
		}
		return shapeToSchema(v, s)
	}
	return schema.Fields{}, errNoDecode
}

func parseDirect(text string) (any, bool) {
	return parseJSON(strings.TrimSpace(text))
}

func parseFencedBlock(text string) (any, bool) {
	m := fencedBlockRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return parseJSON(strings.TrimSpace(m[1]))
}

// parseBalancedSpan scans for the first '{' or '[' and parses up to its
// matching close delimiter.
func parseBalancedSpan(text string) (any, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return parseJSON(text[start : i+1])
			}
		}
	}
	return nil, false
}

func parseJSON(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	// Bare scalars are not a usable structure.
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	default:
		return nil, false
	}
}

// shapeToSchema validates a decoded JSON value against the schema and
// fills a Fields value. Fields absent from the decoded object become
// empty; unknown keys are ignored. A bare array is accepted for schemas
// with a single list field.
func shapeToSchema(v any, s schema.Schema) (schema.Fields, error) {
	out := schema.EmptyFields(s)

	switch val := v.(type) {
	case []any:
		fd, ok := s.SoleListField()
		if !ok {
			return schema.Fields{}, fmt.Errorf("%w: got array for multi-field schema %q", errSchemaValidation, s.Type)
		}
		items, err := coerceStringList(val)
		if err != nil {
			return schema.Fields{}, fmt.Errorf("%w: field %q: %v", errSchemaValidation, fd.Name, err)
		}
		out.Lists[fd.Name] = items
		return out, nil

	case map[string]any:
		for _, fd := range s.Fields {
			raw, ok := val[fd.Name]
			if !ok || raw == nil {
				continue
			}
			switch fd.Kind {
			case schema.KindList:
				items, ok := raw.([]any)
				if !ok {
					return schema.Fields{}, fmt.Errorf("%w: field %q is not a list", errSchemaValidation, fd.Name)
				}
				vs, err := coerceStringList(items)
				if err != nil {
					return schema.Fields{}, fmt.Errorf("%w: field %q: %v", errSchemaValidation, fd.Name, err)
				}
				out.Lists[fd.Name] = vs
			case schema.KindMap:
				obj, ok := raw.(map[string]any)
				if !ok {
					return schema.Fields{}, fmt.Errorf("%w: field %q is not an object", errSchemaValidation, fd.Name)
				}
				m := make(map[string]string, len(obj))
				for k, mv := range obj {
					sv, err := coerceString(mv)
					if err != nil {
						return schema.Fields{}, fmt.Errorf("%w: field %q key %q: %v", errSchemaValidation, fd.Name, k, err)
					}
					m[k] = sv
				}
				out.Maps[fd.Name] = m
			}
		}
		return out, nil

	default:
		return schema.Fields{}, fmt.Errorf("%w: unexpected value type %T", errSchemaValidation, v)
	}
}

func coerceStringList(items []any) ([]string, error) {
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, err := coerceString(it)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// coerceString accepts strings plus the scalar types models commonly
// emit for numeric values like ports.
func coerceString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
