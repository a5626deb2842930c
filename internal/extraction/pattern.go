package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/specd/internal/schema"
)

// PatternStrategy is the secondary extraction strategy: it applies the
// type's registered regular expressions directly to the document
// content. It always succeeds structurally; a possibly-empty
// schema-shaped result is still a valid result.
type PatternStrategy struct {
	compiled map[schema.Type][]compiledPattern
}

// compiledPattern holds a pre-compiled pattern.
type compiledPattern struct {
	schema.Pattern
	regex *regexp.Regexp
}

// NewPatternStrategy compiles every registered pattern up front. A
// pattern that fails to compile is a misconfigured registry entry, so
// construction fails rather than skipping it at extraction time.
func NewPatternStrategy(registry *schema.Registry) (*PatternStrategy, error) {
	compiled := make(map[schema.Type][]compiledPattern)
	for _, typ := range registry.Types() {
		entry, err := registry.Entry(typ)
		if err != nil {
			return nil, err
		}
		for _, p := range entry.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("type %q pattern %q: %w", typ, p.Regex, err)
			}
			compiled[typ] = append(compiled[typ], compiledPattern{
				Pattern: p,
				regex:   re,
			})
		}
	}
	return &PatternStrategy{compiled: compiled}, nil
}

// Name returns the strategy name.
func (p *PatternStrategy) Name() string { return StrategyPattern }

// Extract applies the type's patterns against the document content.
func (p *PatternStrategy) Extract(_ context.Context, doc Document, entry schema.Entry) (schema.Fields, error) {
	fields := schema.EmptyFields(entry.Schema)

	for _, cp := range p.compiled[entry.Schema.Type] {
		matches := cp.regex.FindAllStringSubmatch(doc.Content, -1)
		for _, m := range matches {
			value := matchValue(m)
			if value == "" {
				continue
			}
			fd, ok := entry.Schema.Field(cp.Field)
			if !ok {
				continue
			}
			switch fd.Kind {
			case schema.KindList:
				fields.Lists[cp.Field] = append(fields.Lists[cp.Field], value)
			case schema.KindMap:
				fields.Maps[cp.Field][cp.Key] = value
			}
		}
	}

	return fields, nil
}

// matchValue extracts the usable value from one regex match: capture
// groups joined with ":" when present (Maven groupId:artifactId style),
// the whole match otherwise. Whitespace runs collapse to single spaces
// so multiline SQL statements come out on one line.
func matchValue(m []string) string {
	var raw string
	if len(m) > 1 {
		groups := make([]string, 0, len(m)-1)
		for _, g := range m[1:] {
			g = strings.TrimSpace(g)
			if g != "" {
				groups = append(groups, g)
			}
		}
		raw = strings.Join(groups, ":")
	} else {
		raw = m[0]
	}
	return strings.Join(strings.Fields(raw), " ")
}

// Ensure PatternStrategy implements Strategy.
var _ Strategy = (*PatternStrategy)(nil)
