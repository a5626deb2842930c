// Package pipeline runs batches of extraction tasks: it fans (document,
// type) pairs out across a bounded worker pool, merges the per-document
// partial results into one canonical structure per type, and annotates
// the response with coverage statistics.
package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/specd/internal/schema"
)

// AggregatedResult is the merged, deduplicated result across all
// documents for one extraction type.
type AggregatedResult struct {
	Type   schema.Type   `json:"type"`
	Fields schema.Fields `json:"fields"`

	// Provenance maps each map-field key to the id of the document whose
	// value won the merge. List fields carry no provenance; their merged
	// order already encodes document order.
	Provenance map[string]string `json:"provenance,omitempty"`
}

// CoverageReport summarizes how much of the requested extraction
// surface produced data.
type CoverageReport struct {
	// PerType reports, for each requested type, whether at least one
	// field of its aggregated result is non-empty.
	PerType map[schema.Type]bool `json:"per_type"`

	// Percentage is 100 * found / requested.
	Percentage float64 `json:"percentage"`

	// FieldCounts maps "<type>.<field>" to the merged list length or
	// merged map size. Qualified keys keep same-named fields of
	// different types apart.
	FieldCounts map[string]int `json:"field_counts"`
}

// Statistics is the summary block attached to every pipeline response.
type Statistics struct {
	DocumentsProcessed int            `json:"documents_processed"`
	TypesRequested     int            `json:"types_requested"`
	Coverage           CoverageReport `json:"coverage"`
	ElapsedMS          int64          `json:"elapsed_ms"`
}

// Result is the full outcome of one pipeline request.
type Result struct {
	Codebase string
	Types    map[schema.Type]AggregatedResult

	// TypeErrors records per-type caller errors (unknown type tags).
	// A failed type aborts only its own processing.
	TypeErrors map[string]string

	Statistics Statistics
}

// MarshalJSON renders each extraction type's merged fields as a
// top-level key so consumers index the response by type tag directly:
//
//	{"codebase": ..., "server": {...}, "sql": {...}, "statistics": {...}}
//
// Type keys are sorted for stable output; type_errors is omitted when
// empty.
func (r Result) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	write := func(key string, v any) error {
		if len(buf) > 1 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		val, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %q: %w", key, err)
		}
		buf = append(buf, val...)
		return nil
	}

	if err := write("codebase", r.Codebase); err != nil {
		return nil, err
	}

	types := make([]string, 0, len(r.Types))
	for t := range r.Types {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		if err := write(t, r.Types[schema.Type(t)].Fields); err != nil {
			return nil, err
		}
	}

	if len(r.TypeErrors) > 0 {
		if err := write("type_errors", r.TypeErrors); err != nil {
			return nil, err
		}
	}
	if err := write("statistics", r.Statistics); err != nil {
		return nil, err
	}
	return append(buf, '}'), nil
}
