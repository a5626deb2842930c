package pipeline

import (
	"sort"

	"github.com/fyrsmithlabs/specd/internal/extraction"
	"github.com/fyrsmithlabs/specd/internal/schema"
)

// Aggregate merges all partial results for one extraction type into one
// canonical structure. It is a pure function of its input and
// deterministic: partials are ordered by source document id before
// merging, so two calls over the same set yield identical output.
//
// List fields concatenate in document order and deduplicate by exact
// string equality, keeping the first occurrence. Map fields merge
// last-writer-wins in document order; Provenance records the document
// whose value survived for each key. A field key present in any partial
// is never dropped, even when its merged value is empty.
func Aggregate(sch schema.Schema, partials []extraction.PartialResult) AggregatedResult {
	ordered := make([]extraction.PartialResult, len(partials))
	copy(ordered, partials)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SourceDocumentID < ordered[j].SourceDocumentID
	})

	merged := schema.EmptyFields(sch)
	provenance := make(map[string]string)

	for _, p := range ordered {
		for name, values := range p.Fields.Lists {
			if _, ok := merged.Lists[name]; !ok {
				merged.Lists[name] = []string{}
			}
			merged.Lists[name] = append(merged.Lists[name], values...)
		}
		for name, kv := range p.Fields.Maps {
			if _, ok := merged.Maps[name]; !ok {
				merged.Maps[name] = map[string]string{}
			}
			keys := make([]string, 0, len(kv))
			for k := range kv {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				merged.Maps[name][k] = kv[k]
				provenance[k] = p.SourceDocumentID
			}
		}
	}

	for name, values := range merged.Lists {
		merged.Lists[name] = dedupeFirstSeen(values)
	}

	return AggregatedResult{
		Type:       sch.Type,
		Fields:     merged,
		Provenance: provenance,
	}
}

// dedupeFirstSeen removes exact-match duplicates, preserving first-seen
// order. Matching is case-sensitive.
func dedupeFirstSeen(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
