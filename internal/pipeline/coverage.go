package pipeline

import "github.com/fyrsmithlabs/specd/internal/schema"

// Analyze computes coverage over the aggregated results of one request.
// A type counts as found when at least one of its fields is non-empty.
func Analyze(requested []schema.Type, results map[schema.Type]AggregatedResult) CoverageReport {
	report := CoverageReport{
		PerType:     make(map[schema.Type]bool, len(requested)),
		FieldCounts: make(map[string]int),
	}

	found := 0
	for _, t := range requested {
		result, ok := results[t]
		if !ok {
			report.PerType[t] = false
			continue
		}

		report.PerType[t] = result.Fields.NonEmpty()
		if report.PerType[t] {
			found++
		}

		for name, values := range result.Fields.Lists {
			report.FieldCounts[string(t)+"."+name] = len(values)
		}
		for name, kv := range result.Fields.Maps {
			report.FieldCounts[string(t)+"."+name] = len(kv)
		}
	}

	if len(requested) > 0 {
		report.Percentage = 100 * float64(found) / float64(len(requested))
	}
	return report
}
