package pipeline

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specd/internal/extraction"
	"github.com/fyrsmithlabs/specd/internal/schema"
)

func serverSchema(t *testing.T) schema.Schema {
	t.Helper()
	sch, err := schema.NewRegistry().Schema(schema.TypeServer)
	require.NoError(t, err)
	return sch
}

func partial(docID string, fields schema.Fields) extraction.PartialResult {
	return extraction.PartialResult{
		Type:             schema.TypeServer,
		Fields:           fields,
		Confidence:       extraction.ConfidenceHigh,
		Strategy:         extraction.StrategyInference,
		SourceDocumentID: docID,
	}
}

func TestAggregate_ListDedupFirstSeen(t *testing.T) {
	sch := serverSchema(t)

	mk := func(docID, value string) extraction.PartialResult {
		f := schema.EmptyFields(sch)
		f.Lists["hosts"] = []string{value}
		return partial(docID, f)
	}

	result := Aggregate(sch, []extraction.PartialResult{
		mk("doc1", "a"),
		mk("doc2", "A"),
		mk("doc3", "a"),
	})

	assert.Equal(t, []string{"a", "A"}, result.Fields.Lists["hosts"],
		"dedup is exact-match and keeps first occurrence order")
}

func TestAggregate_MapMergeWithProvenance(t *testing.T) {
	sch := serverSchema(t)

	f1 := schema.EmptyFields(sch)
	f1.Maps["configuration"] = map[string]string{"db": "postgres"}
	f2 := schema.EmptyFields(sch)
	f2.Maps["configuration"] = map[string]string{"db": "mysql", "host": "x"}

	result := Aggregate(sch, []extraction.PartialResult{
		partial("doc1", f1),
		partial("doc2", f2),
	})

	assert.Equal(t, map[string]string{"db": "mysql", "host": "x"}, result.Fields.Maps["configuration"])
	assert.Equal(t, map[string]string{"db": "doc2", "host": "doc2"}, result.Provenance)
}

func TestAggregate_OrdersByDocumentID(t *testing.T) {
	sch := serverSchema(t)

	f1 := schema.EmptyFields(sch)
	f1.Maps["configuration"] = map[string]string{"db": "postgres"}
	f2 := schema.EmptyFields(sch)
	f2.Maps["configuration"] = map[string]string{"db": "mysql"}

	// Input order is doc2 then doc1; aggregation must reorder so doc2
	// is the last writer.
	result := Aggregate(sch, []extraction.PartialResult{
		partial("doc2", f2),
		partial("doc1", f1),
	})

	assert.Equal(t, "mysql", result.Fields.Maps["configuration"]["db"])
	assert.Equal(t, "doc2", result.Provenance["db"])
}

func TestAggregate_Idempotent(t *testing.T) {
	sch := serverSchema(t)

	f1 := schema.EmptyFields(sch)
	f1.Lists["ports"] = []string{"8080", "5432"}
	f1.Maps["configuration"] = map[string]string{"env": "prod"}
	f2 := schema.EmptyFields(sch)
	f2.Lists["ports"] = []string{"5432"}

	partials := []extraction.PartialResult{partial("doc1", f1), partial("doc2", f2)}

	first := Aggregate(sch, partials)
	second := Aggregate(sch, partials)
	assert.True(t, reflect.DeepEqual(first, second), "same input must yield identical output")
}

func TestAggregate_NeverDropsFieldKeys(t *testing.T) {
	sch := serverSchema(t)

	result := Aggregate(sch, []extraction.PartialResult{
		partial("doc1", schema.EmptyFields(sch)),
	})

	for _, fd := range sch.Fields {
		switch fd.Kind {
		case schema.KindList:
			_, ok := result.Fields.Lists[fd.Name]
			assert.True(t, ok, "list field %q must be present", fd.Name)
		case schema.KindMap:
			_, ok := result.Fields.Maps[fd.Name]
			assert.True(t, ok, "map field %q must be present", fd.Name)
		}
	}
}

func TestAggregate_NoPartials(t *testing.T) {
	sch := serverSchema(t)
	result := Aggregate(sch, nil)

	assert.Equal(t, schema.TypeServer, result.Type)
	assert.False(t, result.Fields.NonEmpty())
	assert.NotNil(t, result.Fields.Lists["ports"], "empty list, not nil")
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	sch := serverSchema(t)

	f := schema.EmptyFields(sch)
	f.Lists["hosts"] = []string{"b", "a"}
	partials := []extraction.PartialResult{partial("doc2", f), partial("doc1", schema.EmptyFields(sch))}

	Aggregate(sch, partials)

	assert.Equal(t, "doc2", partials[0].SourceDocumentID, "input slice order must be untouched")
	assert.Equal(t, []string{"b", "a"}, partials[0].Fields.Lists["hosts"])
}
