// Package schema defines the extraction-type registry: for each type of
// fact pulled from documents (server topology, SQL entities, API routes,
// dependency lists) it holds the field schema, the inference prompts used
// by the primary strategy and the textual patterns used by the secondary
// strategy.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Type is an enumerated extraction-type tag.
type Type string

const (
	// TypeServer extracts hosts, ports, endpoints and configuration values.
	TypeServer Type = "server"
	// TypeSQL extracts SQL queries, table names and connection strings.
	TypeSQL Type = "sql"
	// TypeAPI extracts API routes and controller mappings.
	TypeAPI Type = "api"
	// TypeDependencies extracts library and framework dependencies.
	TypeDependencies Type = "dependencies"
)

// FieldKind is the value shape of a schema field.
type FieldKind string

const (
	// KindList is an ordered list of strings.
	KindList FieldKind = "list"
	// KindMap is a string-to-string map.
	KindMap FieldKind = "map"
)

// Field is one named, typed entry in a schema.
type Field struct {
	Name string
	Kind FieldKind
}

// Schema is the ordered set of fields an extraction type produces.
type Schema struct {
	Type   Type
	Fields []Field
}

// Field returns the named field definition.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// SoleListField returns the schema's only field if it is a single list
// field. Inference responses for such schemas may be a bare JSON array.
func (s Schema) SoleListField() (Field, bool) {
	if len(s.Fields) == 1 && s.Fields[0].Kind == KindList {
		return s.Fields[0], true
	}
	return Field{}, false
}

// Fields is schema-shaped extracted data. Every field of the owning
// schema is always present: absent data is an empty list or map, never a
// missing key.
type Fields struct {
	Lists map[string][]string
	Maps  map[string]map[string]string
}

// EmptyFields returns a Fields value with every schema field present and
// empty.
func EmptyFields(s Schema) Fields {
	f := Fields{
		Lists: make(map[string][]string),
		Maps:  make(map[string]map[string]string),
	}
	for _, fd := range s.Fields {
		switch fd.Kind {
		case KindList:
			f.Lists[fd.Name] = []string{}
		case KindMap:
			f.Maps[fd.Name] = map[string]string{}
		}
	}
	return f
}

// NonEmpty reports whether any field holds at least one value.
func (f Fields) NonEmpty() bool {
	for _, vs := range f.Lists {
		if len(vs) > 0 {
			return true
		}
	}
	for _, m := range f.Maps {
		if len(m) > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (f Fields) Clone() Fields {
	out := Fields{
		Lists: make(map[string][]string, len(f.Lists)),
		Maps:  make(map[string]map[string]string, len(f.Maps)),
	}
	for k, vs := range f.Lists {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out.Lists[k] = cp
	}
	for k, m := range f.Maps {
		cp := make(map[string]string, len(m))
		for mk, mv := range m {
			cp[mk] = mv
		}
		out.Maps[k] = cp
	}
	return out
}

// MarshalJSON renders the fields as one flat JSON object, list fields as
// arrays and map fields as objects, keys sorted for stable output.
func (f Fields) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(f.Lists)+len(f.Maps))
	for k := range f.Lists {
		names = append(names, k)
	}
	for k := range f.Maps {
		names = append(names, k)
	}
	sort.Strings(names)

	buf := []byte{'{'}
	for i, name := range names {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')

		var val []byte
		if vs, ok := f.Lists[name]; ok {
			val, err = json.Marshal(vs)
		} else {
			val, err = json.Marshal(f.Maps[name])
		}
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", name, err)
		}
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

// Prompt is the system/user prompt pair for the inference-backed strategy.
type Prompt struct {
	System string
	User   string
}

// Pattern is one secondary-strategy regex. Matches feed the named schema
// field: list fields collect the first capture group (or the whole match),
// map fields store it under Key.
type Pattern struct {
	Field string
	Key   string
	Regex string
}
