package schema

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned when a request names an extraction type that
// has no registry entry. This is a caller error and aborts only that
// type's processing.
var ErrUnknownType = errors.New("unknown extraction type")

// Entry is the full registry record for one extraction type.
type Entry struct {
	Schema   Schema
	Prompt   Prompt
	Patterns []Pattern

	// Query is the retrieval query used to gather documents likely to
	// contain this type of information.
	Query string
}

// Registry maps extraction types to their entries. Adding a new type
// requires only a new entry here; the scheduler and aggregator are
// schema-driven.
type Registry struct {
	entries map[Type]Entry
	order   []Type
}

// NewRegistry returns a registry populated with the built-in extraction
// types.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[Type]Entry)}
	for _, e := range builtinEntries() {
		r.entries[e.Schema.Type] = e
		r.order = append(r.order, e.Schema.Type)
	}
	return r
}

// Entry returns the registry record for the given type.
func (r *Registry) Entry(t Type) (Entry, error) {
	e, ok := r.entries[t]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return e, nil
}

// Schema returns the field schema for the given type.
func (r *Registry) Schema(t Type) (Schema, error) {
	e, err := r.Entry(t)
	if err != nil {
		return Schema{}, err
	}
	return e.Schema, nil
}

// Parse validates a raw type tag against the registry.
func (r *Registry) Parse(s string) (Type, error) {
	t := Type(s)
	if _, ok := r.entries[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Types returns all registered types in registration order.
func (r *Registry) Types() []Type {
	out := make([]Type, len(r.order))
	copy(out, r.order)
	return out
}

func builtinEntries() []Entry {
	return []Entry{
		{
			Schema: Schema{
				Type: TypeServer,
				Fields: []Field{
					{Name: "hosts", Kind: KindList},
					{Name: "ports", Kind: KindList},
					{Name: "endpoints", Kind: KindList},
					{Name: "configuration", Kind: KindMap},
				},
			},
			Prompt: Prompt{
				System: `You are an expert system configuration analyzer. Extract server and configuration information from code/config files.
Focus on: hosts, ports, URLs, service endpoints, environment variables, connection details.`,
				User: `Extract server information from this code and return ONLY valid JSON in this exact format:
{
  "hosts": ["hostname1", "hostname2"],
  "ports": ["8080", "3000"],
  "endpoints": ["http://localhost:8080/api", "https://api.example.com"],
  "configuration": {"key1": "value1", "key2": "value2"}
}

If no server information is found, return:
{"hosts": [], "ports": [], "endpoints": [], "configuration": {}}

Do not include explanations, comments, or markdown formatting.`,
			},
			Patterns: []Pattern{
				{Field: "hosts", Regex: `(?i)(?:host|hostname)["'\s]*[=:]["'\s]*([A-Za-z][A-Za-z0-9_.\-]*)`},
				{Field: "ports", Regex: `(?i)port["'\s]*[=:]["'\s]*(\d+)`},
				{Field: "endpoints", Regex: `(https?://[^\s"'<>{}]+)`},
				{Field: "configuration", Key: "database", Regex: `(?i)database["'\s]*[=:]["'\s]*([A-Za-z0-9_.\-]+)`},
			},
			Query: "server host port configuration endpoint",
		},
		{
			Schema: Schema{
				Type: TypeSQL,
				Fields: []Field{
					{Name: "queries", Kind: KindList},
					{Name: "tables", Kind: KindList},
					{Name: "connections", Kind: KindList},
				},
			},
			Prompt: Prompt{
				System: `You are an expert database analyzer. Extract database-related information from code.
Focus on: SQL queries, table names, column names, database connections, ORM operations.
Be thorough but accurate - only extract what is actually present in the code.`,
				User: `Analyze this code for database information and return ONLY valid JSON in this exact format:
{
  "queries": ["actual SQL query 1", "actual SQL query 2"],
  "tables": ["table_name_1", "table_name_2"],
  "connections": ["connection_string_1", "connection_string_2"]
}

If no database information is found, return:
{"queries": [], "tables": [], "connections": []}

Do not include explanations, comments, or markdown formatting.`,
			},
			Patterns: []Pattern{
				{Field: "queries", Regex: `(?is)(SELECT\s+[^;]+?FROM\s+[^;]+?)(?:;|\n\n|$)`},
				{Field: "queries", Regex: `(?is)(INSERT\s+INTO\s+[^;]+?)(?:;|\n\n|$)`},
				{Field: "queries", Regex: `(?is)(UPDATE\s+\w+\s+SET\s+[^;]+?)(?:;|\n\n|$)`},
				{Field: "queries", Regex: `(?is)(DELETE\s+FROM\s+[^;]+?)(?:;|\n\n|$)`},
				{Field: "queries", Regex: `(?is)(CREATE\s+TABLE\s+[^;]+?)(?:;|\n\n|$)`},
				{Field: "tables", Regex: `(?i)FROM\s+([A-Za-z_][A-Za-z0-9_]*)`},
				{Field: "tables", Regex: `(?i)INSERT\s+INTO\s+([A-Za-z_][A-Za-z0-9_]*)`},
				{Field: "tables", Regex: `(?i)UPDATE\s+([A-Za-z_][A-Za-z0-9_]*)\s+SET`},
				{Field: "tables", Regex: `(?i)JOIN\s+([A-Za-z_][A-Za-z0-9_]*)`},
				{Field: "connections", Regex: `(jdbc:[^\s"']+)`},
				{Field: "connections", Regex: `((?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis)://[^\s"']+)`},
			},
			Query: "database sql query table connection",
		},
		{
			Schema: Schema{
				Type: TypeAPI,
				Fields: []Field{
					{Name: "routes", Kind: KindList},
				},
			},
			Prompt: Prompt{
				System: `You are an expert API analyzer. Extract API endpoints and routes from code.
Focus on: REST endpoints, GraphQL, RPC calls, route definitions, controller mappings.`,
				User: `Find all API endpoints in this code and return ONLY a valid JSON array:
["GET /api/users", "POST /api/orders", "/graphql", "PUT /api/products/{id}"]

Include the HTTP method if available. If no API endpoints found, return: []

Do not include explanations, comments, or markdown formatting.`,
			},
			Patterns: []Pattern{
				{Field: "routes", Regex: `@(?:Get|Post|Put|Delete|Patch)Mapping\(["']([^"']+)["']`},
				{Field: "routes", Regex: `(?i)(?:app|router)\.(?:get|post|put|delete|patch)\(["']([^"']+)["']`},
				{Field: "routes", Regex: `@RequestMapping\(["']([^"']+)["']`},
				{Field: "routes", Regex: `@Path\(["']([^"']+)["']`},
				{Field: "routes", Regex: `(?m)(?:GET|POST|PUT|DELETE|PATCH)\s+((?:/[\w\-{}.]+)+/?)`},
			},
			Query: "api route controller service endpoint",
		},
		{
			Schema: Schema{
				Type: TypeDependencies,
				Fields: []Field{
					{Name: "libraries", Kind: KindList},
				},
			},
			Prompt: Prompt{
				System: `You are an expert dependency analyzer. Extract dependencies and imports from code.
Focus on: external libraries, frameworks, services, modules, packages.`,
				User: `Extract all dependencies from this code and return ONLY a valid JSON array:
["spring-boot-starter-web", "postgresql", "redis", "lombok", "jackson"]

Include library names, frameworks, and external services. If no dependencies found, return: []

Do not include explanations, comments, or markdown formatting.`,
			},
			Patterns: []Pattern{
				{Field: "libraries", Regex: `(?m)^\s*import\s+["']?([\w./@\-]+)["']?`},
				{Field: "libraries", Regex: `(?m)^\s*from\s+([\w.]+)\s+import`},
				{Field: "libraries", Regex: `require\(["']([^"']+)["']\)`},
				{Field: "libraries", Regex: `(?s)<groupId>([^<]+)</groupId>\s*<artifactId>([^<]+)</artifactId>`},
				{Field: "libraries", Regex: `(?m)implementation\s+["']([^"']+)["']`},
			},
			Query: "import dependency library framework",
		},
	}
}
