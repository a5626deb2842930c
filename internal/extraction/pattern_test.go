package extraction

import (
	"context"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/specd/internal/schema"
)

func newPatternStrategy(t *testing.T) (*PatternStrategy, *schema.Registry) {
	t.Helper()
	registry := schema.NewRegistry()
	strategy, err := NewPatternStrategy(registry)
	if err != nil {
		t.Fatalf("NewPatternStrategy() error = %v", err)
	}
	return strategy, registry
}

func TestPatternStrategy_Server(t *testing.T) {
	strategy, registry := newPatternStrategy(t)
	entry, _ := registry.Entry(schema.TypeServer)

	doc := Document{
		ID: "doc-1",
		Content: `
server.port=8080
spring.datasource.host=db1.internal
spring.datasource.database=orders
health.url=http://localhost:8080/actuator/health
`,
	}

	fields, err := strategy.Extract(context.Background(), doc, entry)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if got := fields.Lists["ports"]; len(got) != 1 || got[0] != "8080" {
		t.Errorf("ports = %v, want [8080]", got)
	}
	if got := fields.Lists["hosts"]; len(got) != 1 || got[0] != "db1.internal" {
		t.Errorf("hosts = %v, want [db1.internal]", got)
	}
	if got := fields.Lists["endpoints"]; len(got) != 1 || got[0] != "http://localhost:8080/actuator/health" {
		t.Errorf("endpoints = %v", got)
	}
	if got := fields.Maps["configuration"]["database"]; got != "orders" {
		t.Errorf("configuration.database = %q, want orders", got)
	}
}

func TestPatternStrategy_SQL(t *testing.T) {
	strategy, registry := newPatternStrategy(t)
	entry, _ := registry.Entry(schema.TypeSQL)

	doc := Document{
		ID: "doc-2",
		Content: `
String q = "SELECT id, name
  FROM customers
  WHERE active = 1;";
db.url = "jdbc:postgresql://db1:5432/orders"
`,
	}

	fields, err := strategy.Extract(context.Background(), doc, entry)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if got := fields.Lists["queries"]; len(got) == 0 || !strings.HasPrefix(got[0], "SELECT id, name FROM customers") {
		t.Errorf("queries = %v", got)
	}
	found := false
	for _, tb := range fields.Lists["tables"] {
		if tb == "customers" {
			found = true
		}
	}
	if !found {
		t.Errorf("tables = %v, want to contain customers", fields.Lists["tables"])
	}
	if got := fields.Lists["connections"]; len(got) == 0 || got[0] != "jdbc:postgresql://db1:5432/orders" {
		t.Errorf("connections = %v, want jdbc url first", got)
	}
}

func TestPatternStrategy_API(t *testing.T) {
	strategy, registry := newPatternStrategy(t)
	entry, _ := registry.Entry(schema.TypeAPI)

	doc := Document{
		ID: "doc-3",
		Content: `
@GetMapping("/api/users")
public List<User> listUsers() {}

app.post('/api/orders', createOrder);
`,
	}

	fields, err := strategy.Extract(context.Background(), doc, entry)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	routes := fields.Lists["routes"]
	want := map[string]bool{"/api/users": false, "/api/orders": false}
	for _, r := range routes {
		if _, ok := want[r]; ok {
			want[r] = true
		}
	}
	for r, seen := range want {
		if !seen {
			t.Errorf("routes = %v, missing %q", routes, r)
		}
	}
}

func TestPatternStrategy_Dependencies(t *testing.T) {
	strategy, registry := newPatternStrategy(t)
	entry, _ := registry.Entry(schema.TypeDependencies)

	doc := Document{
		ID: "doc-4",
		Content: `
<dependency>
  <groupId>org.postgresql</groupId>
  <artifactId>postgresql</artifactId>
</dependency>
implementation "com.squareup.okhttp3:okhttp"
`,
	}

	fields, err := strategy.Extract(context.Background(), doc, entry)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	libs := fields.Lists["libraries"]
	foundMaven := false
	foundGradle := false
	for _, l := range libs {
		if l == "org.postgresql:postgresql" {
			foundMaven = true
		}
		if l == "com.squareup.okhttp3:okhttp" {
			foundGradle = true
		}
	}
	if !foundMaven {
		t.Errorf("libraries = %v, missing maven coordinate", libs)
	}
	if !foundGradle {
		t.Errorf("libraries = %v, missing gradle coordinate", libs)
	}
}

func TestPatternStrategy_NoMatchesStillSchemaShaped(t *testing.T) {
	strategy, registry := newPatternStrategy(t)
	entry, _ := registry.Entry(schema.TypeServer)

	fields, err := strategy.Extract(context.Background(), Document{ID: "d", Content: "nothing relevant here"}, entry)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if fields.NonEmpty() {
		t.Errorf("fields = %+v, want empty", fields)
	}
	for _, fd := range entry.Schema.Fields {
		switch fd.Kind {
		case schema.KindList:
			if _, ok := fields.Lists[fd.Name]; !ok {
				t.Errorf("list field %q absent", fd.Name)
			}
		case schema.KindMap:
			if _, ok := fields.Maps[fd.Name]; !ok {
				t.Errorf("map field %q absent", fd.Name)
			}
		}
	}
}
