// Package objectclass implements an explicit object-class registry in
// place of dynamic dispatch by string name: a startup-built mapping from
// class name to a schema Descriptor that knows its own table, column list,
// and SQL statements.
package objectclass

import (
	"fmt"
	"strings"
)

// commonColumns are the envelope fields every object class carries.
var commonColumns = []string{
	"origin_client_id",
	"origin_client_object_id",
	"last_updated_by_client_id",
	"owner_user_id",
	"last_sync",
	"deleted",
}

// Descriptor describes one object class's schema: its table and the
// domain-specific fields beyond the common envelope columns. SQL statements
// are derived once at registration time, never built per-request.
type Descriptor struct {
	// Name is the wire name clients use in the objectClass request field
	// (e.g. "Product").
	Name string
	// Table is the physical table name.
	Table string
	// Fields lists the domain-specific column names, in the order they
	// appear in client-submitted row payloads.
	Fields []string

	upsertStmt string
	selectStmt string
}

// AllColumns returns the common envelope columns followed by the class's
// domain fields, in storage order.
func (d Descriptor) AllColumns() []string {
	cols := make([]string, 0, len(commonColumns)+len(d.Fields))
	cols = append(cols, commonColumns...)
	cols = append(cols, d.Fields...)
	return cols
}

func (d *Descriptor) build() {
	d.upsertStmt = buildUpsertStmt(d.Table, d.Fields)
	d.selectStmt = buildSelectStmt(d.Table, d.Fields)
}

// UpsertStmt returns the parameter-bound INSERT ... ON CONFLICT statement
// for this class. Placeholder order matches AllColumns().
func (d Descriptor) UpsertStmt() string { return d.upsertStmt }

// SelectStmt returns the parameter-bound SELECT statement used by syncDown:
// WHERE owner_user_id = $1 AND last_sync > $2 AND last_sync <= $3.
func (d Descriptor) SelectStmt() string { return d.selectStmt }

func buildUpsertStmt(table string, fields []string) string {
	cols := append(append([]string{}, commonColumns...), fields...)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	updateSet := []string{
		"last_updated_by_client_id = EXCLUDED.last_updated_by_client_id",
		"last_sync = EXCLUDED.last_sync",
		"deleted = EXCLUDED.deleted",
	}
	for _, f := range fields {
		updateSet = append(updateSet, fmt.Sprintf("%s = EXCLUDED.%s", f, f))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) "+
			"ON CONFLICT (origin_client_id, origin_client_object_id) DO UPDATE SET %s "+
			"WHERE %s.last_sync < EXCLUDED.last_sync",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updateSet, ", "), table,
	)
}

func buildSelectStmt(table string, fields []string) string {
	cols := append([]string{"id"}, commonColumns...)
	cols = append(cols, fields...)
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE owner_user_id = $1 AND last_sync > $2 AND last_sync <= $3 ORDER BY last_sync",
		strings.Join(cols, ", "), table,
	)
}

// Registry maps class names to Descriptors. It is built once at startup;
// handlers reject unknown names with MALFORMED_REQUEST.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds a Descriptor, deriving its SQL statements.
func (r *Registry) Register(d Descriptor) {
	d.build()
	r.descriptors[d.Name] = d
}

// Lookup returns the Descriptor for name, or false if the class is unknown.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.descriptors[name]
	return d, ok
}

// Names returns the registered class names, for diagnostics.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	return names
}

// Default returns a Registry pre-populated with the two built-in object
// classes: Product and Setting.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Descriptor{Name: "Product", Table: "product", Fields: []string{"name"}})
	r.Register(Descriptor{Name: "Setting", Table: "setting", Fields: []string{"name", "value"}})
	return r
}
