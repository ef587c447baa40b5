// Package extract turns fetched pages and API payloads into flat records.
//
// A FieldMap is an ordered list of named selection functions over some
// node type: gson.JSON for API payloads and hidden page data, or
// *goquery.Selection for HTML. Applying a map is pure, so the same node
// and map always produce the same Record.
package extract

// Record is one extracted item.
type Record map[string]any

// Field names one output key and how to select its value from a node.
type Field[N any] struct {
	Name   string
	Select func(N) any
}

// FieldMap is an ordered set of fields.
type FieldMap[N any] []Field[N]

// F is shorthand for a Field literal.
func F[N any](name string, sel func(N) any) Field[N] {
	return Field[N]{Name: name, Select: sel}
}

// Apply evaluates every field of m against node.
func Apply[N any](node N, m FieldMap[N]) Record {
	rec := make(Record, len(m))
	for _, f := range m {
		rec[f.Name] = f.Select(node)
	}
	return rec
}

// Names returns the field names of m in order.
func (m FieldMap[N]) Names() []string {
	names := make([]string, len(m))
	for i, f := range m {
		names[i] = f.Name
	}
	return names
}

// Const selects a fixed value.
func Const[N any](v any) func(N) any {
	return func(N) any { return v }
}
