package feature

import "sort"

// Vector is an immutable snapshot of matchup features keyed by field name.
// It is owned by the feature store; everything downstream treats it as
// read-only. Values not present in the snapshot are simply absent, the
// aligner decides how to impute them per model.
type Vector struct {
	schemaVersion string
	values        map[string]float64
}

// NewVector builds a Vector from a value map. The map is copied so later
// mutation by the caller cannot leak into the snapshot.
func NewVector(schemaVersion string, values map[string]float64) Vector {
	copied := make(map[string]float64, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return Vector{schemaVersion: schemaVersion, values: copied}
}

// SchemaVersion returns the schema version the snapshot was computed under.
func (v Vector) SchemaVersion() string {
	return v.schemaVersion
}

// Value returns the named field and whether it is present.
func (v Vector) Value(name string) (float64, bool) {
	val, ok := v.values[name]
	return val, ok
}

// Len returns the number of populated fields.
func (v Vector) Len() int {
	return len(v.values)
}

// Names returns the populated field names in lexical order.
func (v Vector) Names() []string {
	names := make([]string, 0, len(v.values))
	for k := range v.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the underlying values, for serialization.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}
