package layout

import "fmt"

// Record is a decoded payload. Values are addressed by field name.
type Record struct {
	layout Layout
	ints   [][]int32
	floats []float64
}

// NewRecord returns a zeroed record of this layout.
func (l Layout) NewRecord() Record {
	rec := Record{
		layout: l,
		ints:   make([][]int32, len(l.fields)),
		floats: make([]float64, len(l.fields)),
	}
	for i, f := range l.fields {
		if f.Kind == Int32Array {
			rec.ints[i] = make([]int32, f.Count)
		}
	}
	return rec
}

// Layout returns the record's layout.
func (r Record) Layout() Layout {
	return r.layout
}

func (r Record) field(name string, kind Kind) int {
	i, ok := r.layout.index[name]
	if !ok {
		panic(fmt.Errorf("%w: %s.%s", ErrUnknownField, r.layout.name, name))
	}
	if r.layout.fields[i].Kind != kind {
		panic(fmt.Errorf("%w: %s.%s is %v, not %v", ErrUnknownField, r.layout.name, name, r.layout.fields[i].Kind, kind))
	}
	return i
}

// Float returns the named float field. It panics if the layout has no such
// float field; validate names with Layout.Lookup first.
func (r Record) Float(name string) float64 {
	return r.floats[r.field(name, Float64)]
}

// Ints returns the named integer array. The slice aliases the record.
func (r Record) Ints(name string) []int32 {
	return r.ints[r.field(name, Int32Array)]
}

// SetFloat sets the named float field.
func (r Record) SetFloat(name string, v float64) {
	r.floats[r.field(name, Float64)] = v
}

// SetInts copies vals into the named integer array. Extra values are
// ignored and missing values are left untouched.
func (r Record) SetInts(name string, vals []int32) {
	copy(r.ints[r.field(name, Int32Array)], vals)
}

// Floats returns all float fields in layout order.
func (r Record) Floats() []float64 {
	out := make([]float64, 0, len(r.floats))
	for i, f := range r.layout.fields {
		if f.Kind == Float64 {
			out = append(out, r.floats[i])
		}
	}
	return out
}

// Map returns the record as field name to value, with integer arrays as
// []int32 and floats as float64. Used for dumping traces.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.layout.fields))
	for i, f := range r.layout.fields {
		switch f.Kind {
		case Int32Array:
			out[f.Name] = append([]int32(nil), r.ints[i]...)
		case Float64:
			out[f.Name] = r.floats[i]
		}
	}
	return out
}
