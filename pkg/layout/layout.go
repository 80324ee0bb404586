// Package layout describes the byte structure of trace records and decodes
// raw payloads into typed records.
//
// A Layout is an ordered list of fields packed back to back with no padding.
// Integer fields are arrays of 4-byte signed integers and float fields are
// 8-byte IEEE-754 doubles. The sum of the field widths must equal the
// layout's declared size exactly; a Go struct with the same fields would be
// padded for alignment and silently shift every float after an odd-length
// integer array.
package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrSizeMismatch is returned by New when the declared size disagrees
	// with the sum of the field widths.
	ErrSizeMismatch = errors.New("layout size does not match field widths")

	// ErrMalformedRecord is returned by Decode when a payload's length does
	// not match the layout. Readers treat it as end of stream.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnknownField is returned when a field name is not part of a layout.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidLayout is returned by New for structurally invalid field lists.
	ErrInvalidLayout = errors.New("invalid layout")
)

// Kind is the storage type of a field.
type Kind int

const (
	// Int32Array is a fixed-length array of 4-byte signed integers.
	Int32Array Kind = iota + 1
	// Float64 is a single 8-byte IEEE-754 double.
	Float64
)

func (k Kind) String() string {
	switch k {
	case Int32Array:
		return "int32[]"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field is one member of a layout.
type Field struct {
	Name  string
	Kind  Kind
	Count int // element count for Int32Array, always 1 for Float64
}

// Int32s declares an array of n 4-byte signed integers.
func Int32s(name string, n int) Field {
	return Field{Name: name, Kind: Int32Array, Count: n}
}

// Float declares a single 8-byte double.
func Float(name string) Field {
	return Field{Name: name, Kind: Float64, Count: 1}
}

// Size returns the field's width in bytes.
func (f Field) Size() int {
	switch f.Kind {
	case Int32Array:
		return 4 * f.Count
	case Float64:
		return 8
	default:
		return 0
	}
}

// Layout is an immutable record description. The zero value is not usable;
// build layouts with New or MustNew.
type Layout struct {
	name    string
	size    int
	fields  []Field
	offsets []int
	index   map[string]int
	order   binary.ByteOrder
}

// New builds a layout and checks that declaredSize equals the packed width
// of fields.
func New(name string, declaredSize int, fields ...Field) (Layout, error) {
	if name == "" {
		return Layout{}, fmt.Errorf("%w: empty name", ErrInvalidLayout)
	}
	if len(fields) == 0 {
		return Layout{}, fmt.Errorf("%w: %s has no fields", ErrInvalidLayout, name)
	}

	l := Layout{
		name:    name,
		fields:  make([]Field, len(fields)),
		offsets: make([]int, len(fields)),
		index:   make(map[string]int, len(fields)),
		order:   binary.LittleEndian,
	}

	off := 0
	for i, f := range fields {
		if f.Name == "" {
			return Layout{}, fmt.Errorf("%w: %s field %d has no name", ErrInvalidLayout, name, i)
		}
		if _, dup := l.index[f.Name]; dup {
			return Layout{}, fmt.Errorf("%w: %s has duplicate field %q", ErrInvalidLayout, name, f.Name)
		}
		switch f.Kind {
		case Int32Array:
			if f.Count <= 0 {
				return Layout{}, fmt.Errorf("%w: %s.%s has count %d", ErrInvalidLayout, name, f.Name, f.Count)
			}
		case Float64:
			f.Count = 1
		default:
			return Layout{}, fmt.Errorf("%w: %s.%s has kind %v", ErrInvalidLayout, name, f.Name, f.Kind)
		}

		l.fields[i] = f
		l.offsets[i] = off
		l.index[f.Name] = i
		off += f.Size()
	}

	if off != declaredSize {
		return Layout{}, fmt.Errorf("%w: %s declares %d bytes, fields occupy %d", ErrSizeMismatch, name, declaredSize, off)
	}
	l.size = off
	return l, nil
}

// MustNew is New for layouts fixed at compile time. A mismatch is a contract
// violation and panics.
func MustNew(name string, declaredSize int, fields ...Field) Layout {
	l, err := New(name, declaredSize, fields...)
	if err != nil {
		panic(err)
	}
	return l
}

// WithByteOrder returns a copy of the layout that decodes with order.
func (l Layout) WithByteOrder(order binary.ByteOrder) Layout {
	l.order = order
	return l
}

// Name returns the layout name.
func (l Layout) Name() string { return l.name }

// Size returns the payload size in bytes.
func (l Layout) Size() int { return l.size }

// ByteOrder returns the byte order used to decode fields.
func (l Layout) ByteOrder() binary.ByteOrder { return l.order }

// Fields returns a copy of the field list.
func (l Layout) Fields() []Field {
	out := make([]Field, len(l.fields))
	copy(out, l.fields)
	return out
}

// Offset returns the byte offset of the named field.
func (l Layout) Offset(name string) (int, bool) {
	i, ok := l.index[name]
	if !ok {
		return 0, false
	}
	return l.offsets[i], true
}

// Lookup returns the named field.
func (l Layout) Lookup(name string) (Field, bool) {
	i, ok := l.index[name]
	if !ok {
		return Field{}, false
	}
	return l.fields[i], true
}

// Decode reinterprets payload as a record of this layout.
func (l Layout) Decode(payload []byte) (Record, error) {
	if len(payload) != l.size {
		return Record{}, fmt.Errorf("%w: %s layout expects %d bytes, got %d", ErrMalformedRecord, l.name, l.size, len(payload))
	}

	rec := l.NewRecord()
	for i, f := range l.fields {
		off := l.offsets[i]
		switch f.Kind {
		case Int32Array:
			vals := rec.ints[i]
			for j := range vals {
				vals[j] = int32(l.order.Uint32(payload[off+4*j:]))
			}
		case Float64:
			rec.floats[i] = math.Float64frombits(l.order.Uint64(payload[off:]))
		}
	}
	return rec, nil
}

// Encode packs rec into a payload of exactly Size bytes.
func (l Layout) Encode(rec Record) ([]byte, error) {
	if rec.layout.name != l.name || len(rec.ints) != len(l.fields) {
		return nil, fmt.Errorf("%w: record of layout %q encoded with %q", ErrInvalidLayout, rec.layout.name, l.name)
	}

	buf := make([]byte, l.size)
	for i, f := range l.fields {
		off := l.offsets[i]
		switch f.Kind {
		case Int32Array:
			vals := rec.ints[i]
			if len(vals) != f.Count {
				return nil, fmt.Errorf("%w: %s.%s has %d values, want %d", ErrInvalidLayout, l.name, f.Name, len(vals), f.Count)
			}
			for j, v := range vals {
				l.order.PutUint32(buf[off+4*j:], uint32(v))
			}
		case Float64:
			l.order.PutUint64(buf[off:], math.Float64bits(rec.floats[i]))
		}
	}
	return buf, nil
}
