// Package series assembles decoded trace records into time-indexed tables.
package series

import (
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/traitlag/pkg/fortran"
	"github.com/chrissnell/traitlag/pkg/layout"
)

// Day and ModelYear are the simulator's calendar units. The model year has
// 360 days.
const (
	Day       = 24 * time.Hour
	ModelYear = 360 * Day
)

// ErrStepOutOfRange is returned when a step index is outside the table.
var ErrStepOutOfRange = errors.New("step out of range")

// Table is an ordered run of decoded records, one per output step. Row i
// was written at simulated time (Offset()+i) * Interval().
type Table struct {
	layout    layout.Layout
	interval  time.Duration
	rows      []layout.Record
	offset    int
	truncated bool
}

// Assemble drains r and decodes every record with l. A record whose length
// does not match the layout ends the table just like a truncated envelope
// does; only genuine I/O errors are returned.
func Assemble(r *fortran.Reader, l layout.Layout, interval time.Duration) (*Table, error) {
	t := &Table{layout: l, interval: interval}

	for {
		payload, ok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("reading %s trace after %d records: %w", l.Name(), len(t.rows), err)
		}
		if !ok {
			t.truncated = r.Truncated()
			break
		}

		rec, err := l.Decode(payload)
		if err != nil {
			if errors.Is(err, layout.ErrMalformedRecord) {
				t.truncated = true
				break
			}
			return nil, err
		}
		t.rows = append(t.rows, rec)
	}

	return t, nil
}

// AssembleFile opens path and assembles it. A missing file is reported with
// fortran.ErrTraceNotFound so callers can skip the dependent analyses.
func AssembleFile(path string, l layout.Layout, interval time.Duration, opts fortran.Options) (*Table, error) {
	f, err := fortran.Open(path, opts)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Assemble(f.Reader, l.WithByteOrder(opts.ByteOrderOrDefault()), interval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// FromRecords builds a table from records already in memory.
func FromRecords(l layout.Layout, interval time.Duration, rows []layout.Record) *Table {
	return &Table{layout: l, interval: interval, rows: rows}
}

// Layout returns the layout every row was decoded with.
func (t *Table) Layout() layout.Layout { return t.layout }

// Interval returns the simulated time between consecutive rows.
func (t *Table) Interval() time.Duration { return t.interval }

// Len returns the number of rows (output steps).
func (t *Table) Len() int { return len(t.rows) }

// Offset returns the step index of the first row.
func (t *Table) Offset() int { return t.offset }

// Truncated reports whether assembly stopped on a malformed trailing record.
func (t *Table) Truncated() bool { return t.truncated }

// Row returns the record at step i.
func (t *Table) Row(i int) layout.Record { return t.rows[i] }

// Column returns one float field across all rows.
func (t *Table) Column(field string) ([]float64, error) {
	f, ok := t.layout.Lookup(field)
	if !ok || f.Kind != layout.Float64 {
		return nil, fmt.Errorf("%w: %s has no float field %q", layout.ErrUnknownField, t.layout.Name(), field)
	}
	out := make([]float64, len(t.rows))
	for i, rec := range t.rows {
		out[i] = rec.Float(field)
	}
	return out, nil
}

// Counts returns the integer array field of row i. The slice aliases the
// table and must not be modified.
func (t *Table) Counts(i int, field string) ([]int32, error) {
	f, ok := t.layout.Lookup(field)
	if !ok || f.Kind != layout.Int32Array {
		return nil, fmt.Errorf("%w: %s has no integer field %q", layout.ErrUnknownField, t.layout.Name(), field)
	}
	if i < 0 || i >= len(t.rows) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrStepOutOfRange, i, len(t.rows))
	}
	return t.rows[i].Ints(field), nil
}

// Slice returns rows [from, to) as a table sharing storage with t. Bounds
// are clamped to the table.
func (t *Table) Slice(from, to int) *Table {
	from = clamp(from, 0, len(t.rows))
	to = clamp(to, from, len(t.rows))
	return &Table{
		layout:   t.layout,
		interval: t.interval,
		rows:     t.rows[from:to],
		offset:   t.offset + from,
	}
}

// Tail returns the last n rows.
func (t *Table) Tail(n int) *Table {
	return t.Slice(len(t.rows)-n, len(t.rows))
}

// Time returns the simulated time of row i.
func (t *Table) Time(i int) time.Duration {
	return time.Duration(t.offset+i) * t.interval
}

// Times returns the time axis expressed in unit, e.g. Day or ModelYear.
func (t *Table) Times(unit time.Duration) []float64 {
	out := make([]float64, len(t.rows))
	step := float64(t.interval) / float64(unit)
	for i := range out {
		out[i] = float64(t.offset+i) * step
	}
	return out
}

// StepAt returns the row index closest to simulated time d, clamped to the
// table.
func (t *Table) StepAt(d time.Duration) int {
	if t.interval <= 0 || len(t.rows) == 0 {
		return 0
	}
	i := int((d+t.interval/2)/t.interval) - t.offset
	return clamp(i, 0, len(t.rows)-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
