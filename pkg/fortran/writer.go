package fortran

import (
	"encoding/binary"
	"io"
	"math"
)

// Writer frames payloads as sequential unformatted records.
type Writer struct {
	w     io.Writer
	order binary.ByteOrder
	count int
}

// NewWriter creates a Writer. A nil order means little-endian.
func NewWriter(w io.Writer, order binary.ByteOrder) *Writer {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Writer{w: w, order: order}
}

// WriteRecord writes one record: marker, payload, marker.
func (w *Writer) WriteRecord(payload []byte) error {
	if len(payload) > math.MaxInt32 {
		return ErrRecordTooLarge
	}

	buf := make([]byte, len(payload)+2*markerSize)
	w.order.PutUint32(buf, uint32(len(payload)))
	copy(buf[markerSize:], payload)
	w.order.PutUint32(buf[markerSize+len(payload):], uint32(len(payload)))

	if _, err := w.w.Write(buf); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}
