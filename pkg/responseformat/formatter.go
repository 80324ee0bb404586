package responseformat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// Format selects the wire encoding of a response or report.
type Format string

const (
	JSON    Format = "json"
	MsgPack Format = "msgpack"
)

// ParseFormat accepts "json", "msgpack" or an empty string, which means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", JSON:
		return JSON, nil
	case MsgPack:
		return MsgPack, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == MsgPack {
		return "application/x-msgpack"
	}
	return "application/json"
}

// Encode writes v to w in format f. MessagePack reuses the json struct tags
// so both encodings share field names.
func Encode(w io.Writer, f Format, v any) error {
	switch f {
	case MsgPack:
		encoder := msgpack.NewEncoder(w)
		encoder.SetCustomStructTag("json")
		return encoder.Encode(v)
	case JSON, "":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

// Decode reads a value encoded by Encode.
func Decode(r io.Reader, f Format, v any) error {
	switch f {
	case MsgPack:
		decoder := msgpack.NewDecoder(r)
		decoder.SetCustomStructTag("json")
		return decoder.Decode(v)
	case JSON, "":
		return json.NewDecoder(r).Decode(v)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// WriteResponse writes the response in the appropriate format based on the query parameter
// JSON is the default format. MessagePack is used when format=msgpack is specified
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, data any, headers map[string]string) error {
	for k, v := range headers {
		w.Header().Set(k, v)
	}

	// Always set CORS header
	w.Header().Set("Access-Control-Allow-Origin", "*")

	format := JSON
	if req.URL.Query().Get("format") == string(MsgPack) {
		format = MsgPack
	}
	w.Header().Set("Content-Type", format.ContentType())
	return Encode(w, format, data)
}

// WriteError writes a JSON error body with the given status.
func (f *Formatter) WriteError(w http.ResponseWriter, status int, msg string) error {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", JSON.ContentType())
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
