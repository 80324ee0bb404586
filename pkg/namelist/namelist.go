// Package namelist reads simulator parameter files in Fortran namelist
// syntax. It only reads; it never rewrites a file.
//
//	&run_params
//	  dt     = 3600.0  ! seconds
//	  t_end  = 3.6d7,
//	  name   = 'seasonal'
//	/
package namelist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrNotNumeric  = errors.New("value is not numeric")
)

// Params maps lower-cased keys to their raw values. Later assignments
// override earlier ones, group boundaries are not significant.
type Params map[string]string

// Parse reads namelist assignments from r.
func Parse(r io.Reader) (Params, error) {
	p := make(Params)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := stripComment(sc.Text())
		line = strings.TrimSpace(line)
		if line == "" || line == "/" || strings.HasPrefix(line, "&") || strings.HasPrefix(line, "$") {
			continue
		}
		line = strings.TrimSuffix(line, "/")

		for _, stmt := range statements(line) {
			key, value, ok := strings.Cut(stmt, "=")
			if !ok {
				continue
			}
			key = strings.ToLower(strings.TrimSpace(key))
			if key == "" {
				continue
			}
			value = strings.TrimSpace(value)
			value = strings.TrimSpace(strings.TrimSuffix(value, ","))
			p[key] = value
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading namelist: %w", err)
	}
	return p, nil
}

// ParseFile reads the namelist file at path.
func ParseFile(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// stripComment drops everything after a '!' that is not inside quotes.
func stripComment(line string) string {
	var quote rune
	for i, c := range line {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '!':
			return line[:i]
		}
	}
	return line
}

// statements splits a line holding several comma separated assignments.
// Commas inside an array value stay with the value.
func statements(line string) []string {
	parts := strings.Split(line, ",")
	var out []string
	for _, part := range parts {
		if strings.Contains(part, "=") || len(out) == 0 {
			out = append(out, part)
			continue
		}
		out[len(out)-1] += "," + part
	}
	return out
}

// String returns the value of key with surrounding quotes removed.
func (p Params) String(key string) (string, error) {
	v, ok := p[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrKeyNotFound)
	}
	if len(v) >= 2 && (v[0] == '\'' || v[0] == '"') && v[len(v)-1] == v[0] {
		v = v[1 : len(v)-1]
	}
	return v, nil
}

// Float parses the value of key, accepting Fortran d exponents.
func (p Params) Float(key string) (float64, error) {
	v, err := p.String(key)
	if err != nil {
		return 0, err
	}
	v = strings.NewReplacer("d", "e", "D", "e").Replace(v)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s = %q: %w", key, p[strings.ToLower(key)], ErrNotNumeric)
	}
	return f, nil
}

// Duration interprets the value of key as a count of unit.
func (p Params) Duration(key string, unit time.Duration) (time.Duration, error) {
	f, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(unit)), nil
}

// FirstDuration tries each key in turn and returns the first one present.
func (p Params) FirstDuration(unit time.Duration, keys ...string) (time.Duration, string, error) {
	for _, k := range keys {
		if _, ok := p[strings.ToLower(k)]; !ok {
			continue
		}
		d, err := p.Duration(k, unit)
		return d, k, err
	}
	return 0, "", fmt.Errorf("%s: %w", strings.Join(keys, ", "), ErrKeyNotFound)
}
