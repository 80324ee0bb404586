package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/chrissnell/traitlag/internal/analysis"
	"github.com/chrissnell/traitlag/internal/log"
	"github.com/chrissnell/traitlag/pkg/fortran"
	"github.com/chrissnell/traitlag/pkg/layout"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Print the records of a trace file as JSON lines",
		Long: `Decodes a sequential unformatted trace with one of the built-in record
layouts (env, eco or dist) and prints one JSON object per record.
Iteration stops at the first partial or inconsistent record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layoutName, _ := cmd.Flags().GetString("layout")
			bigEndian, _ := cmd.Flags().GetBool("big-endian")
			limit, _ := cmd.Flags().GetInt("limit")

			l, ok := layout.ByName(layoutName)
			if !ok {
				return fmt.Errorf("unknown layout %q: use env, eco or dist", layoutName)
			}
			opts := fortran.DefaultOptions()
			if bigEndian {
				opts.ByteOrder = binary.BigEndian
				l = l.WithByteOrder(binary.BigEndian)
			}

			n, truncated, err := decodeTrace(cmd.OutOrStdout(), args[0], l, opts, limit)
			if err != nil {
				return err
			}
			log.Debugw("trace decoded", "path", args[0], "layout", l.Name(), "records", n)
			if truncated {
				log.Warnw("trace ends in a partial record", "path", args[0], "records", n)
			}
			return nil
		},
	}

	cmd.Flags().StringP("layout", "l", layout.Dist.Name(), "Record layout: env, eco or dist")
	cmd.Flags().Bool("big-endian", false, "Markers and fields are big-endian")
	cmd.Flags().Int("limit", 0, "Stop after this many records (0 means all)")
	return cmd
}

// decodeTrace writes each record of the trace at path to w as a JSON object
// keyed by field name plus "step". Floats go through analysis.Float so that
// NaN prints as null.
func decodeTrace(w io.Writer, path string, l layout.Layout, opts fortran.Options, limit int) (n int, truncated bool, err error) {
	f, err := fortran.Open(path, opts)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for payload := range f.Records() {
		rec, err := l.Decode(payload)
		if err != nil {
			// A payload of the wrong size ends the stream like a bad marker.
			truncated = true
			break
		}

		row := rec.Map()
		for k, v := range row {
			if x, ok := v.(float64); ok {
				row[k] = analysis.Float(x)
			}
		}
		row["step"] = n
		if err := enc.Encode(row); err != nil {
			return n, truncated, err
		}

		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	if err := f.Err(); err != nil {
		return n, truncated, err
	}
	return n, truncated || f.Truncated(), bw.Flush()
}
