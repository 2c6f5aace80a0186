// Package report writes a finished run to its export formats: a JSONL event
// stream, a SQLite database and an XLSX workbook, plus the summary rows shared
// by the CLI tables.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/imp-sim/imp-sim/sim/trace"
)

// WriteJSONL writes one JSON object per record, in order. Output is
// byte-identical for identical record slices.
func WriteJSONL(w io.Writer, records []trace.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode record %d: %w", r.Seq, err)
		}
	}
	return nil
}

// WriteJSONLFile writes records to path, replacing any existing file.
func WriteJSONLFile(path string, records []trace.Record) (retErr error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create events file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("close events file: %w", err)
		}
	}()
	bw := bufio.NewWriter(f)
	if err := WriteJSONL(bw, records); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadJSONL decodes a stream written by WriteJSONL.
func ReadJSONL(r io.Reader) ([]trace.Record, error) {
	var records []trace.Record
	dec := json.NewDecoder(r)
	for {
		var rec trace.Record
		err := dec.Decode(&rec)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}
