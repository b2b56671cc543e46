package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Reader iterates the records of a trace stream
type Reader struct {
	zr     *zstd.Decoder
	dec    *cbor.Decoder
	closer io.Closer
}

// Open reads the trace file at path
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads a trace stream from src
func NewReader(src io.Reader) (*Reader, error) {
	zr, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return &Reader{zr: zr, dec: decMode.NewDecoder(zr)}, nil
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to decode trace record: %w", err)
	}
	return rec, nil
}

// Close releases the decoder and the file opened by Open
func (r *Reader) Close() error {
	r.zr.Close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// dumpRecord is the JSON form written by Dump
type dumpRecord struct {
	Time       int64  `json:"t"`
	Direction  string `json:"dir"`
	Connection int64  `json:"conn"`
	Line       string `json:"line"`
}

// Dump writes every record of r to w as one JSON object per line and
// returns how many were written.
func Dump(r *Reader, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	n := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		out := dumpRecord{
			Time:       rec.Time,
			Direction:  rec.Flow(),
			Connection: rec.Connection,
			Line:       rec.Line,
		}
		if err := enc.Encode(out); err != nil {
			return n, fmt.Errorf("failed to write record: %w", err)
		}
		n++
	}
}
