// Package trace records the lines crossing the bridge transports.
//
// A trace file is a zstd stream of CBOR records, one per line sent or
// received. Recording is best effort: the first write failure is logged and
// disables the recorder, the relay itself never sees it.
package trace

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-logr/logr"
	"github.com/klauspost/compress/zstd"

	"github.com/ctagard/dbg-bridge/internal/transport"
)

// Sources tag the transport a record was captured on
const (
	SourceRemote = "remote"
	SourceEngine = "engine"

	// SourceHost is the engine process's connection to the host bridge,
	// which carries the remote agent's traffic.
	SourceHost = "host"
)

// Record is one traced line
type Record struct {
	Time       int64  `cbor:"t" json:"t"`
	Source     string `cbor:"src,omitempty" json:"src,omitempty"`
	Direction  string `cbor:"dir" json:"dir"`
	Connection int64  `cbor:"conn" json:"conn"`
	Line       string `cbor:"line" json:"line"`
}

// Flow names the direction relative to the bridge: remote->engine for
// lines read from the remote side or written to the engine, and
// engine->remote for the opposite way. Records without a known source
// keep their raw direction.
func (r Record) Flow() string {
	toEngine := "remote->engine"
	toRemote := "engine->remote"
	remoteSide := r.Source == SourceRemote || r.Source == SourceHost
	switch {
	case remoteSide && r.Direction == transport.DirectionIn,
		r.Source == SourceEngine && r.Direction == transport.DirectionOut:
		return toEngine
	case remoteSide && r.Direction == transport.DirectionOut,
		r.Source == SourceEngine && r.Direction == transport.DirectionIn:
		return toRemote
	}
	return r.Direction
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("trace: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("trace: CBOR decoder initialization failed: " + err.Error())
	}
}

// Recorder writes records to a trace stream. It implements
// transport.Recorder and is safe for concurrent use.
type Recorder struct {
	log logr.Logger
	now func() time.Time

	mu     sync.Mutex
	closer io.Closer
	zw     *zstd.Encoder
	enc    *cbor.Encoder
	failed bool
	closed bool
}

// Create truncates path and records into it
func Create(log logr.Logger, path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	r, err := NewRecorder(log, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewRecorder records into w. Closing the recorder does not close w.
func NewRecorder(log logr.Logger, w io.Writer) (*Recorder, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return &Recorder{
		log: log.WithName("trace"),
		now: time.Now,
		zw:  zw,
		enc: encMode.NewEncoder(zw),
	}, nil
}

// Record implements transport.Recorder without a source tag
func (r *Recorder) Record(direction string, connection int64, line string) {
	r.write(Record{Direction: direction, Connection: connection, Line: line})
}

// For returns a transport.Recorder tagging records with source
func (r *Recorder) For(source string) transport.Recorder {
	return sourceRecorder{r: r, source: source}
}

type sourceRecorder struct {
	r      *Recorder
	source string
}

func (s sourceRecorder) Record(direction string, connection int64, line string) {
	s.r.write(Record{Source: s.source, Direction: direction, Connection: connection, Line: line})
}

func (r *Recorder) write(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed || r.closed {
		return
	}

	rec.Time = r.now().UnixNano()
	err := r.enc.Encode(rec)
	if err == nil {
		// flushed per record so a crash keeps everything written so far
		err = r.zw.Flush()
	}
	if err != nil {
		r.failed = true
		r.log.Error(err, "Trace recording failed; recorder disabled")
	}
}

// Failed reports whether recording has been disabled by an error
func (r *Recorder) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Close finishes the stream. Later records are dropped.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	err := r.zw.Close()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
