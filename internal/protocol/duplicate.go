package protocol

import (
	"github.com/ctagard/dbg-bridge/internal/errors"
)

// ErrorLogger is satisfied by logr.Logger and by throttled loggers
type ErrorLogger interface {
	Error(err error, msg string, keysAndValues ...any)
}

// ReportDuplicate handles a repeated requestSeq. Builds with the bridgedebug
// tag panic; other builds log and carry on.
func ReportDuplicate(log ErrorLogger, seq int64, line string) {
	err := errors.DuplicateSequence(seq, line)
	if panicOnDuplicate {
		panic(err)
	}
	log.Error(err, "Duplicate sequence number detected", "requestSeq", seq, "line", line)
}
