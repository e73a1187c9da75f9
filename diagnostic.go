package waveform

import (
	"fmt"
	"log"
	"sync/atomic"
)

// Severity is the level of a diagnostic message emitted while opening or
// reading a stream.
type Severity int

// Severity levels, ordered so that a numerically higher value is always
// more urgent. The zero value is SeverityInfo.
const (
	SeverityDebug Severity = iota - 1
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (sev Severity) String() string {
	switch sev {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(sev))
	}
}

// A Logger receives diagnostic messages produced while parsing a waveform
// file. id identifies the parser or component that produced the message
// (e.g. "hspice", "spice3raw", "waveform").
type Logger interface {
	Log(sev Severity, id, msg string)
}

// LoggerFunc adapts a plain function to the Logger interface.
type LoggerFunc func(sev Severity, id, msg string)

// Log implements Logger.
func (f LoggerFunc) Log(sev Severity, id, msg string) {
	f(sev, id, msg)
}

// stderrLogger is the default Logger: it writes every message at or above
// the configured threshold to os.Stderr through the standard log package.
type stderrLogger struct{}

func (stderrLogger) Log(sev Severity, id, msg string) {
	log.Printf("[%s] %s: %s", id, sev, msg)
}

var defaultLogger atomic.Value // Logger
var defaultLevel int32 = int32(SeverityWarn)

func init() {
	defaultLogger.Store(Logger(stderrLogger{}))
}

// SetLogger installs l as the process-wide default diagnostic sink used by
// streams opened without an explicit WithLogger option. A nil l restores
// the default stderr logger.
func SetLogger(l Logger) {
	if l == nil {
		l = stderrLogger{}
	}
	defaultLogger.Store(l)
}

// SetLevel sets the process-wide minimum severity that reaches the default
// logger. Messages below this level are discarded before ever reaching a
// Logger, matching the threshold check in the original ss_msg.
func SetLevel(sev Severity) {
	atomic.StoreInt32(&defaultLevel, int32(sev))
}

func logf(l Logger, sev Severity, id, format string, args ...interface{}) {
	if l == nil {
		l = defaultLogger.Load().(Logger)
	}
	if sev < Severity(atomic.LoadInt32(&defaultLevel)) {
		return
	}
	l.Log(sev, id, fmt.Sprintf(format, args...))
}
