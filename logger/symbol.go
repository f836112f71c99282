package logger

import (
	"go.uber.org/zap"

	"github.com/itgyani/blogpulse/sym"
)

// Symbol-aware logging helpers.
// The symbol goes into a structured field, never the message:
//
//	logger.PulseInfow("Job dispatched", "job_id", id)

func withSymbol(symbol string, keysAndValues []interface{}) []interface{} {
	return append([]interface{}{FieldSymbol, symbol}, keysAndValues...)
}

// PulseInfow logs an info message with the Pulse symbol
func PulseInfow(msg string, keysAndValues ...interface{}) {
	Logger.Infow(msg, withSymbol(sym.Pulse, keysAndValues)...)
}

// DBInfow logs database/storage operations
func DBInfow(msg string, keysAndValues ...interface{}) {
	Logger.Infow(msg, withSymbol(sym.DB, keysAndValues)...)
}

// GenInfow logs generation gateway activity
func GenInfow(msg string, keysAndValues ...interface{}) {
	Logger.Infow(msg, withSymbol(sym.Gen, keysAndValues)...)
}

// GenWarnw logs generation gateway failures
func GenWarnw(msg string, keysAndValues ...interface{}) {
	Logger.Warnw(msg, withSymbol(sym.Gen, keysAndValues)...)
}

// AddPulseSymbol returns a child logger that tags every line with the Pulse symbol
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Pulse)
}
