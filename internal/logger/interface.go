package logger

import "codeberg.org/mutker/tankctl/internal/errors"

// Logger is what packages receive instead of the package-level helpers,
// so tests can pass Nop and the daemon can tag components.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
	WarnWithCode(err errors.Error) *LogEvent
	With(component string) Logger
}
