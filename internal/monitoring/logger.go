package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or
// mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Component returns a logf function that prefixes every line with the given
// component name, so engine/tracker output is attributable in mixed logs.
func Component(name string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("["+name+"] "+format, v...)
	}
}
