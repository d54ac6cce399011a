package log

import "github.com/tacusci/logging/v2"

var Debug = func(format string, a ...interface{}) {
	logging.Debug(format, a...) //nolint
}

var Info = func(format string, a ...interface{}) {
	logging.Info(format, a...) //nolint
}

var Warn = func(format string, a ...interface{}) {
	logging.Warn(format, a...) //nolint
}

var Error = func(format string, a ...interface{}) {
	logging.Error(format, a...) //nolint
}

var Fatal = func(format string, a ...interface{}) {
	logging.Fatal(format, a...) //nolint
}

// Prefixed logs through the package level funcs with every line
// labelled by the given prefix, e.g. "[source-id] ...".
type Prefixed string

func (p Prefixed) Debug(format string, a ...interface{}) {
	Debug("[%s] "+format, append([]interface{}{string(p)}, a...)...)
}

func (p Prefixed) Info(format string, a ...interface{}) {
	Info("[%s] "+format, append([]interface{}{string(p)}, a...)...)
}

func (p Prefixed) Warn(format string, a ...interface{}) {
	Warn("[%s] "+format, append([]interface{}{string(p)}, a...)...)
}

func (p Prefixed) Error(format string, a ...interface{}) {
	Error("[%s] "+format, append([]interface{}{string(p)}, a...)...)
}
