// Package klog provides the leveled logging used across the reactor core.
// It wraps pterm's prefixed printers the same way the rest of the stack
// wraps pterm for CLI output, so library diagnostics and CLI output share
// one visual style.
package klog

import "github.com/pterm/pterm"

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 2006 15:04:05"
}

func Debug(format string, args ...interface{}) {
	pterm.Debug.Printfln(format, args...)
}

func Info(format string, args ...interface{}) {
	pterm.Info.Printfln(format, args...)
}

func Warning(format string, args ...interface{}) {
	pterm.Warning.Printfln(format, args...)
}

func Error(format string, args ...interface{}) {
	pterm.Error.Printfln(format, args...)
}

// EnableDebug turns on debug-level output; off by default so a busy
// reactor doesn't spam stderr with per-event traces.
func EnableDebug() {
	pterm.EnableDebugMessages()
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}
