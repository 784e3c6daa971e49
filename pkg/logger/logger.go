// Package logger provides the process-wide structured logger.
//
// All library packages log through the component helpers (InfoCF etc.)
// so every line carries a component prefix and key/value fields.
package logger

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu   sync.RWMutex
	root = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "reverie",
	})
)

// SetLevel adjusts the global log level ("debug", "info", "warn", "error").
func SetLevel(level string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	mu.Lock()
	defer mu.Unlock()
	root.SetLevel(parsed)
}

// SetOutput redirects log output (tests pass io.Discard).
func SetOutput(w *os.File) {
	mu.Lock()
	defer mu.Unlock()
	root.SetOutput(w)
}

func component(name string) *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With("component", name)
}

func flatten(fields map[string]interface{}) []interface{} {
	kv := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}

// DebugCF logs a debug message for a component with structured fields.
func DebugCF(comp, msg string, fields map[string]interface{}) {
	component(comp).Debug(msg, flatten(fields)...)
}

// InfoCF logs an info message for a component with structured fields.
func InfoCF(comp, msg string, fields map[string]interface{}) {
	component(comp).Info(msg, flatten(fields)...)
}

// WarnCF logs a warning for a component with structured fields.
func WarnCF(comp, msg string, fields map[string]interface{}) {
	component(comp).Warn(msg, flatten(fields)...)
}

// ErrorCF logs an error for a component with structured fields.
func ErrorCF(comp, msg string, fields map[string]interface{}) {
	component(comp).Error(msg, flatten(fields)...)
}
