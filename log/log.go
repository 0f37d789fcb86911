// Package log provides the audit logger used throughout the PKD mirror.
// It preserves the call shape of Boulder's blog.AuditLogger (AuditErr,
// Warning, Notice, Info, Debug) while delegating to a logr.Logger so the
// production binary can back it with zap (structured, sampled, JSON) and
// tests can back it with stdr or a pure in-memory mock.
package log

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Logger is the interface every PKD component logs through. Components
// never depend on the concrete backend.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Notice(msg string)
	Warning(msg string)
	Err(msg string)
	AuditErr(err error)
	WithValues(keysAndValues ...interface{}) Logger
}

// auditLogger adapts a logr.Logger to the Logger interface. Notice and
// Warning map to logr's info level with a "severity" field, since logr
// itself only distinguishes Info/Error/V(n).
type auditLogger struct {
	delegate logr.Logger
}

// New wraps an arbitrary logr.Logger (zapr.NewLogger(zapCore) in
// production and cmd/ tools, stdr.New(nil) in tests via NewMock) as a
// Logger.
func New(delegate logr.Logger) Logger {
	return &auditLogger{delegate: delegate}
}

// NewMock returns a Logger backed by the standard library, suitable for
// unit tests that don't want to stand up a zap core.
func NewMock() Logger {
	return New(stdr.New(nil))
}

func (a *auditLogger) Debug(msg string) {
	a.delegate.V(1).Info(msg)
}

func (a *auditLogger) Info(msg string) {
	a.delegate.Info(msg)
}

func (a *auditLogger) Notice(msg string) {
	a.delegate.Info(msg, "severity", "notice")
}

func (a *auditLogger) Warning(msg string) {
	a.delegate.Info(msg, "severity", "warning")
}

func (a *auditLogger) Err(msg string) {
	a.delegate.Error(fmt.Errorf("%s", msg), msg)
}

func (a *auditLogger) AuditErr(err error) {
	if err == nil {
		return
	}
	a.delegate.Error(err, "audit", "severity", "audit")
}

func (a *auditLogger) WithValues(keysAndValues ...interface{}) Logger {
	return New(a.delegate.WithValues(keysAndValues...))
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = NewMock()
)

// Set installs l as the process-wide default logger. Intended to be
// called once at startup by cmd/ entrypoints.
func Set(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Get returns the process-wide default logger.
func Get() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}
