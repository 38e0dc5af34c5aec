package api

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogEntry is one JSON line in the API log. Keys are snake_case for jq.
type LogEntry struct {
	Timestamp     string `json:"ts"`
	Event         string `json:"event"` // request, retry, redirect, rate_limit_wait, circuit_opened, circuit_closed, circuit_rejected
	Label         string `json:"label,omitempty"`
	Host          string `json:"host,omitempty"`
	StatusCode    int    `json:"status_code,omitempty"`
	DurationMS    int64  `json:"duration_ms,omitempty"`
	Attempt       int    `json:"attempt,omitempty"`
	RateLimitedMS int64  `json:"rate_limited_ms,omitempty"`
	CircuitState  string `json:"circuit_state,omitempty"`
	Location      string `json:"location,omitempty"`
	Error         string `json:"error,omitempty"`
}

type apiLogger struct {
	mu  sync.Mutex
	enc *json.Encoder
	f   *os.File
}

// Logger is nil until InitAPILogger succeeds; all Log* functions are no-ops
// while it is nil.
var Logger *apiLogger

var loggerOnce sync.Once

// InitAPILogger opens logPath for appending. A failure disables API logging
// and nothing else.
func InitAPILogger(logPath string) error {
	var initErr error
	loggerOnce.Do(func() {
		if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
			initErr = fmt.Errorf("api logger: mkdir %s: %w", filepath.Dir(logPath), err)
			return
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			initErr = fmt.Errorf("api logger: open %s: %w", logPath, err)
			return
		}
		Logger = &apiLogger{f: f, enc: json.NewEncoder(f)}
	})
	return initErr
}

// CloseAPILogger flushes and closes the log file.
func CloseAPILogger() {
	if Logger == nil {
		return
	}
	Logger.mu.Lock()
	defer Logger.mu.Unlock()
	_ = Logger.f.Close()
}

func (l *apiLogger) write(e LogEntry) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.enc.Encode(e)
}

func logRequest(label, host string, statusCode int, duration time.Duration, attempt int, state circuitState, reqErr error) {
	if Logger == nil {
		return
	}
	e := LogEntry{
		Event:        "request",
		Label:        label,
		Host:         host,
		StatusCode:   statusCode,
		DurationMS:   duration.Milliseconds(),
		Attempt:      attempt,
		CircuitState: state.String(),
	}
	if attempt > 0 {
		e.Event = "retry"
	}
	if reqErr != nil {
		e.Error = reqErr.Error()
	}
	Logger.write(e)
}

func logRedirect(label string, statusCode int, location string) {
	if Logger == nil {
		return
	}
	Logger.write(LogEntry{Event: "redirect", Label: label, StatusCode: statusCode, Location: location})
}

func logRateLimitWait(label string, waited time.Duration) {
	if Logger == nil {
		return
	}
	Logger.write(LogEntry{Event: "rate_limit_wait", Label: label, RateLimitedMS: waited.Milliseconds()})
}

func logCircuitChange(event, label, host string, from, to circuitState) {
	if Logger == nil {
		return
	}
	Logger.write(LogEntry{
		Event:        event,
		Label:        label,
		Host:         host,
		CircuitState: to.String(),
		Error:        fmt.Sprintf("state transition: %s -> %s", from, to),
	})
}

func logCircuitRejected(label, host string) {
	if Logger == nil {
		return
	}
	Logger.write(LogEntry{
		Event:        "circuit_rejected",
		Label:        label,
		Host:         host,
		CircuitState: circuitOpen.String(),
		Error:        ErrCircuitOpen.Error(),
	})
}
