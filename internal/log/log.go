// Package log is spprof's internal logging facade: a minimal Logger
// interface any host can satisfy, package-level level-gated helpers,
// and a rate limiter on Error so a misbehaving profiling session can't
// flood a host's log sink.
package log

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Logger is the sink every log line is ultimately written through.
type Logger interface {
	Log(msg string)
}

// prefixMsg tags every emitted line so a shared log sink can attribute
// lines back to this module.
const prefixMsg = "spprof"

// Level gates which of Debug/Info/Warn/Error actually reach the logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu             sync.Mutex
	logger         Logger = defaultLogger{}
	levelThreshold        = LevelInfo
)

// defaultLogger writes each line to stderr.
type defaultLogger struct{}

func (defaultLogger) Log(m string) { fmt.Fprintln(os.Stderr, m) }

// DiscardLogger drops every line. Useful in tests and benchmarks that
// don't want log output to skew timing or clutter output.
type DiscardLogger struct{}

// Log implements Logger.
func (DiscardLogger) Log(string) {}

// UseLogger installs l as the active logger and returns a function that
// restores whatever logger was active before.
func UseLogger(l Logger) (restore func()) {
	mu.Lock()
	old := logger
	logger = l
	mu.Unlock()
	return func() {
		mu.Lock()
		logger = old
		mu.Unlock()
	}
}

// SetLevel changes the minimum level that reaches the logger.
func SetLevel(lvl Level) {
	mu.Lock()
	levelThreshold = lvl
	mu.Unlock()
}

// DebugEnabled reports whether Debug currently reaches the logger.
func DebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return levelThreshold <= LevelDebug
}

func current() Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

func threshold() Level {
	mu.Lock()
	defer mu.Unlock()
	return levelThreshold
}

func msg(level, m string) string {
	return fmt.Sprintf("%s %s: %s", prefixMsg, level, m)
}

func emit(level string, lvl Level, format string, args ...interface{}) {
	if threshold() > lvl {
		return
	}
	current().Log(msg(level, fmt.Sprintf(format, args...)))
}

// Debug logs at LevelDebug.
func Debug(format string, args ...interface{}) { emit("DEBUG", LevelDebug, format, args...) }

// Info logs at LevelInfo.
func Info(format string, args ...interface{}) { emit("INFO", LevelInfo, format, args...) }

// Warn logs at LevelWarn.
func Warn(format string, args ...interface{}) { emit("WARN", LevelWarn, format, args...) }

// defaultErrorLimit caps the skip count a flushed error line reports:
// a bucket with that many or more repeats is reported as "200+".
const defaultErrorLimit = 200

var (
	errrate   = time.Minute
	errMu     sync.Mutex
	errCounts = map[string]*errBucket{}
)

type errBucket struct {
	first string
	extra int
	timer *time.Timer
}

// Error logs at LevelError, rate-limited: repeated errors sharing the
// same format string within errrate are collapsed into one line
// reporting how many were skipped, flushed either by the rate timer or
// an explicit Flush call.
func Error(format string, args ...interface{}) {
	if threshold() > LevelError {
		return
	}
	rendered := fmt.Sprintf(format, args...)

	if errrate <= 0 {
		current().Log(msg("ERROR", rendered))
		return
	}

	errMu.Lock()
	b, ok := errCounts[format]
	if !ok {
		b = &errBucket{first: rendered}
		errCounts[format] = b
		b.timer = time.AfterFunc(errrate, func() { flushKey(format) })
	} else {
		b.extra++
	}
	errMu.Unlock()
}

func flushKey(format string) {
	errMu.Lock()
	b, ok := errCounts[format]
	if ok {
		delete(errCounts, format)
	}
	errMu.Unlock()
	if !ok {
		return
	}

	line := b.first
	if b.extra > 0 {
		if b.extra >= defaultErrorLimit {
			line = fmt.Sprintf("%s, %d+ additional messages skipped", b.first, defaultErrorLimit)
		} else {
			line = fmt.Sprintf("%s, %d additional messages skipped", b.first, b.extra)
		}
	}
	current().Log(msg("ERROR", line))
}

// Flush forces every pending rate-limited error bucket to emit
// immediately, rather than waiting for its timer.
func Flush() {
	errMu.Lock()
	keys := make([]string, 0, len(errCounts))
	for k := range errCounts {
		keys = append(keys, k)
	}
	errMu.Unlock()
	for _, k := range keys {
		errMu.Lock()
		if b, ok := errCounts[k]; ok {
			b.timer.Stop()
		}
		errMu.Unlock()
		flushKey(k)
	}
}

// setLoggingRate parses a human-supplied rate (typically from an
// environment variable) into errrate. Empty, negative or unparseable
// values fall back to the one-minute default.
func setLoggingRate(s string) {
	if s == "" {
		errrate = time.Minute
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		errrate = time.Minute
		return
	}
	errrate = time.Duration(n) * time.Second
}

// RecordLogger is a test double that records every line, optionally
// filtering out lines containing an ignored substring.
type RecordLogger struct {
	mu      sync.Mutex
	lines   []string
	ignored []string
}

// Ignore adds a substring; future Log calls containing it are dropped.
func (r *RecordLogger) Ignore(substr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ignored = append(r.ignored, substr)
}

// Log implements Logger.
func (r *RecordLogger) Log(m string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ig := range r.ignored {
		if strings.Contains(m, ig) {
			return
		}
	}
	r.lines = append(r.lines, m)
}

// Logs returns every recorded (non-ignored) line.
func (r *RecordLogger) Logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Reset clears recorded lines, keeping ignore rules intact.
func (r *RecordLogger) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = r.lines[:0]
}

// LoggerFile is the file name OpenFileAtPath writes under a given
// directory, so a host pointing this package at a log directory doesn't
// have to separately decide on a file name.
const LoggerFile = "spprof.log"

// File is a Logger backed by an open *os.File. Close is idempotent and
// safe to call concurrently with Log.
type File struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

// OpenFileAtPath opens (creating if necessary, appending if it already
// exists) path for use as a Logger sink.
func OpenFileAtPath(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{file: f}, nil
}

// Log implements Logger. A line written after Close is silently dropped
// rather than returning an error, matching the Logger interface's
// no-error Log method.
func (f *File) Log(m string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	fmt.Fprintln(f.file, m)
}

// Close closes the underlying file. Calling it more than once, or
// concurrently from multiple goroutines, is safe; only the first call
// does anything.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.file.Close()
}
