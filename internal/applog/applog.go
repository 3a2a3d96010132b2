// Package applog writes the process log to date-stamped files, one series per
// role, so a server and a client sharing a log directory never touch each
// other's files.
package applog

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	appName  = "event-reserve"
	keepDays = 7
)

// Prefix returns the file name prefix for role, e.g. "event-reserve-serve-".
// An empty role gives the bare application prefix.
func Prefix(role string) string {
	if role == "" {
		return appName + "-"
	}
	return appName + "-" + role + "-"
}

// DailyRotator is an io.Writer over <dir>/<prefix><date>.log. It switches to
// a new file when the date changes and keeps at most maxDays files with its
// own prefix.
type DailyRotator struct {
	mu      sync.Mutex
	dir     string
	prefix  string
	maxDays int
	date    string
	file    *os.File
	now     func() time.Time
}

func NewDailyRotator(dir, prefix string, maxDays int) *DailyRotator {
	return &DailyRotator{dir: dir, prefix: prefix, maxDays: maxDays, now: time.Now}
}

// SetNow replaces the time source. Used in tests only.
func (r *DailyRotator) SetNow(fn func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = fn
}

// Path returns the file written to on the given day.
func (r *DailyRotator) Path(day time.Time) string {
	return filepath.Join(r.dir, r.prefix+day.Format(time.DateOnly)+".log")
}

func (r *DailyRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if date := now.Format(time.DateOnly); date != r.date || r.file == nil {
		if err := r.open(now); err != nil {
			return 0, err
		}
	}
	return r.file.Write(p)
}

// open switches to the file for day. Caller holds r.mu.
func (r *DailyRotator) open(day time.Time) error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	f, err := os.OpenFile(r.Path(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("applog: open: %w", err)
	}
	r.file = f
	r.date = day.Format(time.DateOnly)
	r.prune()
	return nil
}

// prune removes the oldest files of this rotator's series beyond maxDays.
// Files of other prefixes, including longer ones that share this prefix,
// are left alone.
func (r *DailyRotator) prune() {
	matches, err := filepath.Glob(filepath.Join(r.dir, r.prefix+"*.log"))
	if err != nil {
		return
	}
	own := matches[:0]
	for _, m := range matches {
		date := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), r.prefix), ".log")
		if _, err := time.Parse(time.DateOnly, date); err == nil {
			own = append(own, m)
		}
	}
	if len(own) <= r.maxDays {
		return
	}
	sort.Strings(own)
	for _, f := range own[:len(own)-r.maxDays] {
		os.Remove(f)
	}
}

func (r *DailyRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

type InitConfig struct {
	LogDir   string
	LogLevel string
	// Role names the process ("serve", "client") and selects its file series.
	Role string
	// Format is "text" (default) or "json".
	Format string
	// Stderr also copies every record to standard error.
	Stderr bool
}

// Init points slog.Default and the stdlib log package at a DailyRotator in
// cfg.LogDir. The returned io.Closer must be deferred by the caller.
func Init(cfg InitConfig) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("applog: create log dir: %w", err)
	}
	rotator := NewDailyRotator(cfg.LogDir, Prefix(cfg.Role), keepDays)

	var out io.Writer = rotator
	if cfg.Stderr {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler)
	if cfg.Role != "" {
		logger = logger.With("role", cfg.Role)
	}
	slog.SetDefault(logger)
	log.SetOutput(out)
	log.SetFlags(0)
	return logger, rotator, nil
}

// ParseLevel converts a level string to slog.Level. Unknown values give info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
