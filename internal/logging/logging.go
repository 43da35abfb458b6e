// Package logging builds the logger of a run. Messages go to the console and
// to a log file next to the data they describe.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// Run is a logger that also owns its log file.
type Run struct {
	*log.Logger
	Path string
	file *os.File
}

// FileName formats <prefix>_<participant>_<session>_<YYYYmmdd_HHMMSS>.log.
func FileName(prefix, participant, session string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s.log", prefix, participant, session, t.Format("20060102_150405"))
}

// Open creates dir, opens a new log file in it and returns a logger writing
// to console and file.
func Open(dir, name string, console io.Writer, level string) (*Run, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l, err := New(io.MultiWriter(console, f), level)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Run{Logger: l, Path: path, file: f}, nil
}

// New returns a text logger at the given level.
func New(out io.Writer, level string) (*log.Logger, error) {
	l := log.New()
	l.SetOutput(out)
	l.SetFormatter(&log.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05",
		DisableQuote:     true,
		QuoteEmptyFields: true,
	})
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	l.SetLevel(lvl)
	return l, nil
}

// Writer is the log file itself, for tool output that should be kept.
func (r *Run) Writer() io.Writer {
	return r.file
}

func (r *Run) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
