package run

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Level is the severity written into a journal line.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

const (
	lineTimeLayout = "2006-01-02 15:04:05"
	fileTimeLayout = "20060102_150405"
)

// journal is the per-run audit log. It is not safe for concurrent use; State
// serializes every write through its mutex.
type journal struct {
	w    io.WriteCloser
	path string
}

// JournalPath returns the log file name for a run started at t.
func JournalPath(dir string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("run_%s.txt", t.Format(fileTimeLayout)))
}

func openJournal(dir string, started time.Time) (*journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := JournalPath(dir, started)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return &journal{w: f, path: path}, nil
}

func (j *journal) line(at time.Time, level Level, msg string) error {
	_, err := fmt.Fprintf(j.w, "[%s] [%s] %s\n", at.Format(lineTimeLayout), level, msg)
	return err
}

func (j *journal) summary(at time.Time, s Snapshot) error {
	_, err := fmt.Fprintf(j.w,
		"\n--- SUMMARY [%s] ---\nRun:      %s\nTotal:    %d\nSuccess:  %d\nWarnings: %d\nFailures: %d\nSkipped:  %d\nRows:     %d\nElapsed:  %s\n",
		at.Format(lineTimeLayout), s.RunID, s.Total, s.Success, s.Warning, s.Failure, s.Skipped, s.Rows,
		s.Elapsed.Round(time.Millisecond))
	return err
}

func (j *journal) close() error {
	return j.w.Close()
}
