// Package run holds the state of one batch conversion run: outcome counters,
// recent-history rings, the run journal, and the live progress view.
package run

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/argo-profile-etl/internal/domain"
	"github.com/google/uuid"
)

// DefaultRecentLimit is how many recent outcomes of each kind are kept.
const DefaultRecentLimit = 10

// ErrClosed is returned when recording into a State after Close.
var ErrClosed = errors.New("run state closed")

// Options configures a new State.
type Options struct {
	LogDir      string
	Total       int
	RecentLimit int
	Logger      *slog.Logger
}

// Entry is one outcome as kept in the recent-history rings.
type Entry struct {
	Seq    int
	Source string
	Rows   int
	Detail string
	At     time.Time
}

// Snapshot is a consistent copy of the run counters.
type Snapshot struct {
	RunID   string
	LogPath string
	Started time.Time
	Elapsed time.Duration

	Total   int
	Done    int
	Success int
	Warning int
	Failure int
	Skipped int
	Rows    int64

	RecentSuccess []Entry
	RecentWarning []Entry
	RecentFailure []Entry
}

// State is shared by every worker of a run. All mutation and every journal
// write happen under one mutex, held only for the bookkeeping itself.
type State struct {
	mu sync.Mutex

	id      string
	started time.Time
	total   int
	logger  *slog.Logger

	success, warning, failure, skipped int
	rows                               int64

	recentSuccess ring[Entry]
	recentWarning ring[Entry]
	recentFailure ring[Entry]

	journal    *journal
	journalErr error
	closed     bool
}

// NewState starts a run: it opens the run journal in LogDir and writes the
// opening line.
func NewState(opts Options) (*State, error) {
	limit := opts.RecentLimit
	if limit < 1 {
		limit = DefaultRecentLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	started := domain.Now()
	j, err := openJournal(opts.LogDir, started)
	if err != nil {
		return nil, err
	}

	s := &State{
		id:            uuid.NewString()[:8],
		started:       started,
		total:         opts.Total,
		logger:        logger,
		recentSuccess: newRing[Entry](limit),
		recentWarning: newRing[Entry](limit),
		recentFailure: newRing[Entry](limit),
		journal:       j,
	}
	s.Log(LevelInfo, fmt.Sprintf("Run %s started: %d files", s.id, s.total))
	return s, nil
}

// ID returns the short run identifier.
func (s *State) ID() string { return s.id }

// LogPath returns the path of the run journal.
func (s *State) LogPath() string { return s.journal.path }

// Log appends one journal line.
func (s *State) Log(level Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(level, msg)
}

// write must be called with mu held.
func (s *State) write(level Level, msg string) {
	if s.closed {
		return
	}
	if err := s.journal.line(domain.Now(), level, msg); err != nil && s.journalErr == nil {
		s.journalErr = err
		s.logger.Error("run log write failed", "path", s.journal.path, "error", err)
	}
}

// Record counts one outcome, keeps it in the matching recent-history ring,
// and journals it. Every outcome lands in exactly one of success, warning,
// or failure.
func (s *State) Record(o domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	base := filepath.Base(o.Source)
	tag := o.AttemptID
	if tag == "" {
		tag = s.id
	}
	at := o.FinishedAt
	if at.IsZero() {
		at = domain.Now()
	}

	switch o.Status {
	case domain.StatusFailure:
		s.failure++
		e := Entry{Seq: s.failure, Source: base, Detail: o.ErrorText(), At: at}
		s.recentFailure.push(e)
		s.write(LevelError, fmt.Sprintf("[%s] Failed %s: %s", tag, base, o.ErrorText()))
		s.write(LevelError, fmt.Sprintf("[%s] Full path: %s", tag, o.Source))
		return nil

	case domain.StatusWarning:
		s.warning++
		s.rows += int64(o.Rows)
		e := Entry{Seq: s.warning, Source: base, Rows: o.Rows, Detail: strings.Join(o.Missing, ", "), At: at}
		s.recentWarning.push(e)
		s.write(LevelWarn, fmt.Sprintf("[%s] %s missing: %s", tag, base, e.Detail))

	default:
		s.success++
		s.rows += int64(o.Rows)
		detail := fmt.Sprintf("rows=%d", o.Rows)
		if o.Skipped {
			s.skipped++
			detail = "output exists"
		}
		s.recentSuccess.push(Entry{Seq: s.success, Source: base, Rows: o.Rows, Detail: detail, At: at})
	}

	done := s.success + s.warning + s.failure
	if o.Skipped {
		s.write(LevelInfo, fmt.Sprintf("[%s] (%d/%d) Skipped %s: output exists", tag, done, s.total, base))
		return nil
	}
	s.write(LevelInfo, fmt.Sprintf("[%s] (%d/%d) Processed %s | rows=%d", tag, done, s.total, base, o.Rows))
	return nil
}

// Snapshot copies the counters and recent-history rings.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *State) snapshot() Snapshot {
	return Snapshot{
		RunID:         s.id,
		LogPath:       s.journal.path,
		Started:       s.started,
		Elapsed:       domain.Now().Sub(s.started),
		Total:         s.total,
		Done:          s.success + s.warning + s.failure,
		Success:       s.success,
		Warning:       s.warning,
		Failure:       s.failure,
		Skipped:       s.skipped,
		Rows:          s.rows,
		RecentSuccess: s.recentSuccess.items(),
		RecentWarning: s.recentWarning.items(),
		RecentFailure: s.recentFailure.items(),
	}
}

// Close appends the summary block and closes the journal. It returns the
// final snapshot. Calling Close twice is a no-op.
func (s *State) Close() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if s.closed {
		return snap, nil
	}
	s.closed = true

	err := s.journal.summary(domain.Now(), snap)
	if cerr := s.journal.close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = s.journalErr
	}
	if err != nil {
		return snap, fmt.Errorf("close run log: %w", err)
	}
	return snap, nil
}

// ring keeps the last n items pushed.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](n int) ring[T] {
	return ring[T]{buf: make([]T, n)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// items returns the kept items oldest first.
func (r *ring[T]) items() []T {
	if !r.full {
		return append([]T(nil), r.buf[:r.next]...)
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
