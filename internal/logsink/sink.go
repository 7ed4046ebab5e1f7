// Package logsink provides the append-only audit log that records every tool
// command line and detected error line.
package logsink

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBuffer = 256

// Sink accepts audit lines. Append must never block the caller.
type Sink interface {
	Append(line string)
}

type discard struct{}

func (discard) Append(string) {}

// Discard drops every line.
var Discard Sink = discard{}

// Writer appends timestamped lines to w from a background goroutine. Lines
// are dropped when the buffer is full; write failures are reported once to
// the logger and otherwise ignored.
type Writer struct {
	w      io.Writer
	closer io.Closer
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	closed  bool
	lines   chan string
	done    chan struct{}
	dropped atomic.Int64
	warned  sync.Once
}

// NewWriter starts a sink writing to w with the given buffer size.
func NewWriter(w io.Writer, buffer int, logger *slog.Logger) *Writer {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c, ok := w.(io.Closer); ok {
		return startWriter(w, c, buffer, logger)
	}
	return startWriter(w, nil, buffer, logger)
}

// Open creates parent directories and opens path for appending.
func Open(path string, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return NewWriter(f, defaultBuffer, logger), nil
}

func startWriter(w io.Writer, c io.Closer, buffer int, logger *slog.Logger) *Writer {
	s := &Writer{
		w:      w,
		closer: c,
		logger: logger,
		now:    time.Now,
		lines:  make(chan string, buffer),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

// Append queues line without blocking.
func (s *Writer) Append(line string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.lines <- line:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of lines lost to a full buffer.
func (s *Writer) Dropped() int64 {
	return s.dropped.Load()
}

// Close flushes queued lines and closes the underlying writer if it has one.
func (s *Writer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.lines)
	s.mu.Unlock()

	<-s.done
	if n := s.Dropped(); n > 0 {
		s.logger.Warn("audit log dropped lines", "count", n)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *Writer) loop() {
	defer close(s.done)
	for line := range s.lines {
		text := s.now().Format("2006-01-02 15:04:05") + " " + strings.TrimRight(line, "\r\n") + "\n"
		if _, err := io.WriteString(s.w, text); err != nil {
			s.warned.Do(func() {
				s.logger.Warn("audit log write failed", "err", err)
			})
		}
	}
}
