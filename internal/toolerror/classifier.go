// Package toolerror recognises failure messages in external tool output.
package toolerror

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Vocabulary lists the substrings treated as tool-level failures. Matching
// is case-sensitive, in the order given.
var Vocabulary = []string{
	"not found",
	"Invalid data found when processing input",
	"Error",
	"Invalid",
	"Option not found",
	"Unknown",
	"No such file or directory",
}

// Classify reports whether chunk contains a vocabulary entry and returns the
// first line that does.
func Classify(chunk string) (string, bool) {
	if !containsAny(chunk) {
		return "", false
	}

	for _, line := range strings.FieldsFunc(chunk, isLineBreak) {
		if containsAny(line) {
			return strings.TrimSpace(line), true
		}
	}
	return strings.TrimSpace(chunk), true
}

func containsAny(s string) bool {
	for _, needle := range Vocabulary {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r'
}

// Latch is the per-job error signal. Once raised it ignores further matches
// until Reset.
type Latch struct {
	raised atomic.Bool
	mu     sync.Mutex
	line   string
}

// Observe classifies chunk while the latch is unset. It returns the offending
// line only for the match that raised the latch.
func (l *Latch) Observe(chunk string) (string, bool) {
	if l.raised.Load() {
		return "", false
	}

	line, ok := Classify(chunk)
	if !ok {
		return "", false
	}
	if !l.raised.CompareAndSwap(false, true) {
		return "", false
	}

	l.mu.Lock()
	l.line = line
	l.mu.Unlock()
	return line, true
}

// Raised reports whether a failure was seen since the last Reset.
func (l *Latch) Raised() bool {
	return l.raised.Load()
}

// Line returns the line that raised the latch.
func (l *Latch) Line() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.line
}

// Reset clears the latch before a new job starts.
func (l *Latch) Reset() {
	l.mu.Lock()
	l.line = ""
	l.mu.Unlock()
	l.raised.Store(false)
}
