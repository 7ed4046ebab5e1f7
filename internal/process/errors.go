package process

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind separates failures that abort the queue from per-job failures.
type ErrorKind string

const (
	// KindSpawn means the tool could not be started at all.
	KindSpawn ErrorKind = "spawn"
	// KindTool means the diagnostic stream matched the failure vocabulary.
	KindTool ErrorKind = "tool"
	// KindExit means the tool exited with a nonzero status.
	KindExit ErrorKind = "exit"
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// String renders the command line for audit logs.
func (l CommandLog) String() string {
	parts := append([]string{l.Command}, l.Args...)
	for i, p := range parts {
		if p == "" || strings.ContainsAny(p, " \t\"'") {
			parts[i] = fmt.Sprintf("%q", p)
		}
	}
	return strings.Join(parts, " ")
}

// RunError is a kind-aware error with command context.
type RunError struct {
	Kind       ErrorKind  `json:"kind"`
	Pass       Pass       `json:"pass"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats run failures for logs and UI.
func (e *RunError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Kind,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *RunError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsSpawnError reports whether err is a spawn-level failure.
func IsSpawnError(err error) bool {
	var runErr *RunError
	return errors.As(err, &runErr) && runErr.Kind == KindSpawn
}

// ErrInvalidArgs is wrapped by spawn errors for argument vectors that cannot
// be handed to the operating system.
var ErrInvalidArgs = errors.New("invalid argument vector")
