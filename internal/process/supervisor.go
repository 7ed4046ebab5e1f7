// Package process supervises one external tool invocation at a time: it
// spawns the tool, polls its diagnostic stream on a fixed tick, forwards
// progress and error lines, and honours cooperative cancellation.
package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"media-converter/internal/logsink"
	"media-converter/internal/progress"
	"media-converter/internal/toolerror"
)

const (
	// DefaultPollInterval is the supervisor tick.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultTerminateGrace bounds how long a terminated tool may take to exit
	// before it is killed.
	DefaultTerminateGrace = 5 * time.Second

	readBufferSize = 4096
	maxDiagnostic  = 64 * 1024
	unrecognized   = "unrecognized error"
)

// Config tunes a Supervisor. Zero values select the defaults.
type Config struct {
	PollInterval   time.Duration
	TerminateGrace time.Duration
	Sink           logsink.Sink
	Logger         *slog.Logger
}

// Supervisor runs external tools. It holds no per-run state and may be
// reused for consecutive runs.
type Supervisor struct {
	interval   time.Duration
	grace      time.Duration
	sink       logsink.Sink
	logger     *slog.Logger
	newCommand func(name string, args ...string) *exec.Cmd
}

// NewSupervisor builds a supervisor that starts real processes.
func NewSupervisor(cfg Config) *Supervisor {
	s := &Supervisor{
		interval:   cfg.PollInterval,
		grace:      cfg.TerminateGrace,
		sink:       cfg.Sink,
		logger:     cfg.Logger,
		newCommand: exec.Command,
	}
	if s.interval <= 0 {
		s.interval = DefaultPollInterval
	}
	if s.grace <= 0 {
		s.grace = DefaultTerminateGrace
	}
	if s.sink == nil {
		s.sink = logsink.Discard
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Run executes one tool invocation and classifies how it ended. It never
// returns a raw error: spawn failures, tool errors and nonzero exits are all
// folded into the Outcome.
func (s *Supervisor) Run(run Run) Outcome {
	if run.Latch == nil {
		run.Latch = &toolerror.Latch{}
	}

	var log CommandLog
	if len(run.Args) > 0 {
		log.Command = run.Args[0]
		log.Args = append([]string(nil), run.Args[1:]...)
	}
	if err := validateArgs(run.Args); err != nil {
		return s.spawnFailure(run, log, err)
	}
	if run.Token != nil && run.Token.Cancelled() {
		log.ExitCode = -1
		s.logger.Debug("run cancelled before start", "cmd", log.Command, "pass", run.Pass)
		return Outcome{Status: StatusCancelled, Reason: "cancelled", Log: log}
	}

	s.sink.Append(log.String())

	cmd := s.newCommand(run.Args[0], run.Args[1:]...)
	prepare(cmd)

	r, w, err := os.Pipe()
	if err != nil {
		return s.spawnFailure(run, log, err)
	}
	defer r.Close()

	var stdout bytes.Buffer
	cmd.Stderr = w
	switch {
	case run.MergeStdout:
		cmd.Stdout = w
	case !run.Progress:
		cmd.Stdout = &stdout
	}

	if err := cmd.Start(); err != nil {
		_ = w.Close()
		return s.spawnFailure(run, log, err)
	}
	_ = w.Close()
	s.logger.Debug("tool started", "cmd", log.Command, "pid", cmd.Process.Pid, "pass", run.Pass)

	chunks := make(chan []byte, 64)
	go readChunks(r, chunks)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var diag tail
	for {
		if run.Token != nil && run.Token.Cancelled() {
			return s.cancel(run, cmd, r, chunks, log, &diag)
		}

		data, open := drain(chunks)
		if len(data) > 0 {
			diag.Write(data)
			s.observe(run, string(data))
		}
		if !open {
			break
		}
		<-ticker.C
	}

	waitErr := cmd.Wait()
	log.ExitCode = exitCode(cmd, waitErr)
	log.Stdout = stdout.String()
	log.Stderr = diag.String()

	out := Outcome{
		Status:    StatusCompleted,
		ToolError: run.Latch.Raised(),
		ErrorLine: run.Latch.Line(),
		Stdout:    log.Stdout,
		Log:       log,
	}

	if waitErr != nil {
		out.Status = StatusFailed
		out.Reason = failureReason(out.ErrorLine, log.Stderr)
		out.Err = &RunError{
			Kind:       KindExit,
			Pass:       run.Pass,
			Message:    out.Reason,
			CommandLog: log,
			Err:        waitErr,
		}
		s.logger.Warn("tool failed", "cmd", log.Command, "exit", log.ExitCode, "reason", out.Reason)
		return out
	}

	if out.ToolError {
		out.Reason = out.ErrorLine
		out.Err = &RunError{
			Kind:       KindTool,
			Pass:       run.Pass,
			Message:    out.ErrorLine,
			CommandLog: log,
		}
	}
	return out
}

// observe feeds one drained chunk to the error latch and progress parser.
func (s *Supervisor) observe(run Run, chunk string) {
	if line, ok := run.Latch.Observe(chunk); ok {
		s.sink.Append(line)
		emit(run, Update{Pass: run.Pass, Raw: lastLine(chunk), ErrorLine: line})
		return
	}
	if !run.Progress {
		return
	}

	var (
		sample progress.Sample
		ok     bool
	)
	if run.Download {
		sample, ok = progress.ParseDownload(chunk)
	} else {
		sample, ok = progress.Parse(chunk, run.Duration)
	}
	emit(run, Update{Pass: run.Pass, Sample: sample, HasSample: ok, Raw: lastLine(chunk)})
}

// cancel requests termination, waits out the grace period and reaps the
// process.
func (s *Supervisor) cancel(run Run, cmd *exec.Cmd, r *os.File, chunks <-chan []byte, log CommandLog, diag *tail) Outcome {
	s.logger.Info("terminating tool", "cmd", log.Command, "pid", cmd.Process.Pid)
	if err := terminate(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("terminate request failed", "cmd", log.Command, "err", err)
	}

	done := make(chan error, 1)
	go func() {
		for data := range chunks {
			diag.Write(data)
		}
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-time.After(s.grace):
		s.logger.Warn("tool ignored termination, killing", "cmd", log.Command, "grace", s.grace)
		_ = cmd.Process.Kill()
		_ = r.Close()
		waitErr = <-done
	}

	log.ExitCode = exitCode(cmd, waitErr)
	log.Stderr = diag.String()
	return Outcome{
		Status:    StatusCancelled,
		Reason:    "cancelled",
		ToolError: run.Latch.Raised(),
		ErrorLine: run.Latch.Line(),
		Log:       log,
	}
}

func (s *Supervisor) spawnFailure(run Run, log CommandLog, err error) Outcome {
	log.ExitCode = -1
	reason := err.Error()
	s.sink.Append("spawn failed: " + reason)
	s.logger.Error("tool could not be started", "cmd", log.Command, "err", err)
	return Outcome{
		Status: StatusFailed,
		Reason: reason,
		Log:    log,
		Err: &RunError{
			Kind:       KindSpawn,
			Pass:       run.Pass,
			Message:    reason,
			CommandLog: log,
			Err:        err,
		},
	}
}

// validateArgs rejects argument vectors the OS cannot represent.
func validateArgs(args []string) error {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidArgs)
	}
	for _, arg := range args {
		if !utf8.ValidString(arg) {
			return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidArgs, arg)
		}
		if strings.IndexByte(arg, 0) >= 0 {
			return fmt.Errorf("%w: %q contains NUL", ErrInvalidArgs, arg)
		}
	}
	return nil
}

// readChunks forwards raw reads until end of stream.
func readChunks(r io.Reader, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- chunk
		}
		if err != nil {
			return
		}
	}
}

// drain collects everything already read without blocking. The second
// result is false once the stream has ended.
func drain(chunks <-chan []byte) ([]byte, bool) {
	var buf []byte
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				return buf, false
			}
			buf = append(buf, c...)
		default:
			return buf, true
		}
	}
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func failureReason(errorLine, diagnostic string) string {
	if errorLine != "" {
		return errorLine
	}
	if line := lastLine(diagnostic); line != "" {
		return line
	}
	return unrecognized
}

func lastLine(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func emit(run Run, u Update) {
	if run.OnUpdate != nil {
		run.OnUpdate(u)
	}
}

// tail keeps the most recent diagnostic output.
type tail struct {
	buf []byte
}

func (t *tail) Write(p []byte) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - maxDiagnostic; over > 0 {
		t.buf = append([]byte(nil), t.buf[over:]...)
	}
}

func (t *tail) String() string {
	return string(t.buf)
}
