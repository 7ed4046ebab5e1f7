// Package probe reads media durations with the stream prober so progress can
// be reported as a percentage.
package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"media-converter/internal/domain"
	"media-converter/internal/process"
)

// ErrNoDuration is returned when the prober output carries no usable
// duration.
var ErrNoDuration = errors.New("no duration in probe output")

// runner abstracts the supervisor for testability.
type runner interface {
	Run(run process.Run) process.Outcome
}

// Prober runs ffprobe in capture mode.
type Prober struct {
	ffprobePath string
	runner      runner
	logger      *slog.Logger
}

// NewProber builds a prober using the given executable and runner.
func NewProber(ffprobePath string, r runner, logger *slog.Logger) *Prober {
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Prober{ffprobePath: ffprobePath, runner: r, logger: logger}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the container duration of path in seconds.
func (p *Prober) Duration(path string, token process.Canceller) (float64, error) {
	out := p.runner.Run(process.Run{
		Args: []string{
			p.ffprobePath,
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "json",
			path,
		},
		Token: token,
	})
	if out.Status != process.StatusCompleted {
		if out.Err != nil {
			return 0, out.Err
		}
		return 0, fmt.Errorf("probe %s: %s", path, out.Reason)
	}
	return ParseDuration(out.Stdout)
}

// ParseDuration extracts format.duration from ffprobe JSON output.
func ParseDuration(raw string) (float64, error) {
	var parsed probeOutput
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return 0, fmt.Errorf("decode probe output: %w", err)
	}

	d := strings.TrimSpace(parsed.Format.Duration)
	if d == "" || d == "N/A" {
		return 0, ErrNoDuration
	}
	seconds, err := strconv.ParseFloat(d, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoDuration, d)
	}
	if seconds <= 0 {
		return 0, ErrNoDuration
	}
	return seconds, nil
}

// FillDurations returns a copy of queue with unknown durations probed.
// Download jobs and jobs that fail to probe keep a zero duration and report
// raw progress only.
func (p *Prober) FillDurations(queue []domain.ConversionJob, token process.Canceller) []domain.ConversionJob {
	out := make([]domain.ConversionJob, len(queue))
	copy(out, queue)

	for i := range out {
		if token != nil && token.Cancelled() {
			break
		}
		job := &out[i]
		if job.Duration > 0 || job.Kind == domain.JobKindDownload || job.Source() == "" {
			continue
		}

		d, err := p.Duration(job.Source(), token)
		if err != nil {
			p.logger.Warn("duration probe failed", "job", job.ID, "source", job.Source(), "err", err)
			continue
		}
		job.Duration = d
	}
	return out
}
