package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"media-converter/internal/convert"
	"media-converter/internal/domain"
	"media-converter/internal/jobs"
	"media-converter/internal/process"
)

var (
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleFail  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleJob   = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	styleTitle = lipgloss.NewStyle().Bold(true)
)

func newRunID() string {
	return uuid.NewString()
}

// renderer prints queue events as they arrive. Progress is printed only when
// the whole percent changes. Jobs of unknown duration show elapsed time or
// the raw progress text instead, printed when it changes.
type renderer struct {
	mu          sync.Mutex
	w           io.Writer
	lastPercent int
	lastText    string
	duration    float64
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w, lastPercent: -1}
}

// Publish renders one event and returns it unchanged.
func (r *renderer) Publish(e jobs.Event) jobs.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Type {
	case jobs.EventTypeCount:
		r.lastPercent = -1
		r.lastText = ""
		r.duration = e.Duration
		label := fmt.Sprintf("[%d/%d]", e.Index, e.Total)
		line := styleTitle.Render(label) + " " + styleJob.Render(e.Summary)
		if e.Duration > 0 {
			line += " " + styleDim.Render(formatClock(e.Duration))
		}
		fmt.Fprintln(r.w, line)
	case jobs.EventTypeUpdate:
		if e.ErrorLine != "" {
			fmt.Fprintln(r.w, "  "+styleFail.Render(e.ErrorLine))
			return e
		}
		if !e.HasPercent {
			r.printRaw(e)
			return e
		}
		pct := int(e.Percent)
		if pct == r.lastPercent {
			return e
		}
		r.lastPercent = pct
		prefix := ""
		if e.Pass == string(process.PassFirst) || e.Pass == string(process.PassSecond) {
			prefix = e.Pass + " pass "
		}
		fmt.Fprintf(r.w, "  %s%s\n", styleDim.Render(prefix), progressBar(e.Percent))
	case jobs.EventTypeLog:
		status, _, _ := strings.Cut(e.Message, ":")
		switch process.Status(status) {
		case process.StatusCompleted:
			if e.ErrorLine == "" {
				fmt.Fprintln(r.w, "  "+styleOK.Render("done"))
			} else {
				fmt.Fprintln(r.w, "  "+styleWarn.Render("finished with tool errors"))
			}
		case process.StatusCancelled:
			fmt.Fprintln(r.w, "  "+styleWarn.Render("cancelled"))
		default:
			fmt.Fprintln(r.w, "  "+styleFail.Render(e.Message))
		}
	case jobs.EventTypeEnd:
		if e.Message != "" {
			fmt.Fprintln(r.w, styleFail.Render("aborted: "+e.Message))
		}
	}
	return e
}

// printRaw shows untimed progress for jobs whose duration is unknown.
func (r *renderer) printRaw(e jobs.Event) {
	if r.duration > 0 {
		return
	}
	text := strings.TrimSpace(e.Raw)
	if e.Elapsed > 0 {
		text = "elapsed " + formatClock(e.Elapsed)
	}
	if text == "" || text == r.lastText {
		return
	}
	r.lastText = text
	fmt.Fprintln(r.w, "  "+styleDim.Render(text))
}

// Summary prints the final queue state.
func (r *renderer) Summary(result convert.QueueResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	failed := failedJobs(result)
	line := fmt.Sprintf("%d/%d processed, %d failed", result.Processed, result.Total, failed)
	switch result.Status {
	case domain.RunStatusCompleted:
		if failed == 0 {
			fmt.Fprintln(r.w, styleOK.Render("Queue completed: "+line))
			return
		}
		fmt.Fprintln(r.w, styleWarn.Render("Queue completed: "+line))
	case domain.RunStatusCancelled:
		fmt.Fprintln(r.w, styleWarn.Render("Queue cancelled: "+line))
	default:
		fmt.Fprintln(r.w, styleFail.Render("Queue aborted: "+line))
	}
}

func failedJobs(result convert.QueueResult) int {
	n := 0
	for _, j := range result.Jobs {
		if j.Status == process.StatusFailed || j.ToolError {
			n++
		}
	}
	return n
}

func progressBar(percent float64) string {
	const width = 30
	filled := int(percent / 100 * width)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %5.1f%%", strings.Repeat("#", filled), strings.Repeat(".", width-filled), percent)
}

func formatClock(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}
