package process

import (
	"media-converter/internal/progress"
	"media-converter/internal/toolerror"
)

// Pass identifies which invocation of a job a run represents.
type Pass string

const (
	PassSingle Pass = "single"
	PassFirst  Pass = "first"
	PassSecond Pass = "second"
)

// Status is the classified result of one run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Canceller is polled once per tick.
type Canceller interface {
	Cancelled() bool
}

// Update is one progress or error notification produced while a run is
// active. Raw is the last line of the chunk, or the chunk itself when it has
// no line breaks.
type Update struct {
	Pass      Pass
	Sample    progress.Sample
	HasSample bool
	Raw       string
	ErrorLine string
}

// Run describes one external process invocation.
type Run struct {
	Args     []string
	Duration float64
	Pass     Pass
	Token    Canceller
	// Latch is the job's error signal. A nil latch is scoped to this run.
	Latch *toolerror.Latch
	// Progress streams parsed updates. When false the run is synchronous and
	// stdout is captured into Outcome.Stdout.
	Progress bool
	// MergeStdout feeds stdout into the diagnostic stream.
	MergeStdout bool
	// Download parses downloader percentages instead of time markers.
	Download bool
	OnUpdate func(Update)
}

// Outcome is the classified result of a run. Err is a *RunError for failed
// runs and for completed runs that raised the job's error latch.
type Outcome struct {
	Status    Status
	Reason    string
	ToolError bool
	ErrorLine string
	Stdout    string
	Log       CommandLog
	Err       error
}
