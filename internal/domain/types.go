package domain

import (
	"path/filepath"
	"strconv"
	"strings"
)

// RunStatus tracks the lifecycle of one queue run.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
	RunStatusCancelled RunStatus = "cancelled"
)

// JobKind selects how a job's tool output is interpreted.
type JobKind string

const (
	JobKindConvert      JobKind = "convert"
	JobKindExtractAudio JobKind = "extract-audio"
	JobKindDownload     JobKind = "download"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	FFmpegPath      string `json:"ffmpegPath"`
	FFprobePath     string `json:"ffprobePath"`
	DownloaderPath  string `json:"downloaderPath"`
	OutputDir       string `json:"outputDir"`
	LogPath         string `json:"logPath"`
	PollIntervalMs  int    `json:"pollIntervalMs"`
	TerminateWaitMs int    `json:"terminateWaitMs"`
}

// Run stores the current run identity, status and counters.
type Run struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
}

// ConversionJob is one unit of conversion or download work. Passes holds one
// argument vector per tool invocation; argv[0] is the executable.
type ConversionJob struct {
	ID        string     `json:"id" yaml:"id"`
	Kind      JobKind    `json:"kind" yaml:"kind"`
	Sources   []string   `json:"sources" yaml:"sources"`
	OutputDir string     `json:"outputDir" yaml:"outputDir"`
	OutputExt string     `json:"outputExt" yaml:"outputExt"`
	Passes    [][]string `json:"passes" yaml:"passes"`
	Duration  float64    `json:"duration" yaml:"duration"`
	Volume    string     `json:"volume,omitempty" yaml:"volume,omitempty"`
}

// Source returns the primary source path or identifier.
func (j ConversionJob) Source() string {
	if len(j.Sources) == 0 {
		return ""
	}
	return j.Sources[0]
}

// TwoPass reports whether the job needs a second tool invocation.
func (j ConversionJob) TwoPass() bool {
	return len(j.Passes) > 1
}

// OutputPath builds the destination file path for the primary source. An
// empty OutputExt keeps the source container.
func (j ConversionJob) OutputPath() string {
	src := j.Source()
	if src == "" {
		return ""
	}

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if out := strings.TrimSpace(j.OutputExt); out != "" {
		ext = "." + strings.TrimPrefix(out, ".")
	}

	dir := j.OutputDir
	if dir == "" {
		dir = filepath.Dir(src)
	}
	return filepath.Join(dir, name+ext)
}

// Summary is the short label shown for the job in count events.
func (j ConversionJob) Summary() string {
	src := j.Source()
	if src == "" {
		return j.ID
	}
	if j.Kind == JobKindDownload {
		return src
	}

	label := filepath.Base(src)
	if len(j.Sources) > 1 {
		label += " (+" + strconv.Itoa(len(j.Sources)-1) + ")"
	}
	if j.Volume != "" {
		label += " [vol " + j.Volume + "]"
	}
	return label
}
