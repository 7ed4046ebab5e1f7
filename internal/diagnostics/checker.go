package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"media-converter/internal/domain"
)

// Diagnostic item IDs.
const (
	IDFFmpeg     = "tool_ffmpeg"
	IDFFprobe    = "tool_ffprobe"
	IDDownloader = "tool_downloader"
	IDOutputDir  = "output_dir"
	IDLogDir     = "log_dir"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool(IDFFmpeg, "ffmpeg", settings.FFmpegPath),
		c.checkTool(IDFFprobe, "ffprobe", settings.FFprobePath),
		c.checkTool(IDDownloader, "yt-dlp", settings.DownloaderPath),
		c.checkWritableDir(IDOutputDir, "Output directory", settings.OutputDir,
			"Choose a writable directory for converted files."),
		c.checkWritableDir(IDLogDir, "Log directory", logDir(settings.LogPath),
			"Choose a writable location for the conversion log."),
	}

	hasFailures := false
	for i := range items {
		if items[i].Status == domain.DiagnosticStatusFail {
			hasFailures = true
			items[i].Fixable = true
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a configured executable resolves. Bare names are
// searched on PATH.
func (c *Checker) checkTool(id, name, configured string) domain.DiagnosticItem {
	target := strings.TrimSpace(configured)
	if target == "" {
		target = name
	}

	path, err := c.lookPath(target)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      id,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found: %s", target),
			Hint:    "Install it or point settings at the binary before starting a queue.",
		}
	}

	return domain.DiagnosticItem{
		ID:      id,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir, hint string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = hint
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = hint
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

func logDir(logPath string) string {
	if strings.TrimSpace(logPath) == "" {
		return ""
	}
	return filepath.Dir(logPath)
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
