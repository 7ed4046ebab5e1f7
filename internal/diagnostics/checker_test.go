package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"media-converter/internal/domain"
)

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()

	var looked []string
	checker := NewCheckerForTests(
		func(name string) (string, error) {
			looked = append(looked, name)
			return "/usr/local/bin/" + filepath.Base(name), nil
		},
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		FFmpegPath:     "/opt/ffmpeg/bin/ffmpeg",
		FFprobePath:    "ffprobe",
		DownloaderPath: "yt-dlp",
		OutputDir:      filepath.Join(root, "output"),
		LogPath:        filepath.Join(root, "logs", "converter.log"),
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if looked[0] != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("looked up %q, want configured ffmpeg path", looked[0])
	}
	if _, err := os.Stat(filepath.Join(root, "logs")); err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, IDFFmpeg, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDFFprobe, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDDownloader, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDOutputDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDLogDir, domain.DiagnosticStatusFail)

	if failed := report.Failed(); len(failed) != 5 {
		t.Fatalf("failed items = %d, want 5", len(failed))
	}
	if item, ok := report.Item(IDDownloader); !ok || !item.Fixable {
		t.Fatalf("downloader item = %+v, want fixable", item)
	}
}

// TestCheckerRunUnwritableOutputDir validates write probing.
func TestCheckerRunUnwritableOutputDir(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		func(name string) (string, error) { return name, nil },
		os.MkdirAll,
		func(dir, pattern string) (*os.File, error) {
			if dir == filepath.Join(root, "readonly") {
				return nil, os.ErrPermission
			}
			return os.CreateTemp(dir, pattern)
		},
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		OutputDir: filepath.Join(root, "readonly"),
		LogPath:   filepath.Join(root, "logs", "converter.log"),
	})

	assertStatusByID(t, report, IDOutputDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDLogDir, domain.DiagnosticStatusPass)
	if item, _ := report.Item(IDLogDir); item.Fixable {
		t.Fatal("passing item must not be marked fixable")
	}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
