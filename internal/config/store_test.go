package config

import (
	"os"
	"path/filepath"
	"testing"

	"media-converter/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.FFmpegPath != "ffmpeg" || cfg.FFprobePath != "ffprobe" || cfg.DownloaderPath != "yt-dlp" {
		t.Fatalf("tool paths = %+v", cfg)
	}
	if cfg.PollIntervalMs != 500 {
		t.Fatalf("poll interval = %d, want 500", cfg.PollIntervalMs)
	}
	if cfg.TerminateWaitMs != 5000 {
		t.Fatalf("terminate wait = %d, want 5000", cfg.TerminateWaitMs)
	}
	if cfg.OutputDir == "" || cfg.LogPath == "" {
		t.Fatal("expected non-empty output dir and log path")
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		FFmpegPath:      "/opt/ffmpeg/bin/ffmpeg",
		FFprobePath:     "/opt/ffmpeg/bin/ffprobe",
		DownloaderPath:  "/usr/local/bin/yt-dlp",
		OutputDir:       "/out",
		LogPath:         "/var/log/converter.log",
		PollIntervalMs:  250,
		TerminateWaitMs: 2000,
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreLoadPartialFillsDefaults checks older settings files.
func TestJSONStoreLoadPartialFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"ffmpegPath":"/bin/ffmpeg","pollIntervalMs":1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.FFmpegPath != "/bin/ffmpeg" {
		t.Fatalf("ffmpeg path = %q", got.FFmpegPath)
	}
	if got.FFprobePath != "ffprobe" {
		t.Fatalf("ffprobe path = %q, want default", got.FFprobePath)
	}
	if got.PollIntervalMs != 500 {
		t.Fatalf("poll interval = %d, want default for out-of-range value", got.PollIntervalMs)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}

// TestJSONStoreSaveReplacesFileAndNormalizes checks the file is swapped in place.
func TestJSONStoreSaveReplacesFileAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, []byte(`{"ffmpegPath":"old"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if err := store.Save(domain.Settings{FFmpegPath: "/new/ffmpeg"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.FFmpegPath != "/new/ffmpeg" || got.PollIntervalMs != 500 {
		t.Fatalf("settings = %+v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir entries = %d, want only settings.json", len(entries))
	}
}
