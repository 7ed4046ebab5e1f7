package domain

import (
	"path/filepath"
	"testing"
)

// TestOutputPathKeepsContainerWhenExtEmpty checks the keep-container rule.
func TestOutputPathKeepsContainerWhenExtEmpty(t *testing.T) {
	job := ConversionJob{
		Sources:   []string{filepath.Join("in", "clip.mkv")},
		OutputDir: "out",
	}
	if got, want := job.OutputPath(), filepath.Join("out", "clip.mkv"); got != want {
		t.Fatalf("OutputPath() = %q, want %q", got, want)
	}
}

// TestOutputPathAppliesExtension checks dotted and bare extensions.
func TestOutputPathAppliesExtension(t *testing.T) {
	for _, ext := range []string{"mp3", ".mp3"} {
		job := ConversionJob{
			Sources:   []string{filepath.Join("in", "song.flac")},
			OutputDir: "out",
			OutputExt: ext,
		}
		if got, want := job.OutputPath(), filepath.Join("out", "song.mp3"); got != want {
			t.Fatalf("ext %q: OutputPath() = %q, want %q", ext, got, want)
		}
	}
}

// TestOutputPathDefaultsToSourceDir checks the missing output dir fallback.
func TestOutputPathDefaultsToSourceDir(t *testing.T) {
	job := ConversionJob{Sources: []string{filepath.Join("in", "a.wav")}, OutputExt: "ogg"}
	if got, want := job.OutputPath(), filepath.Join("in", "a.ogg"); got != want {
		t.Fatalf("OutputPath() = %q, want %q", got, want)
	}
}

// TestSummary checks labels for single, multi-source and download jobs.
func TestSummary(t *testing.T) {
	tests := []struct {
		job  ConversionJob
		want string
	}{
		{ConversionJob{ID: "job-1"}, "job-1"},
		{ConversionJob{Sources: []string{"/a/b.mp4"}}, "b.mp4"},
		{ConversionJob{Sources: []string{"/a/b.mp4", "/a/c.mp4"}}, "b.mp4 (+1)"},
		{ConversionJob{Sources: []string{"/a/b.mp4"}, Volume: "1.5"}, "b.mp4 [vol 1.5]"},
		{ConversionJob{Kind: JobKindDownload, Sources: []string{"https://example.com/v"}}, "https://example.com/v"},
	}

	for _, test := range tests {
		if got := test.job.Summary(); got != test.want {
			t.Errorf("Summary() = %q, want %q", got, test.want)
		}
	}
}

// TestTwoPass checks pass counting.
func TestTwoPass(t *testing.T) {
	if (ConversionJob{Passes: [][]string{{"ffmpeg"}}}).TwoPass() {
		t.Fatal("single argv should not be two-pass")
	}
	if !(ConversionJob{Passes: [][]string{{"ffmpeg"}, {"ffmpeg"}}}).TwoPass() {
		t.Fatal("two argv should be two-pass")
	}
}
