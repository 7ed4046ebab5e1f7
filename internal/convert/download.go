package convert

import (
	"strings"

	"github.com/google/uuid"

	"media-converter/internal/domain"
)

// BuildDownloadJobs pairs each identifier with the option vector at the same
// index. When the lists differ in length the unpaired entries become jobs
// without an argument vector, which the supervisor rejects as a spawn
// failure. Identifiers are passed through unchanged, so ones the OS cannot
// encode fail the same way.
func BuildDownloadJobs(downloader string, urls []string, options [][]string, outputDir string) []domain.ConversionJob {
	n := len(urls)
	if len(options) > n {
		n = len(options)
	}

	out := make([]domain.ConversionJob, 0, n)
	for i := 0; i < n; i++ {
		job := domain.ConversionJob{
			ID:        uuid.NewString(),
			Kind:      domain.JobKindDownload,
			OutputDir: outputDir,
		}
		if i < len(urls) {
			job.Sources = []string{urls[i]}
		}
		if i < len(urls) && i < len(options) {
			job.Passes = [][]string{downloadArgs(downloader, urls[i], options[i], outputDir)}
		}
		out = append(out, job)
	}
	return out
}

func downloadArgs(downloader, url string, options []string, outputDir string) []string {
	args := []string{downloader, "--newline"}
	if strings.TrimSpace(outputDir) != "" {
		args = append(args, "-P", outputDir)
	}
	args = append(args, options...)
	return append(args, url)
}
