// Package manifest loads queue descriptions for headless runs.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"media-converter/internal/convert"
	"media-converter/internal/domain"
)

// Placeholders expanded inside argument vectors.
const (
	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
	PlaceholderFFmpeg = "{ffmpeg}"
)

// Downloads describes a download batch: identifiers paired index-wise with
// option vectors.
type Downloads struct {
	URLs    []string   `json:"urls" yaml:"urls"`
	Options [][]string `json:"options" yaml:"options"`
}

// Manifest is the on-disk queue description.
type Manifest struct {
	OutputDir string                 `json:"outputDir" yaml:"outputDir"`
	Jobs      []domain.ConversionJob `json:"jobs" yaml:"jobs"`
	Downloads *Downloads             `json:"downloads,omitempty" yaml:"downloads,omitempty"`
}

// Load reads a manifest. Files ending in .json are decoded as JSON, anything
// else as YAML.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}

	var m Manifest
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Queue builds the ordered job list. Conversion jobs come first, then the
// download batch. Empty IDs are generated and placeholders are expanded.
func (m Manifest) Queue(settings domain.Settings) []domain.ConversionJob {
	outputDir := m.OutputDir
	if outputDir == "" {
		outputDir = settings.OutputDir
	}

	queue := make([]domain.ConversionJob, 0, len(m.Jobs))
	for _, job := range m.Jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		if job.Kind == "" {
			job.Kind = domain.JobKindConvert
		}
		if job.OutputDir == "" {
			job.OutputDir = outputDir
		}
		job.Passes = expandPasses(job, settings)
		queue = append(queue, job)
	}

	if m.Downloads != nil {
		queue = append(queue, convert.BuildDownloadJobs(
			settings.DownloaderPath,
			m.Downloads.URLs,
			m.Downloads.Options,
			outputDir,
		)...)
	}
	return queue
}

func expandPasses(job domain.ConversionJob, settings domain.Settings) [][]string {
	r := strings.NewReplacer(
		PlaceholderInput, job.Source(),
		PlaceholderOutput, job.OutputPath(),
		PlaceholderFFmpeg, settings.FFmpegPath,
	)

	out := make([][]string, 0, len(job.Passes))
	for _, argv := range job.Passes {
		expanded := make([]string, len(argv))
		for i, arg := range argv {
			expanded[i] = r.Replace(arg)
		}
		out = append(out, expanded)
	}
	return out
}
