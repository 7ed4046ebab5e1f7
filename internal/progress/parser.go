// Package progress extracts elapsed media time and completion percentages
// from external tool diagnostic output.
package progress

import (
	"regexp"
	"strconv"
)

// Sample is one progress reading derived from a chunk of tool output.
type Sample struct {
	Elapsed    float64 `json:"elapsed"`
	Percent    float64 `json:"percent"`
	HasPercent bool    `json:"hasPercent"`
}

var (
	reTime     = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2})`)
	reDownload = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)
)

// Parse scans chunk for the last "time=HH:MM:SS" marker. Hours may use more
// than two digits and fractional seconds are ignored. When duration is
// positive the sample also carries elapsed/duration*100.
func Parse(chunk string, duration float64) (Sample, bool) {
	matches := reTime.FindAllStringSubmatch(chunk, -1)
	if len(matches) == 0 {
		return Sample{}, false
	}
	m := matches[len(matches)-1]

	elapsed, ok := clockSeconds(m[1], m[2], m[3])
	if !ok {
		return Sample{}, false
	}

	s := Sample{Elapsed: elapsed}
	if duration > 0 {
		s.Percent = elapsed / duration * 100
		s.HasPercent = true
	}
	return s, true
}

// ParseDownload reads the last "[download]  NN.N%" marker written by the
// downloader tool.
func ParseDownload(chunk string) (Sample, bool) {
	matches := reDownload.FindAllStringSubmatch(chunk, -1)
	if len(matches) == 0 {
		return Sample{}, false
	}

	pct, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return Sample{}, false
	}
	return Sample{Percent: pct, HasPercent: true}, true
}

func clockSeconds(hh, mm, ss string) (float64, bool) {
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, false
	}
	s, err := strconv.Atoi(ss)
	if err != nil {
		return 0, false
	}
	return float64(((h*60)+m)*60 + s), true
}
