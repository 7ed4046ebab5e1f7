package config

import (
	"os"
	"path/filepath"
	"strings"

	"media-converter/internal/domain"
)

const (
	defaultPollIntervalMs  = 500
	defaultTerminateWaitMs = 5000
	minPollIntervalMs      = 10
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		DownloaderPath:  "yt-dlp",
		OutputDir:       filepath.Join(homeDir, "Videos", "Converted"),
		LogPath:         filepath.Join(homeDir, ".media-converter", "logs", "converter.log"),
		PollIntervalMs:  defaultPollIntervalMs,
		TerminateWaitMs: defaultTerminateWaitMs,
	}
}

// Normalize fills empty or out-of-range fields from the defaults.
func Normalize(cfg domain.Settings) domain.Settings {
	def := DefaultSettings()

	cfg.FFmpegPath = orDefault(cfg.FFmpegPath, def.FFmpegPath)
	cfg.FFprobePath = orDefault(cfg.FFprobePath, def.FFprobePath)
	cfg.DownloaderPath = orDefault(cfg.DownloaderPath, def.DownloaderPath)
	cfg.OutputDir = orDefault(cfg.OutputDir, def.OutputDir)
	cfg.LogPath = orDefault(cfg.LogPath, def.LogPath)

	if cfg.PollIntervalMs < minPollIntervalMs {
		cfg.PollIntervalMs = def.PollIntervalMs
	}
	if cfg.TerminateWaitMs <= 0 {
		cfg.TerminateWaitMs = def.TerminateWaitMs
	}
	return cfg
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
