package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"media-converter/internal/config"
	"media-converter/internal/convert"
	"media-converter/internal/diagnostics"
	"media-converter/internal/domain"
	"media-converter/internal/jobs"
	"media-converter/internal/logsink"
	"media-converter/internal/manifest"
	"media-converter/internal/probe"
	"media-converter/internal/process"
)

func main() {
	setupFlags()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "convq",
	Short: "Run media conversion and download queues without the desktop UI",
	Long: `convq runs a queue of ffmpeg / yt-dlp jobs described in a YAML or JSON
manifest, printing per-job progress. Ctrl-C stops the running tool and no
further job starts.

Usage:
  convq run queue.yaml [--settings ~/.media-converter/settings.json]
  convq probe clip.mov
  convq diagnose`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run <manifest>",
	Short: "Run every job in a manifest in order",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueue,
}

var probeCmd = &cobra.Command{
	Use:   "probe <file>...",
	Short: "Print media durations reported by ffprobe",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProbe,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Check tools and directories from settings",
	Args:  cobra.NoArgs,
	RunE:  runDiagnose,
}

var (
	settingsPath string
	logPath      string
	pollMs       int
	verbose      bool
)

func setupFlags() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", defaultSettingsPath(), "Settings file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log supervisor activity to stderr")
	runCmd.Flags().StringVar(&logPath, "log", "", "Job log file (default: from settings)")
	runCmd.Flags().IntVar(&pollMs, "poll-ms", 0, "Poll interval in milliseconds (default: from settings)")

	rootCmd.AddCommand(runCmd, probeCmd, diagnoseCmd)
}

func defaultSettingsPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".media-converter", "settings.json")
}

func newLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func loadSettings() (domain.Settings, error) {
	settings, err := config.NewJSONStore(settingsPath).Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if logPath != "" {
		settings.LogPath = logPath
	}
	if pollMs > 0 {
		settings.PollIntervalMs = pollMs
	}
	return config.Normalize(settings), nil
}

func newSupervisor(settings domain.Settings, sink logsink.Sink, logger *slog.Logger) *process.Supervisor {
	return process.NewSupervisor(process.Config{
		PollInterval:   time.Duration(settings.PollIntervalMs) * time.Millisecond,
		TerminateGrace: time.Duration(settings.TerminateWaitMs) * time.Millisecond,
		Sink:           sink,
		Logger:         logger,
	})
}

// watchSignals sets token on SIGINT/SIGTERM.
func watchSignals(token *jobs.CancelToken) (stop func()) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	finished := make(chan struct{})
	go func() {
		select {
		case <-finished:
			return
		case <-ctx.Done():
		}
		select {
		case <-finished:
			return
		default:
		}
		if token.Cancel() {
			fmt.Fprintln(os.Stderr, "\nstopping after the current tool exits...")
		}
	}()
	return func() {
		close(finished)
		cancel()
	}
}

func runQueue(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	m, err := manifest.Load(args[0])
	if err != nil {
		return err
	}
	queue := m.Queue(settings)
	if len(queue) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Manifest has no jobs.")
		return nil
	}

	logger := newLogger()
	var sink logsink.Sink = logsink.Discard
	if w, err := logsink.Open(settings.LogPath, logger); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "job log unavailable (%v); continuing without it\n", err)
	} else {
		defer w.Close()
		sink = w
	}

	token := jobs.NewCancelToken()
	stop := watchSignals(token)
	defer stop()

	sup := newSupervisor(settings, sink, logger)
	queue = probe.NewProber(settings.FFprobePath, sup, logger).FillDurations(queue, token)

	out := newRenderer(cmd.OutOrStdout())
	result := convert.NewSequencer(sup, jobs.PublisherFunc(out.Publish), logger).
		Run(newRunID(), queue, token)
	out.Summary(result)

	switch result.Status {
	case domain.RunStatusAborted:
		return fmt.Errorf("queue aborted: %w", result.Err)
	case domain.RunStatusCancelled:
		return errors.New("queue cancelled")
	}
	if n := failedJobs(result); n > 0 {
		return fmt.Errorf("%d of %d jobs failed; see %s", n, result.Total, settings.LogPath)
	}
	return nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger()
	prober := probe.NewProber(settings.FFprobePath, newSupervisor(settings, logsink.Discard, logger), logger)

	token := jobs.NewCancelToken()
	stop := watchSignals(token)
	defer stop()

	var failed int
	for _, path := range args {
		d, err := prober.Duration(path, token)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, styleFail.Render(err.Error()))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.3fs\n", path, d)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be probed", failed, len(args))
	}
	return nil
}

func runDiagnose(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	report := diagnostics.NewChecker().Run(settings)
	for _, item := range report.Items {
		mark := styleOK.Render("ok  ")
		if item.Status == domain.DiagnosticStatusFail {
			mark = styleFail.Render("FAIL")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-18s %s\n", mark, item.Name, item.Message)
		if item.Hint != "" && item.Status == domain.DiagnosticStatusFail {
			fmt.Fprintf(cmd.OutOrStdout(), "     %s\n", styleDim.Render(item.Hint))
		}
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d checks failed", len(failed), len(report.Items))
	}
	return nil
}
