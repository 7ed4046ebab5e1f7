package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"media-converter/internal/config"
	"media-converter/internal/convert"
	"media-converter/internal/diagnostics"
	"media-converter/internal/domain"
	"media-converter/internal/jobs"
	"media-converter/internal/logsink"
	"media-converter/internal/probe"
	"media-converter/internal/process"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// queueEventName is the Wails runtime event carrying queue events.
const queueEventName = "queue:event"

// ErrEmptyQueue is returned when a queue without jobs is submitted.
var ErrEmptyQueue = errors.New("queue has no jobs")

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg;*.opus",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// toolRunner runs one external tool invocation.
type toolRunner interface {
	Run(run process.Run) process.Outcome
}

// auditSink is the job log opened for one queue run.
type auditSink interface {
	logsink.Sink
	Close() error
}

// App wires configuration, the queue engine and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Runs        *jobs.Manager
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	logger      *slog.Logger

	newRunner func(settings domain.Settings, sink logsink.Sink) toolRunner
	openSink  func(path string) (auditSink, error)

	mu         sync.Mutex
	events     *jobs.EventBus
	runtimeCtx context.Context
}

// Options configures New. Zero values select the per-user defaults.
type Options struct {
	// Assets serves the frontend. Nil serves ./frontend from disk.
	Assets fs.FS
	// SettingsPath overrides ~/.media-converter/settings.json.
	SettingsPath string
	Logger       *slog.Logger
}

// New loads persisted settings, runs the environment checks and prepares the
// queue engine.
func New(opts Options) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	settingsPath := opts.SettingsPath
	if settingsPath == "" {
		settingsPath = filepath.Join(homeDir, ".media-converter", "settings.json")
	}
	store := config.NewJSONStore(settingsPath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	logger = logger.With("component", "app")

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)
	for _, item := range report.Failed() {
		logger.Warn("diagnostic failed", "id", item.ID, "message", item.Message)
	}

	return &App{
		Settings:    settings,
		Store:       store,
		Runs:        jobs.NewManager(),
		Diagnostics: report,
		assets:      opts.Assets,
		checker:     checker,
		logger:      logger,
		events:      jobs.NewEventBus(1000),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Media Converter",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			_ = a.Runs.Cancel()
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// PickInputFiles opens a native file dialog for media selection.
func (a *App) PickInputFiles() ([]string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return nil, err
	}

	paths, err := wailsruntime.OpenMultipleFilesDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media files",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// PickOutputDirectory opens a native directory picker for converted files.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	return a.refreshDiagnosticsFromSettings(settings), nil
}

// StartQueue validates the queue, registers a new run and processes it on a
// worker goroutine. The job list must not be changed by the caller afterwards.
func (a *App) StartQueue(queue []domain.ConversionJob) (domain.Run, error) {
	if len(queue) == 0 {
		return domain.Run{}, ErrEmptyQueue
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Run{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	owned := make([]domain.ConversionJob, len(queue))
	copy(owned, queue)
	for i := range owned {
		if owned[i].ID == "" {
			owned[i].ID = uuid.NewString()
		}
	}

	runID := uuid.NewString()
	token, err := a.Runs.Start(runID, len(owned))
	if err != nil {
		return domain.Run{}, err
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	go a.runQueue(runID, owned, token, settings)
	return a.Runs.Current(), nil
}

// StartDownloads queues one download job per identifier.
func (a *App) StartDownloads(urls []string, options [][]string) (domain.Run, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Run{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	return a.StartQueue(convert.BuildDownloadJobs(settings.DownloaderPath, urls, options, settings.OutputDir))
}

// StopQueue asks the active run to stop. The running tool is terminated on
// the next poll tick and no further job starts.
func (a *App) StopQueue() error {
	return a.Runs.Cancel()
}

// CurrentRun returns current run metadata and counters.
func (a *App) CurrentRun() domain.Run {
	return a.Runs.Current()
}

// QueueEvents returns all events with sequence greater than sinceSeq.
func (a *App) QueueEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// runQueue probes unknown durations and runs the sequencer to completion.
func (a *App) runQueue(runID string, queue []domain.ConversionJob, token *jobs.CancelToken, settings domain.Settings) {
	logger := a.log().With("run", runID)

	sink, err := a.sinkOpener()(settings.LogPath)
	if err != nil {
		logger.Warn("job log unavailable", "path", settings.LogPath, "err", err)
		sink = nopSink{}
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("close job log", "err", err)
		}
	}()

	runner := a.runnerFactory()(settings, sink)
	queue = probe.NewProber(settings.FFprobePath, runner, logger).FillDurations(queue, token)

	seq := convert.NewSequencer(runner, jobs.PublisherFunc(func(event jobs.Event) jobs.Event {
		// The run is released before subscribers see the end event, so a new
		// queue can start as soon as it arrives.
		if event.Type == jobs.EventTypeEnd {
			if err := a.Runs.Finish(event.Status); err != nil {
				logger.Error("finish run", "status", event.Status, "err", err)
			}
		}
		return a.publishEvent(event)
	}), logger)
	seq.OnAdvance(a.Runs.Advance)
	result := seq.Run(runID, queue, token)
	logger.Info("run finished", "status", result.Status, "processed", result.Processed)
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) jobs.Event {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, queueEventName, published)
	}
	return published
}

func (a *App) runnerFactory() func(domain.Settings, logsink.Sink) toolRunner {
	if a.newRunner != nil {
		return a.newRunner
	}
	return func(settings domain.Settings, sink logsink.Sink) toolRunner {
		return process.NewSupervisor(process.Config{
			PollInterval:   time.Duration(settings.PollIntervalMs) * time.Millisecond,
			TerminateGrace: time.Duration(settings.TerminateWaitMs) * time.Millisecond,
			Sink:           sink,
			Logger:         a.log().With("component", "supervisor"),
		})
	}
}

func (a *App) sinkOpener() func(string) (auditSink, error) {
	if a.openSink != nil {
		return a.openSink
	}
	return func(path string) (auditSink, error) {
		w, err := logsink.Open(path, a.log())
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

func (a *App) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

type nopSink struct{}

func (nopSink) Append(string) {}
func (nopSink) Close() error  { return nil }

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
