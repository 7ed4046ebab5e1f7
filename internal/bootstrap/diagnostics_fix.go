package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"media-converter/internal/config"
	"media-converter/internal/diagnostics"
	"media-converter/internal/domain"
	"media-converter/internal/process"
)

const (
	downloaderReleaseBase = "https://github.com/yt-dlp/yt-dlp/releases/latest/download/"

	installCommandTimeout = 45 * time.Minute
	downloadToolTimeout   = 30 * time.Minute
)

type installOption struct {
	manager  string
	commands [][]string
}

// toolPackages names one tool in each supported package manager. Empty
// entries are skipped.
type toolPackages struct {
	winget string
	choco  string
	scoop  string
	brew   string
	linux  string
	pipx   string
}

var (
	ffmpegPackages = toolPackages{
		winget: "Gyan.FFmpeg",
		choco:  "ffmpeg",
		scoop:  "ffmpeg",
		brew:   "ffmpeg",
		linux:  "ffmpeg",
	}
	downloaderPackages = toolPackages{
		winget: "yt-dlp.yt-dlp",
		choco:  "yt-dlp",
		scoop:  "yt-dlp",
		brew:   "yt-dlp",
		linux:  "yt-dlp",
		pipx:   "yt-dlp",
	}
)

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = config.Normalize(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case diagnostics.IDFFmpeg, diagnostics.IDFFprobe:
		fixErr = a.withInstaller(settings, func(inst *installer) error {
			return inst.installFFmpeg()
		})
	case diagnostics.IDDownloader:
		fixErr = a.withInstaller(settings, func(inst *installer) error {
			var err error
			settings, settingsChanged, err = inst.installDownloader(settings)
			return err
		})
	case diagnostics.IDOutputDir:
		settings, settingsChanged, fixErr = installOrFixOutputDir(settings)
	case diagnostics.IDLogDir:
		settings, settingsChanged, fixErr = installOrFixLogDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, ".media-converter", "bin")
}

// installOptionsFor lists package manager attempts for goos in preference
// order.
func installOptionsFor(goos string, pkgs toolPackages) []installOption {
	var options []installOption
	add := func(manager, pkg string, commands ...[]string) {
		if pkg != "" {
			options = append(options, installOption{manager: manager, commands: commands})
		}
	}

	switch goos {
	case "windows":
		add("winget", pkgs.winget, []string{"winget", "install", "--id", pkgs.winget, "--exact", "--accept-source-agreements", "--accept-package-agreements"})
		add("choco", pkgs.choco, []string{"choco", "install", pkgs.choco, "-y"})
		add("scoop", pkgs.scoop, []string{"scoop", "install", pkgs.scoop})
	case "darwin":
		add("brew", pkgs.brew, []string{"brew", "install", pkgs.brew})
	default:
		add("apt-get", pkgs.linux, []string{"apt-get", "update"}, []string{"apt-get", "install", "-y", pkgs.linux})
		add("dnf", pkgs.linux, []string{"dnf", "install", "-y", pkgs.linux})
		add("pacman", pkgs.linux, []string{"pacman", "-Sy", "--noconfirm", pkgs.linux})
		add("zypper", pkgs.linux, []string{"zypper", "install", "-y", pkgs.linux})
		add("brew", pkgs.brew, []string{"brew", "install", pkgs.brew})
	}
	add("pipx", pkgs.pipx, []string{"pipx", "install", pkgs.pipx})
	return options
}

// withInstaller runs fn with an installer whose commands are supervised like
// queue jobs and recorded in the job log.
func (a *App) withInstaller(settings domain.Settings, fn func(*installer) error) error {
	sink, err := a.sinkOpener()(settings.LogPath)
	if err != nil {
		a.log().Warn("job log unavailable for install", "path", settings.LogPath, "err", err)
		sink = nopSink{}
	}
	defer sink.Close()

	return fn(newInstaller(a.runnerFactory()(settings, sink)))
}

// installer drives package managers through a tool runner.
type installer struct {
	runner   toolRunner
	lookPath func(string) (string, error)
	goos     string
	timeout  time.Duration
	homeDir  func() (string, error)
	fetch    func(destinationPath, sourceURL string, timeout time.Duration) error
}

func newInstaller(runner toolRunner) *installer {
	return &installer{
		runner:   runner,
		lookPath: exec.LookPath,
		goos:     goruntime.GOOS,
		timeout:  installCommandTimeout,
		homeDir:  os.UserHomeDir,
		fetch:    downloadURLToFile,
	}
}

// deadline is a cancellation token that trips once its time has passed.
type deadline time.Time

func (d deadline) Cancelled() bool {
	return time.Now().After(time.Time(d))
}

func (i *installer) installFFmpeg() error {
	if err := i.firstSuccessful(installOptionsFor(i.goos, ffmpegPackages)); err != nil {
		return fmt.Errorf("install ffmpeg/ffprobe: %w", err)
	}
	if err := i.requireOnPath("ffmpeg", "ffprobe"); err != nil {
		return fmt.Errorf("verify ffmpeg/ffprobe on PATH: %w", err)
	}
	return nil
}

// installDownloader tries package managers first and falls back to the
// standalone release binary in the local bin directory.
func (i *installer) installDownloader(settings domain.Settings) (domain.Settings, bool, error) {
	installErr := i.firstSuccessful(installOptionsFor(i.goos, downloaderPackages))
	if installErr == nil {
		if err := i.requireOnPath("yt-dlp"); err == nil {
			return i.resetDownloaderPath(settings)
		}
	}

	homeDir, err := i.homeDir()
	if err != nil {
		return settings, false, fmt.Errorf("resolve user home: %w", err)
	}

	target := filepath.Join(localBinDir(homeDir), downloaderBinaryName(i.goos))
	url := downloaderReleaseBase + downloaderReleaseAsset(i.goos)
	if err := i.fetch(target, url, downloadToolTimeout); err != nil {
		if installErr != nil {
			return settings, false, fmt.Errorf("install yt-dlp failed: %v | release fallback: %w", installErr, err)
		}
		return settings, false, fmt.Errorf("release fallback: %w", err)
	}
	if err := os.Chmod(target, 0o755); err != nil {
		return settings, false, fmt.Errorf("mark yt-dlp executable: %w", err)
	}

	if err := i.requireOnPath("yt-dlp"); err != nil {
		return settings, false, fmt.Errorf("verify yt-dlp on PATH: %w", err)
	}
	return i.resetDownloaderPath(settings)
}

// resetDownloaderPath points settings at the PATH lookup when a custom path
// no longer resolves.
func (i *installer) resetDownloaderPath(settings domain.Settings) (domain.Settings, bool, error) {
	if _, err := i.lookPath(settings.DownloaderPath); err == nil {
		return settings, false, nil
	}
	settings.DownloaderPath = "yt-dlp"
	return settings, true, nil
}

func downloaderReleaseAsset(goos string) string {
	switch goos {
	case "windows":
		return "yt-dlp.exe"
	case "darwin":
		return "yt-dlp_macos"
	default:
		return "yt-dlp_linux"
	}
}

func downloaderBinaryName(goos string) string {
	if goos == "windows" {
		return "yt-dlp.exe"
	}
	return "yt-dlp"
}

// firstSuccessful runs the options of every available package manager in
// order and stops at the first that succeeds.
func (i *installer) firstSuccessful(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", i.goos)
	}

	var failures []string
	for _, option := range options {
		if !i.available(option.manager) {
			continue
		}
		err := i.runAll(option.commands)
		if err == nil {
			return nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", option.manager, err))
	}

	if len(failures) == 0 {
		return fmt.Errorf("no supported package manager found for %s", i.goos)
	}
	return errors.New(strings.Join(failures, " | "))
}

func (i *installer) runAll(commands [][]string) error {
	for _, command := range commands {
		if err := i.runElevated(command); err != nil {
			return err
		}
	}
	return nil
}

// runElevated retries system package managers through pkexec or sudo on
// linux.
func (i *installer) runElevated(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if i.goos == "linux" && requiresElevation(command[0]) {
		if i.available("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if i.available("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	var attempts []string
	for _, candidate := range candidates {
		err := i.run(candidate)
		if err == nil {
			return nil
		}
		attempts = append(attempts, err.Error())
	}
	return errors.New(strings.Join(attempts, " | "))
}

// run executes one install command synchronously. The command is terminated
// when the install timeout elapses.
func (i *installer) run(command []string) error {
	outcome := i.runner.Run(process.Run{
		Args:  command,
		Pass:  process.PassSingle,
		Token: deadline(time.Now().Add(i.timeout)),
	})

	switch outcome.Status {
	case process.StatusCompleted:
		return nil
	case process.StatusCancelled:
		return fmt.Errorf("%s timed out after %s", formatCommand(command), i.timeout)
	default:
		return fmt.Errorf("%s failed: %s", formatCommand(command), outcome.Reason)
	}
}

func formatCommand(command []string) string {
	return strings.Join(command, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func (i *installer) available(name string) bool {
	_, err := i.lookPath(name)
	return err == nil
}

func (i *installer) requireOnPath(names ...string) error {
	var missing []string
	for _, name := range names {
		if !i.available(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

func downloadURLToFile(destinationPath string, sourceURL string, timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "media-converter")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Remove(destinationPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("remove old destination file: %w", err)
	}
	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}

	return nil
}

func installOrFixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	return settings, changed, nil
}

// installOrFixLogDir creates the log directory, moving the log back to the
// default location when the configured one cannot be created.
func installOrFixLogDir(settings domain.Settings) (domain.Settings, bool, error) {
	logPath := strings.TrimSpace(settings.LogPath)
	changed := false
	if logPath == "" {
		logPath = config.DefaultSettings().LogPath
		settings.LogPath = logPath
		changed = true
	}

	err := os.MkdirAll(filepath.Dir(logPath), 0o755)
	if err == nil {
		return settings, changed, nil
	}

	fallback := config.DefaultSettings().LogPath
	if fallback == logPath {
		return settings, changed, fmt.Errorf("create log directory %s: %w", filepath.Dir(logPath), err)
	}
	if mkErr := os.MkdirAll(filepath.Dir(fallback), 0o755); mkErr != nil {
		return settings, changed, fmt.Errorf("create log directory %s: %w", filepath.Dir(fallback), mkErr)
	}
	settings.LogPath = fallback
	return settings, true, nil
}
