package bootstrap

import (
	"errors"
	"sync"
	"testing"
	"time"

	"media-converter/internal/domain"
	"media-converter/internal/jobs"
	"media-converter/internal/logsink"
	"media-converter/internal/process"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save is a no-op for tests.
func (s *fakeStore) Save(domain.Settings) error {
	return nil
}

// fakeRunner allows injecting custom run behavior per test.
type fakeRunner struct {
	mu   sync.Mutex
	runs []process.Run
	run  func(r process.Run) process.Outcome
}

// Run records the request and delegates to injected function.
func (f *fakeRunner) Run(r process.Run) process.Outcome {
	f.mu.Lock()
	f.runs = append(f.runs, r)
	f.mu.Unlock()
	if f.run == nil {
		return process.Outcome{Status: process.StatusCompleted}
	}
	return f.run(r)
}

// memorySink collects audit lines in memory.
type memorySink struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func (s *memorySink) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func newTestApp(t *testing.T, runner *fakeRunner, sink *memorySink) *App {
	t.Helper()
	return &App{
		Store: &fakeStore{settings: domain.Settings{
			FFmpegPath: "ffmpeg",
			OutputDir:  t.TempDir(),
			LogPath:    "/nonexistent/converter.log",
		}},
		Runs:   jobs.NewManager(),
		events: jobs.NewEventBus(100),
		newRunner: func(domain.Settings, logsink.Sink) toolRunner {
			return runner
		},
		openSink: func(string) (auditSink, error) {
			return sink, nil
		},
	}
}

func convertJob(id string) domain.ConversionJob {
	return domain.ConversionJob{
		ID:       id,
		Kind:     domain.JobKindConvert,
		Sources:  []string{"/media/" + id + ".mov"},
		Passes:   [][]string{{"ffmpeg", "-i", "/media/" + id + ".mov", "/out/" + id + ".mp4"}},
		Duration: 10,
	}
}

// TestStartQueueEnforcesSingleActiveRun checks single-run guard and cancellation.
func TestStartQueueEnforcesSingleActiveRun(t *testing.T) {
	runner := &fakeRunner{run: func(r process.Run) process.Outcome {
		for !r.Token.Cancelled() {
			time.Sleep(5 * time.Millisecond)
		}
		return process.Outcome{Status: process.StatusCancelled, Reason: "cancelled"}
	}}
	app := newTestApp(t, runner, &memorySink{})

	if _, err := app.StartQueue([]domain.ConversionJob{convertJob("a"), convertJob("b")}); err != nil {
		t.Fatalf("start first run: %v", err)
	}
	if _, err := app.StartQueue([]domain.ConversionJob{convertJob("c")}); !errors.Is(err, jobs.ErrRunAlreadyActive) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrRunAlreadyActive)
	}

	if err := app.StopQueue(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitForStatus(t, app, domain.RunStatusCancelled)

	runner.mu.Lock()
	calls := len(runner.runs)
	runner.mu.Unlock()
	if calls != 1 {
		t.Fatalf("runner calls = %d, want 1 (job b never starts)", calls)
	}
}

// TestStartQueuePublishesCountUpdateAndEnd checks event flow.
func TestStartQueuePublishesCountUpdateAndEnd(t *testing.T) {
	runner := &fakeRunner{run: func(r process.Run) process.Outcome {
		r.OnUpdate(process.Update{Pass: r.Pass, Raw: "frame=1 time=00:00:05.00"})
		return process.Outcome{Status: process.StatusCompleted}
	}}
	sink := &memorySink{}
	app := newTestApp(t, runner, sink)

	run, err := app.StartQueue([]domain.ConversionJob{convertJob("a"), convertJob("b")})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if run.ID == "" || run.Total != 2 {
		t.Fatalf("run = %+v", run)
	}

	waitForStatus(t, app, domain.RunStatusCompleted)
	events := app.QueueEvents(0)

	assertEventTypeExists(t, events, jobs.EventTypeCount)
	assertEventTypeExists(t, events, jobs.EventTypeUpdate)
	assertEventTypeExists(t, events, jobs.EventTypeLog)
	if last := events[len(events)-1]; last.Type != jobs.EventTypeEnd || last.Status != domain.RunStatusCompleted {
		t.Fatalf("last event = %+v, want completed end", last)
	}
	if current := app.CurrentRun(); current.Processed != 2 {
		t.Fatalf("processed = %d, want 2", current.Processed)
	}

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.closed
	})
}

// TestEndEventReleasesRun checks a new queue can start once end is visible.
func TestEndEventReleasesRun(t *testing.T) {
	app := newTestApp(t, &fakeRunner{}, &memorySink{})

	if _, err := app.StartQueue([]domain.ConversionJob{convertJob("a")}); err != nil {
		t.Fatalf("start first run: %v", err)
	}
	waitFor(t, func() bool {
		for _, e := range app.QueueEvents(0) {
			if e.Type == jobs.EventTypeEnd {
				return true
			}
		}
		return false
	})

	if _, err := app.StartQueue([]domain.ConversionJob{convertJob("b")}); err != nil {
		t.Fatalf("start after end event: %v", err)
	}
	waitForStatus(t, app, domain.RunStatusCompleted)
}

// TestStartQueueSpawnFailureAbortsRun checks abort state propagation.
func TestStartQueueSpawnFailureAbortsRun(t *testing.T) {
	runner := &fakeRunner{run: func(r process.Run) process.Outcome {
		return process.Outcome{
			Status: process.StatusFailed,
			Reason: "executable file not found",
			Err:    &process.RunError{Kind: process.KindSpawn, Message: "executable file not found"},
		}
	}}
	app := newTestApp(t, runner, &memorySink{})

	if _, err := app.StartQueue([]domain.ConversionJob{convertJob("a"), convertJob("b")}); err != nil {
		t.Fatalf("start run: %v", err)
	}

	waitForStatus(t, app, domain.RunStatusAborted)
	events := app.QueueEvents(0)
	last := events[len(events)-1]
	if last.Type != jobs.EventTypeEnd || last.Message == "" {
		t.Fatalf("last event = %+v, want end with error", last)
	}
}

// TestStartQueueProbesUnknownDurations checks the probe step before the queue.
func TestStartQueueProbesUnknownDurations(t *testing.T) {
	runner := &fakeRunner{run: func(r process.Run) process.Outcome {
		if !r.Progress {
			return process.Outcome{Status: process.StatusCompleted, Stdout: `{"format":{"duration":"40"}}`}
		}
		return process.Outcome{Status: process.StatusCompleted}
	}}
	app := newTestApp(t, runner, &memorySink{})

	job := convertJob("a")
	job.Duration = 0
	job.ID = ""
	if _, err := app.StartQueue([]domain.ConversionJob{job}); err != nil {
		t.Fatalf("start run: %v", err)
	}
	waitForStatus(t, app, domain.RunStatusCompleted)

	var count jobs.Event
	for _, e := range app.QueueEvents(0) {
		if e.Type == jobs.EventTypeCount {
			count = e
		}
	}
	if count.Duration != 40 {
		t.Fatalf("count duration = %v, want probed 40", count.Duration)
	}
	if count.JobID == "" {
		t.Fatal("expected generated job id")
	}
}

// TestStartQueueRejectsEmptyQueue checks input validation.
func TestStartQueueRejectsEmptyQueue(t *testing.T) {
	app := newTestApp(t, &fakeRunner{}, &memorySink{})
	if _, err := app.StartQueue(nil); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("err = %v, want ErrEmptyQueue", err)
	}
	if err := app.StopQueue(); !errors.Is(err, jobs.ErrNoActiveRun) {
		t.Fatalf("stop err = %v, want ErrNoActiveRun", err)
	}
}

// TestStartDownloadsUsesDownloaderPath checks download batch wiring.
func TestStartDownloadsUsesDownloaderPath(t *testing.T) {
	runner := &fakeRunner{}
	app := newTestApp(t, runner, &memorySink{})
	app.Store = &fakeStore{settings: domain.Settings{DownloaderPath: "/opt/yt-dlp", OutputDir: t.TempDir()}}

	if _, err := app.StartDownloads([]string{"https://example.com/v"}, [][]string{{"-f", "best"}}); err != nil {
		t.Fatalf("start downloads: %v", err)
	}
	waitForStatus(t, app, domain.RunStatusCompleted)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.runs) != 1 {
		t.Fatalf("runner calls = %d, want 1 (downloads are not probed)", len(runner.runs))
	}
	r := runner.runs[0]
	if r.Args[0] != "/opt/yt-dlp" || !r.MergeStdout {
		t.Fatalf("download run = %+v", r)
	}
}

// waitForStatus polls until the run reaches desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.RunStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentRun().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentRun().Status, want)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}
