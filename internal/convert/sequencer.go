package convert

import (
	"io"
	"log/slog"

	"media-converter/internal/domain"
	"media-converter/internal/jobs"
	"media-converter/internal/process"
	"media-converter/internal/toolerror"
)

// JobResult is the per-job outcome recorded by the sequencer.
type JobResult struct {
	JobID     string         `json:"jobId"`
	Summary   string         `json:"summary"`
	Status    process.Status `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	ToolError bool           `json:"toolError,omitempty"`
	ErrorLine string         `json:"errorLine,omitempty"`
	Passes    int            `json:"passes"`
	Err       error          `json:"-"`
}

// QueueResult is the final state of one queue run.
type QueueResult struct {
	Status    domain.RunStatus `json:"status"`
	Processed int              `json:"processed"`
	Total     int              `json:"total"`
	Jobs      []JobResult      `json:"jobs"`
	Err       error            `json:"-"`
}

// Sequencer walks a job queue strictly in order on the caller's goroutine.
type Sequencer struct {
	orchestrator *Orchestrator
	publisher    jobs.Publisher
	logger       *slog.Logger
	onAdvance    func(processed int)
}

// NewSequencer wires a sequencer to a pass runner and an event publisher.
func NewSequencer(runner passRunner, publisher jobs.Publisher, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if publisher == nil {
		publisher = &jobs.Recorder{}
	}
	return &Sequencer{
		orchestrator: NewOrchestrator(runner, logger),
		publisher:    publisher,
		logger:       logger,
	}
}

// OnAdvance registers a callback invoked with the processed count after each
// job.
func (s *Sequencer) OnAdvance(fn func(processed int)) {
	s.onAdvance = fn
}

// Run executes queue and returns the final queue state. A spawn failure
// aborts the queue, tool and exit failures are recorded and the next job
// runs, and a set token stops the queue after the current job. No job starts
// once the token is set.
func (s *Sequencer) Run(runID string, queue []domain.ConversionJob, token process.Canceller) QueueResult {
	result := QueueResult{Total: len(queue)}
	s.logger.Info("queue started", "run", runID, "jobs", len(queue))

	for i, job := range queue {
		if token != nil && token.Cancelled() {
			s.logger.Info("queue cancelled", "run", runID, "processed", result.Processed)
			result.Status = domain.RunStatusCancelled
			s.publishEnd(runID, result, "")
			return result
		}

		latch := &toolerror.Latch{}
		summary := job.Summary()

		s.publisher.Publish(jobs.Event{
			RunID:    runID,
			JobID:    job.ID,
			Type:     jobs.EventTypeCount,
			Index:    i + 1,
			Total:    len(queue),
			Summary:  summary,
			Duration: job.Duration,
		})

		outcome := s.orchestrator.Run(JobRun{
			Job:   job,
			Token: token,
			Latch: latch,
			OnUpdate: func(u process.Update) {
				s.publishUpdate(runID, job, u)
			},
			OnPass: func(pass process.Pass, o process.Outcome) {
				s.publishPassLog(runID, job.ID, pass, o)
			},
		})

		jr := JobResult{
			JobID:     job.ID,
			Summary:   summary,
			Status:    outcome.Status,
			Reason:    outcome.Reason,
			ToolError: outcome.ToolError,
			ErrorLine: outcome.ErrorLine,
			Passes:    len(outcome.Passes),
			Err:       outcome.Err,
		}
		result.Jobs = append(result.Jobs, jr)

		if process.IsSpawnError(outcome.Err) {
			s.logger.Error("queue aborted", "run", runID, "job", job.ID, "err", outcome.Err)
			result.Status = domain.RunStatusAborted
			result.Err = outcome.Err
			s.publishEnd(runID, result, outcome.Err.Error())
			return result
		}

		result.Processed++
		if s.onAdvance != nil {
			s.onAdvance(result.Processed)
		}
		if jr.Status == process.StatusFailed || jr.ToolError {
			s.logger.Warn("job failed", "run", runID, "job", job.ID, "reason", jr.Reason)
		}

		if token != nil && token.Cancelled() {
			s.logger.Info("queue cancelled", "run", runID, "processed", result.Processed)
			result.Status = domain.RunStatusCancelled
			s.publishEnd(runID, result, "")
			return result
		}
	}

	result.Status = domain.RunStatusCompleted
	s.logger.Info("queue completed", "run", runID, "processed", result.Processed)
	s.publishEnd(runID, result, "")
	return result
}

func (s *Sequencer) publishUpdate(runID string, job domain.ConversionJob, u process.Update) {
	event := jobs.Event{
		RunID:     runID,
		JobID:     job.ID,
		Type:      jobs.EventTypeUpdate,
		Duration:  job.Duration,
		Pass:      string(u.Pass),
		Raw:       u.Raw,
		ErrorLine: u.ErrorLine,
	}
	if u.HasSample {
		event.Elapsed = u.Sample.Elapsed
		event.Percent = u.Sample.Percent
		event.HasPercent = u.Sample.HasPercent
	}
	s.publisher.Publish(event)
}

func (s *Sequencer) publishPassLog(runID, jobID string, pass process.Pass, o process.Outcome) {
	event := jobs.Event{
		RunID:     runID,
		JobID:     jobID,
		Type:      jobs.EventTypeLog,
		Pass:      string(pass),
		Command:   o.Log.Command,
		Args:      o.Log.Args,
		ExitCode:  o.Log.ExitCode,
		ErrorLine: o.ErrorLine,
		Message:   string(o.Status),
	}
	if o.Reason != "" {
		event.Message += ": " + o.Reason
	}
	s.publisher.Publish(event)
}

func (s *Sequencer) publishEnd(runID string, result QueueResult, message string) {
	s.publisher.Publish(jobs.Event{
		RunID:   runID,
		Type:    jobs.EventTypeEnd,
		Index:   result.Processed,
		Total:   result.Total,
		Status:  result.Status,
		Message: message,
	})
}
