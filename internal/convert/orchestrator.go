// Package convert runs conversion and download queues: the orchestrator
// decides how many tool passes a job needs and the sequencer walks the queue.
package convert

import (
	"fmt"
	"io"
	"log/slog"

	"media-converter/internal/domain"
	"media-converter/internal/process"
	"media-converter/internal/toolerror"
)

// PassState is one step of a job's pass lifecycle.
type PassState string

const (
	PassStateIdle         PassState = "idle"
	PassStatePass1Running PassState = "pass1-running"
	PassStatePass2Pending PassState = "pass2-pending"
	PassStatePass2Running PassState = "pass2-running"
	PassStateDone         PassState = "done"
	PassStateFailed       PassState = "failed"
	PassStateCancelled    PassState = "cancelled"
)

// passRunner abstracts the supervisor for testability.
type passRunner interface {
	Run(run process.Run) process.Outcome
}

// JobRun carries one job and the callbacks the orchestrator reports through.
type JobRun struct {
	Job   domain.ConversionJob
	Token process.Canceller
	// Latch is shared by every pass of the job.
	Latch    *toolerror.Latch
	OnUpdate func(process.Update)
	OnPass   func(process.Pass, process.Outcome)
}

// JobOutcome is the orchestrated result of all passes of one job.
type JobOutcome struct {
	Status    process.Status
	Reason    string
	ToolError bool
	ErrorLine string
	// States is the sequence of pass states the job went through.
	States []PassState
	Passes []process.Outcome
	Err    error
}

// Orchestrator runs the one or two tool passes of a job.
type Orchestrator struct {
	runner passRunner
	logger *slog.Logger
}

// NewOrchestrator builds an orchestrator on top of runner.
func NewOrchestrator(runner passRunner, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{runner: runner, logger: logger}
}

// Run executes the job's passes. Pass 2 starts only after pass 1 completed
// and the token is still clear; a failed or cancelled pass 1 ends the job.
func (o *Orchestrator) Run(req JobRun) JobOutcome {
	if req.Latch == nil {
		req.Latch = &toolerror.Latch{}
	}

	m := &passMachine{state: PassStateIdle, trail: []PassState{PassStateIdle}}
	var out JobOutcome

	passes := planPasses(req.Job)
	for i, p := range passes {
		if i == 0 {
			m.move(PassStatePass1Running)
		} else {
			if req.Token != nil && req.Token.Cancelled() {
				m.move(PassStateCancelled)
				out.Status = process.StatusCancelled
				out.Reason = "cancelled"
				break
			}
			m.move(PassStatePass2Pending)
			m.move(PassStatePass2Running)
		}

		result := o.runner.Run(process.Run{
			Args:        p.args,
			Duration:    req.Job.Duration,
			Pass:        p.pass,
			Token:       req.Token,
			Latch:       req.Latch,
			Progress:    true,
			MergeStdout: req.Job.Kind == domain.JobKindDownload,
			Download:    req.Job.Kind == domain.JobKindDownload,
			OnUpdate:    req.OnUpdate,
		})
		out.Passes = append(out.Passes, result)
		if req.OnPass != nil {
			req.OnPass(p.pass, result)
		}

		out.Status = result.Status
		out.Reason = result.Reason
		out.ToolError = result.ToolError
		out.ErrorLine = result.ErrorLine
		out.Err = result.Err

		switch result.Status {
		case process.StatusCancelled:
			m.move(PassStateCancelled)
		case process.StatusFailed:
			m.move(PassStateFailed)
		}
		if result.Status != process.StatusCompleted {
			break
		}
		if i == len(passes)-1 {
			m.move(PassStateDone)
		}
	}

	if m.err != nil {
		o.logger.Error("pass state machine violated", "job", req.Job.ID, "err", m.err)
	}
	out.States = m.trail
	return out
}

type plannedPass struct {
	pass process.Pass
	args []string
}

// planPasses maps argument vectors to passes. A job without any vector still
// gets one pass so the supervisor reports the spawn failure.
func planPasses(job domain.ConversionJob) []plannedPass {
	switch {
	case job.TwoPass():
		return []plannedPass{
			{pass: process.PassFirst, args: job.Passes[0]},
			{pass: process.PassSecond, args: job.Passes[1]},
		}
	case len(job.Passes) == 1:
		return []plannedPass{{pass: process.PassSingle, args: job.Passes[0]}}
	default:
		return []plannedPass{{pass: process.PassSingle}}
	}
}

// passMachine validates pass transitions and records the trail.
type passMachine struct {
	state PassState
	trail []PassState
	err   error
}

func (m *passMachine) move(to PassState) {
	if !isValidPassTransition(m.state, to) {
		if m.err == nil {
			m.err = fmt.Errorf("invalid pass transition: %s -> %s", m.state, to)
		}
		return
	}
	m.state = to
	m.trail = append(m.trail, to)
}

// isValidPassTransition enforces the allowed pass state machine edges.
func isValidPassTransition(from, to PassState) bool {
	switch from {
	case PassStateIdle:
		return to == PassStatePass1Running
	case PassStatePass1Running:
		return to == PassStatePass2Pending || to == PassStateDone || to == PassStateFailed || to == PassStateCancelled
	case PassStatePass2Pending:
		return to == PassStatePass2Running
	case PassStatePass2Running:
		return to == PassStateDone || to == PassStateFailed || to == PassStateCancelled
	default:
		return false
	}
}
