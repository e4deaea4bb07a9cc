// Package importer runs statement imports in the background, one at a time.
package importer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"nexledger-reconciler/internal/reconciler"
	"nexledger-reconciler/pkg/errors"
	"nexledger-reconciler/pkg/logger"
)

// ErrBusy is returned by Submit while another import is running.
var ErrBusy = errors.New(errors.CategoryReconciliation, errors.CodeImportBusy, "an import is already running").
	WithSuggestion("wait for the current import to finish")

// Importer is the part of the reconciliation service the worker drives.
type Importer interface {
	ImportFiles(ctx context.Context, paths []string, stageOnly bool) ([]*reconciler.ImportResult, error)
}

// Job describes one import request.
type Job struct {
	Paths     []string
	StageOnly bool
}

// Outcome is delivered exactly once per submitted job.
type Outcome struct {
	Job      Job
	Results  []*reconciler.ImportResult
	Err      error
	Duration time.Duration
}

// Worker is a single-flight import runner.
type Worker struct {
	importer Importer
	timeout  time.Duration
	logger   logger.Logger

	busy atomic.Bool
	wg   conc.WaitGroup
}

// NewWorker creates a worker. A zero timeout disables the deadline.
func NewWorker(importer Importer, timeout time.Duration, log logger.Logger) *Worker {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Worker{
		importer: importer,
		timeout:  timeout,
		logger:   log.WithComponent("importer"),
	}
}

// Busy reports whether an import is in flight.
func (w *Worker) Busy() bool {
	return w.busy.Load()
}

// Submit starts job in the background. The returned channel receives one
// Outcome and is then closed.
func (w *Worker) Submit(ctx context.Context, job Job) (<-chan Outcome, error) {
	if len(job.Paths) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "paths", nil, nil)
	}
	if !w.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	runCtx, cancel := w.jobContext(ctx)
	out := make(chan Outcome, 1)

	w.wg.Go(func() {
		defer close(out)
		defer cancel()

		outcome := w.run(runCtx, job)
		w.busy.Store(false)
		out <- outcome
	})

	return out, nil
}

// Run submits job and waits for its outcome.
func (w *Worker) Run(ctx context.Context, job Job) Outcome {
	ch, err := w.Submit(ctx, job)
	if err != nil {
		return Outcome{Job: job, Err: err}
	}
	return <-ch
}

// Wait blocks until every submitted job has delivered its outcome.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout > 0 {
		return context.WithTimeout(ctx, w.timeout)
	}
	return context.WithCancel(ctx)
}

func (w *Worker) run(ctx context.Context, job Job) Outcome {
	start := time.Now()
	outcome := Outcome{Job: job}

	log := w.logger.WithField("files", len(job.Paths))
	log.Debug("Import started")

	var catcher panics.Catcher
	catcher.Try(func() {
		outcome.Results, outcome.Err = w.importer.ImportFiles(ctx, job.Paths, job.StageOnly)
	})

	if r := catcher.Recovered(); r != nil {
		outcome.Err = errors.InternalError(errors.CodePanic, "import", r.AsError()).
			WithContext("stack", string(r.Stack))
	} else if ctxErr := ctx.Err(); ctxErr != nil && !errors.HasCode(outcome.Err, errors.CodeCancelled) {
		// ImportFiles may return partial results or nil when the deadline hits
		// between files, so the context decides.
		outcome.Err = cancelled(ctxErr, outcome.Err)
	}

	outcome.Duration = time.Since(start)
	if outcome.Err != nil {
		log.WithError(outcome.Err).Warn("Import failed")
	} else {
		log.WithField("duration", outcome.Duration).Info("Import finished")
	}
	return outcome
}

func cancelled(ctxErr, cause error) error {
	if cause == nil {
		cause = ctxErr
	} else {
		cause = fmt.Errorf("%w (%v)", ctxErr, cause)
	}
	return errors.InternalError(errors.CodeCancelled, "import", cause)
}
