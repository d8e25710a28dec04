// Package worker runs the pipeline: it polls the job queue, dispatches
// messages to stage handlers, and owns job status transitions. One worker
// processes one message at a time; scale-out happens by running more
// worker processes against the same queue.
package worker

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/blob"
	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/queue"
	"github.com/argus-advisory/advisor-cli/internal/store"
	"github.com/argus-advisory/advisor-cli/pkg/advisor"
)

// Exporter publishes a finished report to an external surface, such as a
// Notion page. Export failures are logged, never fatal to the job.
type Exporter interface {
	Export(ctx context.Context, projectName string, report *model.AdvisoryReport) error
}

// Options tunes the worker loop.
type Options struct {
	// PollWait is the long-poll interval for queue receives. Default: 20s.
	PollWait time.Duration `yaml:"poll_wait" mapstructure:"poll_wait"`

	// ErrorBackoff is the pause after a queue transport error. Default: 5s.
	ErrorBackoff time.Duration `yaml:"error_backoff" mapstructure:"error_backoff"`

	// MaxKPIs caps how many proposals the profile stage requests. Default: 8.
	MaxKPIs int `yaml:"max_kpis" mapstructure:"max_kpis"`
}

func (o *Options) applyDefaults() {
	if o.PollWait <= 0 {
		o.PollWait = 20 * time.Second
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 5 * time.Second
	}
	if o.MaxKPIs <= 0 {
		o.MaxKPIs = 8
	}
}

// Worker is the pipeline orchestrator.
type Worker struct {
	store    store.Store
	queue    queue.Queue
	blobs    blob.Storage
	advisor  advisor.Client
	exporter Exporter
	opts     Options
}

// Option configures optional worker collaborators.
type Option func(*Worker)

// WithExporter attaches a report exporter.
func WithExporter(e Exporter) Option {
	return func(w *Worker) {
		w.exporter = e
	}
}

// New builds a worker over its collaborators.
func New(st store.Store, q queue.Queue, blobs blob.Storage, adv advisor.Client, opts Options, extra ...Option) *Worker {
	opts.applyDefaults()
	w := &Worker{
		store:   st,
		queue:   q,
		blobs:   blobs,
		advisor: adv,
		opts:    opts,
	}
	for _, o := range extra {
		o(w)
	}
	return w
}

// Run polls the queue until ctx is cancelled. An in-flight message is
// allowed to finish before the loop exits.
func (w *Worker) Run(ctx context.Context) error {
	zap.L().Info("worker: starting",
		zap.Duration("poll_wait", w.opts.PollWait),
	)

	for {
		if ctx.Err() != nil {
			zap.L().Info("worker: shutting down")
			return nil
		}

		deliveries, err := w.queue.Receive(ctx, 1, w.opts.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				zap.L().Info("worker: shutting down")
				return nil
			}
			zap.L().Error("worker: receive failed, backing off",
				zap.Error(err),
				zap.Duration("backoff", w.opts.ErrorBackoff),
			)
			select {
			case <-ctx.Done():
			case <-time.After(w.opts.ErrorBackoff):
			}
			continue
		}

		for _, d := range deliveries {
			w.handle(ctx, d)
		}
	}
}

// handle processes one delivery. The message is acknowledged no matter how
// processing ends; failed stages are recorded on the job, not retried.
func (w *Worker) handle(ctx context.Context, d queue.Delivery) {
	msg := d.Message
	log := zap.L().With(
		zap.String("job_id", msg.JobID),
		zap.String("project_id", msg.ProjectID),
		zap.String("stage", string(msg.Stage)),
	)

	// The loop context only governs polling. Once a message is accepted it
	// runs to completion: a shutdown signal must not abort the handler or
	// the status writes, or the ack below would strand the job in a
	// non-terminal status with no message left to retry it.
	hctx := context.WithoutCancel(ctx)

	defer func() {
		// Ack survives shutdown: an unacked handled message would rerun.
		if err := w.queue.Delete(hctx, d.Receipt); err != nil {
			log.Error("worker: ack failed", zap.Error(err))
		}
	}()

	job, err := w.store.GetJob(hctx, msg.JobID)
	if err != nil {
		log.Error("worker: load job failed", zap.Error(err))
		return
	}
	if job == nil {
		log.Warn("worker: message references unknown job, dropping")
		return
	}
	if job.Status.Terminal() {
		// At-least-once delivery: this job already ran to a terminal state,
		// so rerunning the handler would duplicate its writes.
		log.Info("worker: skipping duplicate delivery",
			zap.String("status", string(job.Status)),
		)
		return
	}

	if err := w.store.UpdateJobStatus(hctx, job.ID, model.JobStatusRunning, ""); err != nil {
		log.Error("worker: mark running failed", zap.Error(err))
		return
	}

	log.Info("worker: job started")
	start := time.Now()

	status, err := w.dispatch(hctx, *job, msg)
	if err != nil {
		log.Error("worker: stage failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		if uerr := w.store.UpdateJobStatus(hctx, job.ID, model.JobStatusFailed, shortError(err)); uerr != nil {
			log.Error("worker: mark failed failed", zap.Error(uerr))
		}
		return
	}

	if err := w.store.UpdateJobStatus(hctx, job.ID, status, ""); err != nil {
		log.Error("worker: finalize status failed", zap.Error(err))
		return
	}
	log.Info("worker: job finished",
		zap.String("status", string(status)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// dispatch routes a running job to its stage handler and returns the job
// status to record on success.
func (w *Worker) dispatch(ctx context.Context, job model.Job, msg model.JobMessage) (model.JobStatus, error) {
	switch msg.Stage {
	case model.StageProfile, model.StageGenerateKPIs:
		return w.handleProfile(ctx, job)
	case model.StageComputeKPIs:
		return w.handleCompute(ctx, job)
	case model.StageGenerateReport:
		return w.handleReport(ctx, job)
	default:
		return "", eris.Errorf("worker: unknown stage %q", msg.Stage)
	}
}

// shortError trims a failure chain to the short string stored on the job.
func shortError(err error) string {
	msg := err.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
