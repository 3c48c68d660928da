package curator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/clew-freshness/internal/catalog"
	"github.com/JakeFAU/clew-freshness/internal/metrics"
	"github.com/JakeFAU/clew-freshness/internal/telemetry"
)

// Job result statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Result is the execution report of one curator job.
type Result struct {
	RunID           string    `json:"run_id"`
	Status          string    `json:"status"`
	Message         string    `json:"message"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	TotalResources  int       `json:"total_resources"`
	FailedResources int       `json:"failed_resources"`
	// FailureRatePercent is Stats.FailureRate scaled to 0-100.
	FailureRatePercent float64 `json:"failure_rate_percent"`
	Alert              bool    `json:"alert"`
	Stats              *Stats  `json:"stats,omitempty"`
	CatalogDigest      string  `json:"catalog_digest,omitempty"`
}

// Succeeded reports whether the job wrote a new catalog.
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Attributes returns the Pub/Sub message attributes for the result.
func (r Result) Attributes() map[string]string {
	return map[string]string{
		"run_id": r.RunID,
		"status": r.Status,
		"alert":  strconv.FormatBool(r.Alert),
	}
}

// JobDeps bundles the collaborators of a Job. Recorder, Publisher, IDs and
// Hasher are optional. ProbeBudget is the worst-case time of one URL check;
// when set, a run whose catalog cannot finish before the context deadline
// logs a warning.
type JobDeps struct {
	Store       catalog.Store
	Pipeline    *Pipeline
	Clock       Clock
	IDs         IDGenerator
	Hasher      Hasher
	Recorder    RunRecorder
	Publisher   Publisher
	Topic       string
	ProbeBudget time.Duration
	Logger      *zap.Logger
}

// Job loads the catalog, runs one curator pass and writes the result back.
type Job struct {
	deps JobDeps
}

// NewJob constructs a Job.
func NewJob(deps JobDeps) (*Job, error) {
	if deps.Store == nil {
		return nil, errors.New("curator: catalog store is required")
	}
	if deps.Pipeline == nil {
		return nil, errors.New("curator: pipeline is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("curator: clock is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Job{deps: deps}, nil
}

// Execute runs the job. It never returns an error; failures are reported
// through Result.Status and Result.Message, and nothing is written to the
// store when the load, the pass or the hashing fails.
func (j *Job) Execute(ctx context.Context) Result {
	res := Result{StartedAt: j.deps.Clock.Now().UTC()}
	if j.deps.IDs != nil {
		id, err := j.deps.IDs.NewID()
		if err != nil {
			j.deps.Logger.Warn("failed to generate run id", zap.Error(err))
		}
		res.RunID = id
	}
	logger := j.deps.Logger.With(zap.String("run_id", res.RunID))

	ctx, span := telemetry.Tracer("curator").Start(ctx, "curator.job")
	defer span.End()
	span.SetAttributes(attribute.String("curator.run_id", res.RunID))

	if err := j.run(ctx, &res, logger); err != nil {
		res.Status = StatusFailed
		res.Message = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "curator job failed")
		logger.Error("curator job failed", zap.Error(err))
	} else {
		res.Status = StatusSucceeded
		res.Message = fmt.Sprintf("verified %d resources", res.TotalResources)
	}
	res.FinishedAt = j.deps.Clock.Now().UTC()

	metrics.ObserveCuratorResult(res.Status)
	j.report(ctx, res, logger)
	return res
}

func (j *Job) run(ctx context.Context, res *Result, logger *zap.Logger) error {
	in, err := j.deps.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	j.checkBudget(ctx, len(in.Resources), logger)
	out, stats, err := j.deps.Pipeline.Run(ctx, in)
	if err != nil {
		return err
	}
	if j.deps.Hasher != nil {
		data, err := catalog.Encode(out)
		if err != nil {
			return fmt.Errorf("failed to encode catalog: %w", err)
		}
		digest, err := j.deps.Hasher.Hash(data)
		if err != nil {
			return fmt.Errorf("failed to hash catalog: %w", err)
		}
		res.CatalogDigest = digest
	}
	if err := j.deps.Store.Save(ctx, out); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}

	res.Stats = &stats
	res.TotalResources = stats.Total
	res.FailedResources = stats.Failed
	res.FailureRatePercent = stats.FailurePercent()
	res.Alert = stats.Alert

	counts := make(map[string]int, len(stats.Counts))
	for status, n := range stats.Counts {
		counts[status.String()] = n
	}
	metrics.ObserveCuratorRun(metrics.RunSummary{
		StatusCounts:       counts,
		Total:              stats.Total,
		Failed:             stats.Failed,
		Errors:             stats.Errors,
		FailureRatePercent: stats.FailurePercent(),
		Alert:              stats.Alert,
	})
	logger.Info("catalog written", zap.String("digest", res.CatalogDigest))
	return nil
}

func (j *Job) checkBudget(ctx context.Context, n int, logger *zap.Logger) {
	worst := j.deps.Pipeline.WorstCase(n, j.deps.ProbeBudget)
	if worst == 0 {
		return
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		logger.Debug("curator run has no deadline", zap.Duration("worst_case", worst))
		return
	}
	if remaining := time.Until(deadline); worst > remaining {
		logger.Warn("worst-case verification time exceeds job timeout",
			zap.Int("resources", n),
			zap.Duration("worst_case", worst),
			zap.Duration("remaining", remaining),
		)
	}
}

// report records and publishes the result. Both are best effort: the
// catalog has already been written (or deliberately left alone).
func (j *Job) report(ctx context.Context, res Result, logger *zap.Logger) {
	// Reporting outlives a cancelled run so failures still reach the history.
	ctx = context.WithoutCancel(ctx)
	if j.deps.Recorder != nil {
		if err := j.deps.Recorder.RecordRun(ctx, res); err != nil {
			logger.Warn("failed to record curator run", zap.Error(err))
		}
	}
	if j.deps.Publisher != nil && j.deps.Topic != "" {
		msgID, err := j.deps.Publisher.Publish(ctx, j.deps.Topic, res)
		if err != nil {
			logger.Warn("failed to publish curator run", zap.Error(err))
			return
		}
		logger.Debug("published curator run", zap.String("message_id", msgID))
	}
}
