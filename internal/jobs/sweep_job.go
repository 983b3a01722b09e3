package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/punchamoorthee/feeledger/internal/domain"
)

// Sweeper runs one rollover sweep.
type Sweeper interface {
	RunSweep(ctx context.Context, caller domain.Caller) (*domain.SweepReport, error)
}

// schedulerCaller is the identity cron-triggered sweeps run as.
var schedulerCaller = domain.Caller{ID: "scheduler", Role: domain.RoleSystem}

// SweepJob handles TaskRolloverSweep.
type SweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *Metrics
}

func NewSweepJob(s Sweeper, logger *slog.Logger, metrics *Metrics) *SweepJob {
	return &SweepJob{Sweeper: s, Logger: logger, Metrics: metrics}
}

// Handle runs the sweep. Candidate failures fail the task so asynq retries
// it; candidates that already rolled are skipped on the retry.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("rollover sweep: handler not configured")
	}
	var payload RolloverSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskRolloverSweep)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	logger.Info("starting rollover sweep")

	report, err := j.Sweeper.RunSweep(ctx, schedulerCaller)
	if err != nil {
		logger.Error("rollover sweep", slog.Any("error", err))
		return err
	}
	failed := len(report.StudentPayments.Failures) + len(report.TeacherSalaries.Failures)
	logger.Info("completed rollover sweep",
		slog.Int("student_payments", report.StudentPayments.Count),
		slog.Int("teacher_salaries", report.TeacherSalaries.Count),
		slog.Int("failed", failed),
	)
	if failed > 0 {
		return fmt.Errorf("rollover sweep: %d candidates failed", failed)
	}
	return nil
}

func (j *SweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRolloverSweep))
	}
	return slog.Default().With(slog.String("job", TaskRolloverSweep))
}
