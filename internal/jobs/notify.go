package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/punchamoorthee/feeledger/internal/domain"
	"github.com/punchamoorthee/feeledger/internal/service"
)

// Enqueuer is the subset of *asynq.Client the notifier uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskNotifier implements service.Notifier by enqueueing TaskNotify.
type TaskNotifier struct {
	client Enqueuer
}

func NewTaskNotifier(client Enqueuer) *TaskNotifier {
	return &TaskNotifier{client: client}
}

func (n *TaskNotifier) Notify(ctx context.Context, note service.Notification) error {
	task, err := NewNotifyTask(note)
	if err != nil {
		return err
	}
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskNotify, err)
	}
	return nil
}

// NotifyJob handles TaskNotify. Delivery is a structured log line that the
// mail relay tails.
type NotifyJob struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

func NewNotifyJob(logger *slog.Logger, metrics *Metrics) *NotifyJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyJob{Logger: logger, Metrics: metrics}
}

func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	var note service.Notification
	if err := json.Unmarshal(t.Payload(), &note); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskNotify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	if note.PayerEmail == "" {
		j.Logger.Warn("notification dropped: payer has no email",
			slog.String("entry_id", note.EntryID),
			slog.String("payer_id", note.PayerID),
		)
		return nil
	}
	j.Logger.Info("notification delivered",
		slog.String("job", TaskNotify),
		slog.String("to", note.PayerEmail),
		slog.String("subject", Subject(note)),
		slog.String("entry_id", note.EntryID),
	)
	return nil
}

// Subject renders the message subject for a notification.
func Subject(n service.Notification) string {
	switch n.Status {
	case domain.StatusPaid:
		return fmt.Sprintf("Payment of %s recorded for %s", n.Amount, n.Period.Label())
	case domain.StatusRequested:
		return fmt.Sprintf("Approval requested for %s (%s)", n.Period.Label(), n.Amount)
	default:
		return fmt.Sprintf("Ledger update for %s", n.Period.Label())
	}
}
