package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/punchamoorthee/feeledger/internal/service"
)

const (
	// QueueDefault is the queue every billing task is enqueued on.
	QueueDefault = "default"
	// TaskRolloverSweep runs the recurring rollover sweep over both ledgers.
	TaskRolloverSweep = "billing:rollover_sweep"
	// TaskNotify delivers a payer notification.
	TaskNotify = "billing:notify"
)

// RolloverSweepPayload identifies what triggered a sweep run.
type RolloverSweepPayload struct {
	Trigger string `json:"trigger"`
}

func NewRolloverSweepTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(RolloverSweepPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRolloverSweep, data), nil
}

func NewNotifyTask(n service.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotify, data), nil
}
