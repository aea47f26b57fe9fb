package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskActionDue = "actions.due"

type ActionDuePayload struct {
	ActionID string `json:"actionId"`
}

func NewActionDueTask(payload ActionDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActionDue, data), nil
}

func ParseActionDuePayload(task *asynq.Task) (ActionDuePayload, error) {
	var payload ActionDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ActionDuePayload{}, err
	}
	return payload, nil
}
