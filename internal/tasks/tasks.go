package tasks

import "os"

const defaultQueueName = "dca_queue"

var QueueName = getQueueName()

func getQueueName() string {
	if name := os.Getenv("TASK_QUEUE_NAME"); name != "" {
		return name
	}
	return defaultQueueName
}

const (
	// TypeExecutionCycle runs one scheduler cycle: claim due plans, execute,
	// record, reschedule.
	TypeExecutionCycle = "dca:executionCycle"
)
