package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportWarmup pre-builds distribution reports into the cache.
	TaskReportWarmup = "distribution:report_warmup"
)

// ReportWarmupPayload selects what the warmup job builds. An empty Period
// means every recent period known to the repository.
type ReportWarmupPayload struct {
	Period string `json:"period,omitempty"`
	Rule   string `json:"rule,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// NewReportWarmupTask constructs an Asynq task.
func NewReportWarmupTask(payload ReportWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}
