package jobs

import (
	"fmt"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
)

// DeriveBatchStatus folds member job statuses into one batch status.
// A batch with no jobs is vacuously completed.
func DeriveBatchStatus(statuses []constants.JobStatus) constants.BatchStatus {
	n := len(statuses)
	var completed, failed, running int
	for _, s := range statuses {
		switch s {
		case constants.JobStatusCompleted:
			completed++
		case constants.JobStatusFailed:
			failed++
		case constants.JobStatusRunning:
			running++
		}
	}
	switch {
	case completed == n:
		return constants.BatchStatusCompleted
	case failed == n:
		return constants.BatchStatusFailed
	case failed > 0 && completed+failed == n:
		return constants.BatchStatusPartial
	case running > 0 || completed > 0:
		return constants.BatchStatusRunning
	default:
		return constants.BatchStatusPending
	}
}

// Statuses lists the status of each job in order.
func Statuses(jobs []*entity.Job) []constants.JobStatus {
	out := make([]constants.JobStatus, len(jobs))
	for i, j := range jobs {
		out[i] = j.Status
	}
	return out
}

// OverallProgress is the truncated mean of the member jobs' percentages.
func OverallProgress(jobs []*entity.Job) int {
	if len(jobs) == 0 {
		return 0
	}
	total := 0
	for _, j := range jobs {
		total += j.ProgressPercentage
	}
	return total / len(jobs)
}

// CurrentMessage describes the last running job, or "" when none is running.
func CurrentMessage(jobs []*entity.Job) string {
	msg := ""
	for _, j := range jobs {
		if j.Status != constants.JobStatusRunning {
			continue
		}
		progress := ""
		if j.ProgressMessage != nil {
			progress = *j.ProgressMessage
		}
		msg = fmt.Sprintf("Processing %s: %s", j.Provider, progress)
	}
	return msg
}
