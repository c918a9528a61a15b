package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/turbobackend/worker/internal/domain/consts"
	"github.com/turbobackend/worker/internal/domain/entity"
)

// decodeJob unmarshals one queue delivery body into a Job. The wire body
// carries the jobId alongside the same fields as entity.JobPayload.
func decodeJob(body []byte, jobName consts.JobName) (entity.Job, error) {
	var env struct {
		JobID string `json:"jobId"`
		entity.JobPayload
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return entity.Job{}, fmt.Errorf("decoding job envelope: %w", err)
	}
	return entity.Job{
		JobID:   env.JobID,
		JobName: jobName,
		Payload: env.JobPayload,
	}, nil
}
