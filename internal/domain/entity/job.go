package entity

import (
	"encoding/json"

	"github.com/turbobackend/worker/internal/domain/consts"
)

// Job is the transient input pulled off the queue.
type Job struct {
	JobID   string
	JobName consts.JobName
	Attempt int
	Payload JobPayload
}

// JobPayload is the intent-dependent body of a Job. RequestParams carries the
// intent-specific shape (CreationParams / ModificationParams / SecretSyncParams).
type JobPayload struct {
	ProjectID     string          `json:"projectId"`
	UserID        string          `json:"userId"`
	RequestID     string          `json:"requestId"`
	StreamID      string          `json:"streamId"`
	RequestParams json.RawMessage `json:"requestParams"`
}

// CreationParams is the RequestParams shape for initialProjectCreationJob.
type CreationParams struct {
	UserPrompt string `json:"userPrompt"`
}

// ModificationParams is the RequestParams shape for projectModificationJob.
type ModificationParams struct {
	ModificationRequest string `json:"modificationRequest"`
}

// SecretSyncParams is the RequestParams shape for sync-flyio-secrets.
type SecretSyncParams struct {
	SecretName  string `json:"secretName"`
	SecretValue string `json:"secretValue"`
}
