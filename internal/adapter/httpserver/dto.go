package httpserver

import (
	"time"

	"github.com/syla-platform/execution-service/internal/domain"
)

// wireStatusQueued is the public name for the internal pending state.
const wireStatusQueued = "queued"

// jobPayload is the wire shape of a job record.
type jobPayload struct {
	ID          string                  `json:"id"`
	Owner       string                  `json:"owner,omitempty"`
	Workspace   string                  `json:"workspace,omitempty"`
	Request     domain.ExecutionRequest `json:"request"`
	Status      string                  `json:"status"`
	Result      *domain.JobResult       `json:"result,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

func wireStatus(s domain.JobStatus) string {
	if s == domain.JobPending {
		return wireStatusQueued
	}
	return string(s)
}

// internalStatus reverses wireStatus for list filters. Unknown strings pass
// through unchanged and simply match nothing.
func internalStatus(s string) domain.JobStatus {
	if s == wireStatusQueued {
		return domain.JobPending
	}
	return domain.JobStatus(s)
}

func toPayload(j domain.Job) jobPayload {
	return jobPayload{
		ID:          j.ID,
		Owner:       j.Owner,
		Workspace:   j.Workspace,
		Request:     j.Request,
		Status:      wireStatus(j.Status),
		Result:      j.Result,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

func toPayloads(jobs []domain.Job) []jobPayload {
	out := make([]jobPayload, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toPayload(j))
	}
	return out
}
