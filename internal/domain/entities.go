// Package domain holds the job entity, its lifecycle rules, and the ports
// implemented by the store, queue, and sandbox adapters.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrStore           = errors.New("store error")
	ErrSerialization   = errors.New("serialization error")
	ErrSandbox         = errors.New("sandbox error")
)

// JobStatus is the internal status of an execution job. The wire name for
// JobPending is "queued"; the HTTP layer performs that mapping.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobTimeout   JobStatus = "timeout"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobTimeout, JobCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the edge s -> to exists in the status graph:
// pending -> {running, cancelled}, running -> {completed, failed, timeout, cancelled}.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobPending:
		return to == JobRunning || to == JobCancelled
	case JobRunning:
		return to == JobCompleted || to == JobFailed || to == JobTimeout || to == JobCancelled
	}
	return false
}

// Request limits and defaults.
const (
	DefaultMaxCodeBytes   = 1 << 20
	DefaultTimeoutSeconds = 30
	MaxTimeoutSeconds     = 300
	MaxStreamBytes        = 1 << 20
)

// ResourceSpec caps a single execution. Zero values mean "use the default".
type ResourceSpec struct {
	MemoryMiB      int64   `json:"memory_mib"`
	CPUCores       float64 `json:"cpu_cores"`
	DiskMiB        int64   `json:"disk_mib"`
	NetworkEnabled bool    `json:"network_enabled"`
}

// DefaultResources returns the per-job resource caps applied when a
// submission carries none.
func DefaultResources() ResourceSpec {
	return ResourceSpec{MemoryMiB: 512, CPUCores: 1.0, DiskMiB: 100, NetworkEnabled: false}
}

// ExecutionRequest is the client-supplied portion of a job record.
type ExecutionRequest struct {
	Code           string            `json:"code"`
	Language       string            `json:"language"`
	Args           []string          `json:"args,omitempty"`
	Environment    map[string]string `json:"environment,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Resources      *ResourceSpec     `json:"resources,omitempty"`
}

// EffectiveTimeout returns the request timeout in seconds, defaulted to 30
// and hard-capped at 300.
func (r ExecutionRequest) EffectiveTimeout() int {
	t := r.TimeoutSeconds
	if t <= 0 {
		t = DefaultTimeoutSeconds
	}
	if t > MaxTimeoutSeconds {
		t = MaxTimeoutSeconds
	}
	return t
}

// EffectiveResources returns the request resources with defaults filled in
// for any zero field.
func (r ExecutionRequest) EffectiveResources() ResourceSpec {
	def := DefaultResources()
	if r.Resources == nil {
		return def
	}
	res := *r.Resources
	if res.MemoryMiB <= 0 {
		res.MemoryMiB = def.MemoryMiB
	}
	if res.CPUCores <= 0 {
		res.CPUCores = def.CPUCores
	}
	if res.DiskMiB <= 0 {
		res.DiskMiB = def.DiskMiB
	}
	return res
}

// JobResult is the persisted outcome of a sandbox run. Streams are truncated
// to MaxStreamBytes before they reach the record.
type JobResult struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMS int64  `json:"duration_ms"`
}

// Job is the single persisted entity. Transitions are driven by the worker,
// except the cancel edge which the lookup surface may take.
type Job struct {
	ID          string           `json:"id"`
	Owner       string           `json:"owner,omitempty"`
	Workspace   string           `json:"workspace,omitempty"`
	Request     ExecutionRequest `json:"request"`
	Status      JobStatus        `json:"status"`
	Result      *JobResult       `json:"result,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ExecResult is the normalized sandbox outcome. Non-zero exits and timeouts
// are results, not errors; only a broken runtime surfaces as an error.
type ExecResult struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	DurationMS int64
	TimedOut   bool
}

// ContainerSpec describes a single sandbox launch.
type ContainerSpec struct {
	Image            string
	Argv             []string
	Env              map[string]string
	WorkingDir       string
	MemoryLimitBytes int64
	CPULimitCores    float64
	TimeoutSeconds   int
	NetworkEnabled   bool
}

// Ports

// JobStore is CRUD on job records keyed by id. Put has overwrite semantics;
// no read-modify-write atomicity is assumed.
type JobStore interface {
	Put(ctx context.Context, j Job) error
	Get(ctx context.Context, id string) (Job, error)
	List(ctx context.Context) ([]Job, error)
}

// Queue is the FIFO of pending job ids. Pop is non-blocking; ok is false
// when the queue is empty.
type Queue interface {
	Push(ctx context.Context, id string) error
	Pop(ctx context.Context) (id string, ok bool, err error)
	Len(ctx context.Context) (int64, error)
}

// Sandbox launches one container and waits for it. hostCodeDir, when
// non-empty, is mounted read-only at spec.WorkingDir.
type Sandbox interface {
	Run(ctx context.Context, name string, spec ContainerSpec, hostCodeDir string) (ExecResult, error)
}

// Context aliases the standard context so usecases can stay decoupled from
// transport packages.
type Context = context.Context
