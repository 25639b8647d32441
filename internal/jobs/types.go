// Package jobs drives PDF and web ingestion jobs end-to-end and tracks
// their lifecycle in a TTL-backed Redis store.
package jobs

import (
	"fmt"
	"time"
)

// Kind discriminates the two ingestion job variants.
type Kind string

const (
	KindPDF Kind = "pdf"
	KindWeb Kind = "web"
)

// Status is the lifecycle state of an ingestion job.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is one ingestion job. It is created "running" at submission, mutated
// in place by the owning pipeline run, and terminal at done/failed. The
// store auto-expires it after the retention window.
type Job struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ReturnCode *int       `json:"return_code,omitempty"`
	Log        []string   `json:"log"`

	// PDF jobs.
	SourcePath string `json:"source_path,omitempty"`
	// Web jobs.
	SourceURL  string `json:"source_url,omitempty"`
	TruthLevel string `json:"truth_level,omitempty"`
}

// Snapshot returns a deep copy of the job. The owning run keeps mutating
// the original, so anything handed outside the run must be a copy.
func (j *Job) Snapshot() *Job {
	c := *j
	c.Log = append([]string(nil), j.Log...)
	return &c
}

// Logf appends a timestamped line to the job log.
func (j *Job) Logf(format string, args ...any) {
	line := fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	j.Log = append(j.Log, line)
	j.UpdatedAt = time.Now().UTC()
}

// MarkDone transitions the job to its successful terminal state.
func (j *Job) MarkDone(returnCode int) {
	now := time.Now().UTC()
	j.Status = StatusDone
	j.ReturnCode = &returnCode
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// MarkFailed transitions the job to its failed terminal state with an
// explanatory log line.
func (j *Job) MarkFailed(reason string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.FinishedAt = &now
	j.Logf("job failed: %s", reason)
}

// Terminal reports whether the job has reached done or failed.
func (j *Job) Terminal() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}
