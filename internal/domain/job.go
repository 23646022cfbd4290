package domain

import "time"

// JobState represents the lifecycle state of a conversion job.
// Values include JobStatePending, JobStateProgress, JobStateSuccess, and JobStateFailure.
type JobState string

const (
	JobStatePending  JobState = "PENDING"
	JobStateProgress JobState = "PROGRESS"
	JobStateSuccess  JobState = "SUCCESS"
	JobStateFailure  JobState = "FAILURE"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobState) Terminal() bool {
	return s == JobStateSuccess || s == JobStateFailure
}

// Job is the handle for one asynchronous pipeline execution.
// Progress is 0..100 and never decreases while the job runs; ResultPath is set only
// in SUCCESS and Error only in FAILURE.
type Job struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	Namespace   string     `gorm:"type:text;not null;index:idx_jobs_ns_hash" json:"namespace"`
	ContentHash string     `gorm:"type:text;not null;index:idx_jobs_ns_hash" json:"content_hash"`
	Filename    string     `gorm:"type:text" json:"filename"`
	State       JobState   `gorm:"type:text;default:PENDING;index" json:"state"`
	Progress    int        `gorm:"default:0" json:"progress"`
	ResultPath  string     `gorm:"type:text" json:"result_path,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for Job.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Job) TableName() string {
	return "conversion_jobs"
}
