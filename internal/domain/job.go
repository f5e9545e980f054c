package domain

import "time"

// MaxReferenceImages caps a job's combined reference count (manual images +
// context images + external URLs). Enforced at submission; the executor does
// not re-check it.
const MaxReferenceImages = 3

// AspectRatios lists the aspect ratios the provider accepts.
var AspectRatios = []string{"1:1", "2:3", "3:2", "3:4", "4:3", "9:16", "16:9", "21:9"}

// ValidAspectRatio reports whether value is an accepted aspect ratio.
func ValidAspectRatio(value string) bool {
	for _, ratio := range AspectRatios {
		if ratio == value {
			return true
		}
	}
	return false
}

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeGenerate JobType = "generate"
	JobTypeEdit     JobType = "edit"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether no further automatic transition happens from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobInputs is the structured reference-selection payload submitted with a job.
// ImageIDs is the legacy field kept for jobs created before manual ids and
// context selections were split; the executor falls back to it when
// ManualImageIDs is empty.
type JobInputs struct {
	ManualImageIDs    []string                         `json:"manualImageIds,omitempty"`
	ImageIDs          []string                         `json:"imageIds,omitempty"`
	RefURLs           []string                         `json:"refUrls,omitempty"`
	ContextSelections map[ContextSlot]ContextSelection `json:"contextSelections,omitempty"`
	AspectRatio       string                           `json:"aspectRatio,omitempty"`
	ImageOnly         bool                             `json:"imageOnly,omitempty"`
}

// JobResult captures the persisted outcome of a successful execution.
type JobResult struct {
	StoragePath     string                           `json:"storagePath"`
	PublicURL       string                           `json:"publicUrl"`
	Note            string                           `json:"note,omitempty"`
	PromptApplied   string                           `json:"promptApplied"`
	ContextSnapshot map[ContextSlot]*ResolvedContext `json:"contextSnapshot,omitempty"`
}

// JobUsage records provider token accounting for one execution.
type JobUsage struct {
	ImagesOut    int `json:"imagesOut"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens,omitempty"`
}

// Job is one requested generation/edit unit of work with its own lifecycle.
type Job struct {
	ID          string
	Type        JobType
	Prompt      string
	GirlID      string
	Inputs      JobInputs
	Status      JobStatus
	Result      *JobResult
	Usage       *JobUsage
	CostUsd     float64
	Error       string
	Retries     int
	RerunOf     string
	LastRerunID string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// JobPatch is a partial update applied to a persisted job. Nil fields are left
// untouched. ClearError resets the error column independently of Error so the
// RUNNING transition can wipe a previous attempt's message.
type JobPatch struct {
	Status      *JobStatus
	Result      *JobResult
	Usage       *JobUsage
	CostUsd     *float64
	Error       *string
	ClearError  bool
	Retries     *int
	LastRerunID *string
	StartedAt   *time.Time
	FinishedAt  *time.Time
}
