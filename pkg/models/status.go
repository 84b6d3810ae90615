package models

// PageStatus represents the build outcome of a page
type PageStatus string

const (
	PageStatusUnset    PageStatus = ""         // Zero value = unset/unknown
	PageStatusRendered PageStatus = "rendered" // Page rendered in this run
	PageStatusCached   PageStatus = "cached"   // Page reused from the build cache
	PageStatusFailed   PageStatus = "failed"   // Page could not be loaded or rendered
)

// String implements fmt.Stringer for logging
func (s PageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known outcome
func (s PageStatus) IsValid() bool {
	switch s {
	case PageStatusRendered, PageStatusCached, PageStatusFailed:
		return true
	}
	return false
}

// Succeeded returns true if the page has output on disk
func (s PageStatus) Succeeded() bool {
	return s == PageStatusRendered || s == PageStatusCached
}

// JobStatus represents the state of a background build job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true if the job will not change state again
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}
