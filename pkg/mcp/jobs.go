package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cennso/sitegen/pkg/models"
)

// Job is a background site build started over MCP
type Job struct {
	ID            string               `json:"id"`
	SiteName      string               `json:"site_name"`
	Status        models.JobStatus     `json:"status"`
	StartedAt     time.Time            `json:"started_at"`
	CompletedAt   time.Time            `json:"completed_at,omitempty"`
	Fresh         bool                 `json:"fresh"`
	RunID         string               `json:"run_id,omitempty"` // Build run id, set once the build finishes
	PagesTotal    int                  `json:"pages_total"`
	PagesRendered int                  `json:"pages_rendered"`
	PagesCached   int                  `json:"pages_cached"`
	PagesFailed   int                  `json:"pages_failed"`
	Audit         *models.AuditSummary `json:"audit,omitempty"`
	ErrorMessage  string               `json:"error_message,omitempty"`

	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager tracks build jobs. At most one job per site is pending or running.
type JobManager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	bysite map[string]string // site name -> id of its active job
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:   make(map[string]*Job),
		bysite: make(map[string]string),
	}
}

func isActive(job *Job) bool {
	return job != nil && !job.Status.IsTerminal()
}

// CreateJob creates a pending job for a site and returns a snapshot of it. When the
// site already has an active job, that job is returned and created is false.
func (m *JobManager) CreateJob(siteName string, fresh bool) (job *Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.bysite[siteName]; ok && isActive(m.jobs[id]) {
		snapshot := *m.jobs[id]
		return &snapshot, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	job = &Job{
		ID:        uuid.New().String(),
		SiteName:  siteName,
		Status:    models.JobStatusPending,
		StartedAt: time.Now(),
		Fresh:     fresh,
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[job.ID] = job
	m.bysite[siteName] = job.ID
	snapshot := *job
	return &snapshot, true
}

// GetJob returns a snapshot of a job, or nil
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[jobID]; ok {
		snapshot := *job
		return &snapshot
	}
	return nil
}

// ActiveJob returns the pending or running job of a site, or nil
func (m *JobManager) ActiveJob(siteName string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.bysite[siteName]; ok && isActive(m.jobs[id]) {
		snapshot := *m.jobs[id]
		return &snapshot
	}
	return nil
}

// UpdateStatus moves a job to status. Terminal statuses set CompletedAt and free the
// site for a new job. A cancelled job keeps its status.
func (m *JobManager) UpdateStatus(jobID string, status models.JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status == models.JobStatusCancelled {
		return
	}
	job.Status = status
	if status.IsTerminal() {
		job.CompletedAt = time.Now()
		delete(m.bysite, job.SiteName)
		job.cancel()
	}
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}
}

// SetResult copies the page counts of a finished build into the job
func (m *JobManager) SetResult(jobID string, manifest *models.BuildManifest) {
	if manifest == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		job.RunID = manifest.RunID
		job.PagesTotal = manifest.TotalPages
		job.PagesRendered = manifest.Rendered
		job.PagesCached = manifest.Cached
		job.PagesFailed = manifest.Failed
		job.Audit = manifest.Audit
	}
}

// CancelJob cancels a pending or running job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || !isActive(job) {
		return false
	}
	job.cancel()
	job.Status = models.JobStatusCancelled
	job.CompletedAt = time.Now()
	delete(m.bysite, job.SiteName)
	return true
}

// CancelAll cancels every active job
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if isActive(job) {
			job.cancel()
			job.Status = models.JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.bysite = make(map[string]string)
}

// ListJobs returns snapshots of all jobs
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	return jobs
}

// GetContext returns the context a job's build runs under
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, ok := m.jobs[jobID]; ok {
		return job.ctx
	}
	return context.Background()
}
