package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Conversion is the ledger record of one run of the pipeline.
type Conversion struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Input         string    `json:"input"`
	SceneFile     string    `json:"scene_file"`
	Output        string    `json:"output"`
	Scale         float64   `json:"scale"`
	Status        string    `gorm:"index" json:"status"`
	Error         string    `json:"error,omitempty"`
	Images        int       `json:"images"`
	MissingImages int       `json:"missing_images"`
	ObjectKey     string    `json:"object_key,omitempty"`
	StartedAt     time.Time `gorm:"index" json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	DurationMs    int64     `json:"duration_ms"`
}

// NewConversion starts a record for job.
func NewConversion(job Job) *Conversion {
	return &Conversion{
		ID:        uuid.New(),
		Input:     job.Input,
		Output:    job.Output,
		Scale:     job.Rescale,
		StartedAt: time.Now(),
	}
}

// Finish stamps the end time and status. A nil err marks the run as succeeded.
func (c *Conversion) Finish(err error) {
	c.FinishedAt = time.Now()
	c.DurationMs = c.FinishedAt.Sub(c.StartedAt).Milliseconds()
	if err != nil {
		c.Status = StatusFailed
		c.Error = err.Error()
		return
	}
	c.Status = StatusSucceeded
	c.Error = ""
}
