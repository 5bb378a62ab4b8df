package model

import (
	"time"
)

// Job status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Transaction types
const (
	TransactionSales    = "Sales"
	TransactionPurchase = "Purchase"
)

// FileInput is one uploaded file handed to the job engine. The HTTP layer
// has already validated the declared type against the allow-list.
type FileInput struct {
	FileID   string
	Filename string
	MimeType string
	Bytes    []byte
}

// Job tracks the lifecycle of one batch extraction request.
// Results are indexed by original file submission order.
type Job struct {
	ID              string             `json:"job_id"`
	Status          string             `json:"status"` // pending, processing, completed, failed
	CompanyName     string             `json:"company_name"`
	TransactionType string             `json:"transaction_type"` // Sales, Purchase
	FileCount       int                `json:"file_count"`
	Results         []ExtractionResult `json:"results"`
	ErrorMsg        string             `json:"error_msg,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	CompletedAt     time.Time          `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// ProcessedFiles counts results that have reached a terminal per-file outcome.
func (j *Job) ProcessedFiles() int {
	n := 0
	for _, r := range j.Results {
		if r.Status != "" {
			n++
		}
	}
	return n
}

// SuccessfulFiles counts per-file successes.
func (j *Job) SuccessfulFiles() int {
	n := 0
	for _, r := range j.Results {
		if r.Status == ExtractionSuccess {
			n++
		}
	}
	return n
}

// Progress returns completion as a percentage of total files.
func (j *Job) Progress() float64 {
	if j.FileCount == 0 {
		return 100
	}
	return float64(j.ProcessedFiles()) / float64(j.FileCount) * 100
}
