package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Rigel07/invoice-extractor/config"
	"github.com/Rigel07/invoice-extractor/model"
	"github.com/Rigel07/invoice-extractor/pkg/logger"
	"github.com/google/uuid"
)

// JobStats is the counter snapshot served by the stats endpoint.
type JobStats struct {
	JobsCreated    int64 `json:"jobs_created"`
	JobsCompleted  int64 `json:"jobs_completed"`
	JobsFailed     int64 `json:"jobs_failed"`
	FilesProcessed int64 `json:"files_processed"`
	CacheHits      int64 `json:"cache_hits"`
}

// JobService owns the batch job lifecycle: it creates job records, runs the
// asynchronous extraction worker, and is the only writer of job state.
type JobService struct {
	store          KVStore
	extractor      *Extractor
	archive        *ArchiveService // nil when archival is disabled
	batchSize      int
	overallTimeout time.Duration
	retention      time.Duration

	jobsCreated    atomic.Int64
	jobsCompleted  atomic.Int64
	jobsFailed     atomic.Int64
	filesProcessed atomic.Int64
	cacheHits      atomic.Int64
}

func NewJobService(store KVStore, extractor *Extractor, archive *ArchiveService, cfg *config.JobsConfig, extraction *config.ExtractionConfig) *JobService {
	return &JobService{
		store:          store,
		extractor:      extractor,
		archive:        archive,
		batchSize:      extraction.BatchSize,
		overallTimeout: time.Duration(cfg.OverallTimeoutMinutes) * time.Minute,
		retention:      time.Duration(cfg.RetentionMinutes) * time.Minute,
	}
}

func jobKey(id string) string {
	return "job:" + id
}

// CreateJob persists a new pending job and starts asynchronous processing.
// It returns as soon as the record is written; extraction never blocks the
// caller.
func (s *JobService) CreateJob(ctx context.Context, files []model.FileInput, companyName, transactionType string, bypassCache bool) (string, error) {
	if transactionType != model.TransactionSales && transactionType != model.TransactionPurchase {
		return "", fmt.Errorf("invalid transaction type: %q", transactionType)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no files provided")
	}

	job := &model.Job{
		ID:              uuid.New().String(),
		Status:          model.StatusPending,
		CompanyName:     companyName,
		TransactionType: transactionType,
		FileCount:       len(files),
		Results:         make([]model.ExtractionResult, len(files)),
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if err := s.saveJob(ctx, job, 0); err != nil {
		return "", fmt.Errorf("failed to persist job: %w", err)
	}
	s.jobsCreated.Add(1)

	if s.archive != nil {
		go s.archive.StoreSourceFiles(context.Background(), job.ID, files)
	}

	go s.process(job, files, bypassCache)

	return job.ID, nil
}

// process is the asynchronous worker for one job. It owns all mutation of
// the job record from here to the terminal state.
func (s *JobService) process(job *model.Job, files []model.FileInput, bypassCache bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.overallTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, logger.JobIDKey, job.ID)

	logger.Info(ctx, "job processing started",
		"files", len(files),
		"batch_size", s.batchSize,
		"bypass_cache", bypassCache,
	)

	for start := 0; start < len(files); start += s.batchSize {
		end := start + s.batchSize
		if end > len(files) {
			end = len(files)
		}

		if ctx.Err() != nil {
			s.failJob(job, fmt.Sprintf("job timed out after %s", s.overallTimeout))
			return
		}

		if job.Status == model.StatusPending {
			job.Status = model.StatusProcessing
			job.UpdatedAt = time.Now()
			if err := s.saveJob(ctx, job, 0); err != nil {
				s.failJob(job, "failed to persist job state: "+err.Error())
				return
			}
		}

		batchResults := s.extractor.ExtractBatch(ctx, files[start:end], bypassCache)
		for i, r := range batchResults {
			job.Results[start+i] = r
			s.filesProcessed.Add(1)
			if r.FromCache {
				s.cacheHits.Add(1)
			}
		}
		job.UpdatedAt = time.Now()

		if err := s.saveJob(ctx, job, 0); err != nil {
			s.failJob(job, "failed to persist job state: "+err.Error())
			return
		}

		logger.Debug(ctx, "batch processed",
			"batch_start", start,
			"batch_end", end,
			"processed", job.ProcessedFiles(),
		)
	}

	// Every file has a terminal result; partial failure is not job failure.
	job.Status = model.StatusCompleted
	job.CompletedAt = time.Now()
	job.UpdatedAt = job.CompletedAt
	if err := s.saveJob(context.Background(), job, s.retention); err != nil {
		s.failJob(job, "failed to persist completed job: "+err.Error())
		return
	}
	s.jobsCompleted.Add(1)

	logger.Info(ctx, "job completed",
		"successful", job.SuccessfulFiles(),
		"failed", job.FileCount-job.SuccessfulFiles(),
	)
}

// failJob forces the job into the failed state for an engine-level fault.
// Per-file extraction failures never land here.
func (s *JobService) failJob(job *model.Job, reason string) {
	job.Status = model.StatusFailed
	job.ErrorMsg = reason
	job.UpdatedAt = time.Now()
	job.CompletedAt = job.UpdatedAt
	s.jobsFailed.Add(1)

	if err := s.saveJob(context.Background(), job, s.retention); err != nil {
		slog.Error("failed to persist failed job", "job_id", job.ID, "error", err)
	}
	slog.Error("job failed", "job_id", job.ID, "reason", reason)
}

func (s *JobService) saveJob(ctx context.Context, job *model.Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, jobKey(job.ID), data, ttl)
}

// GetJob returns a snapshot of the job record.
func (s *JobService) GetJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.store.Get(ctx, jobKey(id))
	if err != nil {
		return nil, ErrJobNotFound
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupted job record: %w", err)
	}
	return &job, nil
}

// GetCompletedJob returns the job only once it has completed, for the
// synthesis consumers.
func (s *JobService) GetCompletedJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusCompleted {
		return nil, ErrJobNotReady
	}
	return job, nil
}

// Stats returns the engine's counter snapshot.
func (s *JobService) Stats() JobStats {
	return JobStats{
		JobsCreated:    s.jobsCreated.Load(),
		JobsCompleted:  s.jobsCompleted.Load(),
		JobsFailed:     s.jobsFailed.Load(),
		FilesProcessed: s.filesProcessed.Load(),
		CacheHits:      s.cacheHits.Load(),
	}
}
