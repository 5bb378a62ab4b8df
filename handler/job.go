package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Rigel07/invoice-extractor/model"
	"github.com/Rigel07/invoice-extractor/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Allowed upload types by extension.
var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

type JobHandler struct {
	jobs    *service.JobService
	synth   *service.LedgerSynthesizer
	archive *service.ArchiveService // nil when archival is disabled
}

func NewJobHandler(jobs *service.JobService, synth *service.LedgerSynthesizer, archive *service.ArchiveService) *JobHandler {
	return &JobHandler{
		jobs:    jobs,
		synth:   synth,
		archive: archive,
	}
}

// Create handles multipart job creation: files plus company_name,
// transaction_type and bypass_cache form fields. It returns the job ID
// immediately; extraction runs asynchronously.
func (h *JobHandler) Create(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}

	uploads := form.File["files"]
	if len(uploads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}

	companyName := c.PostForm("company_name")
	if companyName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_name is required"})
		return
	}

	transactionType := c.PostForm("transaction_type")
	if transactionType != model.TransactionSales && transactionType != model.TransactionPurchase {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("transaction_type must be %q or %q", model.TransactionSales, model.TransactionPurchase),
		})
		return
	}

	bypassCache := false
	if v := c.PostForm("bypass_cache"); v != "" {
		bypassCache, err = strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bypass_cache must be a boolean"})
			return
		}
	}

	files := make([]model.FileInput, 0, len(uploads))
	for _, upload := range uploads {
		ext := strings.ToLower(filepath.Ext(upload.Filename))
		mimeType, ok := allowedExtensions[ext]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("unsupported file type: %s", upload.Filename),
			})
			return
		}

		f, err := upload.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file: " + upload.Filename})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file: " + upload.Filename})
			return
		}

		files = append(files, model.FileInput{
			FileID:   uuid.New().String(),
			Filename: upload.Filename,
			MimeType: mimeType,
			Bytes:    data,
		})
	}

	jobID, err := h.jobs.CreateJob(c.Request.Context(), files, companyName, transactionType, bypassCache)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":      jobID,
		"total_files": len(files),
		"status":      model.StatusPending,
	})
}

// Status returns the job snapshot for polling callers.
func (h *JobHandler) Status(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":              job.ID,
		"status":              job.Status,
		"company_name":        job.CompanyName,
		"transaction_type":    job.TransactionType,
		"total_files":         job.FileCount,
		"processed_files":     job.ProcessedFiles(),
		"successful_files":    job.SuccessfulFiles(),
		"progress_percentage": job.Progress(),
		"error_msg":           job.ErrorMsg,
		"results":             job.Results,
		"created_at":          job.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"updated_at":          job.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// Ledger returns the synthesized ledger document as JSON.
func (h *JobHandler) Ledger(c *gin.Context) {
	doc, ok := h.synthesize(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, doc)
}

// LedgerXML returns the Tally import XML for a completed job.
func (h *JobHandler) LedgerXML(c *gin.Context) {
	doc, ok := h.synthesize(c)
	if !ok {
		return
	}

	data, err := service.RenderTallyXML(doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render XML: " + err.Error()})
		return
	}

	if h.archive != nil {
		// Archival is best-effort; the download still succeeds.
		if err := h.archive.StoreOutput(c.Request.Context(), c.Param("id"), "tally.xml", "application/xml", data); err != nil {
			slog.Warn("failed to archive ledger xml", "job_id", c.Param("id"), "error", err)
		}
	}

	c.Header("Content-Disposition", `attachment; filename="tally.xml"`)
	c.Data(http.StatusOK, "application/xml", data)
}

// ExportCSV returns the tabular export for a job.
func (h *JobHandler) ExportCSV(c *gin.Context) {
	job, err := h.jobs.GetCompletedJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeJobError(c, err)
		return
	}

	data, err := service.RenderCSV(job)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render CSV: " + err.Error()})
		return
	}

	if h.archive != nil {
		if err := h.archive.StoreOutput(c.Request.Context(), job.ID, "export.csv", "text/csv", data); err != nil {
			slog.Warn("failed to archive csv export", "job_id", job.ID, "error", err)
		}
	}

	c.Header("Content-Disposition", `attachment; filename="export.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

func (h *JobHandler) synthesize(c *gin.Context) (*model.LedgerDocument, bool) {
	job, err := h.jobs.GetCompletedJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeJobError(c, err)
		return nil, false
	}
	return h.synth.Synthesize(job), true
}

func (h *JobHandler) writeJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, service.ErrJobNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "Job not completed yet"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
