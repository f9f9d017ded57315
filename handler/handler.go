package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"audio-moderation/dto"
	"audio-moderation/pkg/principal"
	"audio-moderation/service"
)

type Handler struct {
	svc         service.Service
	maxUploadMB int64
}

func New(svc service.Service, maxUploadMB int64) *Handler {
	return &Handler{svc: svc, maxUploadMB: maxUploadMB}
}

func (h *Handler) Register(api *gin.RouterGroup) {
	api.GET("/ping", h.Ping)
	api.POST("/jobs/bulk", h.Bulk)
	api.GET("/jobs", h.List)
	api.GET("/jobs/:id", h.Get)
	api.DELETE("/jobs/:id", h.Delete)
	api.GET("/jobs/:id/data", h.Data)
	api.GET("/jobs/:id/export", h.Export)
	api.GET("/reset-session", h.ResetSession)
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "backend"})
}

// Bulk accepts a multipart batch under the "files" field and responds
// 202 with a per-file accept/reject list. Pipeline execution continues
// after the response.
func (h *Handler) Bulk(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid multipart form", "code": "bad_form"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No files provided.", "code": "no_files"})
		return
	}

	maxBytes := h.maxUploadMB * 1024 * 1024
	pr := principal.FromContext(c)
	uploads := make([]service.Upload, 0, len(files))
	rejected := make([]dto.SubmitResult, 0)
	var closers []interface{ Close() error }

	for _, fh := range files {
		if maxBytes > 0 && fh.Size > maxBytes {
			rejected = append(rejected, dto.SubmitResult{
				Filename: fh.Filename,
				Error:    fmt.Sprintf("file too large (max %dMB)", h.maxUploadMB),
			})
			continue
		}
		f, err := fh.Open()
		if err != nil {
			rejected = append(rejected, dto.SubmitResult{
				Filename: fh.Filename,
				Error:    fmt.Sprintf("upload error: %v", err),
			})
			continue
		}
		closers = append(closers, f)
		uploads = append(uploads, service.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Reader:      f,
		})
	}

	results := h.svc.Submit(c.Request.Context(), pr, uploads)
	for _, f := range closers {
		if err := f.Close(); err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("failed to close upload")
		}
	}

	c.JSON(http.StatusAccepted, dto.BulkResponse{Jobs: append(results, rejected...)})
}

func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	jobs, err := h.svc.List(c.Request.Context(), principal.FromContext(c), limit)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	job, err := h.svc.Get(c.Request.Context(), principal.FromContext(c), id)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), principal.FromContext(c), id); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Data returns the flags payload for UI consumption; null span timings
// are coerced to 0.0 so the table always renders.
func (h *Handler) Data(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	payload, err := h.svc.Export(c.Request.Context(), principal.FromContext(c), id)
	if err != nil {
		abortWith(c, err)
		return
	}

	flags := make([]gin.H, 0, len(payload.Flags))
	for _, f := range payload.Flags {
		flags = append(flags, gin.H{
			"label":     f.Label,
			"text":      f.Text,
			"start_sec": coerce(f.StartSec),
			"end_sec":   coerce(f.EndSec),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":          payload.JobID,
		"filename":        payload.Filename,
		"transcript_text": payload.TranscriptText,
		"flags":           flags,
	})
}

// Export returns the payload as a JSON attachment.
func (h *Handler) Export(c *gin.Context) {
	id, ok := jobID(c)
	if !ok {
		return
	}
	payload, err := h.svc.Export(c.Request.Context(), principal.FromContext(c), id)
	if err != nil {
		abortWith(c, err)
		return
	}

	stem := payload.Filename
	if i := strings.LastIndex(stem, "."); i > 0 {
		stem = stem[:i]
	}
	if stem == "" {
		stem = "job"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stem+"-transcript.json"))
	c.JSON(http.StatusOK, payload)
}

// ResetSession purges all of the caller's jobs; an anonymous caller
// additionally gets a fresh session token.
func (h *Handler) ResetSession(c *gin.Context) {
	pr := principal.FromContext(c)
	report, err := h.svc.ResetPrincipal(c.Request.Context(), pr)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to reset principal")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}
	principal.Rotate(c)

	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"deleted_jobs":  report.DeletedJobs,
		"file_failures": report.FileFailures,
	})
}

func jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return uuid.Nil, false
	}
	return id, true
}

func abortWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"detail": "You do not have permission to perform this action."})
	case errors.Is(err, service.ErrNotFinished):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Job not finished."})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
	}
}

func coerce(v *float64) float64 {
	if v == nil {
		return 0.0
	}
	return *v
}
