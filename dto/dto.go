package dto

import (
	"time"

	"github.com/google/uuid"

	"audio-moderation/constant"
	"audio-moderation/entities"
	"audio-moderation/pkg/label"
)

// SubmitResult is the per-file outcome of a bulk submission: either an
// accepted job id or a rejection reason, never both.
type SubmitResult struct {
	ID       *uuid.UUID `json:"id,omitempty"`
	Filename string     `json:"filename"`
	Size     *int64     `json:"size,omitempty"`
	Error    string     `json:"error,omitempty"`
}

type BulkResponse struct {
	Jobs []SubmitResult `json:"jobs"`
}

type JobSummary struct {
	ID          uuid.UUID          `json:"id"`
	Status      constant.JobStatus `json:"status"`
	Error       *string            `json:"error"`
	CreatedAt   time.Time          `json:"created_at"`
	Filename    string             `json:"filename"`
	SrcSize     *int64             `json:"src_size"`
	WavSize     *int64             `json:"wav_size"`
	DurationSec *float64           `json:"duration_sec"`
}

type JobDetail struct {
	JobSummary
	StartedAt     *time.Time             `json:"started_at"`
	FinishedAt    *time.Time             `json:"finished_at"`
	UploadRel     string                 `json:"upload_rel"`
	NormalizedRel *string                `json:"normalized_rel"`
	FullText      *string                `json:"full_text"`
	Labels        []entities.LabeledSpan `json:"labels"`
	OriginalName  string                 `json:"original_name"`
	StoredName    string                 `json:"stored_name"`
}

type Flag struct {
	Label    string   `json:"label"`
	Text     string   `json:"text"`
	StartSec *float64 `json:"start_sec"`
	EndSec   *float64 `json:"end_sec"`
}

// ExportPayload is the self-contained transcript-plus-flags document.
type ExportPayload struct {
	JobID          uuid.UUID `json:"job_id"`
	Filename       string    `json:"filename"`
	TranscriptText string    `json:"transcript_text"`
	Flags          []Flag    `json:"flags"`
}

func NewJobSummary(job *entities.UploadJob) JobSummary {
	return JobSummary{
		ID:          job.ID,
		Status:      job.Status,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		Filename:    job.Filename(),
		SrcSize:     job.SrcSize,
		WavSize:     job.WavSize,
		DurationSec: job.DurationSec,
	}
}

// NewJobDetail exposes transcript and label content only on SUCCESS;
// for any other status those fields stay null even if present on the
// record.
func NewJobDetail(job *entities.UploadJob) JobDetail {
	detail := JobDetail{
		JobSummary:    NewJobSummary(job),
		StartedAt:     job.StartedAt,
		FinishedAt:    job.FinishedAt,
		UploadRel:     job.UploadRel,
		NormalizedRel: job.NormalizedRel,
		OriginalName:  job.OriginalName,
		StoredName:    job.StoredName,
	}
	if job.Status == constant.JobStatusSuccess {
		detail.FullText = job.FullText
		detail.Labels = job.Labels
	}
	return detail
}

// NewFlags converts labeled spans to export flags with display labels.
func NewFlags(spans []entities.LabeledSpan) []Flag {
	flags := make([]Flag, 0, len(spans))
	for _, span := range spans {
		flags = append(flags, Flag{
			Label:    label.Normalize(span.Label),
			Text:     span.Text,
			StartSec: span.Start,
			EndSec:   span.End,
		})
	}
	return flags
}
