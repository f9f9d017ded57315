package entities

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"audio-moderation/constant"
)

// LabeledSpan is one classified transcript segment. Start/End are nil
// when the segment carried no word-level timings.
type LabeledSpan struct {
	Label string   `json:"label"`
	Text  string   `json:"text"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

// UploadJob tracks one upload through the moderation pipeline. Exactly
// one of UserID/SessionKey is set and identifies the owning principal.
type UploadJob struct {
	ID         uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     *string            `json:"user_id" gorm:"type:varchar(64);index:idx_upload_jobs_user"`
	SessionKey *string            `json:"session_key" gorm:"type:varchar(64);index:idx_upload_jobs_session"`
	Status     constant.JobStatus `json:"status" gorm:"type:varchar(16);not null;default:'PENDING';index:idx_upload_jobs_status"`

	UploadPath     string  `json:"upload_path" gorm:"type:text;not null"`
	NormalizedPath *string `json:"normalized_path" gorm:"type:text"`
	UploadRel      string  `json:"upload_rel" gorm:"type:varchar(512)"`
	NormalizedRel  *string `json:"normalized_rel" gorm:"type:varchar(512)"`

	OriginalName string `json:"original_name" gorm:"type:varchar(255)"`
	StoredName   string `json:"stored_name" gorm:"type:varchar(255);not null"`

	SrcSize     *int64   `json:"src_size" gorm:"type:bigint"`
	WavSize     *int64   `json:"wav_size" gorm:"type:bigint"`
	DurationSec *float64 `json:"duration_sec"`

	FullText *string       `json:"full_text" gorm:"type:text"`
	Labels   []LabeledSpan `json:"labels" gorm:"serializer:json"`
	Error    *string       `json:"error" gorm:"type:text"`

	CreatedAt  time.Time  `json:"created_at" gorm:"not null"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

func (UploadJob) TableName() string {
	return "upload_jobs"
}

// OwnedBy checks the job against a resolved principal. Ownership is the
// sole authorization predicate for per-job operations.
func (j *UploadJob) OwnedBy(userID, sessionKey string) bool {
	if j.UserID != nil {
		return userID != "" && *j.UserID == userID
	}
	if j.SessionKey != nil {
		return sessionKey != "" && *j.SessionKey == sessionKey
	}
	return false
}

// Filename returns the best display name for the job.
func (j *UploadJob) Filename() string {
	if j.OriginalName != "" {
		return j.OriginalName
	}
	if j.UploadRel != "" {
		return filepath.Base(j.UploadRel)
	}
	if j.UploadPath != "" {
		return filepath.Base(j.UploadPath)
	}
	return j.StoredName
}

// PipelineResult carries everything the executor writes back on SUCCESS.
type PipelineResult struct {
	NormalizedPath string
	NormalizedRel  string
	SrcSize        int64
	WavSize        int64
	DurationSec    float64
	FullText       string
	Labels         []LabeledSpan
}
