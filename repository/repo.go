package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"audio-moderation/constant"
	"audio-moderation/entities"
)

// ErrNoRows is returned when a job id does not exist.
var ErrNoRows = errors.New("job not found")

// ErrInvalidTransition is returned when a status update would violate
// the PENDING -> RUNNING -> {SUCCESS, FAILED} state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

type JobRepository interface {
	Create(ctx context.Context, job *entities.UploadJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entities.UploadJob, error)
	ListByOwner(ctx context.Context, userID, sessionKey string, limit int) ([]*entities.UploadJob, error)
	FindAllByOwner(ctx context.Context, userID, sessionKey string) ([]*entities.UploadJob, error)
	FindOlderThan(ctx context.Context, cutoff time.Time, status constant.JobStatus) ([]*entities.UploadJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	MarkSuccess(ctx context.Context, id uuid.UUID, res entities.PipelineResult, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, finishedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) (JobRepository, error) {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	if err != nil {
		return nil, err
	}
	return NewWithGorm(gormDB)
}

// NewWithGorm wraps an already-open gorm handle. Tests use this with an
// in-memory sqlite database.
func NewWithGorm(db *gorm.DB) (JobRepository, error) {
	if err := db.AutoMigrate(&entities.UploadJob{}); err != nil {
		return nil, err
	}
	return &repo{db: db}, nil
}

func (r *repo) Create(ctx context.Context, job *entities.UploadJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repo) FindByID(ctx context.Context, id uuid.UUID) (*entities.UploadJob, error) {
	job := &entities.UploadJob{}
	err := r.db.WithContext(ctx).First(job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repo) ownerScope(userID, sessionKey string) *gorm.DB {
	if userID != "" {
		return r.db.Where("user_id = ?", userID)
	}
	return r.db.Where("session_key = ?", sessionKey)
}

func (r *repo) ListByOwner(ctx context.Context, userID, sessionKey string, limit int) ([]*entities.UploadJob, error) {
	var jobs []*entities.UploadJob
	err := r.ownerScope(userID, sessionKey).WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) FindAllByOwner(ctx context.Context, userID, sessionKey string) ([]*entities.UploadJob, error) {
	var jobs []*entities.UploadJob
	err := r.ownerScope(userID, sessionKey).WithContext(ctx).Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) FindOlderThan(ctx context.Context, cutoff time.Time, status constant.JobStatus) ([]*entities.UploadJob, error) {
	q := r.db.WithContext(ctx).Where("created_at < ?", cutoff)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var jobs []*entities.UploadJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkRunning claims a PENDING job for execution. The status guard in the
// WHERE clause makes the transition safe against a double-started executor.
func (r *repo) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&entities.UploadJob{}).
		Where("id = ? AND status = ?", id, constant.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     constant.JobStatusRunning,
			"started_at": startedAt,
		})
	return r.transitionErr(ctx, res, id)
}

// MarkSuccess writes the terminal state and every result field in a
// single update so no reader observes SUCCESS with missing results.
func (r *repo) MarkSuccess(ctx context.Context, id uuid.UUID, pres entities.PipelineResult, finishedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&entities.UploadJob{ID: id}).
		Where("id = ? AND status = ?", id, constant.JobStatusRunning).
		Select("status", "normalized_path", "normalized_rel", "src_size",
			"wav_size", "duration_sec", "full_text", "labels", "finished_at").
		Updates(&entities.UploadJob{
			Status:         constant.JobStatusSuccess,
			NormalizedPath: &pres.NormalizedPath,
			NormalizedRel:  &pres.NormalizedRel,
			SrcSize:        &pres.SrcSize,
			WavSize:        &pres.WavSize,
			DurationSec:    &pres.DurationSec,
			FullText:       &pres.FullText,
			Labels:         pres.Labels,
			FinishedAt:     &finishedAt,
		})
	return r.transitionErr(ctx, res, id)
}

func (r *repo) MarkFailed(ctx context.Context, id uuid.UUID, reason string, finishedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&entities.UploadJob{}).
		Where("id = ? AND status = ?", id, constant.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":      constant.JobStatusFailed,
			"error":       reason,
			"finished_at": finishedAt,
		})
	return r.transitionErr(ctx, res, id)
}

func (r *repo) transitionErr(ctx context.Context, res *gorm.DB, id uuid.UUID) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); errors.Is(err, ErrNoRows) {
			return ErrNoRows
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&entities.UploadJob{}, "id = ?", id).Error
}
