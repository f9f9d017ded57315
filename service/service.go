package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"audio-moderation/constant"
	"audio-moderation/dto"
	"audio-moderation/entities"
	"audio-moderation/pkg/asr"
	"audio-moderation/pkg/events"
	"audio-moderation/pkg/label"
	"audio-moderation/pkg/media"
	"audio-moderation/pkg/principal"
	"audio-moderation/pkg/storage"
	"audio-moderation/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Upload is one file of a batch submission.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type SweepReport struct {
	Matched      int `json:"matched"`
	Deleted      int `json:"deleted"`
	FileFailures int `json:"file_failures"`
}

type ResetReport struct {
	DeletedJobs  int `json:"deleted_jobs"`
	FileFailures int `json:"file_failures"`
}

type Service interface {
	Submit(ctx context.Context, pr principal.Principal, uploads []Upload) []dto.SubmitResult
	List(ctx context.Context, pr principal.Principal, limit int) ([]dto.JobSummary, error)
	Get(ctx context.Context, pr principal.Principal, id uuid.UUID) (dto.JobDetail, error)
	Delete(ctx context.Context, pr principal.Principal, id uuid.UUID) error
	Export(ctx context.Context, pr principal.Principal, id uuid.UUID) (dto.ExportPayload, error)
	Sweep(ctx context.Context, olderThan time.Duration, status constant.JobStatus, dryRun bool) (SweepReport, error)
	ResetPrincipal(ctx context.Context, pr principal.Principal) (ResetReport, error)
}

type Dependencies struct {
	Repo       repository.JobRepository
	Store      *storage.LocalStore
	Normalizer media.Normalizer
	Engine     asr.Engine
	Classifier label.Classifier
	Archiver   *storage.Archiver
	Events     events.Publisher
}

type service struct {
	repo       repository.JobRepository
	store      *storage.LocalStore
	normalizer media.Normalizer
	engine     asr.Engine
	classifier label.Classifier
	archiver   *storage.Archiver
	events     events.Publisher
}

func New(deps Dependencies) Service {
	ev := deps.Events
	if ev == nil {
		ev = events.NewNoopPublisher()
	}
	return &service{
		repo:       deps.Repo,
		store:      deps.Store,
		normalizer: deps.Normalizer,
		engine:     deps.Engine,
		classifier: deps.Classifier,
		archiver:   deps.Archiver,
		events:     ev,
	}
}

// Submit validates each file independently, persists a PENDING record
// per accepted file and launches its pipeline concurrently. It returns
// as soon as every accepted job is launched; pipeline execution is
// asynchronous.
func (s *service) Submit(ctx context.Context, pr principal.Principal, uploads []Upload) []dto.SubmitResult {
	results := make([]dto.SubmitResult, 0, len(uploads))

	for _, up := range uploads {
		if !constant.AllowedUpload(up.Filename, up.ContentType) {
			results = append(results, dto.SubmitResult{
				Filename: up.Filename,
				Error:    fmt.Sprintf("unsupported file type: %q, please upload an audio or video file", up.Filename),
			})
			continue
		}

		absPath, storedName, err := s.store.SaveUpload(up.Reader, up.Filename)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("filename", up.Filename).Msg("failed to save upload")
			results = append(results, dto.SubmitResult{
				Filename: up.Filename,
				Error:    fmt.Sprintf("upload error: %v", err),
			})
			continue
		}

		job := &entities.UploadJob{
			ID:           uuid.New(),
			Status:       constant.JobStatusPending,
			UploadPath:   absPath,
			UploadRel:    s.store.Rel(absPath),
			OriginalName: up.Filename,
			StoredName:   storedName,
			CreatedAt:    time.Now().UTC(),
		}
		if pr.IsAuthenticated() {
			uid := pr.UserID
			job.UserID = &uid
		} else {
			key := pr.SessionKey
			job.SessionKey = &key
		}

		if err := s.repo.Create(ctx, job); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("filename", up.Filename).Msg("failed to create job")
			s.store.Remove(ctx, absPath)
			results = append(results, dto.SubmitResult{
				Filename: up.Filename,
				Error:    "failed to create job",
			})
			continue
		}

		s.events.Publish(ctx, events.JobEvent{
			JobId:      job.ID,
			Status:     constant.JobStatusPending,
			OccurredAt: job.CreatedAt,
		})

		// detach from the request context: the pipeline outlives the
		// submission response and has no cancellation path
		bgCtx := zerolog.Ctx(ctx).WithContext(context.Background())
		go s.runPipeline(bgCtx, job.ID)

		size := up.Size
		id := job.ID
		results = append(results, dto.SubmitResult{
			ID:       &id,
			Filename: up.Filename,
			Size:     &size,
		})
	}

	return results
}

func (s *service) List(ctx context.Context, pr principal.Principal, limit int) ([]dto.JobSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	jobs, err := s.repo.ListByOwner(ctx, pr.UserID, pr.SessionKey, limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]dto.JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, dto.NewJobSummary(job))
	}
	return summaries, nil
}

// authorize loads a job and re-checks ownership; listing filters alone
// are not enough against guessed or enumerated ids.
func (s *service) authorize(ctx context.Context, pr principal.Principal, id uuid.UUID) (*entities.UploadJob, error) {
	job, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !job.OwnedBy(pr.UserID, pr.SessionKey) {
		return nil, ErrForbidden
	}
	return job, nil
}

func (s *service) Get(ctx context.Context, pr principal.Principal, id uuid.UUID) (dto.JobDetail, error) {
	job, err := s.authorize(ctx, pr, id)
	if err != nil {
		return dto.JobDetail{}, err
	}
	return dto.NewJobDetail(job), nil
}

func (s *service) Delete(ctx context.Context, pr principal.Principal, id uuid.UUID) error {
	job, err := s.authorize(ctx, pr, id)
	if err != nil {
		return err
	}
	_, err = s.destroy(ctx, job)
	return err
}

// destroy is the single deletion primitive every path routes through:
// artifacts go first, then the row. Artifact failures are advisory.
func (s *service) destroy(ctx context.Context, job *entities.UploadJob) (fileFailures int, err error) {
	paths := []string{job.UploadPath}
	if job.NormalizedPath != nil {
		paths = append(paths, *job.NormalizedPath)
	} else {
		paths = append(paths, s.store.NormalizedPathFor(job.StoredName))
	}
	paths = append(paths, s.store.TranscriptPathFor(job.ID))

	fileFailures = s.store.Remove(ctx, paths...)
	s.archiver.RemoveJob(ctx, job.ID)

	if err := s.repo.Delete(ctx, job.ID); err != nil {
		return fileFailures, err
	}
	return fileFailures, nil
}

func (s *service) Export(ctx context.Context, pr principal.Principal, id uuid.UUID) (dto.ExportPayload, error) {
	job, err := s.authorize(ctx, pr, id)
	if err != nil {
		return dto.ExportPayload{}, err
	}
	if job.Status != constant.JobStatusSuccess {
		return dto.ExportPayload{}, ErrNotFinished
	}

	text := ""
	if job.FullText != nil {
		text = *job.FullText
	}
	if text == "" {
		// records predating the full_text column: re-read the cached
		// transcript artifact, best-effort
		var transcript asr.Transcript
		if err := s.store.ReadTranscript(job.ID, &transcript); err == nil {
			text = transcript.Text
		}
	}

	return dto.ExportPayload{
		JobID:          job.ID,
		Filename:       job.Filename(),
		TranscriptText: text,
		Flags:          dto.NewFlags(job.Labels),
	}, nil
}
