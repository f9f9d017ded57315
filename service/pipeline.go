package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"audio-moderation/constant"
	"audio-moderation/entities"
	"audio-moderation/pkg/asr"
	"audio-moderation/pkg/events"
)

// runPipeline executes the four-stage pipeline for one job and always
// leaves the record in a terminal state: any error or panic inside the
// boundary becomes a FAILED write, never a record stuck in RUNNING.
func (s *service) runPipeline(ctx context.Context, jobID uuid.UUID) {
	logger := zerolog.Ctx(ctx).With().Str("job_id", jobID.String()).Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("pipeline panicked")
			s.failJob(ctx, jobID, fmt.Sprintf("pipeline fault: panic: %v", r))
		}
	}()

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load job")
		return
	}
	if job.Status != constant.JobStatusPending {
		logger.Info().Str("status", job.Status.String()).Msg("job is not pending")
		return
	}

	if err := s.repo.MarkRunning(ctx, jobID, time.Now().UTC()); err != nil {
		logger.Error().Err(err).Msg("failed to mark job running")
		return
	}

	res, runErr := s.execute(ctx, job)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("pipeline failed")
		s.failJob(ctx, jobID, failureReason(runErr))
		return
	}

	if err := s.repo.MarkSuccess(ctx, jobID, *res, time.Now().UTC()); err != nil {
		logger.Error().Err(err).Msg("failed to mark job success")
		return
	}

	s.archiver.ArchiveJob(ctx, jobID, res.NormalizedPath, s.store.TranscriptPathFor(jobID))
	s.events.Publish(ctx, events.JobEvent{
		JobId:      jobID,
		Status:     constant.JobStatusSuccess,
		OccurredAt: time.Now().UTC(),
	})
	logger.Info().Float64("duration_sec", res.DurationSec).Int("spans", len(res.Labels)).Msg("job completed")
}

func (s *service) failJob(ctx context.Context, jobID uuid.UUID, reason string) {
	if err := s.repo.MarkFailed(ctx, jobID, reason, time.Now().UTC()); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to mark job failed")
		return
	}
	s.events.Publish(ctx, events.JobEvent{
		JobId:      jobID,
		Status:     constant.JobStatusFailed,
		Error:      reason,
		OccurredAt: time.Now().UTC(),
	})
}

// execute runs the sequential stages: normalize, transcribe, resolve
// segment timings, classify.
func (s *service) execute(ctx context.Context, job *entities.UploadJob) (*entities.PipelineResult, error) {
	logger := zerolog.Ctx(ctx)

	normPath := s.store.NormalizedPathFor(job.StoredName)
	logger.Info().Str("stage", "normalize").Str("output", normPath).Send()
	if err := s.normalizer.Normalize(ctx, job.UploadPath, normPath); err != nil {
		return nil, err
	}

	logger.Info().Str("stage", "transcribe").Send()
	transcript, err := s.engine.Transcribe(ctx, normPath)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.WriteTranscript(job.ID, transcript); err != nil {
		// cache is an optimization for exports, not part of the result
		logger.Warn().Err(err).Msg("failed to cache transcript")
	}

	texts := make([]string, len(transcript.Segments))
	for i, seg := range transcript.Segments {
		texts[i] = seg.Text
	}

	logger.Info().Str("stage", "classify").Int("segments", len(texts)).Send()
	if err := s.classifier.Load(ctx); err != nil {
		return nil, err
	}
	labels, err := s.classifier.Predict(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(labels) != len(texts) {
		return nil, fmt.Errorf("classifier returned %d labels for %d segments", len(labels), len(texts))
	}

	spans := make([]entities.LabeledSpan, len(transcript.Segments))
	maxEnd := 0.0
	for i, seg := range transcript.Segments {
		start, end := resolveTiming(seg.Words)
		spans[i] = entities.LabeledSpan{
			Label: labels[i],
			Text:  seg.Text,
			Start: start,
			End:   end,
		}
		if seg.End > maxEnd {
			maxEnd = seg.End
		}
	}

	duration := maxEnd
	if duration == 0 {
		// no segment timings at all, fall back to the header duration
		duration = transcript.DurationSec
	}

	srcSize := fileSize(job.UploadPath)
	wavSize := fileSize(normPath)

	return &entities.PipelineResult{
		NormalizedPath: normPath,
		NormalizedRel:  s.store.Rel(normPath),
		SrcSize:        srcSize,
		WavSize:        wavSize,
		DurationSec:    duration,
		FullText:       joinSegments(texts),
		Labels:         spans,
	}, nil
}

// resolveTiming derives span timing from word-level stamps: first
// word's start, last word's end. Without word stamps the span carries
// null timing rather than a guess.
func resolveTiming(words []asr.Word) (*float64, *float64) {
	if len(words) == 0 {
		return nil, nil
	}
	start := words[0].Start
	end := words[len(words)-1].End
	return &start, &end
}

func joinSegments(texts []string) string {
	trimmed := make([]string, 0, len(texts))
	for _, t := range texts {
		trimmed = append(trimmed, strings.TrimSpace(t))
	}
	return strings.TrimSpace(strings.Join(trimmed, " "))
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
