package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"audio-moderation/constant"
	"audio-moderation/pkg/principal"
)

// Sweep deletes records older than the retention window, optionally
// filtered by status. It is the only path that operates across all
// principals. A single record's failure never aborts the rest of the
// sweep.
func (s *service) Sweep(ctx context.Context, olderThan time.Duration, status constant.JobStatus, dryRun bool) (SweepReport, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	jobs, err := s.repo.FindOlderThan(ctx, cutoff, status)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Matched: len(jobs)}
	if dryRun {
		zerolog.Ctx(ctx).Info().Int("matched", report.Matched).Time("cutoff", cutoff).Msg("sweep dry run")
		return report, nil
	}

	for _, job := range jobs {
		failures, err := s.destroy(ctx, job)
		report.FileFailures += failures
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to delete job during sweep")
			continue
		}
		report.Deleted++
	}

	zerolog.Ctx(ctx).Info().Int("deleted", report.Deleted).Int("matched", report.Matched).Time("cutoff", cutoff).Msg("sweep complete")
	return report, nil
}

// ResetPrincipal purges every job owned by the principal. Rotating the
// anonymous session token afterwards is the caller's concern; an
// authenticated user's identity is never touched.
func (s *service) ResetPrincipal(ctx context.Context, pr principal.Principal) (ResetReport, error) {
	jobs, err := s.repo.FindAllByOwner(ctx, pr.UserID, pr.SessionKey)
	if err != nil {
		return ResetReport{}, err
	}

	report := ResetReport{}
	for _, job := range jobs {
		failures, err := s.destroy(ctx, job)
		report.FileFailures += failures
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to delete job during reset")
			continue
		}
		report.DeletedJobs++
	}

	return report, nil
}
