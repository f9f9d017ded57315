package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
)

const (
	archiveNormalizedObject = "normalized.wav"
	archiveTranscriptObject = "transcript.json"
)

// Archiver mirrors a finished job's derived artifacts to object
// storage under jobs/<id>/. A nil *Archiver disables archiving; all
// methods are nil-receiver safe.
type Archiver struct {
	client *minio.Client
	bucket string
}

func NewArchiver(client *minio.Client, bucket string) *Archiver {
	if client == nil || bucket == "" {
		return nil
	}
	return &Archiver{client: client, bucket: bucket}
}

func objectKey(jobID uuid.UUID, name string) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, name)
}

// ArchiveJob uploads the normalized audio and cached transcript.
// Failures are logged and swallowed; archiving never fails a job.
func (a *Archiver) ArchiveJob(ctx context.Context, jobID uuid.UUID, normalizedPath, transcriptPath string) {
	if a == nil {
		return
	}
	for name, path := range map[string]string{
		archiveNormalizedObject: normalizedPath,
		archiveTranscriptObject: transcriptPath,
	} {
		if path == "" {
			continue
		}
		_, err := a.client.FPutObject(ctx, a.bucket, objectKey(jobID, name), path, minio.PutObjectOptions{})
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("job_id", jobID.String()).Str("object", name).Msg("failed to archive artifact")
		}
	}
}

// RemoveJob deletes the mirrored objects, best-effort.
func (a *Archiver) RemoveJob(ctx context.Context, jobID uuid.UUID) {
	if a == nil {
		return
	}
	for _, name := range []string{archiveNormalizedObject, archiveTranscriptObject} {
		err := a.client.RemoveObject(ctx, a.bucket, objectKey(jobID, name), minio.RemoveObjectOptions{})
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("job_id", jobID.String()).Str("object", name).Msg("failed to remove archived artifact")
		}
	}
}
