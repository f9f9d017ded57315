package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"audio-moderation/constant"
	"audio-moderation/entities"
	"audio-moderation/pkg/asr"
	"audio-moderation/pkg/label"
	"audio-moderation/pkg/media"
	"audio-moderation/pkg/principal"
	"audio-moderation/pkg/storage"
	"audio-moderation/repository"
)

// copyNormalizer stands in for ffmpeg: it copies the input bytes to
// the normalized path.
type copyNormalizer struct{}

func (copyNormalizer) Normalize(_ context.Context, inputPath, outputPath string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

type failingNormalizer struct{}

func (failingNormalizer) Normalize(_ context.Context, inputPath, _ string) error {
	return &media.ConversionError{Input: inputPath, Detail: "ensure it is a valid audio or video file"}
}

type fakeEngine struct {
	transcript *asr.Transcript
	err        error
}

func (e *fakeEngine) Transcribe(context.Context, string) (*asr.Transcript, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.transcript, nil
}

type panickyEngine struct{}

func (panickyEngine) Transcribe(context.Context, string) (*asr.Transcript, error) {
	panic("model state corrupted")
}

func testTranscript() *asr.Transcript {
	return &asr.Transcript{
		Engine:      "fake",
		Text:        "hello world this is damn rude",
		DurationSec: 10.0,
		SampleRate:  16000,
		Segments: []asr.Segment{
			{
				Text:  "hello world",
				Start: 0.0,
				End:   1.5,
				Words: []asr.Word{
					{Text: "hello", Start: 0.5, End: 0.9},
					{Text: "world", Start: 1.0, End: 1.4},
				},
			},
			{
				Text:  "this is damn rude",
				Start: 2.0,
				End:   9.8,
			},
		},
	}
}

type testEnv struct {
	svc   Service
	repo  repository.JobRepository
	store *storage.LocalStore
	db    *gorm.DB
}

func (env *testEnv) clearFullText(t *testing.T, id uuid.UUID) {
	t.Helper()
	tx := env.db.Model(&entities.UploadJob{}).Where("id = ?", id).Update("full_text", "")
	require.NoError(t, tx.Error)
	require.EqualValues(t, 1, tx.RowsAffected)
}

func newTestEnv(t *testing.T, engine asr.Engine, normalizer media.Normalizer) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	repo, err := repository.NewWithGorm(db)
	require.NoError(t, err)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	svc := New(Dependencies{
		Repo:       repo,
		Store:      store,
		Normalizer: normalizer,
		Engine:     engine,
		Classifier: label.NewLexiconClassifier(""),
	})
	return &testEnv{svc: svc, repo: repo, store: store, db: db}
}

func submitOne(t *testing.T, env *testEnv, pr principal.Principal, filename string) uuid.UUID {
	t.Helper()
	results := env.svc.Submit(context.Background(), pr, []Upload{{
		Filename:    filename,
		ContentType: "",
		Size:        32,
		Reader:      bytes.NewReader([]byte("fake media payload for testing")),
	}})
	require.Len(t, results, 1)
	require.Empty(t, results[0].Error)
	require.NotNil(t, results[0].ID)
	return *results[0].ID
}

func waitTerminal(t *testing.T, env *testEnv, id uuid.UUID) *entities.UploadJob {
	t.Helper()
	var job *entities.UploadJob
	require.Eventually(t, func() bool {
		got, err := env.repo.FindByID(context.Background(), id)
		if err != nil {
			return false
		}
		job = got
		return got.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestPipelineSuccess(t *testing.T) {
	env := newTestEnv(t, &fakeEngine{transcript: testTranscript()}, copyNormalizer{})
	pr := principal.Principal{SessionKey: "sess-1"}

	id := submitOne(t, env, pr, "clip.wav")
	job := waitTerminal(t, env, id)

	require.Equal(t, constant.JobStatusSuccess, job.Status)
	assert.Nil(t, job.Error)
	require.NotNil(t, job.FullText)
	assert.Equal(t, "hello world this is damn rude", *job.FullText)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)

	// one labeled span per segment, in segment order
	require.Len(t, job.Labels, 2)
	assert.Equal(t, "hello world", job.Labels[0].Text)
	assert.Equal(t, "this is damn rude", job.Labels[1].Text)
	assert.Equal(t, "neutral", job.Labels[0].Label)
	assert.Equal(t, "bad language", job.Labels[1].Label)

	// word timings resolve to first-word start / last-word end
	require.NotNil(t, job.Labels[0].Start)
	require.NotNil(t, job.Labels[0].End)
	assert.InDelta(t, 0.5, *job.Labels[0].Start, 0.001)
	assert.InDelta(t, 1.4, *job.Labels[0].End, 0.001)

	// no word timings means null span timing, never a guess
	assert.Nil(t, job.Labels[1].Start)
	assert.Nil(t, job.Labels[1].End)

	// duration comes from the longest observed segment end
	require.NotNil(t, job.DurationSec)
	assert.InDelta(t, 9.8, *job.DurationSec, 0.001)

	require.NotNil(t, job.SrcSize)
	require.NotNil(t, job.WavSize)
	assert.Positive(t, *job.SrcSize)
	assert.Positive(t, *job.WavSize)
	require.NotNil(t, job.NormalizedPath)
	assert.FileExists(t, *job.NormalizedPath)
	assert.FileExists(t, env.store.TranscriptPathFor(job.ID))
}

func TestPipelineDurationFallsBackToHeader(t *testing.T) {
	transcript := &asr.Transcript{
		Engine:      "fake",
		Text:        "short",
		DurationSec: 4.2,
		Segments:    []asr.Segment{{Text: "short"}},
	}
	env := newTestEnv(t, &fakeEngine{transcript: transcript}, copyNormalizer{})

	id := submitOne(t, env, principal.Principal{SessionKey: "sess-1"}, "clip.wav")
	job := waitTerminal(t, env, id)

	require.Equal(t, constant.JobStatusSuccess, job.Status)
	require.NotNil(t, job.DurationSec)
	assert.InDelta(t, 4.2, *job.DurationSec, 0.001)
}

func TestPipelineConversionFailure(t *testing.T) {
	env := newTestEnv(t, &fakeEngine{transcript: testTranscript()}, failingNormalizer{})

	id := submitOne(t, env, principal.Principal{SessionKey: "sess-1"}, "corrupt.mp3")
	job := waitTerminal(t, env, id)

	require.Equal(t, constant.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "conversion failed")
	assert.Nil(t, job.FullText)
	assert.Nil(t, job.Labels)
	require.NotNil(t, job.FinishedAt)
}

func TestPipelineEngineUnavailable(t *testing.T) {
	engine := &fakeEngine{err: fmt.Errorf("%w: model weights missing", asr.ErrEngineUnavailable)}
	env := newTestEnv(t, engine, copyNormalizer{})

	id := submitOne(t, env, principal.Principal{SessionKey: "sess-1"}, "clip.wav")
	job := waitTerminal(t, env, id)

	require.Equal(t, constant.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "ASR resources not available")
	assert.Nil(t, job.FullText)
}

func TestPipelinePanicStillReachesTerminalState(t *testing.T) {
	env := newTestEnv(t, panickyEngine{}, copyNormalizer{})

	id := submitOne(t, env, principal.Principal{SessionKey: "sess-1"}, "clip.wav")
	job := waitTerminal(t, env, id)

	require.Equal(t, constant.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "panic")
}
