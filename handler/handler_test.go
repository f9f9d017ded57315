package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"audio-moderation/constant"
	"audio-moderation/dto"
	"audio-moderation/pkg/asr"
	"audio-moderation/pkg/label"
	"audio-moderation/pkg/principal"
	"audio-moderation/pkg/storage"
	"audio-moderation/repository"
	"audio-moderation/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubNormalizer struct{}

func (stubNormalizer) Normalize(_ context.Context, inputPath, outputPath string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string) (*asr.Transcript, error) {
	return &asr.Transcript{
		Engine:      "stub",
		Text:        "hello this is damn rude",
		DurationSec: 3.5,
		Segments: []asr.Segment{
			{
				Text:  "hello",
				Start: 0.0,
				End:   1.0,
				Words: []asr.Word{{Text: "hello", Start: 0.1, End: 0.9}},
			},
			{Text: "this is damn rude", Start: 1.2, End: 3.5},
		},
	}, nil
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()

	dsn := fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	repo, err := repository.NewWithGorm(db)
	require.NoError(t, err)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	svc := service.New(service.Dependencies{
		Repo:       repo,
		Store:      store,
		Normalizer: stubNormalizer{},
		Engine:     stubTranscriber{},
		Classifier: label.NewLexiconClassifier(""),
	})

	r := gin.New()
	api := r.Group("/api")
	api.Use(principal.Middleware())
	New(svc, 50).Register(api)
	return r
}

// client pins an anonymous session across requests.
type client struct {
	r       *gin.Engine
	cookies []*http.Cookie
}

func newClient(r *gin.Engine) *client {
	return &client{r: r}
}

func (cl *client) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range cl.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	cl.r.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == principal.SessionCookie {
			cl.cookies = []*http.Cookie{ck}
		}
	}
	return w
}

func (cl *client) upload(t *testing.T, filenames ...string) dto.BulkResponse {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range filenames {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("fake media payload"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	w := cl.do(t, http.MethodPost, "/api/jobs/bulk", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp dto.BulkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (cl *client) waitSuccess(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		w := cl.do(t, http.MethodGet, "/api/jobs/"+id, nil, "")
		if w.Code != http.StatusOK {
			return false
		}
		var detail dto.JobDetail
		if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
			return false
		}
		return detail.Status == constant.JobStatusSuccess
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBulkAcceptsAndRejectsPerFile(t *testing.T) {
	r := newTestServer(t)
	cl := newClient(r)

	resp := cl.upload(t, "clip.wav", "notes.txt")
	require.Len(t, resp.Jobs, 2)

	assert.NotNil(t, resp.Jobs[0].ID)
	assert.Empty(t, resp.Jobs[0].Error)
	assert.Nil(t, resp.Jobs[1].ID)
	assert.Contains(t, resp.Jobs[1].Error, "unsupported")
}

func TestBulkRequiresFiles(t *testing.T) {
	r := newTestServer(t)
	cl := newClient(r)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())

	w := cl.do(t, http.MethodPost, "/api/jobs/bulk", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No files provided.")
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	r := newTestServer(t)
	cl := newClient(r)

	resp := cl.upload(t, "clip.wav")
	require.Len(t, resp.Jobs, 1)
	require.NotNil(t, resp.Jobs[0].ID)
	id := resp.Jobs[0].ID.String()

	cl.waitSuccess(t, id)

	// list shows the job
	w := cl.do(t, http.MethodGet, "/api/jobs", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var jobs []dto.JobSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, "clip.wav", jobs[0].Filename)

	// data coerces the missing second-segment timing to 0.0
	w = cl.do(t, http.MethodGet, "/api/jobs/"+id+"/data", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		TranscriptText string `json:"transcript_text"`
		Flags          []struct {
			Label    string  `json:"label"`
			StartSec float64 `json:"start_sec"`
		} `json:"flags"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	assert.Equal(t, "hello this is damn rude", data.TranscriptText)
	require.Len(t, data.Flags, 2)
	assert.Equal(t, "Bad language", data.Flags[1].Label)
	assert.Zero(t, data.Flags[1].StartSec)

	// export is an attachment named after the upload
	w = cl.do(t, http.MethodGet, "/api/jobs/"+id+"/export", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "clip-transcript.json")
	var payload dto.ExportPayload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, id, payload.JobID.String())

	// delete then 404
	w = cl.do(t, http.MethodDelete, "/api/jobs/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = cl.do(t, http.MethodGet, "/api/jobs/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsAreIsolated(t *testing.T) {
	r := newTestServer(t)
	alice := newClient(r)
	bob := newClient(r)

	resp := alice.upload(t, "clip.wav")
	require.NotNil(t, resp.Jobs[0].ID)
	id := resp.Jobs[0].ID.String()
	alice.waitSuccess(t, id)

	w := bob.do(t, http.MethodGet, "/api/jobs", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = bob.do(t, http.MethodGet, "/api/jobs/"+id, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = bob.do(t, http.MethodDelete, "/api/jobs/"+id, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExportBeforeFinishIs404(t *testing.T) {
	r := newTestServer(t)
	cl := newClient(r)

	// unknown id and malformed id both read as Not found
	w := cl.do(t, http.MethodGet, "/api/jobs/not-a-uuid/export", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = cl.do(t, http.MethodGet, "/api/jobs/00000000-0000-0000-0000-000000000000/export", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResetSessionPurgesJobsAndRotatesToken(t *testing.T) {
	r := newTestServer(t)
	cl := newClient(r)

	resp := cl.upload(t, "clip.wav")
	require.NotNil(t, resp.Jobs[0].ID)
	cl.waitSuccess(t, resp.Jobs[0].ID.String())
	oldToken := cl.cookies[0].Value

	w := cl.do(t, http.MethodGet, "/api/reset-session", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var report struct {
		OK          bool `json:"ok"`
		DeletedJobs int  `json:"deleted_jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.OK)
	assert.Equal(t, 1, report.DeletedJobs)
	require.NotEmpty(t, cl.cookies)
	assert.NotEqual(t, oldToken, cl.cookies[0].Value)

	w = cl.do(t, http.MethodGet, "/api/jobs", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestPing(t *testing.T) {
	r := newTestServer(t)
	cl := newClient(r)

	w := cl.do(t, http.MethodGet, "/api/ping", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
