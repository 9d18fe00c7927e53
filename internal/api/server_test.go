package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/harvest"
	"github.com/aitoolsdir/harvester/internal/jobs"
	"github.com/aitoolsdir/harvester/internal/staging"
)

type fakeRunner struct {
	submitted  []harvest.JobOverrides
	submitID   string
	submitErr  error
	statuses   map[string]harvest.JobStatus
	logChunk   string
	logOffset  int64
	syncResult jobs.SyncResult
	syncErr    error
}

func (f *fakeRunner) Submit(_ context.Context, overrides harvest.JobOverrides) (string, error) {
	f.submitted = append(f.submitted, overrides)
	return f.submitID, f.submitErr
}

func (f *fakeRunner) Status(_ context.Context, jobID string) (harvest.JobStatus, error) {
	if status, ok := f.statuses[jobID]; ok {
		return status, nil
	}
	return harvest.JobStatus{State: harvest.JobStateUnknown}, nil
}

func (f *fakeRunner) ReadLog(ctx context.Context, jobID string, since int64) (harvest.JobStatus, string, int64, error) {
	status, _ := f.Status(ctx, jobID)
	return status, f.logChunk, since + f.logOffset, nil
}

func (f *fakeRunner) RunSync(_ context.Context, _ harvest.JobOverrides) (jobs.SyncResult, error) {
	return f.syncResult, f.syncErr
}

type fakeModerator struct {
	slugs   []string
	status  string
	updated int
	err     error
}

func (f *fakeModerator) SetIngestionStatus(_ context.Context, slugs []string, status string) (int, error) {
	f.slugs = slugs
	f.status = status
	return f.updated, f.err
}

type fakeRowImporter struct {
	rows  []staging.Row
	stats harvest.ImportStats
	err   error
}

func (f *fakeRowImporter) Import(_ context.Context, rows []staging.Row) (harvest.ImportStats, error) {
	f.rows = rows
	return f.stats, f.err
}

func newTestServer(runner *fakeRunner, moderator *fakeModerator, importer *fakeRowImporter) *Server {
	if runner == nil {
		runner = &fakeRunner{submitID: "scrape_test"}
	}
	if moderator == nil {
		moderator = &fakeModerator{}
	}
	if importer == nil {
		importer = &fakeRowImporter{}
	}
	return NewServer(runner, moderator, importer, zap.NewNop())
}

func TestServer_SubmitJob_Succeeds(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{submitID: "scrape_abc123"}
	server := newTestServer(runner, nil, nil)

	body := []byte(`{"per_source": 5, "rate_limit": 0.5}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "scrape_abc123")
	require.Len(t, runner.submitted, 1)
	require.NotNil(t, runner.submitted[0].PerSource)
	require.Equal(t, 5, *runner.submitted[0].PerSource)
	require.NotNil(t, runner.submitted[0].RateLimit)
	require.InDelta(t, 0.5, *runner.submitted[0].RateLimit, 1e-9)
	require.Nil(t, runner.submitted[0].Timeout)
}

func TestServer_SubmitJob_EmptyBodyUsesDefaults(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{submitID: "scrape_def456"}
	server := newTestServer(runner, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, runner.submitted, 1)
	require.Equal(t, harvest.JobOverrides{}, runner.submitted[0])
}

func TestServer_SubmitJob_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubmitJob_QueueUnavailable(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{submitErr: errors.New("queue is full")}
	server := newTestServer(runner, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "queue is full")
}

func TestServer_GetJobStatus(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		statuses: map[string]harvest.JobStatus{
			"scrape_known": {
				State: harvest.JobStateCompleted,
				Meta:  map[string]any{"file_size": float64(1234)},
			},
		},
	}
	server := newTestServer(runner, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/scrape_known/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status harvest.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, harvest.JobStateCompleted, status.State)
	require.Equal(t, float64(1234), status.Meta["file_size"])
}

func TestServer_GetJobStatus_UnknownJob(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeRunner{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/scrape_missing/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"unknown"`)
}

func TestServer_GetJobLog_WithOffset(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		statuses:  map[string]harvest.JobStatus{"scrape_x": {State: harvest.JobStateRunning}},
		logChunk:  "[info] Starting scraper\n",
		logOffset: 24,
	}
	server := newTestServer(runner, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/scrape_x/log?since=10", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status string `json:"status"`
		Chunk  string `json:"chunk"`
		Offset int64  `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "running", resp.Status)
	require.Equal(t, "[info] Starting scraper\n", resp.Chunk)
	require.Equal(t, int64(34), resp.Offset)
}

func TestServer_GetJobLog_BadSince(t *testing.T) {
	t.Parallel()

	server := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/scrape_x/log?since=banana", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RunSync_ReturnsStats(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		syncResult: jobs.SyncResult{
			ImportStats: harvest.ImportStats{Created: 3, Updated: 1},
			OutputFile:  "ai_tools_seed.csv",
			FileSize:    512,
		},
	}
	server := newTestServer(runner, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/run", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result jobs.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 3, result.ImportStats.Created)
	require.Equal(t, "ai_tools_seed.csv", result.OutputFile)
}

func TestServer_RunSync_Failure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{syncErr: fmt.Errorf("scraper failed: exit status 1")}
	server := newTestServer(runner, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/run", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "scraper failed")
}

func TestServer_ModerateTools(t *testing.T) {
	t.Parallel()

	moderator := &fakeModerator{updated: 2}
	server := newTestServer(nil, moderator, nil)

	body := []byte(`{"slugs": ["alpha.io", "beta.dev"], "status": "Approved"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"updated":2`)
	require.Equal(t, []string{"alpha.io", "beta.dev"}, moderator.slugs)
	require.Equal(t, "Approved", moderator.status)
}

func TestServer_ModerateTools_RejectsBadStatus(t *testing.T) {
	t.Parallel()

	moderator := &fakeModerator{}
	server := newTestServer(nil, moderator, nil)

	body := []byte(`{"slugs": ["alpha.io"], "status": "Live"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, moderator.slugs)
}

func TestServer_ModerateTools_RequiresSlugs(t *testing.T) {
	t.Parallel()

	server := newTestServer(nil, nil, nil)

	body := []byte(`{"slugs": [], "status": "Approved"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/tools/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ImportCSV(t *testing.T) {
	t.Parallel()

	importer := &fakeRowImporter{stats: harvest.ImportStats{Created: 1, Skipped: 1}}
	server := newTestServer(nil, nil, importer)

	csv := "domain,name,description,website,category,pricing,logo,source\n" +
		"alpha.io,Alpha,AI assistant,https://alpha.io,Chat,free,,seed\n" +
		",,,,,,,\n"
	req := httptest.NewRequest(http.MethodPost, "/v1/imports", bytes.NewReader([]byte(csv)))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, importer.rows, 2)
	require.Equal(t, "alpha.io", importer.rows[0].Domain)
	require.Contains(t, rec.Body.String(), `"created":1`)
}

func TestServer_ImportCSV_EmptyBody(t *testing.T) {
	t.Parallel()

	server := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/imports", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := newTestServer(nil, nil, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_SetsRequestID(t *testing.T) {
	t.Parallel()

	server := newTestServer(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
