package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joseph-ayodele/lease-intake/internal/batch"
	"github.com/joseph-ayodele/lease-intake/internal/blob"
	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/index"
	"github.com/joseph-ayodele/lease-intake/internal/llm"
	"github.com/joseph-ayodele/lease-intake/internal/staging"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]batch.Request
	err     error
	results []batch.Result
}

func (f *fakeRunner) RunBatch(_ context.Context, reqs []batch.Request) ([]batch.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, reqs)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.results != nil {
		return f.results, nil
	}
	out := make([]batch.Result, len(reqs))
	for i, r := range reqs {
		rc, err := r.Blob()
		if err != nil {
			return nil, err
		}
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		out[i] = batch.Result{
			UniqueID:  r.Name,
			DraftJSON: llm.Payload{Single: map[string]any{"doc_type": r.DocType, "body": string(b)}},
		}
	}
	return out, nil
}

type nopExporter struct{}

func (nopExporter) ExportFinalizedXLSX(context.Context) ([]byte, error) { return []byte("xlsx"), nil }

type testEnv struct {
	router *gin.Engine
	runner *fakeRunner
	store  *staging.Store
	index  index.Index
}

func setupTestEnv(t *testing.T, cfg Config) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	drafts, err := blob.NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	finals, err := blob.NewFSStore(t.TempDir(), nil)
	require.NoError(t, err)
	idx, err := index.OpenBadger("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	runner := &fakeRunner{}
	store := staging.NewStore(drafts, finals, idx, nil)
	srv := New(cfg, runner, store, nopExporter{}, nil)
	return testEnv{router: srv.Router(), runner: runner, store: store, index: idx}
}

func setupTestRouter(t *testing.T) (*gin.Engine, *fakeRunner) {
	t.Helper()
	env := setupTestEnv(t, Config{})
	return env.router, env.runner
}

type part struct {
	name, filename, body string
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename != "" {
			fw, err := w.CreateFormFile(p.name, p.filename)
			require.NoError(t, err)
			_, err = fw.Write([]byte(p.body))
			require.NoError(t, err)
			continue
		}
		require.NoError(t, w.WriteField(p.name, p.body))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestBanner(t *testing.T) {
	router, _ := setupTestRouter(t)
	w := serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Partner PDF Parser", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestUploadValidation(t *testing.T) {
	tests := []struct {
		name  string
		parts []part
		want  string
	}{
		{"no files", []part{{name: "doc_types", body: "Residential"}}, "No files provided"},
		{"no doc types", []part{{name: "file", filename: "a.pdf", body: "x"}}, "No file types (doc types) provided"},
		{"arity mismatch", []part{
			{name: "file", filename: "a.pdf", body: "x"},
			{name: "file", filename: "b.pdf", body: "y"},
			{name: "doc_types", body: "Residential"},
		}, "Number of files and doc types do not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, runner := setupTestRouter(t)
			w := serve(router, multipartRequest(t, tt.parts...))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, errorOf(t, w))
			assert.Empty(t, runner.calls)
		})
	}
}

func TestUploadNotMultipart(t *testing.T) {
	router, runner := setupTestRouter(t)
	w := serve(router, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No files provided", errorOf(t, w))
	assert.Empty(t, runner.calls)
}

func TestUploadSuccessKeepsOrder(t *testing.T) {
	router, runner := setupTestRouter(t)
	w := serve(router, multipartRequest(t,
		part{name: "file", filename: "a.pdf", body: "first"},
		part{name: "file", filename: "b.pdf", body: "second"},
		part{name: "doc_types", body: "Residential"},
		part{name: "doc_types", body: "Commercial"},
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, runner.calls, 1)

	var got []struct {
		UniqueID  string         `json:"unique_id"`
		DraftJSON map[string]any `json:"draft_json"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "a.pdf", got[0].UniqueID)
	assert.Equal(t, "Residential", got[0].DraftJSON["doc_type"])
	assert.Equal(t, "second", got[1].DraftJSON["body"])
	assert.Equal(t, "Commercial", got[1].DraftJSON["doc_type"])
}

func TestUploadPortfolioIsOneResult(t *testing.T) {
	router, runner := setupTestRouter(t)
	runner.results = []batch.Result{{
		UniqueID: "7f3c2a50-1d4b-4a8e-9a4e-2b1c3d4e5f60",
		DraftJSON: llm.Payload{Kind: llm.Portfolio, Records: []map[string]any{
			{"property": "Elm"}, {"property": "Oak"}, {"property": nil},
		}},
	}}

	w := serve(router, multipartRequest(t,
		part{name: "file", filename: "Q3 Portfolio.pdf", body: "x"},
		part{name: "doc_types", body: "Multifamily"},
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got []struct {
		UniqueID  string           `json:"unique_id"`
		DraftJSON []map[string]any `json:"draft_json"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Len(t, got[0].DraftJSON, 3)
	assert.Equal(t, "Oak", got[0].DraftJSON[1]["property"])
	assert.Nil(t, got[0].DraftJSON[2]["property"])
}

func TestUploadTooLarge(t *testing.T) {
	env := setupTestEnv(t, Config{MaxUploadMB: 1})
	w := serve(env.router, multipartRequest(t,
		part{name: "file", filename: "big.pdf", body: strings.Repeat("x", 3<<19)},
		part{name: "doc_types", body: "Residential"},
	))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Upload exceeds 1 MB", errorOf(t, w))
	assert.Empty(t, env.runner.calls)
}

func TestUploadBatchFailure(t *testing.T) {
	router, runner := setupTestRouter(t)
	runner.err = common.ExtractionErr("Unable to extract text from: a.pdf", nil)

	w := serve(router, multipartRequest(t,
		part{name: "file", filename: "a.pdf", body: "x"},
		part{name: "doc_types", body: "Residential"},
	))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unable to extract text from: a.pdf", errorOf(t, w))
}

func TestFinalizeAndSearch(t *testing.T) {
	router, _ := setupTestRouter(t)

	body := `[{"lease one.pdf":{"tenant":"Acme","rent":"1200"}},{"lease two.pdf":{"tenant":"Globex"}}]`
	w := serve(router, httptest.NewRequest(http.MethodPost, "/finalize", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"message": "All files successfully saved",
		"data": [
			{"filename": "lease one.pdf", "status": "finalized"},
			{"filename": "lease two.pdf", "status": "finalized"}
		]
	}`, w.Body.String())

	w = serve(router, httptest.NewRequest(http.MethodGet, "/search?q=globex&limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var hits []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "lease two.pdf", hits[0]["id"])

	w = serve(router, httptest.NewRequest(http.MethodGet, "/finals/lease%20one.pdf", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Acme")
}

func TestFinalizeRejectsMalformed(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := serve(router, httptest.NewRequest(http.MethodPost, "/finalize", strings.NewReader(`{"a.pdf":{}}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Request expects a list of JSON objects", errorOf(t, w))

	w = serve(router, httptest.NewRequest(http.MethodPost, "/finalize", strings.NewReader(`[{"a.pdf":{},"b.pdf":{}}]`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Final JSON is not properly formatted or there is more than one filename present", errorOf(t, w))
}

func TestFinalizeRejectsWholeCall(t *testing.T) {
	env := setupTestEnv(t, Config{})

	body := `[{"ok.pdf":{"a":1}},{"a.pdf":{},"b.pdf":{}}]`
	w := serve(env.router, httptest.NewRequest(http.MethodPost, "/finalize", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	names, err := env.store.ListFinals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
	_, err = env.index.Get(context.Background(), "ok.pdf")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDraftRoutes(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/drafts", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = serve(router, httptest.NewRequest(http.MethodGet, "/drafts/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(router, httptest.NewRequest(http.MethodGet, "/drafts/7f3c2a50-1d4b-4a8e-9a4e-2b1c3d4e5f60", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportRoute(t *testing.T) {
	router, _ := setupTestRouter(t)
	w := serve(router, httptest.NewRequest(http.MethodGet, "/export.xlsx", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "xlsx", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "finalized.xlsx")
}

func TestHealthServer(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	hs := NewHealthServer(nil)
	go func() { _ = hs.Serve(lis) }()
	t.Cleanup(hs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
