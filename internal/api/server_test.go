package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/icon-harvester/internal/batch"
	"github.com/JakeFAU/icon-harvester/internal/clock/system"
	hashsha "github.com/JakeFAU/icon-harvester/internal/hash/sha256"
	"github.com/JakeFAU/icon-harvester/internal/icons"
)

type fakeHarvester struct {
	mu           sync.Mutex
	words        []string
	sourceConfig string
	calls        int
	report       batch.Report
	archive      []byte
	err          error
	panicWith    any
}

func (f *fakeHarvester) Harvest(_ context.Context, words []string, sourceConfig string, w io.Writer) (batch.Report, error) {
	f.mu.Lock()
	f.calls++
	f.words = append([]string(nil), words...)
	f.sourceConfig = sourceConfig
	f.mu.Unlock()
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return batch.Report{}, f.err
	}
	if _, err := w.Write(f.archive); err != nil {
		return batch.Report{}, err
	}
	return f.report, nil
}

type fixedIDs string

func (f fixedIDs) NewRequestID() string { return string(f) }

var testNow = time.UnixMilli(1_700_000_000_123)

func newTestServer(h Harvester, opts Options) *Server {
	return NewServer(h, hashsha.New(), system.Fixed{At: testNow}, fixedIDs("req-1"), opts, zap.NewNop())
}

type uploadPart struct {
	contentType string
	body        string
}

func newUpload(t *testing.T, file *uploadPart, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if file != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="words.csv"`)
		hdr.Set("Content-Type", file.contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte(file.body))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestServer_UploadReturnsArchive(t *testing.T) {
	t.Parallel()

	harvester := &fakeHarvester{
		archive: []byte("PK-archive"),
		report: batch.Report{
			BatchID:   "batch-1",
			Processed: 3,
			Errors:    []icons.WordError{{Word: "zzz", Reason: "no icons found for zzz"}},
		},
	}
	server := newTestServer(harvester, Options{MaxUploadBytes: 1 << 20})

	for _, path := range []string{"/upload", "/api/upload"} {
		t.Run(path, func(t *testing.T) {
			req := newUpload(t, &uploadPart{contentType: "text/csv", body: "cat, dog\n\nzzz\n"},
				map[string]string{"baseUrl": "https://icons.example.com/?q="})
			req.URL.Path = path
			rec := httptest.NewRecorder()

			server.Handler().ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
			assert.Equal(t, "attachment; filename=icons-1700000000123.zip", rec.Header().Get("Content-Disposition"))
			assert.Equal(t, "batch-1", rec.Header().Get("X-Batch-ID"))
			assert.Equal(t, "3", rec.Header().Get("X-Processed-Words"))
			assert.Equal(t, "1", rec.Header().Get("X-Failed-Words"))
			assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
			assert.Equal(t, mustHash(t, "PK-archive"), rec.Header().Get("X-Content-SHA256"))
			assert.Equal(t, "PK-archive", rec.Body.String())

			raw, err := base64.StdEncoding.DecodeString(rec.Header().Get("X-Batch-Report"))
			require.NoError(t, err)
			var errs []icons.WordError
			require.NoError(t, json.Unmarshal(raw, &errs))
			assert.Equal(t, harvester.report.Errors, errs)
		})
	}

	harvester.mu.Lock()
	defer harvester.mu.Unlock()
	assert.Equal(t, 2, harvester.calls)
	assert.Equal(t, []string{"cat", "dog", "zzz"}, harvester.words)
	assert.Equal(t, "https://icons.example.com/?q=", harvester.sourceConfig)
}

func mustHash(t *testing.T, s string) string {
	t.Helper()
	sum, err := hashsha.New().Hash([]byte(s))
	require.NoError(t, err)
	return sum
}

func TestServer_UploadEmptyReportEncodesEmptyList(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeHarvester{report: batch.Report{BatchID: "b"}}, Options{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, newUpload(t, &uploadPart{contentType: "text/csv", body: ""}, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	raw, err := base64.StdEncoding.DecodeString(rec.Header().Get("X-Batch-Report"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
	assert.Equal(t, "0", rec.Header().Get("X-Failed-Words"))
}

func TestServer_UploadRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
		wantError  string
	}{
		{
			name: "missing file",
			req: func(t *testing.T) *http.Request {
				return newUpload(t, nil, map[string]string{"baseUrl": "x"})
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "No file uploaded",
		},
		{
			name: "not csv",
			req: func(t *testing.T) *http.Request {
				return newUpload(t, &uploadPart{contentType: "image/png", body: "cat"}, nil)
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Only CSV files are allowed",
		},
		{
			name: "not multipart",
			req: func(*testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"words":["cat"]}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid multipart form",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return newUpload(t, &uploadPart{contentType: "text/csv", body: strings.Repeat("cat,", 400)}, nil)
			},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantError:  "Upload too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			harvester := &fakeHarvester{}
			server := newTestServer(harvester, Options{MaxUploadBytes: 512})
			rec := httptest.NewRecorder()

			server.Handler().ServeHTTP(rec, tt.req(t))

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeError(t, rec))
			assert.Zero(t, harvester.calls)
		})
	}
}

func TestServer_UploadAcceptsCSVVariants(t *testing.T) {
	t.Parallel()

	for _, ct := range []string{"text/csv; charset=utf-8", "application/csv", "application/vnd.ms-excel"} {
		server := newTestServer(&fakeHarvester{}, Options{})
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, newUpload(t, &uploadPart{contentType: ct, body: "cat"}, nil))
		assert.Equal(t, http.StatusOK, rec.Code, ct)
	}
}

func TestServer_UploadHarvestFailure(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeHarvester{err: errors.New("disk full")}, Options{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, newUpload(t, &uploadPart{contentType: "text/csv", body: "cat"}, nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to build icon archive", decodeError(t, rec))
}

func TestServer_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeHarvester{panicWith: "boom"}, Options{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, newUpload(t, &uploadPart{contentType: "text/csv", body: "cat"}, nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeHarvester{}, Options{})
	for path, want := range map[string]string{"/healthz": `"ok"`, "/readyz": `"ready"`} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), want)
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harvester_")
}

func TestServer_RequestIDPassthrough(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeHarvester{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-7")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "upstream-7", rec.Header().Get("X-Request-ID"))
}

func TestServer_ServesStaticDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>upload</h1>"), 0o600))
	server := newTestServer(&fakeHarvester{}, Options{StaticDir: dir})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>upload</h1>")
}

type mockHasher struct {
	mock.Mock
}

func (m *mockHasher) Hash(data []byte) (string, error) {
	args := m.Called(data)
	return args.String(0), args.Error(1)
}

func TestServer_UploadHashFailure(t *testing.T) {
	t.Parallel()

	hasher := &mockHasher{}
	hasher.On("Hash", []byte("PK")).Return("", errors.New("hash unavailable")).Once()
	server := NewServer(&fakeHarvester{archive: []byte("PK"), report: batch.Report{BatchID: "b"}},
		hasher, system.Fixed{At: testNow}, fixedIDs("req-2"), Options{}, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, newUpload(t, &uploadPart{contentType: "text/csv", body: "cat"}, nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to build icon archive", decodeError(t, rec))
	assert.Empty(t, rec.Header().Get("X-Batch-ID"))
	hasher.AssertExpectations(t)
}
