package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/slidedeck/explainer/internal/config"
	"github.com/slidedeck/explainer/internal/explain"
	"github.com/slidedeck/explainer/internal/extract"
	"github.com/slidedeck/explainer/internal/extract/pptxtest"
	"github.com/slidedeck/explainer/internal/job"
	"github.com/slidedeck/explainer/internal/ledger"
	"github.com/slidedeck/explainer/internal/service"
	"github.com/slidedeck/explainer/internal/storage"
	"github.com/slidedeck/explainer/internal/worker"
)

type testEnv struct {
	router http.Handler
	files  *storage.Store
	ledger *ledger.MemoryLedger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "api-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	files, err := storage.NewStore(tmpDir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	l := ledger.NewMemoryLedger()
	cfg := config.Default()
	cfg.NodeID = "test-node"
	cfg.MaxUploadBytes = 64 << 10

	svc := service.New(files, job.NewMemoryRegistry(), l, zerolog.Nop())
	return &testEnv{
		router: NewRouter(cfg, svc, zerolog.Nop()),
		files:  files,
		ledger: l,
	}
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "file", filename, content)
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func deck() []byte {
	return pptxtest.Build(pptxtest.Slide{{"Intro"}}, pptxtest.Slide{{"Summary"}})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.get("/health")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", resp["status"])
	}
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t)
	w := env.get("/info")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp["node_id"] != "test-node" {
		t.Errorf("expected test-node, got %s", resp["node_id"])
	}
}

func TestUpload_ThenStatusPending(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "deck.pptx", deck())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var up map[string]string
	json.Unmarshal(rec.Body.Bytes(), &up)
	if up["uid"] == "" {
		t.Fatal("expected uid in response")
	}

	w := env.get("/status/" + up["uid"])
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status map[string]any
	json.Unmarshal(w.Body.Bytes(), &status)
	if status["status"] != "pending" {
		t.Errorf("expected pending, got %v", status["status"])
	}
	if status["filename"] != "deck.pptx" {
		t.Errorf("expected deck.pptx, got %v", status["filename"])
	}
	if v, ok := status["explanation"]; !ok || v != nil {
		t.Errorf("expected explicit null explanation, got %v", v)
	}

	if r := env.get("/api/jobs/" + up["uid"] + "/result"); r.Code != http.StatusConflict {
		t.Errorf("expected 409 for pending result, got %d", r.Code)
	}
}

func TestUpload_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		field    string
		filename string
		content  []byte
	}{
		{"missing file field", "other", "deck.pptx", deck()},
		{"empty document", "file", "deck.pptx", []byte{}},
		{"unsupported type", "file", "notes.txt", []byte("hello there")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.field, tt.filename, tt.content)
			req := httptest.NewRequest("POST", "/upload", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest("POST", "/upload", bytes.NewBufferString("invalid"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "deck.pptx", bytes.Repeat([]byte("x"), 128<<10))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatus_NotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.get("/status/3f1c2a4e-0000-4000-8000-000000000000")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "UID not found" {
		t.Errorf("unexpected error body: %v", resp)
	}

	if r := env.get("/api/jobs/nope/result"); r.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown result, got %d", r.Code)
	}
}

func TestStatus_DoneAndResult(t *testing.T) {
	env := newTestEnv(t)
	rec := env.upload(t, "deck.pptx", deck())
	var up map[string]string
	json.Unmarshal(rec.Body.Bytes(), &up)

	fetcher := explain.FetcherFunc(func(ctx context.Context, text string) (string, error) {
		return "about " + text, nil
	})
	engine := explain.NewEngine(fetcher, explain.EngineOptions{}, zerolog.Nop())
	w := worker.New(env.files, env.ledger, extract.NewDetecting(), engine, worker.Options{}, zerolog.Nop())
	if report := w.RunCycle(context.Background()); report.Processed != 1 {
		t.Fatalf("expected 1 processed, got %+v", report)
	}

	resp := env.get("/status/" + up["uid"])
	var status struct {
		Status      string                     `json:"status"`
		Explanation []explain.SlideExplanation `json:"explanation"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != "done" {
		t.Fatalf("expected done, got %s", status.Status)
	}
	if len(status.Explanation) != 2 || status.Explanation[1].Explanation != "about Summary" {
		t.Errorf("unexpected explanation: %+v", status.Explanation)
	}

	result := env.get("/api/jobs/" + up["uid"] + "/result")
	if result.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", result.Code)
	}
	var rec2 []explain.SlideExplanation
	if err := json.Unmarshal(result.Body.Bytes(), &rec2); err != nil || len(rec2) != 2 {
		t.Errorf("unexpected result body %q: %v", result.Body.String(), err)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "a.pptx", deck())

	w := env.get("/stats")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)

	jobs := resp["jobs"].(map[string]any)
	if jobs["pending"].(float64) != 1 {
		t.Errorf("expected 1 pending, got %v", jobs["pending"])
	}
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t)
	env.upload(t, "a.pptx", deck())
	env.upload(t, "b.pptx", deck())

	w := env.get("/api/jobs?limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Jobs  []map[string]any `json:"jobs"`
		Total int              `json:"total"`
		Limit int              `json:"limit"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || resp.Limit != 1 || len(resp.Jobs) != 1 {
		t.Fatalf("unexpected listing: %+v", resp)
	}
	if resp.Jobs[0]["status"] != "pending" {
		t.Errorf("expected pending, got %v", resp.Jobs[0]["status"])
	}
}
