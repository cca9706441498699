package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/seqflow/internal/config"
	"github.com/me/seqflow/internal/engine"
	"github.com/me/seqflow/internal/executor"
	"github.com/me/seqflow/internal/store"
	"github.com/me/seqflow/pkg/model"
	"github.com/me/seqflow/pkg/pipeline"
)

// okExecutor fabricates one output path per declared glob and always
// exits zero.
type okExecutor struct{}

func (okExecutor) Type() model.ExecutorType { return model.ExecutorTypeLocal }

func (okExecutor) Run(_ context.Context, task *model.Task) error {
	code := 0
	task.ExitCode = &code
	if len(task.OutputGlobs) > 0 {
		task.Outputs = make(map[string]any, len(task.OutputGlobs))
		for name := range task.OutputGlobs {
			task.Outputs[name] = "/work/" + task.StepID + "/" + name
		}
	}
	return nil
}

func testPipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Name: "checksum",
		Doc:  "Checksum the sample reads.",
		Inputs: map[string]pipeline.InputParam{
			"reads":      {Type: "File"},
			"experiment": {Type: "string"},
		},
		Tasks: map[string]*pipeline.TaskDef{
			"md5": {
				ID:      "md5",
				Command: []string{"md5sum", "{reads}"},
				Inputs:  map[string]pipeline.TaskInput{"reads": {Type: "File"}},
				Outputs: map[string]pipeline.TaskOutput{"checksum": {Type: "File", Glob: "*.md5"}},
			},
		},
		Steps: map[string]pipeline.Step{
			"md5": {
				Task: "md5",
				In:   map[string]pipeline.StepInput{"reads": {Source: "reads"}},
				Out:  []string{"checksum"},
			},
		},
		Outputs: map[string]pipeline.OutputParam{
			"checksum": {Type: "File", Source: "md5/checksum"},
		},
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	reg := executor.NewRegistry()
	reg.Register(okExecutor{})
	eng := engine.New(engine.Config{
		Logger:   logger,
		Registry: reg,
		MaxJobs:  2,
		Recorder: store.Recorder{S: st},
	})

	pipelines := map[string]*pipeline.Pipeline{"checksum": testPipeline()}
	return New(config.DefaultServerConfig(), st, eng, pipelines, logger)
}

// envelope decodes the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func doGet(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return w, env
}

func doPost(t *testing.T, srv *Server, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

const sampleBody = `{
	"pipeline": "checksum",
	"sample": {
		"name": "s1",
		"experiment": "WGS",
		"files": {"reads": {"location": "/data/s1.fastq.gz", "kind": "FASTQ"}}
	}
}`

// waitForState polls the store until the invocation reaches a terminal
// state or the deadline passes.
func waitForState(t *testing.T, srv *Server, id string, want model.InvocationState) *model.Invocation {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		inv, err := srv.store.GetInvocation(context.Background(), id)
		if err != nil {
			t.Fatalf("get invocation: %v", err)
		}
		if inv != nil && inv.State == want {
			return inv
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("invocation %s never reached %s", id, want)
	return nil
}

func TestHealth(t *testing.T) {
	srv := testServer(t)
	w, env := doGet(t, srv, "/api/v1/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}
	if env.Status != "ok" {
		t.Errorf("envelope status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data struct {
		Status    string `json:"status"`
		Pipelines int    `json:"pipelines"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", data.Status)
	}
	if data.Pipelines != 1 {
		t.Errorf("pipelines = %d, want 1", data.Pipelines)
	}
}

func TestListPipelines(t *testing.T) {
	srv := testServer(t)
	w, env := doGet(t, srv, "/api/v1/pipelines/")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}

	var data []struct {
		Name  string `json:"name"`
		Steps int    `json:"steps"`
	}
	json.Unmarshal(env.Data, &data)
	if len(data) != 1 || data[0].Name != "checksum" {
		t.Fatalf("pipelines = %+v, want one named checksum", data)
	}
	if data[0].Steps != 1 {
		t.Errorf("steps = %d, want 1", data[0].Steps)
	}
}

func TestGetPipeline_NotFound(t *testing.T) {
	srv := testServer(t)
	w, env := doGet(t, srv, "/api/v1/pipelines/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", env.Error)
	}
}

func TestCreateInvocation(t *testing.T) {
	srv := testServer(t)
	w, env := doPost(t, srv, "/api/v1/invocations/", sampleBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d, want 201, body=%s", w.Code, w.Body.String())
	}

	var data struct {
		ID           string `json:"id"`
		PipelineName string `json:"pipeline_name"`
		State        string `json:"state"`
	}
	json.Unmarshal(env.Data, &data)
	if data.ID == "" {
		t.Fatal("invocation id is empty")
	}
	if data.PipelineName != "checksum" {
		t.Errorf("pipeline_name = %q, want checksum", data.PipelineName)
	}

	inv := waitForState(t, srv, data.ID, model.InvocationStateCompleted)
	if _, ok := inv.Outputs["checksum"]; !ok {
		t.Errorf("bundle missing checksum, got %v", inv.Outputs)
	}
}

func TestCreateInvocation_UnknownPipeline(t *testing.T) {
	srv := testServer(t)
	body := strings.Replace(sampleBody, "checksum", "missing", 1)
	w, env := doPost(t, srv, "/api/v1/invocations/", body)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404, body=%s", w.Code, w.Body.String())
	}
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", env.Error)
	}
}

func TestCreateInvocation_ValidationFailure(t *testing.T) {
	srv := testServer(t)
	body := strings.Replace(sampleBody, "WGS", "Metagenomics", 1)
	w, env := doPost(t, srv, "/api/v1/invocations/", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400, body=%s", w.Code, w.Body.String())
	}
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Errorf("error = %+v, want VALIDATION_ERROR", env.Error)
	}

	// A rejected submission leaves nothing behind.
	invs, total, err := srv.store.ListInvocations(context.Background(), model.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("list invocations: %v", err)
	}
	if total != 0 || len(invs) != 0 {
		t.Errorf("store has %d invocations after rejected submission, want 0", total)
	}
}

func TestCreateInvocation_MissingFields(t *testing.T) {
	srv := testServer(t)
	for _, body := range []string{"not json", `{}`, `{"pipeline":"checksum"}`} {
		w, env := doPost(t, srv, "/api/v1/invocations/", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status=%d, want 400", body, w.Code)
		}
		if env.Error == nil || env.Error.Code != model.ErrValidation {
			t.Errorf("body %q: error = %+v, want VALIDATION_ERROR", body, env.Error)
		}
	}
}

func TestGetInvocation_NotFound(t *testing.T) {
	srv := testServer(t)
	w, env := doGet(t, srv, "/api/v1/invocations/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", w.Code)
	}
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", env.Error)
	}
}

func TestListInvocationsAndTasks(t *testing.T) {
	srv := testServer(t)
	w, env := doPost(t, srv, "/api/v1/invocations/", sampleBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status=%d, body=%s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(env.Data, &created)
	waitForState(t, srv, created.ID, model.InvocationStateCompleted)

	w, env = doGet(t, srv, "/api/v1/invocations/")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status=%d", w.Code)
	}
	if env.Pagination == nil || env.Pagination.Total != 1 {
		t.Fatalf("pagination = %+v, want total 1", env.Pagination)
	}

	w, env = doGet(t, srv, "/api/v1/invocations/"+created.ID+"/tasks/")
	if w.Code != http.StatusOK {
		t.Fatalf("tasks: status=%d", w.Code)
	}
	var tasks []struct {
		ID     string `json:"id"`
		StepID string `json:"step_id"`
		State  string `json:"state"`
	}
	json.Unmarshal(env.Data, &tasks)
	if len(tasks) != 1 || tasks[0].StepID != "md5" {
		t.Fatalf("tasks = %+v, want one md5 task", tasks)
	}
	if tasks[0].State != string(model.TaskStateSuccess) {
		t.Errorf("task state = %q, want %s", tasks[0].State, model.TaskStateSuccess)
	}

	w, env = doGet(t, srv, "/api/v1/invocations/"+created.ID+"/tasks/"+tasks[0].ID)
	if w.Code != http.StatusOK {
		t.Fatalf("get task: status=%d", w.Code)
	}

	// The task exists but belongs to a different invocation path.
	w, _ = doGet(t, srv, "/api/v1/invocations/other/tasks/"+tasks[0].ID)
	if w.Code != http.StatusNotFound {
		t.Errorf("cross-invocation task lookup: status=%d, want 404", w.Code)
	}
}
