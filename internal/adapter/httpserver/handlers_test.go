package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/syla-platform/execution-service/internal/config"
	"github.com/syla-platform/execution-service/internal/domain"
	"github.com/syla-platform/execution-service/internal/usecase"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
}

func newMemStore() *memStore { return &memStore{jobs: map[string]domain.Job{}} }

func (m *memStore) Put(_ context.Context, j domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return j, nil
}

func (m *memStore) List(_ context.Context) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

type memQueue struct {
	mu  sync.Mutex
	ids []string
}

func (m *memQueue) Push(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

func (m *memQueue) Pop(_ context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ids) == 0 {
		return "", false, nil
	}
	id := m.ids[0]
	m.ids = m.ids[1:]
	return id, true, nil
}

func (m *memQueue) Len(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.ids)), nil
}

func newTestServer(store *memStore, queue *memQueue) *Server {
	cfg := config.Config{MaxCodeBytes: 1 << 20}
	return NewServer(cfg,
		usecase.NewSubmitService(store, queue, cfg.MaxCodeBytes),
		usecase.NewLookupService(store, queue),
		nil, nil)
}

func testRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.HealthHandler())
	r.Post("/executions", s.SubmitLegacyHandler())
	r.Get("/executions/{id}", s.GetLegacyHandler())
	r.Post("/v1/executions", s.SubmitHandler())
	r.Get("/v1/executions", s.ListHandler())
	r.Get("/v1/executions/{id}", s.GetHandler())
	r.Post("/v1/executions/{id}/cancel", s.CancelHandler())
	r.Get("/healthz", s.HealthzHandler())
	r.Get("/readyz", s.ReadyzHandler())
	return r
}

func TestHealth_Legacy(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(newTestServer(newMemStore(), &memQueue{})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "OK", rr.Body.String())
}

func TestSubmitLegacy_ReturnsQueuedJob(t *testing.T) {
	store, queue := newMemStore(), &memQueue{}
	h := testRouter(newTestServer(store, queue))

	body := `{"code":"print('hi')","language":"python"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/executions", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rr.Code)
	var payload jobPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.NotEmpty(t, payload.ID)
	require.Equal(t, "queued", payload.Status)
	require.Equal(t, "python", payload.Request.Language)
	require.Nil(t, payload.StartedAt)

	id, ok, err := queue.Pop(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload.ID, id)
}

func TestSubmitLegacy_ValidationError(t *testing.T) {
	h := testRouter(newTestServer(newMemStore(), &memQueue{}))

	for _, body := range []string{
		`{"language":"python"}`,
		`{"code":"x"}`,
		`not json`,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/executions", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rr.Code, "body %q", body)
		var env errorEnvelope
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
		require.NotEmpty(t, env.Error)
	}
}

func TestGetLegacy_NotFoundBody(t *testing.T) {
	h := testRouter(newTestServer(newMemStore(), &memQueue{}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/executions/missing", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.JSONEq(t, `{"error":"Not found"}`, rr.Body.String())
}

func TestGetLegacy_RoundTrip(t *testing.T) {
	store, queue := newMemStore(), &memQueue{}
	h := testRouter(newTestServer(store, queue))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/executions", strings.NewReader(`{"code":"x","language":"go"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	var created jobPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/executions/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var got jobPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "queued", got.Status)
}

func TestSubmitV1_AsyncDefault(t *testing.T) {
	store, queue := newMemStore(), &memQueue{}
	h := testRouter(newTestServer(store, queue))

	body := `{"code":"x","language":"python","owner":"alice","workspace":"ws1","resources":{"memory_mib":128}}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/executions", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rr.Code)
	var payload jobPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "queued", payload.Status)
	require.Equal(t, "alice", payload.Owner)
	require.Equal(t, "ws1", payload.Workspace)

	stored, err := store.Get(context.Background(), payload.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Request.Resources)
	require.Equal(t, int64(128), stored.Request.Resources.MemoryMiB)
}

func TestSubmitV1_SyncWaitsForTerminal(t *testing.T) {
	store, queue := newMemStore(), &memQueue{}
	h := testRouter(newTestServer(store, queue))

	// Play the worker: flip whatever lands on the queue to completed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.After(2 * time.Second)
		for {
			select {
			case <-deadline:
				return
			default:
			}
			id, ok, _ := queue.Pop(context.Background())
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			job, err := store.Get(context.Background(), id)
			if err != nil {
				return
			}
			now := time.Now().UTC()
			job.Status = domain.JobCompleted
			job.StartedAt = &now
			job.CompletedAt = &now
			job.Result = &domain.JobResult{ExitCode: 0, Stdout: "hi\n"}
			_ = store.Put(context.Background(), job)
			return
		}
	}()

	body := `{"code":"print('hi')","language":"python","async":false}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/executions", strings.NewReader(body)))
	<-done

	require.Equal(t, http.StatusOK, rr.Code)
	var payload jobPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "completed", payload.Status)
	require.NotNil(t, payload.Result)
	require.Equal(t, "hi\n", payload.Result.Stdout)
}

func TestSubmitV1_TimeoutOutOfRange(t *testing.T) {
	h := testRouter(newTestServer(newMemStore(), &memQueue{}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/executions",
		strings.NewReader(`{"code":"x","language":"python","timeout_seconds":301}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCancelV1_PendingAndTerminal(t *testing.T) {
	store, queue := newMemStore(), &memQueue{}
	h := testRouter(newTestServer(store, queue))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/executions", strings.NewReader(`{"code":"x","language":"python"}`)))
	var created jobPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/executions/"+created.ID+"/cancel", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Cancelled bool   `json:"cancelled"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, created.ID, out.ID)
	require.Equal(t, "cancelled", out.Status)
	require.True(t, out.Cancelled)

	// Second cancel is a no-op.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/executions/"+created.ID+"/cancel", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.False(t, out.Cancelled)
	require.Equal(t, "cancelled", out.Status)
}

func TestCancelV1_NotFound(t *testing.T) {
	h := testRouter(newTestServer(newMemStore(), &memQueue{}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/executions/nope/cancel", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListV1_FilterAndPagination(t *testing.T) {
	store, queue := newMemStore(), &memQueue{}
	h := testRouter(newTestServer(store, queue))
	base := time.Now().UTC()
	for i := 0; i < 15; i++ {
		owner := "alice"
		if i%3 == 0 {
			owner = "bob"
		}
		require.NoError(t, store.Put(context.Background(), domain.Job{
			ID:        fmt.Sprintf("j%02d", i),
			Owner:     owner,
			Status:    domain.JobPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/executions?owner=alice&page_size=10&page_number=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var out struct {
		Executions []jobPayload       `json:"executions"`
		Pagination usecase.PageResult `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, 10, out.Pagination.Total)
	require.Equal(t, 1, out.Pagination.TotalPages)
	for _, j := range out.Executions {
		require.Equal(t, "alice", j.Owner)
		require.Equal(t, "queued", j.Status)
	}
}

func TestListV1_StatusFilterUsesWireName(t *testing.T) {
	store, queue := newMemStore(), &memQueue{}
	h := testRouter(newTestServer(store, queue))
	require.NoError(t, store.Put(context.Background(), domain.Job{ID: "a", Status: domain.JobPending, CreatedAt: time.Now().UTC()}))
	require.NoError(t, store.Put(context.Background(), domain.Job{ID: "b", Status: domain.JobCompleted, CreatedAt: time.Now().UTC()}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/executions?status=queued", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var out struct {
		Executions []jobPayload `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out.Executions, 1)
	require.Equal(t, "a", out.Executions[0].ID)
}

func TestReadyz(t *testing.T) {
	s := newTestServer(newMemStore(), &memQueue{})
	s.RedisCheck = func(context.Context) error { return nil }
	s.DockerCheck = func(context.Context) error { return errors.New("daemon unreachable") }
	h := testRouter(s)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "ok", out["redis"])
	require.Contains(t, out["docker"], "unreachable")
}

func TestHealthz(t *testing.T) {
	h := testRouter(newTestServer(newMemStore(), &memQueue{}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
