package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeopt/internal/apperr"
	"routeopt/internal/assemble"
	"routeopt/internal/config"
	"routeopt/internal/events"
	"routeopt/internal/geo"
	"routeopt/internal/model"
	"routeopt/internal/queue"
	"routeopt/internal/search"
	"routeopt/internal/solver"
	"routeopt/internal/store"
)

const validRequest = `{
  "problemId": "p-1",
  "orders": [
    {"id": "o1", "origin": {"id": "depot", "latitude": 41.38, "longitude": 2.17}, "destination": {"id": "a", "latitude": 41.39, "longitude": 2.18}},
    {"id": "o2", "origin": {"id": "depot", "latitude": 41.38, "longitude": 2.17}, "destination": {"id": "b", "latitude": 41.40, "longitude": 2.16}}
  ],
  "fleet": [{"id": "van", "startingLocation": {"id": "depot", "latitude": 41.38, "longitude": 2.17}}],
  "config": {"distanceMatrixType": "AIR_DISTANCE", "maxSolverDuration": 5}
}`

type fixture struct {
	srv    *Server
	http   *httptest.Server
	store  *store.Memory
	broker *events.Broker
	all    chan events.Event
}

func newFixture(t *testing.T, solve Solver, q Enqueuer) fixture {
	t.Helper()
	if solve == nil {
		solve = solver.NewRunner(assemble.New(assemble.DefaultValues, geo.Factory{}, nil), search.NewALNS(nil), solver.Options{MaxIterations: 10, Seed: 1}, nil)
	}
	broker := events.NewBroker()
	f := fixture{store: store.NewMemory(), broker: broker, all: broker.Subscribe(events.All)}
	f.srv = &Server{
		Solver: solve,
		Store:  f.store,
		Queue:  q,
		Events: broker,
		Follow: broker,
		Config: &config.AppConfig{ServiceName: "routeopt-test", RedisURL: "redis://x"},
	}
	f.http = httptest.NewServer(f.srv.Routes())
	t.Cleanup(f.http.Close)
	return f
}

func (f fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f fixture) drain() []events.Type {
	var out []events.Type
	for {
		select {
		case e := <-f.all:
			out = append(out, e.Type)
		default:
			return out
		}
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type stubSolver struct {
	validateErr error
	runErr      error
}

func (s stubSolver) Validate(*model.OptimizationRequest) error { return s.validateErr }

func (s stubSolver) Run(_ context.Context, req *model.OptimizationRequest) (model.OptimizationResult, error) {
	if s.runErr != nil {
		return model.OptimizationResult{ProblemID: req.ProblemID, Error: &model.ErrorResult{ErrorMessage: s.runErr.Error()}}, s.runErr
	}
	return model.OptimizationResult{ProblemID: req.ProblemID}, nil
}

type unreadyStore struct{ *store.Memory }

func (unreadyStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthReady(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.Equal(t, http.StatusOK, f.get(t, "/healthz").StatusCode)
	assert.Equal(t, http.StatusOK, f.get(t, "/readyz").StatusCode)

	f.srv.Store = unreadyStore{store.NewMemory()}
	resp := f.get(t, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	p := decode[Problem](t, resp)
	assert.Equal(t, "Store not ready", p.Title)
}

func TestOptimizeCompletes(t *testing.T) {
	f := newFixture(t, nil, nil)
	resp := f.post(t, "/v1/optimize", validRequest)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decode[model.OptimizationResult](t, resp)
	assert.Equal(t, "p-1", res.ProblemID)
	assert.Nil(t, res.Error)
	require.NotNil(t, res.Score)
	assert.Equal(t, int64(0), res.Score.Hard)
	require.Len(t, res.Assignments, 1)
	assert.Len(t, res.Assignments[0].Orders, 2)

	rec, err := f.store.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	assert.Equal(t, []events.Type{events.InProgress, events.Completed}, f.drain())
}

func TestOptimizeStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		solve  stubSolver
		body   string
		status int
		events []events.Type
	}{
		{"validation", stubSolver{validateErr: apperr.Validation("p-1", "At least one order must be provided")}, validRequest, http.StatusUnprocessableEntity, nil},
		{"distance", stubSolver{runErr: &apperr.DistanceComputationError{ProblemID: "p-1", Err: errors.New("timeout")}}, validRequest, http.StatusBadGateway, []events.Type{events.InProgress, events.Failed}},
		{"assembly", stubSolver{runErr: apperr.Assembly("p-1", "no depot")}, validRequest, http.StatusInternalServerError, []events.Type{events.InProgress, events.Failed}},
		{"unexpected", stubSolver{runErr: &apperr.UnexpectedError{ProblemID: "p-1", Err: errors.New("boom")}}, validRequest, http.StatusInternalServerError, []events.Type{events.InProgress, events.Failed}},
		{"unparseable", stubSolver{}, `{"problemId":"p-9","orders":[`, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.solve, nil)
			resp := f.post(t, "/v1/optimize", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			res := decode[model.OptimizationResult](t, resp)
			require.NotNil(t, res.Error)
			assert.NotEmpty(t, res.ProblemID)
			assert.Equal(t, tt.events, f.drain())
		})
	}
}

func TestOptimizeFailureIsStored(t *testing.T) {
	f := newFixture(t, stubSolver{runErr: &apperr.DistanceComputationError{ProblemID: "p-1", Err: errors.New("timeout")}}, nil)
	f.post(t, "/v1/optimize", validRequest)

	rec, err := f.store.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusError, rec.Status)
	assert.Equal(t, "distance computation failed: timeout", rec.Error)
}

func TestOptimizeBodyLimit(t *testing.T) {
	f := newFixture(t, stubSolver{}, nil)
	f.srv.MaxBody = 16
	resp := f.post(t, "/v1/optimize", validRequest)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func newQueue(t *testing.T) *queue.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return queue.NewRedisFromClient(client, "routeopt:test")
}

func TestEnqueue(t *testing.T) {
	t.Run("no queue", func(t *testing.T) {
		f := newFixture(t, stubSolver{}, nil)
		resp := f.post(t, "/v1/problems", validRequest)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("accepted", func(t *testing.T) {
		q := newQueue(t)
		f := newFixture(t, stubSolver{}, q)
		resp := f.post(t, "/v1/problems", validRequest)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		out := decode[enqueueResponse](t, resp)
		assert.Equal(t, "p-1", out.ProblemID)
		assert.NotEmpty(t, out.MessageID)
		assert.Equal(t, store.StatusInProgress, out.Status)

		pending, _, err := q.Len(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), pending)

		rec, err := f.store.Get(context.Background(), "p-1")
		require.NoError(t, err)
		assert.Equal(t, store.StatusInProgress, rec.Status)
	})

	t.Run("invalid", func(t *testing.T) {
		q := newQueue(t)
		f := newFixture(t, stubSolver{validateErr: apperr.Validation("p-1", "bad")}, q)
		resp := f.post(t, "/v1/problems", validRequest)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		pending, _, err := q.Len(context.Background())
		require.NoError(t, err)
		assert.Zero(t, pending)
	})

	t.Run("bad json", func(t *testing.T) {
		q := newQueue(t)
		f := newFixture(t, stubSolver{}, q)
		resp := f.post(t, "/v1/problems", `not json`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestReadyChecksQueue(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	q := queue.NewRedisFromClient(client, "routeopt:test")
	f := newFixture(t, stubSolver{}, q)
	assert.Equal(t, http.StatusOK, f.get(t, "/readyz").StatusCode)

	mr.Close()
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/readyz").StatusCode)
}

func TestProblemLookup(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp := f.get(t, "/v1/problems/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	f.post(t, "/v1/optimize", validRequest)
	resp = f.get(t, "/v1/problems/p-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[store.Record](t, resp)
	assert.Equal(t, store.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "p-1", rec.Result.ProblemID)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, stubSolver{}, nil)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/v1/problems/p-1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	other, err := events.New("test", events.Completed, "p-2", nil)
	require.NoError(t, err)
	mine, err := events.New("test", events.Completed, "p-1", map[string]string{"problemId": "p-1"})
	require.NoError(t, err)
	require.NoError(t, f.broker.Publish(context.Background(), other))
	require.NoError(t, f.broker.Publish(context.Background(), mine))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got events.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, mine.ID, got.ID)
	assert.Equal(t, events.Completed, got.Type)
	assert.JSONEq(t, `{"problemId":"p-1"}`, string(got.Detail))
}

func TestEventStreamUnavailable(t *testing.T) {
	f := newFixture(t, stubSolver{}, nil)
	f.srv.Follow = nil
	resp := f.get(t, "/v1/problems/p-1/events")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsAndDebug(t *testing.T) {
	f := newFixture(t, stubSolver{}, nil)
	f.get(t, "/healthz")

	resp := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="GET /healthz",status="200"}`)

	resp = f.get(t, "/debug/info")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decode[map[string]any](t, resp)
	assert.Contains(t, info, "build")
	cfg, ok := info["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "routeopt-test", cfg["SERVICE_NAME"])
	assert.Equal(t, true, cfg["HAS_REDIS_URL"])
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, stubSolver{}, nil)
	resp, err := http.Post(f.http.URL+"/v1/unknown", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOpenAPI(t *testing.T) {
	f := newFixture(t, stubSolver{}, nil)

	resp := f.get(t, "/openapi.yaml")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	resp = f.get(t, "/openapi.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decode[map[string]any](t, resp)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/v1/optimize", "/v1/problems", "/v1/problems/{id}", "/v1/problems/{id}/events"} {
		assert.Contains(t, paths, p)
	}
}
