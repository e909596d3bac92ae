package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"linkwatch/internal/modules/monitor"
	"linkwatch/internal/modules/queue"
)

type fakeMonitorService struct {
	registerResult *monitor.RegisterResult
	registerErr    error
	findResult     *monitor.Monitor
	findErr        error
	softDeleteErr  error
}

func (f *fakeMonitorService) Register(ctx context.Context, in monitor.RegisterInput) (*monitor.RegisterResult, error) {
	return f.registerResult, f.registerErr
}
func (f *fakeMonitorService) FindByID(ctx context.Context, id string) (*monitor.Monitor, error) {
	return f.findResult, f.findErr
}
func (f *fakeMonitorService) FindByConvexURLID(ctx context.Context, id string) (*monitor.Monitor, error) {
	return f.findResult, f.findErr
}
func (f *fakeMonitorService) SoftDelete(ctx context.Context, id string) error {
	return f.softDeleteErr
}

// fakeQueueService tracks enough real state to exercise dedup and
// introspection behavior, rather than stubbing every method to nil/no-op.
type fakeQueueService struct {
	mu sync.Mutex

	enqueueErr error
	enqueued   int
	uniqueKeys map[string]bool

	queueInfos   map[string]*queue.QueueInfo
	listQueues   []*queue.QueueInfo
	taskInfo     *queue.TaskInfo
	pendingTasks []*queue.TaskInfo

	pausedQueues    map[string]bool
	deletedTaskID   string
	cancelledTaskID string
}

func (f *fakeQueueService) Enqueue(ctx context.Context, taskType string, payload interface{}, opts *queue.EnqueueOptions) (*queue.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued++
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	return &queue.TaskInfo{ID: "t1"}, nil
}

// EnqueueUnique mirrors asynq's real dedup behavior: a repeat call with the
// same uniqueKey returns asynq.ErrDuplicateTask instead of enqueuing again.
func (f *fakeQueueService) EnqueueUnique(ctx context.Context, taskType string, payload interface{}, uniqueKey string, ttl time.Duration, opts *queue.EnqueueOptions) (*queue.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uniqueKeys == nil {
		f.uniqueKeys = make(map[string]bool)
	}
	if f.uniqueKeys[uniqueKey] {
		return nil, fmt.Errorf("task already exists: %w", asynq.ErrDuplicateTask)
	}
	f.uniqueKeys[uniqueKey] = true
	f.enqueued++
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	return &queue.TaskInfo{ID: "t1"}, nil
}

func (f *fakeQueueService) GetQueueInfo(ctx context.Context, queueName string) (*queue.QueueInfo, error) {
	return f.queueInfos[queueName], nil
}
func (f *fakeQueueService) ListQueues(ctx context.Context) ([]*queue.QueueInfo, error) {
	return f.listQueues, nil
}
func (f *fakeQueueService) GetTaskInfo(ctx context.Context, queueName, taskID string) (*queue.TaskInfo, error) {
	return f.taskInfo, nil
}
func (f *fakeQueueService) DeleteTask(ctx context.Context, queueName, taskID string) error {
	f.deletedTaskID = taskID
	return nil
}
func (f *fakeQueueService) CancelTask(ctx context.Context, taskID string) error {
	f.cancelledTaskID = taskID
	return nil
}
func (f *fakeQueueService) PauseQueue(ctx context.Context, queueName string) error {
	if f.pausedQueues == nil {
		f.pausedQueues = make(map[string]bool)
	}
	f.pausedQueues[queueName] = true
	return nil
}
func (f *fakeQueueService) UnpauseQueue(ctx context.Context, queueName string) error {
	if f.pausedQueues != nil {
		delete(f.pausedQueues, queueName)
	}
	return nil
}
func (f *fakeQueueService) ListPendingTasks(ctx context.Context, queueName string, pageSize, pageNum int) ([]*queue.TaskInfo, error) {
	return f.pendingTasks, nil
}
func (f *fakeQueueService) ListActiveTasks(ctx context.Context, queueName string, pageSize, pageNum int) ([]*queue.TaskInfo, error) {
	return nil, nil
}
func (f *fakeQueueService) ListScheduledTasks(ctx context.Context, queueName string, pageSize, pageNum int) ([]*queue.TaskInfo, error) {
	return nil, nil
}
func (f *fakeQueueService) Close() error { return nil }

func newTestRoute(ms *fakeMonitorService, qs *fakeQueueService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	controller := NewController(ms, qs, zap.NewNop().Sugar())
	route := NewRoute(controller, func(c *gin.Context) { c.Next() })

	engine := gin.New()
	rg := engine.Group("/api/v1")
	route.ConnectRoute(rg)
	return engine
}

func TestController_Register_NewMonitor(t *testing.T) {
	ms := &fakeMonitorService{registerResult: &monitor.RegisterResult{Monitor: &monitor.Monitor{ID: "m1"}}}
	r := newTestRoute(ms, &fakeQueueService{})

	body, _ := json.Marshal(monitor.RegisterDto{ConvexURLID: "u1", ConvexUserID: "usr1", LongURL: "https://example.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/monitors/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "m1")
}

func TestController_Register_AlreadyRegistered(t *testing.T) {
	ms := &fakeMonitorService{registerResult: &monitor.RegisterResult{
		Monitor:           &monitor.Monitor{ID: "m1"},
		AlreadyRegistered: true,
	}}
	r := newTestRoute(ms, &fakeQueueService{})

	body, _ := json.Marshal(monitor.RegisterDto{ConvexURLID: "u1", ConvexUserID: "usr1", LongURL: "https://example.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/monitors/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Already registered")
}

func TestController_Register_InvalidBody(t *testing.T) {
	r := newTestRoute(&fakeMonitorService{}, &fakeQueueService{})

	body, _ := json.Marshal(monitor.RegisterDto{LongURL: "not-a-url"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/monitors/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestController_FindByID_NotFound(t *testing.T) {
	ms := &fakeMonitorService{findErr: monitor.ErrNotFound}
	r := newTestRoute(ms, &fakeQueueService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/monitors/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestController_ForceCheck_EnqueuesJob(t *testing.T) {
	ms := &fakeMonitorService{findResult: &monitor.Monitor{ID: "m1", LongURL: "https://example.com"}}
	qs := &fakeQueueService{}
	r := newTestRoute(ms, qs)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/monitors/m1/force-check", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, qs.enqueued)
}

func TestController_ForceCheck_DedupesRepeatSubmission(t *testing.T) {
	ms := &fakeMonitorService{findResult: &monitor.Monitor{ID: "m1", LongURL: "https://example.com"}}
	qs := &fakeQueueService{}
	r := newTestRoute(ms, qs)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/monitors/m1/force-check", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "force check queued")

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/monitors/m1/force-check", nil)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)

	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "already queued")
	assert.Equal(t, 1, qs.enqueued)
}

func TestController_ListQueues_ReturnsQueues(t *testing.T) {
	qs := &fakeQueueService{listQueues: []*queue.QueueInfo{{Queue: "healthcheck", Size: 3}}}
	r := newTestRoute(&fakeMonitorService{}, qs)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queues", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthcheck")
}

func TestController_GetQueueInfo_ReturnsInfo(t *testing.T) {
	qs := &fakeQueueService{queueInfos: map[string]*queue.QueueInfo{
		"force_check": {Queue: "force_check", Pending: 2},
	}}
	r := newTestRoute(&fakeMonitorService{}, qs)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queues/force_check", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "force_check")
}

func TestController_PauseQueue_PausesQueue(t *testing.T) {
	qs := &fakeQueueService{}
	r := newTestRoute(&fakeMonitorService{}, qs)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/queues/healthcheck/pause", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, qs.pausedQueues["healthcheck"])
}

func TestController_CancelQueueTask_CancelsTask(t *testing.T) {
	qs := &fakeQueueService{}
	r := newTestRoute(&fakeMonitorService{}, qs)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/queues/healthcheck/tasks/t1/cancel", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", qs.cancelledTaskID)
}

func TestController_Health(t *testing.T) {
	r := newTestRoute(&fakeMonitorService{}, &fakeQueueService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
