// Package adminapi is the Admin HTTP API: the external surface used to
// register, inspect, and soft-delete Monitor rows, and to force an
// out-of-band probe.
package adminapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"linkwatch/internal/infra"
	"linkwatch/internal/modules/monitor"
	"linkwatch/internal/modules/queue"
	"linkwatch/internal/modules/scheduler"
	"linkwatch/internal/utils"
	"linkwatch/internal/version"
)

// Controller handles every Admin API route.
type Controller struct {
	monitorService monitor.Service
	queueService   queue.Service
	logger         *zap.SugaredLogger
}

// NewController builds the Admin API controller.
func NewController(monitorService monitor.Service, queueService queue.Service, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		monitorService: monitorService,
		queueService:   queueService,
		logger:         logger.Named("[admin-api]"),
	}
}

func (c *Controller) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"service":   "linkwatch",
		"version":   version.Version,
		"timestamp": time.Now().UTC(),
	})
}

func (c *Controller) Register(ctx *gin.Context) {
	var dto monitor.RegisterDto
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		ctx.JSON(http.StatusBadRequest, utils.NewFailResponse(err.Error()))
		return
	}
	if err := utils.Validate.Struct(dto); err != nil {
		ctx.JSON(http.StatusBadRequest, utils.NewFailResponse(err.Error()))
		return
	}

	result, err := c.register(ctx, dto)
	if err != nil {
		c.logger.Errorw("register failed", "convex_url_id", dto.ConvexURLID, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}

	if result.AlreadyRegistered {
		ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "Already registered", "linkId": result.Monitor.ID})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "linkId": result.Monitor.ID})
}

func (c *Controller) BatchRegister(ctx *gin.Context) {
	var dto monitor.BatchRegisterDto
	if err := ctx.ShouldBindJSON(&dto); err != nil {
		ctx.JSON(http.StatusBadRequest, utils.NewFailResponse(err.Error()))
		return
	}
	if err := utils.Validate.Struct(dto); err != nil {
		ctx.JSON(http.StatusBadRequest, utils.NewFailResponse(err.Error()))
		return
	}

	results := make([]gin.H, 0, len(dto.Links))
	for _, link := range dto.Links {
		result, err := c.register(ctx, link)
		if err != nil {
			c.logger.Errorw("batch register entry failed", "convex_url_id", link.ConvexURLID, "error", err)
			results = append(results, gin.H{"success": false, "convexUrlId": link.ConvexURLID})
			continue
		}
		if result.AlreadyRegistered {
			results = append(results, gin.H{"success": true, "message": "Already registered", "linkId": result.Monitor.ID})
			continue
		}
		results = append(results, gin.H{"success": true, "linkId": result.Monitor.ID})
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

func (c *Controller) register(ctx *gin.Context, dto monitor.RegisterDto) (*monitor.RegisterResult, error) {
	return c.monitorService.Register(ctx, dto.ToInput())
}

func (c *Controller) FindByID(ctx *gin.Context) {
	id := ctx.Param("id")

	m, err := c.monitorService.FindByID(ctx, id)
	if errors.Is(err, monitor.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, utils.NewFailResponse("monitor not found"))
		return
	}
	if err != nil {
		c.logger.Errorw("find monitor failed", "id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}

	ctx.JSON(http.StatusOK, utils.NewSuccessResponse("success", monitor.ToResponseDto(m)))
}

func (c *Controller) SoftDelete(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := c.monitorService.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, monitor.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, utils.NewFailResponse("monitor not found"))
			return
		}
		c.logger.Errorw("soft delete failed", "id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}

	ctx.JSON(http.StatusOK, utils.NewSuccessResponse[any]("monitor deleted", nil))
}

// forceCheckDedupWindow bounds how long a force-check for the same monitor is
// deduped against a repeat submission, via EnqueueUnique's TTL.
const forceCheckDedupWindow = 30 * time.Second

// ForceCheck enqueues a high-priority job without touching next_check_at.
// It must never close the shared queue connection singleton. Submissions for
// the same monitor within forceCheckDedupWindow are deduped by EnqueueUnique,
// keyed on the monitor ID, rather than re-queuing a second probe.
func (c *Controller) ForceCheck(ctx *gin.Context) {
	id := ctx.Param("id")

	m, err := c.monitorService.FindByID(ctx, id)
	if errors.Is(err, monitor.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, utils.NewFailResponse("monitor not found"))
		return
	}
	if err != nil {
		c.logger.Errorw("find monitor failed", "id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}

	job := scheduler.HealthCheckJob{
		LinkID:       m.ID,
		ConvexURLID:  m.ConvexURLID,
		ConvexUserID: m.ConvexUserID,
		LongURL:      m.LongURL,
		ShortURL:     m.ShortURL,
		Environment:  string(m.Environment),
	}

	opts := queue.DefaultEnqueueOptions()
	opts.Queue = infra.QueueForceCheck

	if _, err := c.queueService.EnqueueUnique(ctx, scheduler.TaskTypeHealthCheck, job, m.ID, forceCheckDedupWindow, opts); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			ctx.JSON(http.StatusOK, utils.NewSuccessResponse[any]("force check already queued", nil))
			return
		}
		c.logger.Errorw("force check enqueue failed", "id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}

	ctx.JSON(http.StatusOK, utils.NewSuccessResponse[any]("force check queued", nil))
}

// ListQueues reports every queue asynq knows about.
func (c *Controller) ListQueues(ctx *gin.Context) {
	queues, err := c.queueService.ListQueues(ctx)
	if err != nil {
		c.logger.Errorw("list queues failed", "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}
	ctx.JSON(http.StatusOK, utils.NewSuccessResponse("success", queues))
}

// GetQueueInfo reports depth/state counters for one queue.
func (c *Controller) GetQueueInfo(ctx *gin.Context) {
	name := ctx.Param("queue")

	info, err := c.queueService.GetQueueInfo(ctx, name)
	if err != nil {
		c.logger.Errorw("get queue info failed", "queue", name, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}
	ctx.JSON(http.StatusOK, utils.NewSuccessResponse("success", info))
}

// ListQueueTasks lists tasks in a queue, filtered by ?state=pending|active|scheduled
// (default pending) and paginated via ?page_size=&page=.
func (c *Controller) ListQueueTasks(ctx *gin.Context) {
	name := ctx.Param("queue")
	pageSize := queryInt(ctx, "page_size", 20)
	pageNum := queryInt(ctx, "page", 1)

	var (
		tasks []*queue.TaskInfo
		err   error
	)
	switch ctx.DefaultQuery("state", "pending") {
	case "active":
		tasks, err = c.queueService.ListActiveTasks(ctx, name, pageSize, pageNum)
	case "scheduled":
		tasks, err = c.queueService.ListScheduledTasks(ctx, name, pageSize, pageNum)
	default:
		tasks, err = c.queueService.ListPendingTasks(ctx, name, pageSize, pageNum)
	}
	if err != nil {
		c.logger.Errorw("list queue tasks failed", "queue", name, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}
	ctx.JSON(http.StatusOK, utils.NewSuccessResponse("success", tasks))
}

// GetQueueTask reports the state of a single task.
func (c *Controller) GetQueueTask(ctx *gin.Context) {
	name := ctx.Param("queue")
	id := ctx.Param("id")

	info, err := c.queueService.GetTaskInfo(ctx, name, id)
	if err != nil {
		c.logger.Errorw("get task info failed", "queue", name, "task_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}
	ctx.JSON(http.StatusOK, utils.NewSuccessResponse("success", info))
}

// DeleteQueueTask removes a pending or retrying task.
func (c *Controller) DeleteQueueTask(ctx *gin.Context) {
	name := ctx.Param("queue")
	id := ctx.Param("id")

	if err := c.queueService.DeleteTask(ctx, name, id); err != nil {
		c.logger.Errorw("delete task failed", "queue", name, "task_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}
	ctx.JSON(http.StatusOK, utils.NewSuccessResponse[any]("task deleted", nil))
}

// CancelQueueTask signals cancellation of an in-flight task.
func (c *Controller) CancelQueueTask(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := c.queueService.CancelTask(ctx, id); err != nil {
		c.logger.Errorw("cancel task failed", "task_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}
	ctx.JSON(http.StatusOK, utils.NewSuccessResponse[any]("task cancelled", nil))
}

// PauseQueue stops a queue from dispatching new tasks.
func (c *Controller) PauseQueue(ctx *gin.Context) {
	name := ctx.Param("queue")

	if err := c.queueService.PauseQueue(ctx, name); err != nil {
		c.logger.Errorw("pause queue failed", "queue", name, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}
	ctx.JSON(http.StatusOK, utils.NewSuccessResponse[any]("queue paused", nil))
}

// UnpauseQueue resumes a previously paused queue.
func (c *Controller) UnpauseQueue(ctx *gin.Context) {
	name := ctx.Param("queue")

	if err := c.queueService.UnpauseQueue(ctx, name); err != nil {
		c.logger.Errorw("unpause queue failed", "queue", name, "error", err)
		ctx.JSON(http.StatusInternalServerError, utils.NewFailResponse("internal server error"))
		return
	}
	ctx.JSON(http.StatusOK, utils.NewSuccessResponse[any]("queue unpaused", nil))
}

func queryInt(ctx *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(ctx.Query(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
