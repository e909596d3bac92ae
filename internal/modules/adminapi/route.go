package adminapi

import (
	"github.com/gin-gonic/gin"
)

// Route wires the Admin API's endpoints onto a gin router group.
type Route struct {
	controller *Controller
	auth       gin.HandlerFunc
}

// NewRoute builds the Admin API route table.
func NewRoute(controller *Controller, auth gin.HandlerFunc) *Route {
	return &Route{controller: controller, auth: auth}
}

func (r *Route) ConnectRoute(rg *gin.RouterGroup) {
	rg.GET("/health", r.controller.Health)

	monitors := rg.Group("/monitors")
	monitors.Use(r.auth)
	monitors.POST("/register", r.controller.Register)
	monitors.POST("/batch", r.controller.BatchRegister)
	monitors.POST("/:id/force-check", r.controller.ForceCheck)
	monitors.GET("/:id", r.controller.FindByID)
	monitors.DELETE("/:id", r.controller.SoftDelete)

	queues := rg.Group("/queues")
	queues.Use(r.auth)
	queues.GET("", r.controller.ListQueues)
	queues.GET("/:queue", r.controller.GetQueueInfo)
	queues.GET("/:queue/tasks", r.controller.ListQueueTasks)
	queues.GET("/:queue/tasks/:id", r.controller.GetQueueTask)
	queues.DELETE("/:queue/tasks/:id", r.controller.DeleteQueueTask)
	queues.POST("/:queue/tasks/:id/cancel", r.controller.CancelQueueTask)
	queues.POST("/:queue/pause", r.controller.PauseQueue)
	queues.POST("/:queue/unpause", r.controller.UnpauseQueue)
}
