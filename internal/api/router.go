package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	Engine *gin.Engine
}

// NewRouter wires the engine's HTTP surface. Authentication sits in front of
// this service at the gateway layer.
func NewRouter(notificationHandler *NotificationHandler) *Router {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/notifications/:id/dispatch", notificationHandler.Dispatch)
	r.POST("/dispatch/run", notificationHandler.RunScheduled)

	r.GET("/accounts/:account_id/notifications", notificationHandler.ListVisible)
	r.GET("/notifications/:id/visibility", notificationHandler.CanView)
	r.POST("/notifications/:id/read", notificationHandler.MarkRead)
	r.GET("/notifications/:id/read", notificationHandler.ReadStatus)

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
