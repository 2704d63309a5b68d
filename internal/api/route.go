package api

import (
	"Cadence/internal/api/middleware"
	"Cadence/internal/pkg/logger"
	"Cadence/internal/pkg/metrics"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger
	r.Use(middleware.TraceMiddleware())
	logger.SetupGin(r)

	r.GET("/metrics", metrics.Handler())

	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.AuditMiddleware())
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"code":    200,
				"message": "pong",
				"data":    nil,
			})
		})

		analysisGroup := apiGroup.Group("/analysis")
		{
			analysisGroup.POST("/run", group.AnalysisHandler.Run)
			analysisGroup.GET("/runs", group.AnalysisHandler.RecentRuns)
		}

		queueGroup := apiGroup.Group("/queue")
		{
			queueGroup.POST("/build-week", group.QueueHandler.BuildWeek)
			queueGroup.POST("/janitor", group.QueueHandler.RunJanitor)
			queueGroup.GET("/stats", group.QueueHandler.Stats)
			queueGroup.GET("/due", group.QueueHandler.ListDue)
			queueGroup.GET("/:entry_id", group.QueueHandler.GetEntry)
			queueGroup.POST("/:entry_id/posted", group.QueueHandler.MarkPosted)
			queueGroup.POST("/:entry_id/failed", group.QueueHandler.MarkFailed)
		}

		slotGroup := apiGroup.Group("/slots")
		{
			slotGroup.GET("/top", group.SlotHandler.TopSlots)
			slotGroup.GET("/buckets", group.SlotHandler.Buckets)
		}

		contentGroup := apiGroup.Group("/content")
		{
			contentGroup.POST("/duplicate-check", group.ContentHandler.DuplicateCheck)
			contentGroup.GET("/:content_id/duplicate", group.ContentHandler.ContentDuplicate)
		}
	}

	return r
}
