package handler

import (
	"pointsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(pointService PointService) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())

	h := NewHandler(pointService)

	point := r.Group("/point/:id", UserIDMiddleware())
	{
		point.GET("", h.GetBalance)
		point.GET("/histories", h.GetHistory)
		point.PATCH("/charge", h.Charge)
		point.PATCH("/use", h.Use)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "接口不存在")
	})

	return r
}
