package handler

import (
	"log"
	"time"

	"pointsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

const userIDKey = "point.user_id"

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, response.Response{
					Code:    response.CodeServerError,
					Message: "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// UserIDMiddleware 路径里的用户ID必须是合法的 int64
func UserIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := parseUserID(c.Param("id"))
		if err != nil {
			c.Abort()
			response.ParamError(c, "请求参数错误，请检查用户ID")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}
