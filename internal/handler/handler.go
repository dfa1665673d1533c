package handler

import (
	"context"
	"errors"
	"log"
	"strconv"

	"pointsystem/internal/model"
	"pointsystem/internal/service"
	"pointsystem/pkg/response"

	"github.com/gin-gonic/gin"
)

// PointService 积分核心对外的四个操作
type PointService interface {
	Charge(ctx context.Context, userID, amount int64) (int64, error)
	Use(ctx context.Context, userID, amount int64) (int64, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	GetHistory(ctx context.Context, userID int64) ([]*model.PointHistory, error)
}

// Handler 积分接口
type Handler struct {
	pointService PointService
}

func NewHandler(pointService PointService) *Handler {
	return &Handler{pointService: pointService}
}

// PointRequest 充值/使用请求
type PointRequest struct {
	Point int64 `json:"point"`
}

// Charge 充值积分（不保证幂等，重复请求会重复充值）
// PATCH /point/:id/charge
func (h *Handler) Charge(c *gin.Context) {
	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.pointService.Charge(c.Request.Context(), userIDFrom(c), req.Point)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, "充值成功", balance)
}

// Use 使用积分
// PATCH /point/:id/use
func (h *Handler) Use(c *gin.Context) {
	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.pointService.Use(c.Request.Context(), userIDFrom(c), req.Point)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, "使用成功", balance)
}

// GetBalance 查询积分余额
// GET /point/:id
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.pointService.GetBalance(c.Request.Context(), userIDFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, "查询成功", balance)
}

// GetHistory 查询积分流水
// GET /point/:id/histories
func (h *Handler) GetHistory(c *gin.Context) {
	histories, err := h.pointService.GetHistory(c.Request.Context(), userIDFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, "流水查询成功", histories)
}

func userIDFrom(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

// writeError 把积分核心的错误翻译为业务错误码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		response.Error(c, response.CodeInvalidAmount, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.Error(c, response.CodeUserNotFound, "用户不存在")
	case errors.Is(err, service.ErrInsufficientBalance):
		response.Error(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, service.ErrLockContention):
		response.Error(c, response.CodeLockContention, "系统繁忙，请稍后重试")
	case errors.Is(err, service.ErrAmountOverflow):
		response.Error(c, response.CodeAmountOverflow, err.Error())
	default:
		log.Printf("[Handler] 请求处理失败: path=%s, err=%v", c.Request.URL.Path, err)
		response.ServerError(c, "服务器内部错误")
	}
}

// parseUserID 校验路径中的用户ID
func parseUserID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
