package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vastraworks/vastra/internal/middleware"
	"github.com/vastraworks/vastra/internal/notification/service"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{Code: 0, Message: "success", Data: data})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{Code: code, Message: message})
}

// NotificationHandler 通知处理器
type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// List 通知列表
// GET /api/v1/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	id := middleware.GetIdentity(c)

	page := 1
	size := 20
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			size = v
		}
	}

	items, total, err := h.svc.List(c.Request.Context(), id.UserID, c.Query("unread") == "true", page, size)
	if err != nil {
		Error(c, 50000, err.Error())
		return
	}
	Success(c, gin.H{"items": items, "total": total, "page": page, "page_size": size})
}

// UnreadCount 未读数
// GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	id := middleware.GetIdentity(c)
	count, err := h.svc.UnreadCount(c.Request.Context(), id.UserID)
	if err != nil {
		Error(c, 50000, err.Error())
		return
	}
	Success(c, gin.H{"count": count})
}

// MarkRead 标记已读
// PUT /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id := middleware.GetIdentity(c)
	if err := h.svc.MarkRead(c.Request.Context(), id.UserID, c.Param("id")); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			Error(c, 40400, "通知不存在")
			return
		}
		Error(c, 50000, err.Error())
		return
	}
	Success(c, gin.H{"read": true})
}

// MarkAllRead 全部标记已读
// PUT /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	id := middleware.GetIdentity(c)
	if err := h.svc.MarkAllRead(c.Request.Context(), id.UserID); err != nil {
		Error(c, 50000, err.Error())
		return
	}
	Success(c, gin.H{"read": true})
}
