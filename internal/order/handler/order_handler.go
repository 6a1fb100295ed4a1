package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vastraworks/vastra/internal/middleware"
	"github.com/vastraworks/vastra/internal/order/repository"
	"github.com/vastraworks/vastra/internal/order/service"
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

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{Code: 0, Message: "success", Data: data})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{Code: code, Message: message})
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}

// OrderHandler 批发订单处理器
type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// List 订单列表
// GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	id := middleware.GetIdentity(c)
	page, pageSize := GetPagination(c)

	params := repository.OrderListParams{
		OrgID:        id.OrgID,
		BuyerContact: c.Query("buyer_contact"),
		SyncStatus:   c.Query("sync_status"),
		Page:         page,
		PageSize:     pageSize,
	}
	if from := c.Query("date_from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			params.DateFrom = &t
		}
	}
	if to := c.Query("date_to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			end := t.AddDate(0, 0, 1)
			params.DateTo = &end
		}
	}

	items, total, err := h.svc.List(c.Request.Context(), params)
	if err != nil {
		Error(c, 50000, "获取订单列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items, "total": total, "page": page, "page_size": pageSize})
}

// Create 创建订单
// POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	id := middleware.GetIdentity(c)

	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, 40000, "参数错误: "+err.Error())
		return
	}

	result, err := h.svc.Create(c.Request.Context(), id.OrgID, id.UserID, &req)
	if err != nil {
		Error(c, 40000, err.Error())
		return
	}
	Created(c, result)
}

// Get 订单详情
// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	id := middleware.GetIdentity(c)
	order, err := h.svc.Get(c.Request.Context(), id.OrgID, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, 40400, "订单不存在")
			return
		}
		Error(c, 50000, err.Error())
		return
	}
	Success(c, order)
}

// Update 编辑订单
// PUT /api/v1/orders/:id
func (h *OrderHandler) Update(c *gin.Context) {
	id := middleware.GetIdentity(c)

	var req service.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, 40000, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Update(c.Request.Context(), id.OrgID, c.Param("id"), &req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			Error(c, 40400, "订单不存在")
		case errors.Is(err, service.ErrEditWindowExpired):
			Error(c, 40000, "edit window expired")
		default:
			Error(c, 50000, err.Error())
		}
		return
	}
	Success(c, order)
}

// Delete 删除订单
// DELETE /api/v1/orders/:id
func (h *OrderHandler) Delete(c *gin.Context) {
	id := middleware.GetIdentity(c)
	if err := h.svc.Delete(c.Request.Context(), id.OrgID, c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, 40400, "订单不存在")
			return
		}
		Error(c, 50000, err.Error())
		return
	}
	Success(c, gin.H{"deleted": true})
}

// ============================================================
// 买家目录
// ============================================================

// ListBuyers 买家列表
// GET /api/v1/buyers
func (h *OrderHandler) ListBuyers(c *gin.Context) {
	id := middleware.GetIdentity(c)
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.ListBuyers(c.Request.Context(), id.OrgID, c.Query("keyword"), page, pageSize)
	if err != nil {
		Error(c, 50000, err.Error())
		return
	}
	Success(c, gin.H{"items": items, "total": total, "page": page, "page_size": pageSize})
}

// CreateBuyer 买家建档
// POST /api/v1/buyers
func (h *OrderHandler) CreateBuyer(c *gin.Context) {
	id := middleware.GetIdentity(c)

	var req service.BuyerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, 40000, "参数错误: "+err.Error())
		return
	}

	b, err := h.svc.CreateBuyer(c.Request.Context(), id.OrgID, &req)
	if err != nil {
		Error(c, 40000, err.Error())
		return
	}
	Created(c, b)
}

// SetBuyerPreference 设置买家同步偏好
// PUT /api/v1/buyers/:contact/preference
func (h *OrderHandler) SetBuyerPreference(c *gin.Context) {
	id := middleware.GetIdentity(c)

	var req struct {
		SyncPreference string `json:"sync_preference" binding:"required,oneof=direct manual"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, 40000, "参数错误: "+err.Error())
		return
	}

	b, err := h.svc.SetBuyerPreference(c.Request.Context(), id.OrgID, c.Param("contact"), req.SyncPreference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, 40400, "买家不存在")
			return
		}
		Error(c, 40000, err.Error())
		return
	}
	Success(c, b)
}

// LinkBuyer 关联买家到客户组织
// POST /api/v1/buyers/:contact/link
func (h *OrderHandler) LinkBuyer(c *gin.Context) {
	id := middleware.GetIdentity(c)
	b, err := h.svc.LinkBuyer(c.Request.Context(), id.OrgID, c.Param("contact"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, 40400, "买家不存在")
			return
		}
		Error(c, 40000, err.Error())
		return
	}
	Success(c, b)
}
