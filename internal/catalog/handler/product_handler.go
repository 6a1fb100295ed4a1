package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vastraworks/vastra/internal/catalog/repository"
	"github.com/vastraworks/vastra/internal/catalog/service"
	"github.com/vastraworks/vastra/internal/middleware"
)

// Response 通用响应结构（与identity保持一致）
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

// ProductHandler 款号处理器
type ProductHandler struct {
	svc *service.ProductService
}

func NewProductHandler(svc *service.ProductService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// List 款号列表
// GET /api/v1/products
func (h *ProductHandler) List(c *gin.Context) {
	id := middleware.GetIdentity(c)
	page, pageSize := GetPagination(c)

	items, total, err := h.svc.List(c.Request.Context(), repository.ProductListParams{
		OrgID:    id.OrgID,
		Keyword:  c.Query("keyword"),
		Category: c.Query("category"),
		LowStock: c.Query("low_stock") == "true",
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		Error(c, 50000, "获取款号列表失败: "+err.Error())
		return
	}
	Success(c, gin.H{"items": items, "total": total, "page": page, "page_size": pageSize})
}

// Create 创建款号
// POST /api/v1/products
func (h *ProductHandler) Create(c *gin.Context) {
	id := middleware.GetIdentity(c)

	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, 40000, "参数错误: "+err.Error())
		return
	}

	p, err := h.svc.Create(c.Request.Context(), id.OrgID, &req)
	if err != nil {
		Error(c, 40000, err.Error())
		return
	}
	Created(c, p)
}

// Get 款号详情
// GET /api/v1/products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	id := middleware.GetIdentity(c)
	p, err := h.svc.Get(c.Request.Context(), id.OrgID, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, 40400, "款号不存在")
			return
		}
		Error(c, 50000, err.Error())
		return
	}
	Success(c, p)
}

// Delete 删除款号
// DELETE /api/v1/products/:id
func (h *ProductHandler) Delete(c *gin.Context) {
	id := middleware.GetIdentity(c)
	if err := h.svc.Delete(c.Request.Context(), id.OrgID, c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			Error(c, 40400, "款号不存在")
			return
		}
		Error(c, 50000, err.Error())
		return
	}
	Success(c, gin.H{"deleted": true})
}

// Alerts 低库存预警
// GET /api/v1/products/alerts
func (h *ProductHandler) Alerts(c *gin.Context) {
	id := middleware.GetIdentity(c)
	alerts, err := h.svc.GetAlerts(c.Request.Context(), id.OrgID)
	if err != nil {
		Error(c, 50000, err.Error())
		return
	}
	Success(c, gin.H{"items": alerts})
}

// AdjustStock 手工调整库存
// POST /api/v1/products/stock/adjust
func (h *ProductHandler) AdjustStock(c *gin.Context) {
	id := middleware.GetIdentity(c)

	var req service.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, 40000, "参数错误: "+err.Error())
		return
	}

	if err := h.svc.AdjustStock(c.Request.Context(), id.OrgID, id.UserID, &req); err != nil {
		Error(c, 40000, err.Error())
		return
	}
	Success(c, gin.H{"adjusted": true})
}

// Movements 库存流水
// GET /api/v1/products/stock/movements
func (h *ProductHandler) Movements(c *gin.Context) {
	id := middleware.GetIdentity(c)
	page, pageSize := GetPagination(c)

	items, total, err := h.svc.ListMovements(c.Request.Context(), id.OrgID, c.Query("design"), page, pageSize)
	if err != nil {
		Error(c, 50000, err.Error())
		return
	}
	Success(c, gin.H{"items": items, "total": total, "page": page, "page_size": pageSize})
}
