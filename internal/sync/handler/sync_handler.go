package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vastraworks/vastra/internal/middleware"
	orderrepo "github.com/vastraworks/vastra/internal/order/repository"
	syncrepo "github.com/vastraworks/vastra/internal/sync/repository"
	"github.com/vastraworks/vastra/internal/sync/service"
)

// SyncHandler 同步接口
type SyncHandler struct {
	engine *service.SyncEngine
}

func NewSyncHandler(engine *service.SyncEngine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(200, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// failFromError 按错误类型映射HTTP状态
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, syncrepo.ErrNotFound), errors.Is(err, orderrepo.ErrNotFound):
		fail(c, 404, "record not found")
	case errors.Is(err, service.ErrOrgMismatch):
		fail(c, 403, err.Error())
	case errors.Is(err, service.ErrAlreadyProcessed),
		errors.Is(err, service.ErrAlreadySynced),
		errors.Is(err, service.ErrAlreadyPending),
		errors.Is(err, service.ErrEditWindowExpired),
		errors.Is(err, service.ErrNothingApplied),
		errors.Is(err, service.ErrOrderBusy):
		fail(c, 400, err.Error())
	default:
		fail(c, 500, err.Error())
	}
}

// Pending 待审批队列
// GET /api/v1/sync/pending
func (h *SyncHandler) Pending(c *gin.Context) {
	id := middleware.GetIdentity(c)
	entries, err := h.engine.ListPending(c.Request.Context(), id.OrgID)
	if err != nil {
		failFromError(c, err)
		return
	}
	c.JSON(200, gin.H{"success": true, "data": entries, "count": len(entries)})
}

// Accept 审批通过
// POST /api/v1/sync/:syncId/accept
func (h *SyncHandler) Accept(c *gin.Context) {
	id := middleware.GetIdentity(c)
	result, err := h.engine.Accept(c.Request.Context(), c.Param("syncId"), service.Approver{
		UserID: id.UserID,
		Name:   id.Name,
		OrgID:  id.OrgID,
	})
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, result)
}

// Reject 审批拒绝
// POST /api/v1/sync/:syncId/reject
func (h *SyncHandler) Reject(c *gin.Context) {
	id := middleware.GetIdentity(c)

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, "invalid request body")
		return
	}

	result, err := h.engine.Reject(c.Request.Context(), c.Param("syncId"), req.Reason, service.Approver{
		UserID: id.UserID,
		Name:   id.Name,
		OrgID:  id.OrgID,
	})
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, result)
}

// Resend 重发同步
// POST /api/v1/sync/resend/:orderId
func (h *SyncHandler) Resend(c *gin.Context) {
	id := middleware.GetIdentity(c)
	result, err := h.engine.Resend(c.Request.Context(), id.OrgID, c.Param("orderId"))
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, result)
}

// Received 客户侧收货记录
// GET /api/v1/sync/received-from-supplier
func (h *SyncHandler) Received(c *gin.Context) {
	id := middleware.GetIdentity(c)
	summary, err := h.engine.ListReceived(c.Request.Context(), id.OrgID)
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, gin.H{
		"orders":       summary.Orders,
		"total_orders": summary.TotalOrders,
		"total_items":  summary.TotalItems,
	})
}

// SupplierLogs 供应商台账
// GET /api/v1/sync/supplier-logs?dateRange=today|7days|30days
func (h *SyncHandler) SupplierLogs(c *gin.Context) {
	id := middleware.GetIdentity(c)
	result, err := h.engine.SupplierLogs(c.Request.Context(), id.OrgID, c.Query("dateRange"))
	if err != nil {
		fail(c, 400, err.Error())
		return
	}
	ok(c, gin.H{"logs": result.Logs, "stats": result.Stats})
}

// ExportSupplierLogs 导出供应商台账
// GET /api/v1/sync/supplier-logs/export?dateRange=...
func (h *SyncHandler) ExportSupplierLogs(c *gin.Context) {
	id := middleware.GetIdentity(c)
	f, err := h.engine.ExportSupplierLogs(c.Request.Context(), id.OrgID, c.Query("dateRange"))
	if err != nil {
		fail(c, 400, err.Error())
		return
	}

	filename := fmt.Sprintf("sync-logs-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		fail(c, 500, "export failed")
	}
}
