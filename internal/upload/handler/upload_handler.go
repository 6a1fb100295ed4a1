package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/vastraworks/vastra/internal/middleware"
	orderrepo "github.com/vastraworks/vastra/internal/order/repository"
	"github.com/vastraworks/vastra/internal/upload/service"
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

// UploadHandler 附件处理器
type UploadHandler struct {
	svc *service.UploadService
}

func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// UploadChallan 上传送货单
// POST /api/v1/orders/:id/challan
func (h *UploadHandler) UploadChallan(c *gin.Context) {
	id := middleware.GetIdentity(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		Error(c, 40000, "缺少上传文件")
		return
	}
	defer file.Close()

	path, err := h.svc.UploadChallan(c.Request.Context(), id.OrgID, c.Param("id"),
		file, header.Filename, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			Error(c, 40400, "订单不存在")
			return
		}
		Error(c, 50000, err.Error())
		return
	}
	Success(c, gin.H{"file_path": path})
}

// DownloadChallan 下载送货单
// GET /api/v1/orders/:id/challan
func (h *UploadHandler) DownloadChallan(c *gin.Context) {
	id := middleware.GetIdentity(c)

	object, name, err := h.svc.DownloadChallan(c.Request.Context(), id.OrgID, c.Param("id"))
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			Error(c, 40400, "订单不存在")
			return
		}
		Error(c, 40000, err.Error())
		return
	}
	defer object.Close()

	c.Header("Content-Disposition", "attachment; filename="+name)
	c.DataFromReader(200, -1, "application/octet-stream", object, nil)
}
