package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// PlaceholderHandler 延迟赋号占位符处理器
type PlaceholderHandler struct {
	svc *service.PlaceholderService
}

func NewPlaceholderHandler(svc *service.PlaceholderService) *PlaceholderHandler {
	return &PlaceholderHandler{svc: svc}
}

type failPlaceholderReq struct {
	Reason string `json:"reason" binding:"required"`
}

// Create POST /mes/placeholders
func (h *PlaceholderHandler) Create(c *gin.Context) {
	var req service.CreatePlaceholderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	ph, err := h.svc.CreatePlaceholder(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, ph)
}

// CreateBatch POST /mes/placeholders/batch
func (h *PlaceholderHandler) CreateBatch(c *gin.Context) {
	var req service.CreatePlaceholderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	items, err := h.svc.CreateBatchPlaceholders(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, gin.H{"items": items, "total": len(items)})
}

// List GET /mes/placeholders
func (h *PlaceholderHandler) List(c *gin.Context) {
	var filter service.PlaceholderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	items, err := h.svc.GetPlaceholders(c.Request.Context(), filter)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// Get GET /mes/placeholders/:id
func (h *PlaceholderHandler) Get(c *gin.Context) {
	ph, err := h.svc.GetPlaceholder(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ph)
}

// Assign POST /mes/placeholders/:id/assign
func (h *PlaceholderHandler) Assign(c *gin.Context) {
	var req service.AssignSerialReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	ph, err := h.svc.AssignSerialToPlaceholder(c.Request.Context(), c.Param("id"), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ph)
}

// Fail POST /mes/placeholders/:id/fail
func (h *PlaceholderHandler) Fail(c *gin.Context) {
	var req failPlaceholderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	ph, err := h.svc.MarkPlaceholderFailed(c.Request.Context(), c.Param("id"), req.Reason, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ph)
}

// ListPending GET /mes/parts/:partId/placeholders/pending
func (h *PlaceholderHandler) ListPending(c *gin.Context) {
	items, err := h.svc.GetPendingPlaceholders(c.Request.Context(), c.Param("partId"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// ListSerialized GET /mes/parts/:partId/placeholders/serialized?from=&to=
func (h *PlaceholderHandler) ListSerialized(c *gin.Context) {
	rng, err := GetDateRange(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	items, err := h.svc.GetSerializedFromPlaceholders(c.Request.Context(), c.Param("partId"), rng)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// Statistics GET /mes/parts/:partId/placeholders/statistics
func (h *PlaceholderHandler) Statistics(c *gin.Context) {
	stats, err := h.svc.GetPlaceholderStatistics(c.Request.Context(), c.Param("partId"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, stats)
}
