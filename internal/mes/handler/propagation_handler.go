package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// PropagationHandler 序列号流转处理器
type PropagationHandler struct {
	svc    *service.PropagationService
	report *service.ReportService
}

func NewPropagationHandler(svc *service.PropagationService, report *service.ReportService) *PropagationHandler {
	return &PropagationHandler{svc: svc, report: report}
}

// PassThrough POST /mes/propagations/pass-through
func (h *PropagationHandler) PassThrough(c *gin.Context) {
	var req service.PassThroughReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	edge, err := h.svc.PropagatePassThrough(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, edge)
}

// Split POST /mes/propagations/split
func (h *PropagationHandler) Split(c *gin.Context) {
	var req service.SplitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	edges, err := h.svc.PropagateSplit(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, gin.H{"items": edges, "total": len(edges)})
}

// Merge POST /mes/propagations/merge
func (h *PropagationHandler) Merge(c *gin.Context) {
	var req service.MergeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	edge, err := h.svc.PropagateMerge(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, edge)
}

// Transformation POST /mes/propagations/transformation
func (h *PropagationHandler) Transformation(c *gin.Context) {
	var req service.TransformationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	edge, err := h.svc.PropagateTransformation(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, edge)
}

// History GET /mes/parts/:partId/propagations
func (h *PropagationHandler) History(c *gin.Context) {
	var filter service.PropagationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	items, err := h.svc.GetPropagationHistory(c.Request.Context(), c.Param("partId"), filter)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// Statistics GET /mes/parts/:partId/propagations/statistics
func (h *PropagationHandler) Statistics(c *gin.Context) {
	stats, err := h.svc.GetPropagationStatistics(c.Request.Context(), c.Param("partId"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, stats)
}
