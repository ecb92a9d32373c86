package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// GenerationHandler 系统序列号生成处理器
type GenerationHandler struct {
	svc    *service.SerialGenerationService
	report *service.ReportService
}

func NewGenerationHandler(svc *service.SerialGenerationService, report *service.ReportService) *GenerationHandler {
	return &GenerationHandler{svc: svc, report: report}
}

type generateReq struct {
	PartID string `json:"part_id" binding:"required"`
	service.GenerateOptions
}

type batchGenerateReq struct {
	PartID string `json:"part_id" binding:"required"`
	Count  int    `json:"count" binding:"required"`
	service.GenerateOptions
}

type fireTriggerReq struct {
	service.TriggerContext
}

type setActiveReq struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// CreateFormatConfig POST /mes/format-configs
func (h *GenerationHandler) CreateFormatConfig(c *gin.Context) {
	var req service.CreateFormatConfigReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	cfg, err := h.svc.CreateFormatConfig(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, cfg)
}

// ListFormatConfigs GET /mes/format-configs
func (h *GenerationHandler) ListFormatConfigs(c *gin.Context) {
	filters := map[string]string{
		"part_id":   c.Query("part_id"),
		"site_id":   c.Query("site_id"),
		"is_active": c.Query("is_active"),
	}
	items, err := h.svc.ListFormatConfigs(c.Request.Context(), filters)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// GetActiveFormatConfig GET /mes/parts/:partId/format-config
func (h *GenerationHandler) GetActiveFormatConfig(c *gin.Context) {
	cfg, err := h.svc.GetActiveFormatConfig(c.Request.Context(), c.Param("partId"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, cfg)
}

// CreateTrigger POST /mes/triggers
func (h *GenerationHandler) CreateTrigger(c *gin.Context) {
	var req service.CreateTriggerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	trigger, err := h.svc.CreateTrigger(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, trigger)
}

// ListTriggers GET /mes/parts/:partId/triggers
func (h *GenerationHandler) ListTriggers(c *gin.Context) {
	items, err := h.svc.ListTriggers(c.Request.Context(), c.Param("partId"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// SetTriggerActive PUT /mes/triggers/:id/active
func (h *GenerationHandler) SetTriggerActive(c *gin.Context) {
	var req setActiveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	if err := h.svc.SetTriggerActive(c.Request.Context(), c.Param("id"), *req.IsActive); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"id": c.Param("id"), "is_active": *req.IsActive})
}

// FireTrigger POST /mes/parts/:partId/triggers/:type/fire
func (h *GenerationHandler) FireTrigger(c *gin.Context) {
	var req fireTriggerReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "请求参数错误: "+err.Error())
			return
		}
	}
	if req.Actor == "" {
		req.Actor = GetUserID(c)
	}
	items, err := h.svc.TriggerSerialGeneration(c.Request.Context(), c.Param("partId"), c.Param("type"), req.TriggerContext)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// Generate POST /mes/serials/generate
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req generateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	identity, err := h.svc.GenerateSystemSerial(c.Request.Context(), req.PartID, GetUserID(c), req.GenerateOptions)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, identity)
}

// GenerateBatch POST /mes/serials/batch
func (h *GenerationHandler) GenerateBatch(c *gin.Context) {
	var req batchGenerateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	items, err := h.svc.GenerateBatchSerials(c.Request.Context(), req.PartID, GetUserID(c), req.Count, req.GenerateOptions)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, gin.H{"items": items, "total": len(items)})
}

// Preview POST /mes/serials/preview
func (h *GenerationHandler) Preview(c *gin.Context) {
	var req generateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	res, err := h.svc.PreviewSerial(c.Request.Context(), req.PartID, req.GenerateOptions)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, res)
}

// ListGenerated GET /mes/parts/:partId/serials?from=&to=
func (h *GenerationHandler) ListGenerated(c *gin.Context) {
	rng, err := GetDateRange(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	items, err := h.svc.GetGeneratedSerials(c.Request.Context(), c.Param("partId"), rng)
	if err != nil {
		HandleError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// ExportGenerated GET /mes/parts/:partId/serials/export
func (h *GenerationHandler) ExportGenerated(c *gin.Context) {
	rng, err := GetDateRange(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	f, filename, err := h.report.ExportGeneratedSerials(c.Request.Context(), c.Param("partId"), rng)
	if err != nil {
		HandleError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}
