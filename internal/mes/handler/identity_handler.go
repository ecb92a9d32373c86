package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// IdentityHandler 序列号身份处理器
type IdentityHandler struct {
	svc         *service.IdentityService
	propagation *service.PropagationService
	report      *service.ReportService
}

func NewIdentityHandler(svc *service.IdentityService, propagation *service.PropagationService, report *service.ReportService) *IdentityHandler {
	return &IdentityHandler{svc: svc, propagation: propagation, report: report}
}

// Search GET /mes/identities?serial_number=&part_id=
func (h *IdentityHandler) Search(c *gin.Context) {
	serial := c.Query("serial_number")
	if serial == "" {
		BadRequest(c, "serial_number is required")
		return
	}
	items, err := h.svc.FindBySerial(c.Request.Context(), c.Query("part_id"), serial)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// Get GET /mes/identities/:id
func (h *IdentityHandler) Get(c *gin.Context) {
	identity, err := h.svc.GetIdentity(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, identity)
}

// UpdateStatus PUT /mes/identities/:id/status
func (h *IdentityHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	identity, err := h.svc.UpdateIdentityStatus(c.Request.Context(), c.Param("id"), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, identity)
}

// AuditHistory GET /mes/identities/:id/audit
func (h *IdentityHandler) AuditHistory(c *gin.Context) {
	items, err := h.svc.GetAuditHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// Lineage GET /mes/identities/:id/lineage
func (h *IdentityHandler) Lineage(c *gin.Context) {
	lineage, err := h.propagation.GetSerialLineage(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, lineage)
}

// ExportLineage GET /mes/identities/:id/lineage/export
func (h *IdentityHandler) ExportLineage(c *gin.Context) {
	f, filename, err := h.report.ExportLineage(c.Request.Context(), c.Param("id"))
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

// ArchiveLineage POST /mes/identities/:id/lineage/archive
func (h *IdentityHandler) ArchiveLineage(c *gin.Context) {
	object, err := h.report.ArchiveLineageReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, gin.H{"object": object})
}
