package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// VendorSerialHandler 供应商序列号处理器
type VendorSerialHandler struct {
	svc *service.VendorSerialService
}

func NewVendorSerialHandler(svc *service.VendorSerialService) *VendorSerialHandler {
	return &VendorSerialHandler{svc: svc}
}

type acceptVendorReq struct {
	LinkedIdentityID string `json:"linked_identity_id"`
}

type rejectReq struct {
	Reason string `json:"reason" binding:"required"`
}

// Receive POST /mes/vendor-serials
func (h *VendorSerialHandler) Receive(c *gin.Context) {
	var req service.ReceiveVendorSerialReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	vs, err := h.svc.ReceiveVendorSerial(c.Request.Context(), req, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, vs)
}

// List GET /mes/vendor-serials
func (h *VendorSerialHandler) List(c *gin.Context) {
	var filter service.VendorSerialFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	items, err := h.svc.ListVendorSerials(c.Request.Context(), filter)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items, "total": len(items)})
}

// Get GET /mes/vendor-serials/:id
func (h *VendorSerialHandler) Get(c *gin.Context) {
	vs, err := h.svc.GetVendorSerial(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, vs)
}

// Validate GET /mes/vendor-serials/:id/validation
func (h *VendorSerialHandler) Validate(c *gin.Context) {
	res, err := h.svc.ValidateVendorSerial(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, res)
}

// Accept POST /mes/vendor-serials/:id/accept
func (h *VendorSerialHandler) Accept(c *gin.Context) {
	var req acceptVendorReq
	// 请求体可选
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "请求参数错误: "+err.Error())
			return
		}
	}
	vs, err := h.svc.AcceptVendorSerial(c.Request.Context(), c.Param("id"), GetUserID(c), req.LinkedIdentityID)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, vs)
}

// Reject POST /mes/vendor-serials/:id/reject
func (h *VendorSerialHandler) Reject(c *gin.Context) {
	var req rejectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	vs, err := h.svc.RejectVendorSerial(c.Request.Context(), c.Param("id"), req.Reason, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, vs)
}

// Propagate POST /mes/vendor-serials/:id/propagate
func (h *VendorSerialHandler) Propagate(c *gin.Context) {
	var req service.PropagateVendorSerialReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	edge, err := h.svc.PropagateVendorSerial(c.Request.Context(), c.Param("id"), req.OperationCode, req.Quantity, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, edge)
}

// RegisterIdentity POST /mes/vendor-serials/:id/identity
func (h *VendorSerialHandler) RegisterIdentity(c *gin.Context) {
	identity, err := h.svc.RegisterVendorIdentity(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, identity)
}

// Import POST /mes/vendor-serials/import
// multipart: file（供应商随货清单CSV）, part_id, vendor_name
func (h *VendorSerialHandler) Import(c *gin.Context) {
	partID := c.PostForm("part_id")
	if partID == "" {
		BadRequest(c, "part_id is required")
		return
	}
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传供应商清单文件")
		return
	}
	defer file.Close()

	res, err := h.svc.ImportVendorSerials(c.Request.Context(), service.VendorImportReq{
		PartID:     partID,
		VendorName: c.PostForm("vendor_name"),
	}, file, GetUserID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, res)
}
