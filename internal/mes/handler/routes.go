package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// 权限点
const (
	PermIdentityStatus = "mes:identity:status"
	PermVendorDecide   = "mes:vendor:decide"
)

// RegisterRoutes 注册MES路由，rg 需已挂载 JWT 认证
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	mes := rg.Group("/mes")

	patterns := mes.Group("/patterns")
	{
		patterns.POST("/validate", h.Pattern.Validate)
		patterns.POST("/parse", h.Pattern.Parse)
		patterns.POST("/render", h.Pattern.Render)
		patterns.POST("/match", h.Pattern.Match)
	}

	// 格式配置与触发器仅工艺工程师可维护
	engineer := mes.Group("", middleware.RequireRole(middleware.EngineerRole))
	{
		engineer.POST("/format-configs", h.Generation.CreateFormatConfig)
		engineer.POST("/triggers", h.Generation.CreateTrigger)
		engineer.PUT("/triggers/:id/active", h.Generation.SetTriggerActive)
	}
	mes.GET("/format-configs", h.Generation.ListFormatConfigs)

	serials := mes.Group("/serials")
	{
		serials.POST("/generate", h.Generation.Generate)
		serials.POST("/batch", h.Generation.GenerateBatch)
		serials.POST("/preview", h.Generation.Preview)
	}

	parts := mes.Group("/parts/:partId")
	{
		parts.GET("/format-config", h.Generation.GetActiveFormatConfig)
		parts.GET("/triggers", h.Generation.ListTriggers)
		parts.POST("/triggers/:type/fire", h.Generation.FireTrigger)
		parts.GET("/serials", h.Generation.ListGenerated)
		parts.GET("/serials/export", h.Generation.ExportGenerated)
		parts.GET("/placeholders/pending", h.Placeholder.ListPending)
		parts.GET("/placeholders/serialized", h.Placeholder.ListSerialized)
		parts.GET("/placeholders/statistics", h.Placeholder.Statistics)
		parts.GET("/propagations", h.Propagation.History)
		parts.GET("/propagations/statistics", h.Propagation.Statistics)
	}

	vendor := mes.Group("/vendor-serials")
	{
		vendor.POST("", h.VendorSerial.Receive)
		vendor.GET("", h.VendorSerial.List)
		vendor.POST("/import", h.VendorSerial.Import)
		vendor.GET("/:id", h.VendorSerial.Get)
		vendor.GET("/:id/validation", h.VendorSerial.Validate)
		vendor.POST("/:id/accept", middleware.RequirePermission(PermVendorDecide), h.VendorSerial.Accept)
		vendor.POST("/:id/reject", middleware.RequirePermission(PermVendorDecide), h.VendorSerial.Reject)
		vendor.POST("/:id/propagate", h.VendorSerial.Propagate)
		vendor.POST("/:id/identity", h.VendorSerial.RegisterIdentity)
	}

	placeholders := mes.Group("/placeholders")
	{
		placeholders.POST("", h.Placeholder.Create)
		placeholders.POST("/batch", h.Placeholder.CreateBatch)
		placeholders.GET("", h.Placeholder.List)
		placeholders.GET("/:id", h.Placeholder.Get)
		placeholders.POST("/:id/assign", h.Placeholder.Assign)
		placeholders.POST("/:id/fail", h.Placeholder.Fail)
	}

	propagations := mes.Group("/propagations")
	{
		propagations.POST("/pass-through", h.Propagation.PassThrough)
		propagations.POST("/split", h.Propagation.Split)
		propagations.POST("/merge", h.Propagation.Merge)
		propagations.POST("/transformation", h.Propagation.Transformation)
	}

	identities := mes.Group("/identities")
	{
		identities.GET("", h.Identity.Search)
		identities.GET("/:id", h.Identity.Get)
		identities.PUT("/:id/status", middleware.RequirePermission(PermIdentityStatus), h.Identity.UpdateStatus)
		identities.GET("/:id/audit", h.Identity.AuditHistory)
		identities.GET("/:id/lineage", h.Identity.Lineage)
		identities.GET("/:id/lineage/export", h.Identity.ExportLineage)
		identities.POST("/:id/lineage/archive", h.Identity.ArchiveLineage)
	}
}
