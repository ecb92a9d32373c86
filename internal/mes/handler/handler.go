package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// Handlers MES处理器集合
type Handlers struct {
	Pattern      *PatternHandler
	Generation   *GenerationHandler
	VendorSerial *VendorSerialHandler
	Placeholder  *PlaceholderHandler
	Propagation  *PropagationHandler
	Identity     *IdentityHandler
}

// NewHandlers 创建MES处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Pattern:      NewPatternHandler(),
		Generation:   NewGenerationHandler(svc.Generation, svc.Report),
		VendorSerial: NewVendorSerialHandler(svc.VendorSerial),
		Placeholder:  NewPlaceholderHandler(svc.Placeholder),
		Propagation:  NewPropagationHandler(svc.Propagation, svc.Report),
		Identity:     NewIdentityHandler(svc.Identity, svc.Propagation, svc.Report),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func Unprocessable(c *gin.Context, message string) {
	Error(c, 42200, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// HandleError 按服务错误类型返回对应状态码
func HandleError(c *gin.Context, err error) {
	switch {
	case service.IsValidation(err):
		BadRequest(c, err.Error())
	case service.IsNotFound(err):
		NotFound(c, err.Error())
	case service.IsConflict(err):
		Conflict(c, err.Error())
	case service.IsConfiguration(err):
		Unprocessable(c, err.Error())
	default:
		_ = c.Error(err)
		InternalError(c, "internal error")
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetDateRange 解析 from/to 查询参数（RFC3339 或 2006-01-02）
func GetDateRange(c *gin.Context) (*service.DateRange, error) {
	rng := &service.DateRange{}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		raw := c.Query(p.key)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", p.key, err)
		}
		*p.dst = &t
	}
	return rng, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("expected RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}
