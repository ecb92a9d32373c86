package handler

import (
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/pattern"
	"github.com/gin-gonic/gin"
)

// PatternHandler 序列号模板工具（无状态）
type PatternHandler struct{}

func NewPatternHandler() *PatternHandler {
	return &PatternHandler{}
}

type patternReq struct {
	Template string `json:"template"`
}

type renderReq struct {
	Template   string            `json:"template"`
	SiteCode   string            `json:"site_code"`
	PartNumber string            `json:"part_number"`
	Sequence   int64             `json:"sequence"`
	Timestamp  *time.Time        `json:"timestamp"`
	Fields     map[string]string `json:"fields"`
}

type matchReq struct {
	Template  string `json:"template"`
	Candidate string `json:"candidate"`
}

type componentView struct {
	Type  pattern.TokenType `json:"type"`
	Raw   string            `json:"raw"`
	Span  pattern.Span      `json:"span"`
	Value interface{}       `json:"value,omitempty"`
}

// Validate 校验模板语法
// POST /mes/patterns/validate
func (h *PatternHandler) Validate(c *gin.Context) {
	var req patternReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	res := pattern.ValidatePatternSyntax(req.Template)
	Success(c, gin.H{
		"is_valid": res.IsValid,
		"errors":   res.Errors,
		"metadata": pattern.GetPatternMetadata(req.Template),
	})
}

// Parse 解析模板组件
// POST /mes/patterns/parse
func (h *PatternHandler) Parse(c *gin.Context) {
	var req patternReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	p := pattern.ParsePattern(req.Template)
	views := make([]componentView, 0, len(p.Components))
	for _, comp := range p.Components {
		views = append(views, viewOf(comp))
	}
	Success(c, gin.H{"components": views, "metadata": p.Metadata})
}

// Render 按上下文渲染模板（不占用流水号）
// POST /mes/patterns/render
func (h *PatternHandler) Render(c *gin.Context) {
	var req renderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	ctx := pattern.Context{
		SiteCode:   req.SiteCode,
		PartNumber: req.PartNumber,
		Sequence:   req.Sequence,
		Fields:     req.Fields,
	}
	if req.Timestamp != nil {
		ctx.Timestamp = req.Timestamp.UTC()
	}
	Success(c, gin.H{"serial": pattern.GenerateSerial(req.Template, ctx)})
}

// Match 检查序列号是否符合模板结构
// POST /mes/patterns/match
func (h *PatternHandler) Match(c *gin.Context) {
	var req matchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	Success(c, gin.H{"matches": pattern.ValidateAgainstPattern(req.Candidate, req.Template)})
}

func viewOf(comp pattern.Component) componentView {
	v := componentView{Type: comp.Type(), Raw: comp.Raw(), Span: comp.Span()}
	switch t := comp.(type) {
	case pattern.PrefixToken:
		v.Value = t.Value
	case pattern.SeqToken:
		v.Value = gin.H{"length": t.Length}
	case pattern.RandomToken:
		v.Value = gin.H{"charset": t.Charset, "length": t.Length}
	case pattern.CheckToken:
		v.Value = gin.H{"algorithm": t.Algorithm}
	case pattern.UnknownToken:
		v.Value = gin.H{"name": t.Name, "args": t.Args}
	}
	return v
}
