// Package generation 是生图结果流水线：请求转换、响应归一化、文件名推导。
package generation

import "strings"

const (
	DefaultModel = "qwen-image-plus"
	DefaultSize  = "1328*1328"
)

// SupportedSizes 表单可选的分辨率，转换时不做校验
var SupportedSizes = []string{"1024*1024", "1328*1328", "1536*1536", "2048*2048"}

// Request 简化后的生图表单
type Request struct {
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	Model          string `json:"model"`
	NegativePrompt string `json:"negativePrompt"`
	Watermark      bool   `json:"watermark"`
	// PromptExtend 为空时按 true 处理
	PromptExtend *bool  `json:"promptExtend,omitempty"`
	Count        int    `json:"n,omitempty"`
	Seed         *int64 `json:"seed,omitempty"`
}

// WithDefaults 补全表单中未填写的模型、尺寸与数量
func (r Request) WithDefaults() Request {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if strings.TrimSpace(r.Model) == "" {
		r.Model = DefaultModel
	}
	if strings.TrimSpace(r.Size) == "" {
		r.Size = DefaultSize
	}
	if r.Count <= 0 {
		r.Count = 1
	}
	return r
}

// UpstreamRequest 上游服务的规范请求体
type UpstreamRequest struct {
	Model      string             `json:"model"`
	Input      UpstreamInput      `json:"input"`
	Parameters UpstreamParameters `json:"parameters"`
}

type UpstreamInput struct {
	Messages []UpstreamMessage `json:"messages"`
}

type UpstreamMessage struct {
	Role    string            `json:"role"`
	Content []UpstreamContent `json:"content"`
}

type UpstreamContent struct {
	Text string `json:"text"`
}

type UpstreamParameters struct {
	NegativePrompt string `json:"negative_prompt"`
	Size           string `json:"size"`
	N              int    `json:"n"`
	PromptExtend   bool   `json:"prompt_extend"`
	Watermark      bool   `json:"watermark"`
	Seed           *int64 `json:"seed,omitempty"`
}

// Translate 把简化表单转换为上游规范请求。纯函数，尺寸原样透传
func Translate(req Request) UpstreamRequest {
	promptExtend := true
	if req.PromptExtend != nil {
		promptExtend = *req.PromptExtend
	}
	n := req.Count
	if n <= 0 {
		n = 1
	}
	return UpstreamRequest{
		Model: req.Model,
		Input: UpstreamInput{
			Messages: []UpstreamMessage{
				{
					Role:    "user",
					Content: []UpstreamContent{{Text: req.Prompt}},
				},
			},
		},
		Parameters: UpstreamParameters{
			NegativePrompt: req.NegativePrompt,
			Size:           req.Size,
			N:              n,
			PromptExtend:   promptExtend,
			Watermark:      req.Watermark,
			Seed:           req.Seed,
		},
	}
}
