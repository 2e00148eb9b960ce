package api

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"text2image-service/internal/generation"

	"github.com/gin-gonic/gin"
	"github.com/mazrean/formstream"
	ginform "github.com/mazrean/formstream/gin"
)

// formField 把一个表单字段写入请求
type formField func(req *generation.Request, value string)

var generationFormFields = map[string]formField{
	"prompt":         func(req *generation.Request, v string) { req.Prompt = v },
	"size":           func(req *generation.Request, v string) { req.Size = v },
	"model":          func(req *generation.Request, v string) { req.Model = v },
	"negativePrompt": func(req *generation.Request, v string) { req.NegativePrompt = v },
	"watermark": func(req *generation.Request, v string) {
		if b, ok := parseFormBool(v); ok {
			req.Watermark = b
		}
	},
	"promptExtend": func(req *generation.Request, v string) {
		if b, ok := parseFormBool(v); ok {
			req.PromptExtend = &b
		}
	},
	"n": func(req *generation.Request, v string) {
		if count, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			req.Count = count
		}
	},
	"seed": func(req *generation.Request, v string) {
		if seed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			req.Seed = &seed
		}
	},
}

// ParseGenerationRequestFromMultipart 使用 formstream 解析表单形式的生图请求
func ParseGenerationRequestFromMultipart(c *gin.Context) (*generation.Request, error) {
	req := &generation.Request{}

	p, err := ginform.NewParser(c)
	if err != nil {
		return nil, fmt.Errorf("创建解析器失败: %w", err)
	}

	for name, apply := range generationFormFields {
		apply := apply
		p.Parser.Register(name, func(reader io.Reader, header formstream.Header) error {
			data, err := io.ReadAll(reader)
			if err != nil {
				return err
			}
			apply(req, string(data))
			return nil
		})
	}

	if err := p.Parse(); err != nil {
		slog.Warn("[回退] formstream 解析失败，尝试使用标准库", "error", err)
		return parseWithStandardLibrary(c)
	}
	return req, nil
}

// parseWithStandardLibrary 标准库回退解析逻辑
func parseWithStandardLibrary(c *gin.Context) (*generation.Request, error) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		return nil, fmt.Errorf("解析表单失败: %w", err)
	}

	req := &generation.Request{}
	for name, apply := range generationFormFields {
		if value, ok := c.GetPostForm(name); ok {
			apply(req, value)
		}
	}
	return req, nil
}

// parseFormBool 额外接受复选框提交的 on/off
func parseFormBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on":
		return true, true
	case "off":
		return false, true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return b, err == nil
}
