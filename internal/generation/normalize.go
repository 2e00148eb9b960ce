package generation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"text2image-service/internal/upstream"
)

// RecordSink 接收归一化后产出的图片记录
type RecordSink interface {
	Append(record ImageRecord)
}

// Extractor 从一个 choice 中尝试取出图片 URL
type Extractor struct {
	Name    string
	Extract func(entry map[string]interface{}) (string, bool)
}

// Extractors 按优先级排列，命中第一个即停止
var Extractors = []Extractor{
	{Name: "message.content[0].image", Extract: func(entry map[string]interface{}) (string, bool) {
		return stringAt(firstContent(entry), "image")
	}},
	{Name: "message.content[0].image.url", Extract: func(entry map[string]interface{}) (string, bool) {
		return nestedURL(firstContent(entry), "image")
	}},
	{Name: "message.content[0].url", Extract: func(entry map[string]interface{}) (string, bool) {
		return stringAt(firstContent(entry), "url")
	}},
	{Name: "image", Extract: func(entry map[string]interface{}) (string, bool) {
		if url, ok := stringAt(entry, "image"); ok {
			return url, true
		}
		return nestedURL(entry, "image")
	}},
	{Name: "url", Extract: func(entry map[string]interface{}) (string, bool) {
		return stringAt(entry, "url")
	}},
}

// ExtractURL 依次尝试所有 Extractor，返回命中的 URL
func ExtractURL(entry interface{}) (string, bool) {
	obj, ok := entry.(map[string]interface{})
	if !ok {
		return "", false
	}
	for _, ex := range Extractors {
		if url, ok := ex.Extract(obj); ok {
			return url, true
		}
	}
	return "", false
}

// Normalizer 把上游各种形态的响应统一成 Outcome
type Normalizer struct {
	Sink RecordSink
	Now  func() time.Time
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

// Normalize 解析上游响应；成功时每张图片都会先写入 Sink 再返回
func (n *Normalizer) Normalize(raw *upstream.RawResponse, req Request) Outcome {
	if raw == nil {
		return Failed(FailureNoImageData, MessageNoImageData)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw.Body, &payload); err != nil {
		slog.Warn("上游响应不是合法 JSON", "status", raw.StatusCode, "error", err)
		payload = nil
	}

	if !raw.OK() {
		msg := upstreamMessage(payload)
		if msg == "" {
			msg = MessageUpstream
		}
		return Failed(FailureUpstream, msg)
	}

	choices := findChoices(payload)
	var urls []string
	for i, choice := range choices {
		url, ok := ExtractURL(choice)
		if !ok {
			slog.Warn("choice 中未找到图片地址，已跳过", "index", i)
			continue
		}
		urls = append(urls, url)
	}

	if len(urls) == 0 {
		msg := upstreamMessage(payload)
		if msg == "" {
			msg = MessageNoImageData
		}
		return Failed(FailureNoImageData, msg)
	}

	generatedAt := n.now()
	requestID := requestIDOf(payload)
	if requestID == "" {
		requestID = strconv.FormatInt(generatedAt.UnixMilli(), 10)
	}
	width, height := ParseSize(req.Size)

	images := make([]ImageRecord, 0, len(urls))
	for i, url := range urls {
		record := ImageRecord{
			ID:        fmt.Sprintf("%s-%d", requestID, i),
			URL:       url,
			Prompt:    req.Prompt,
			Width:     width,
			Height:    height,
			Model:     req.Model,
			Size:      req.Size,
			CreatedAt: FormatTimestamp(generatedAt),
		}
		if n.Sink != nil {
			n.Sink.Append(record)
		}
		images = append(images, record)
	}
	return Succeeded(images)
}

func findChoices(payload map[string]interface{}) []interface{} {
	if payload == nil {
		return nil
	}
	if output, ok := payload["output"].(map[string]interface{}); ok {
		if choices, ok := output["choices"].([]interface{}); ok && len(choices) > 0 {
			return choices
		}
	}
	if choices, ok := payload["choices"].([]interface{}); ok {
		return choices
	}
	return nil
}

// upstreamMessage 取第一个可用的错误/提示字段
func upstreamMessage(payload map[string]interface{}) string {
	if payload == nil {
		return ""
	}
	for _, key := range []string{"message", "error", "error_message"} {
		switch v := payload[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]interface{}:
			if s, ok := stringAt(v, "message"); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	if output, ok := payload["output"].(map[string]interface{}); ok {
		return upstreamMessage(output)
	}
	return ""
}

func requestIDOf(payload map[string]interface{}) string {
	for _, key := range []string{"request_id", "requestId", "id"} {
		if s, ok := stringAt(payload, key); ok {
			return s
		}
	}
	return ""
}

func firstContent(entry map[string]interface{}) map[string]interface{} {
	message, ok := entry["message"].(map[string]interface{})
	if !ok {
		return nil
	}
	content, ok := message["content"].([]interface{})
	if !ok || len(content) == 0 {
		return nil
	}
	first, _ := content[0].(map[string]interface{})
	return first
}

func stringAt(obj map[string]interface{}, key string) (string, bool) {
	if obj == nil {
		return "", false
	}
	s, ok := obj[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func nestedURL(obj map[string]interface{}, key string) (string, bool) {
	if obj == nil {
		return "", false
	}
	inner, ok := obj[key].(map[string]interface{})
	if !ok {
		return "", false
	}
	return stringAt(inner, "url")
}
