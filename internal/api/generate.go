package api

import (
	"log/slog"
	"net/http"
	"strings"

	"text2image-service/internal/generation"
	"text2image-service/internal/worker"

	"github.com/gin-gonic/gin"
)

// GenerateHandler 提交一次生图并等待结果
//
// 结果同时写入会话草稿；客户端提前断开时任务继续执行，结果仍可通过 /session/outcome 取回
func (s *Server) GenerateHandler(c *gin.Context) {
	var req generation.Request
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		parsed, err := ParseGenerationRequestFromMultipart(c)
		if err != nil {
			Error(c, http.StatusBadRequest, 400, err.Error())
			return
		}
		req = *parsed
	} else if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, 400, "参数解析失败")
		return
	}

	req = req.WithDefaults()
	if req.Prompt == "" {
		Error(c, http.StatusBadRequest, 400, "prompt 不能为空")
		return
	}

	id := sessionID(c)
	draft := s.Sessions.Draft(id)
	draft.SaveForm(req)

	if !s.Sessions.Begin(id) {
		Error(c, http.StatusConflict, 409, "已有生成任务正在进行，请稍候")
		return
	}
	draft.SaveOutcome(generation.Generating())

	job := worker.NewJob(id, req, func(outcome generation.Outcome) {
		draft.SaveOutcome(outcome)
		s.Sessions.End(id)
	})
	if !s.Pool.Submit(job) {
		draft.SaveOutcome(generation.Failed(generation.FailureBusy, generation.MessageBusy))
		s.Sessions.End(id)
		Error(c, http.StatusServiceUnavailable, 503, generation.MessageBusy)
		return
	}

	select {
	case <-job.Done():
		Success(c, job.Outcome())
	case <-c.Request.Context().Done():
		slog.Info("客户端已断开，任务继续执行", "session", id)
	}
}
