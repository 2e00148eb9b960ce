package api

import (
	"net/http"
	"strings"

	"text2image-service/internal/generation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	SessionCookie = "t2i_session"
	SessionHeader = "X-Session-ID"
)

// sessionID 读取或分配会话 ID。Cookie 不设置过期时间，浏览器关闭即失效
func sessionID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(SessionHeader)); id != "" {
		return id
	}
	if id, err := c.Cookie(SessionCookie); err == nil && id != "" {
		return id
	}
	id := uuid.New().String()
	c.SetCookie(SessionCookie, id, 0, "/", "", false, true)
	c.Header(SessionHeader, id)
	return id
}

// GetFormHandler 返回会话保存的表单，没有时返回默认表单
func (s *Server) GetFormHandler(c *gin.Context) {
	draft := s.Sessions.Draft(sessionID(c))
	form, ok := draft.Form()
	if !ok {
		form = generation.Request{}.WithDefaults()
	}
	Success(c, gin.H{"form": form, "saved": ok})
}

// SaveFormHandler 表单任意字段变化时保存
func (s *Server) SaveFormHandler(c *gin.Context) {
	var form generation.Request
	if err := c.ShouldBindJSON(&form); err != nil {
		Error(c, http.StatusBadRequest, 400, "参数解析失败")
		return
	}
	s.Sessions.Draft(sessionID(c)).SaveForm(form)
	Success(c, form)
}

// GetOutcomeHandler 返回最近一次生成结果，没有时为 idle
func (s *Server) GetOutcomeHandler(c *gin.Context) {
	outcome, ok := s.Sessions.Draft(sessionID(c)).Outcome()
	if !ok {
		outcome = generation.Idle()
	}
	Success(c, outcome)
}

func (s *Server) HasSavedDataHandler(c *gin.Context) {
	Success(c, gin.H{"exists": s.Sessions.Draft(sessionID(c)).HasSavedData()})
}

// ClearSessionHandler 清除表单与结果
func (s *Server) ClearSessionHandler(c *gin.Context) {
	s.Sessions.Draft(sessionID(c)).ClearAll()
	Success(c, nil)
}
