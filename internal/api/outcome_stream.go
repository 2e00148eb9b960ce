package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"text2image-service/internal/generation"

	"github.com/gin-gonic/gin"
)

var (
	outcomeStreamPollInterval = 1 * time.Second
	outcomeStreamKeepAlive    = 3 * time.Second
)

// StreamOutcomeHandler 通过 SSE 推送会话生成结果的变化，结果进入终态后结束
func (s *Server) StreamOutcomeHandler(c *gin.Context) {
	id := sessionID(c)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		Error(c, http.StatusInternalServerError, 500, "Streaming unsupported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	current := s.currentOutcome(id)
	lastSignature, ok := writeOutcomeEvent(c.Writer, flusher, current)
	if !ok || current.Status != generation.StatusGenerating {
		return
	}

	ticker := time.NewTicker(outcomeStreamPollInterval)
	defer ticker.Stop()
	keepAliveTicker := time.NewTicker(outcomeStreamKeepAlive)
	defer keepAliveTicker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			latest := s.currentOutcome(id)
			payload, err := json.Marshal(latest)
			if err != nil {
				return
			}
			if string(payload) != lastSignature {
				if lastSignature, ok = writeOutcomeEvent(c.Writer, flusher, latest); !ok {
					return
				}
			}
			if latest.Status != generation.StatusGenerating {
				return
			}
		case <-keepAliveTicker.C:
			if _, err := fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) currentOutcome(id string) generation.Outcome {
	outcome, ok := s.Sessions.Draft(id).Outcome()
	if !ok {
		return generation.Idle()
	}
	return outcome
}

func writeOutcomeEvent(w http.ResponseWriter, flusher http.Flusher, outcome generation.Outcome) (string, bool) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return "", false
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return "", false
	}
	flusher.Flush()
	return string(payload), true
}
