package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"kumontrack/internal/contacts"
	"kumontrack/internal/dispatch"
	"kumontrack/internal/exporter"
	"kumontrack/internal/render"
)

// DispatchRequest 发送请求
type DispatchRequest struct {
	Mode       string   `json:"mode"`       // test 或 live，默认 test
	LoginIDs   []string `json:"loginIds"`   // 空表示全选
	SendToSelf bool     `json:"sendToSelf"` // 主循环前向发件人自发一封
}

type dispatchProgressEvent struct {
	Type      string      `json:"type"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Dispatch 执行一轮邮件发送（SSE 进度 + 完成后提供日志下载地址）
// POST /api/dispatch
func (h *Handler) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据"})
		return
	}

	mode := dispatch.TestMode
	switch req.Mode {
	case "", string(dispatch.TestMode):
	case string(dispatch.LiveMode):
		mode = dispatch.LiveMode
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知的发送模式: " + req.Mode})
		return
	}

	rep := h.store.Report()
	_, recipients, _ := h.store.Join()
	if rep == nil || recipients == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请先完成快照对账与联系簿匹配"})
		return
	}

	settings := h.store.Settings()
	if mode == dispatch.LiveMode {
		if settings.SenderEmail == "" || settings.AppPassword == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "真实发送前请先配置发件邮箱与应用密码"})
			return
		}
	}

	selected := selectRecipients(recipients, req.LoginIDs)
	if len(selected) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "没有可发送的收件人"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "不支持流式响应"})
		return
	}

	send := func(event dispatchProgressEvent) {
		b, err := json.Marshal(event)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", b)
		flusher.Flush()
	}

	send(dispatchProgressEvent{
		Type:    "start",
		Message: "开始发送",
		Data: map[string]any{
			"mode":     string(mode),
			"selected": len(selected),
		},
		Timestamp: time.Now(),
	})

	var transport dispatch.Transport
	if mode == dispatch.LiveMode {
		transport = h.newTransport(h.cfg.Mail.Host, h.cfg.Mail.Port, settings.SenderEmail, settings.AppPassword)
	}
	engine := dispatch.NewEngine(transport)

	result, err := engine.Run(dispatch.Request{
		Recipients: selected,
		RenderMessage: func(r contacts.Recipient) (string, string, error) {
			fields := recipientFields(r, rep.DateRange)
			subject, err := render.Render(settings.Subject, fields)
			if err != nil {
				return "", "", err
			}
			body, err := render.Render(settings.BodyTemplate, fields)
			if err != nil {
				return "", "", err
			}
			return subject, body, nil
		},
		From:       settings.SenderEmail,
		Mode:       mode,
		SendToSelf: req.SendToSelf,
		Progress: func(done, total int) {
			send(dispatchProgressEvent{
				Type:    "progress",
				Message: fmt.Sprintf("已处理 %d/%d", done, total),
				Data: map[string]any{
					"done":  done,
					"total": total,
				},
				Timestamp: time.Now(),
			})
		},
		OnLog: func(entry dispatch.LogEntry) {
			send(dispatchProgressEvent{
				Type:      "log",
				Message:   string(entry.Outcome),
				Data:      entry,
				Timestamp: time.Now(),
			})
		},
	})
	if err != nil {
		// 整轮致命错误：模板错误或会话建立失败，零封发送
		send(dispatchProgressEvent{
			Type:      "error",
			Message:   err.Error(),
			Data:      map[string]any{},
			Timestamp: time.Now(),
		})
		return
	}

	h.store.SetLastRun(result)

	downloads := map[string]any{}
	if url, err := h.stashRunArtifact("send_log", result.RunID, func(f *os.File) error {
		return exporter.WriteSendLogCSV(f, result.Log)
	}); err == nil {
		downloads["sendLogUrl"] = url
	}
	if len(result.Failures) > 0 {
		if url, err := h.stashRunArtifact("failures", result.RunID, func(f *os.File) error {
			return exporter.WriteFailuresCSV(f, result.Failures)
		}); err == nil {
			downloads["failuresUrl"] = url
		}
	}

	sent := 0
	for _, entry := range result.Log {
		if entry.Outcome == dispatch.OutcomeSent || entry.Outcome == dispatch.OutcomeSentTest {
			sent++
		}
	}

	data := map[string]any{
		"runId":     result.RunID,
		"mode":      string(result.Mode),
		"attempted": result.Attempted,
		"sent":      sent,
		"failed":    len(result.Failures),
	}
	for k, v := range downloads {
		data[k] = v
	}
	send(dispatchProgressEvent{
		Type:      "done",
		Message:   "发送完成",
		Data:      data,
		Timestamp: time.Now(),
	})
}

// stashRunArtifact 把发送产物写入临时文件并注册下载令牌
func (h *Handler) stashRunArtifact(kind, runID string, write func(*os.File) error) (string, error) {
	tempPath := filepath.Join(os.TempDir(), fmt.Sprintf("kumontrack_%s_%d_%d.csv", kind, time.Now().UnixNano(), os.Getpid()))
	f, err := os.Create(tempPath)
	if err != nil {
		return "", err
	}
	if err := write(f); err != nil {
		f.Close()
		_ = os.Remove(tempPath)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", err
	}

	filename := fmt.Sprintf("%s_%s.csv", kind, runID)
	token := h.downloads.put(tempPath, filename, 10*time.Minute)
	return "/api/export/download/" + token, nil
}
