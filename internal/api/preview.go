package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kumontrack/internal/render"
)

// PreviewRequest 预览请求
type PreviewRequest struct {
	LoginIDs []string `json:"loginIds"` // 空表示全选
}

// PreviewItem 单个收件人的预览
type PreviewItem struct {
	LoginID  string `json:"loginId"`
	FullName string `json:"fullName"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// Preview 渲染所选收件人的邮件预览
// POST /api/preview
// 模板错误中止整个预览（所有收件人共用一份模板）
func (h *Handler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据"})
		return
	}

	rep := h.store.Report()
	_, recipients, _ := h.store.Join()
	if rep == nil || recipients == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请先完成快照对账与联系簿匹配"})
		return
	}

	settings := h.store.Settings()
	selected := selectRecipients(recipients, req.LoginIDs)

	items := make([]PreviewItem, 0, len(selected))
	for _, r := range selected {
		if !r.HasEmail() {
			continue
		}
		fields := recipientFields(r, rep.DateRange)
		subject, err := render.Render(settings.Subject, fields)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		body, err := render.Render(settings.BodyTemplate, fields)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		items = append(items, PreviewItem{
			LoginID:  r.LoginID,
			FullName: r.FullName,
			To:       r.Contact.ParentEmail,
			Subject:  subject,
			Body:     body,
		})
	}

	c.JSON(http.StatusOK, gin.H{"previews": items})
}
