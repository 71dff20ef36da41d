package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kumontrack/internal/render"
	"kumontrack/internal/store"
)

// SettingsResponse 设置读取响应
// 凭据不回传，只回传是否已配置
type SettingsResponse struct {
	SenderEmail  string `json:"senderEmail"`
	Subject      string `json:"subject"`
	BodyTemplate string `json:"bodyTemplate"`
	HasPassword  bool   `json:"hasPassword"`
	DirectoryURL string `json:"directoryUrl"`
	MailHost     string `json:"mailHost"`
	MailPort     int    `json:"mailPort"`
}

// UpdateSettingsRequest 设置保存请求
// 邮件端点字段可选，给出时写回 config.toml
type UpdateSettingsRequest struct {
	store.Settings
	MailHost string `json:"mailHost"`
	MailPort int    `json:"mailPort"`
}

// GetSettings 读取发送设置
// GET /api/settings
func (h *Handler) GetSettings(c *gin.Context) {
	s := h.store.Settings()
	c.JSON(http.StatusOK, SettingsResponse{
		SenderEmail:  s.SenderEmail,
		Subject:      s.Subject,
		BodyTemplate: s.BodyTemplate,
		HasPassword:  s.AppPassword != "",
		DirectoryURL: s.DirectoryURL,
		MailHost:     h.cfg.Mail.Host,
		MailPort:     h.cfg.Mail.Port,
	})
}

// UpdateSettings 整体覆盖发送设置
// PUT /api/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据"})
		return
	}

	// 保存时即拒绝坏模板，避免发送阶段才发现
	if err := render.Validate(req.BodyTemplate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := render.Validate(req.Subject); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.store.ReplaceSettings(req.Settings)

	// 邮件端点变更写回配置文件，重启后仍然生效
	if req.MailHost != "" || req.MailPort > 0 {
		if req.MailHost != "" {
			h.cfg.Mail.Host = req.MailHost
		}
		if req.MailPort > 0 {
			h.cfg.Mail.Port = req.MailPort
		}
		if err := h.saveConfig(h.cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "保存配置文件失败: " + err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"saved": true})
}
