package api

import (
	"github.com/gin-gonic/gin"

	"kumontrack/internal/config"
	"kumontrack/internal/dispatch"
	"kumontrack/internal/store"
)

// Handler API 处理器
type Handler struct {
	cfg       *config.AppConfig
	store     *store.MemoryStore
	downloads *downloadStore

	// newTransport 可在测试中替换为假传输
	newTransport func(host string, port int, username, password string) dispatch.Transport
	// saveConfig 可在测试中替换，避免真实写盘
	saveConfig func(*config.AppConfig) error
}

// NewHandler 创建 API 处理器
func NewHandler(cfg *config.AppConfig, st *store.MemoryStore) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		downloads: newDownloadStore(),
		newTransport: func(host string, port int, username, password string) dispatch.Transport {
			return dispatch.NewSMTPTransport(host, port, username, password)
		},
		saveConfig: config.SaveConfig,
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 系统状态
	router.GET("/status", h.GetStatus)

	// 快照上传与对账
	router.POST("/snapshots", h.UploadSnapshots)

	// 家长联系簿
	router.POST("/contacts/load", h.LoadContacts)

	// 发送设置
	router.GET("/settings", h.GetSettings)
	router.PUT("/settings", h.UpdateSettings)

	// 邮件预览与发送
	router.POST("/preview", h.Preview)
	router.POST("/dispatch", h.Dispatch)

	// 报表导出
	router.GET("/export/:kind", h.Export)
	router.GET("/export/download/:token", h.DownloadExport)
}
