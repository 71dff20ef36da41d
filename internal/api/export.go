package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"kumontrack/internal/exporter"
)

// Export 直接下载报表 CSV
// GET /api/export/:kind  （kind: report | new-students | unmatched）
func (h *Handler) Export(c *gin.Context) {
	rep := h.store.Report()
	if rep == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请先完成快照对账"})
		return
	}

	kind := c.Param("kind")
	var filename string
	var write func() error
	switch kind {
	case "report":
		filename = fmt.Sprintf("%s_report.csv", rep.Mode)
		write = func() error { return exporter.WriteReportCSV(c.Writer, rep) }
	case "new-students":
		filename = "new_students.csv"
		write = func() error { return exporter.WriteNewStudentsCSV(c.Writer, rep.NewStudents) }
	case "unmatched":
		_, _, unmatched := h.store.Join()
		if unmatched == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请先完成联系簿匹配"})
			return
		}
		filename = "unmatched_students.csv"
		write = func() error { return exporter.WriteUnmatchedCSV(c.Writer, unmatched) }
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知的导出类型: " + kind})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := write(); err != nil {
		// 头已发出，只能记录中断
		_ = c.Error(err)
	}
}

// DownloadExport 下载发送产物（一次性令牌）
// GET /api/export/download/:token
func (h *Handler) DownloadExport(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 token"})
		return
	}

	item, ok := h.downloads.get(token)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "下载链接已失效"})
		return
	}

	if _, err := os.Stat(item.filePath); err != nil {
		h.downloads.delete(token)
		c.JSON(http.StatusNotFound, gin.H{"error": "导出文件不存在"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", item.filename))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.File(item.filePath)

	h.downloads.delete(token)
	_ = os.Remove(item.filePath)
}
