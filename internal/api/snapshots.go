package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"kumontrack/internal/parser"
	"kumontrack/internal/reconcile"
)

// UploadSnapshots 上传快照并生成对账报告
// POST /api/snapshots (multipart: current 必填, prior 周报模式必填, mode=weekly|monthly)
func (h *Handler) UploadSnapshots(c *gin.Context) {
	mode := reconcile.Mode(c.DefaultPostForm("mode", string(reconcile.ModeWeekly)))
	if mode != reconcile.ModeWeekly && mode != reconcile.ModeMonthly {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的模式: " + string(mode)})
		return
	}

	currentFile, err := c.FormFile("current")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未找到本期快照文件"})
		return
	}

	current, err := h.normalizeUpload(c, currentFile)
	if err != nil {
		h.writeSnapshotError(c, err)
		return
	}

	var rep *reconcile.Report
	switch mode {
	case reconcile.ModeMonthly:
		rep = reconcile.Monthly(current)
	default:
		priorFile, err := c.FormFile("prior")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "周报模式需要上期快照文件"})
			return
		}
		prior, err := h.normalizeUpload(c, priorFile)
		if err != nil {
			h.writeSnapshotError(c, err)
			return
		}
		rep = reconcile.Reconcile(prior, current)
	}

	h.store.SetReport(rep)
	c.JSON(http.StatusOK, rep)
}

// normalizeUpload 保存上传文件到临时目录并解析为规范快照
func (h *Handler) normalizeUpload(c *gin.Context, file *multipart.FileHeader) (*parser.Snapshot, error) {
	tempPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("kumontrack_upload_%d_%s", time.Now().UnixNano(), filepath.Base(file.Filename)))

	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		return nil, fmt.Errorf("保存文件失败: %w", err)
	}
	defer os.Remove(tempPath)

	rows, err := parser.ReadTableFile(tempPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件 %s 失败: %w", file.Filename, err)
	}

	return parser.Normalize(rows, file.Filename)
}

func (h *Handler) writeSnapshotError(c *gin.Context, err error) {
	var schemaErr *parser.SchemaError
	if errors.As(err, &schemaErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": schemaErr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
