package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kumontrack/internal/contacts"
)

// LoadContactsResponse 联系簿加载结果
type LoadContactsResponse struct {
	IdentityColumn   string   `json:"identityColumn"`
	EmailColumn      string   `json:"emailColumn"`
	EmailStrategy    string   `json:"emailStrategy"`
	ParentNameColumn string   `json:"parentNameColumn"`
	Entries          int      `json:"entries"`
	MatchedCount     int      `json:"matchedCount"`
	UnmatchedCount   int      `json:"unmatchedCount"`
	SkippedRows      int      `json:"skippedRows"`
	Warnings         []string `json:"warnings,omitempty"`

	Unmatched []contacts.Unmatched `json:"unmatched"`
}

// LoadContacts 加载家长联系簿并匹配当前报告
// POST /api/contacts/load (multipart file 或 form url)
func (h *Handler) LoadContacts(c *gin.Context) {
	rep := h.store.Report()
	if rep == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请先上传快照生成报告"})
		return
	}

	var (
		dir *contacts.Directory
		err error
	)
	if file, fErr := c.FormFile("file"); fErr == nil {
		f, oErr := file.Open()
		if oErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
			return
		}
		defer f.Close()
		dir, err = contacts.LoadDirectoryCSV(f)
	} else {
		url := c.PostForm("url")
		if url == "" {
			// 未显式给出时退回设置中的联系表地址
			url = h.store.Settings().DirectoryURL
		}
		if url == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "缺少联系表文件或地址"})
			return
		}
		dir, err = contacts.FetchDirectory(url)
	}

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, contacts.ErrNoIdentityColumn) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	recipients, unmatched := contacts.JoinRecipients(rep, dir)
	h.store.SetJoin(dir, recipients, unmatched)

	resp := LoadContactsResponse{
		IdentityColumn:   dir.IdentityColumn,
		EmailColumn:      dir.EmailColumn,
		EmailStrategy:    dir.EmailStrategy,
		ParentNameColumn: dir.ParentNameColumn,
		Entries:          len(dir.ByID),
		UnmatchedCount:   len(unmatched),
		SkippedRows:      dir.SkippedRows,
		Warnings:         dir.Warnings,
		Unmatched:        unmatched,
	}
	for _, r := range recipients {
		if r.HasEmail() {
			resp.MatchedCount++
		}
	}

	c.JSON(http.StatusOK, resp)
}
