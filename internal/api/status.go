package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatusResponse 系统状态响应
type StatusResponse struct {
	ReportLoaded    bool   `json:"reportLoaded"`
	ReportMode      string `json:"reportMode,omitempty"`
	DeltaCount      int    `json:"deltaCount"`
	NewStudentCount int    `json:"newStudentCount"`
	ContactsLoaded  bool   `json:"contactsLoaded"`
	MatchedCount    int    `json:"matchedCount"`
	UnmatchedCount  int    `json:"unmatchedCount"`
	LastRunID       string `json:"lastRunId,omitempty"`
	LastRunFailures int    `json:"lastRunFailures"`
}

// GetStatus 获取会话状态
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	resp := StatusResponse{}

	if rep := h.store.Report(); rep != nil {
		resp.ReportLoaded = true
		resp.ReportMode = string(rep.Mode)
		resp.DeltaCount = len(rep.Deltas)
		resp.NewStudentCount = len(rep.NewStudents)
	}

	if dir, recipients, unmatched := h.store.Join(); dir != nil {
		resp.ContactsLoaded = true
		for _, r := range recipients {
			if r.HasEmail() {
				resp.MatchedCount++
			}
		}
		resp.UnmatchedCount = len(unmatched)
	}

	if run := h.store.LastRun(); run != nil {
		resp.LastRunID = run.RunID
		resp.LastRunFailures = len(run.Failures)
	}

	c.JSON(http.StatusOK, resp)
}
