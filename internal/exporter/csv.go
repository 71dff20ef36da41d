package exporter

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"kumontrack/internal/contacts"
	"kumontrack/internal/dispatch"
	"kumontrack/internal/parser"
	"kumontrack/internal/reconcile"
)

// 所有导出均为 UTF-8 逗号分隔 CSV，带表头行，无行号列

// WriteReportCSV 导出周报/月报
func WriteReportCSV(w io.Writer, rep *reconcile.Report) error {
	cw := csv.NewWriter(w)

	wsHeader, daysHeader := "Worksheets This Week", "Study Days This Week"
	if rep.Mode == reconcile.ModeMonthly {
		wsHeader, daysHeader = "Worksheets This Month", "Study Days This Month"
	}
	if err := cw.Write([]string{"Login ID", "Full Name", wsHeader, daysHeader, "Highest WS Completed"}); err != nil {
		return err
	}

	for _, d := range rep.Deltas {
		if err := cw.Write([]string{
			d.LoginID,
			d.FullName,
			strconv.Itoa(d.Worksheets),
			strconv.Itoa(d.StudyDays),
			d.HighestWS,
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteNewStudentsCSV 导出新学员名单
func WriteNewStudentsCSV(w io.Writer, students []parser.StudentRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Login ID", "Full Name", "# of WS", "# of Study Days", "Highest WS Completed"}); err != nil {
		return err
	}
	for _, s := range students {
		if err := cw.Write([]string{
			s.LoginID,
			s.FullName,
			strconv.Itoa(s.Worksheets),
			strconv.Itoa(s.StudyDays),
			s.HighestWS,
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteUnmatchedCSV 导出未匹配到家长邮箱的学员清单
func WriteUnmatchedCSV(w io.Writer, unmatched []contacts.Unmatched) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Login ID", "Full Name", "Reason"}); err != nil {
		return err
	}
	for _, u := range unmatched {
		if err := cw.Write([]string{u.LoginID, u.FullName, u.Reason}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFailuresCSV 导出发送失败清单，字段足够外部重试
func WriteFailuresCSV(w io.Writer, failures []dispatch.FailureDetail) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Login ID", "Full Name", "Parent Name", "Parent Email", "Error"}); err != nil {
		return err
	}
	for _, f := range failures {
		if err := cw.Write([]string{f.LoginID, f.FullName, f.ParentName, f.ParentEmail, f.Reason}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSendLogCSV 导出发送日志（按时间顺序）
func WriteSendLogCSV(w io.Writer, log []dispatch.LogEntry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"Time", "Outcome", "Login ID", "Full Name", "To", "Detail"}); err != nil {
		return err
	}
	for _, e := range log {
		if err := cw.Write([]string{
			e.Time.Format(time.RFC3339),
			string(e.Outcome),
			e.LoginID,
			e.FullName,
			e.To,
			e.Detail,
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
