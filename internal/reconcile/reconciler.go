package reconcile

import (
	"fmt"
	"time"

	"kumontrack/internal/parser"
)

// Mode 报告周期模式
type Mode string

const (
	ModeWeekly  Mode = "weekly"  // 两份快照做差
	ModeMonthly Mode = "monthly" // 单份快照直接汇总
)

// DeltaRecord 单个学员的周期变化
// 仅对两份快照中都出现的学员生成（内连接语义）
type DeltaRecord struct {
	LoginID    string `json:"loginId"`
	FullName   string `json:"fullName"`
	Worksheets int    `json:"worksheets"` // weekly 为差值（允许为负），monthly 为原始累计值
	StudyDays  int    `json:"studyDays"`
	HighestWS  string `json:"highestWs"` // 取自本期快照
}

// Report 对账报告
type Report struct {
	Mode        Mode                   `json:"mode"`
	Subject     parser.Subject         `json:"subject"`
	DateRange   string                 `json:"dateRange"` // 展示用周期标签，可为空
	Deltas      []DeltaRecord          `json:"deltas"`
	NewStudents []parser.StudentRecord `json:"newStudents"`
	Warnings    []string               `json:"warnings,omitempty"`
}

const dateLayout = "01/02/2006"

// Reconcile 按 Login ID 对齐两份快照
// 两期都出现的学员生成差值记录；仅本期出现的学员归入新学员，两个集合按标识互斥
func Reconcile(prior, current *parser.Snapshot) *Report {
	rep := &Report{
		Mode:      ModeWeekly,
		Subject:   current.Subject,
		DateRange: dateRange(prior.CaptureDate, current.CaptureDate),
	}
	if rep.Subject == parser.SubjectUnknown {
		rep.Subject = prior.Subject
	}

	if prior.Subject != parser.SubjectUnknown && current.Subject != parser.SubjectUnknown &&
		prior.Subject != current.Subject {
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("两份快照科目不一致: %s vs %s", prior.Subject, current.Subject))
	}
	collectDuplicateWarnings(rep, prior, current)

	priorByID := make(map[string]parser.StudentRecord, len(prior.Records))
	for _, r := range prior.Records {
		priorByID[r.LoginID] = r
	}

	// 按本期快照的行序输出
	for _, cur := range current.Records {
		prev, ok := priorByID[cur.LoginID]
		if !ok {
			rep.NewStudents = append(rep.NewStudents, cur)
			continue
		}
		rep.Deltas = append(rep.Deltas, DeltaRecord{
			LoginID:    cur.LoginID,
			FullName:   cur.FullName,
			Worksheets: cur.Worksheets - prev.Worksheets, // 负值保留（上期数据订正的场景）
			StudyDays:  cur.StudyDays - prev.StudyDays,
			HighestWS:  cur.HighestWS,
		})
	}

	return rep
}

// Monthly 单快照汇总模式
// 不做差值，快照累计值即本期值；不区分新老学员
func Monthly(current *parser.Snapshot) *Report {
	rep := &Report{
		Mode:    ModeMonthly,
		Subject: current.Subject,
	}
	if !current.CaptureDate.IsZero() {
		rep.DateRange = current.CaptureDate.Format(dateLayout)
	}
	collectDuplicateWarnings(rep, current)

	for _, r := range current.Records {
		rep.Deltas = append(rep.Deltas, DeltaRecord{
			LoginID:    r.LoginID,
			FullName:   r.FullName,
			Worksheets: r.Worksheets,
			StudyDays:  r.StudyDays,
			HighestWS:  r.HighestWS,
		})
	}

	return rep
}

func dateRange(prior, current time.Time) string {
	switch {
	case !prior.IsZero() && !current.IsZero():
		return prior.Format(dateLayout) + " - " + current.Format(dateLayout)
	case !current.IsZero():
		return current.Format(dateLayout)
	default:
		return ""
	}
}

func collectDuplicateWarnings(rep *Report, snaps ...*parser.Snapshot) {
	for _, s := range snaps {
		if len(s.DuplicateIDs) > 0 {
			rep.Warnings = append(rep.Warnings,
				fmt.Sprintf("文件 %s 含 %d 个重复 Login ID，已保留首行", s.Filename, len(s.DuplicateIDs)))
		}
	}
}
