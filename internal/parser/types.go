package parser

import "time"

// Subject 快照科目
type Subject string

const (
	SubjectMath    Subject = "math"
	SubjectReading Subject = "reading"
	SubjectUnknown Subject = ""
)

// StudentRecord 单个学员的快照记录
// 由 Normalize 从上传文件生成，生成后不再修改
type StudentRecord struct {
	LoginID    string `json:"loginId"`    // 学员标识，所有关联的主键
	FullName   string `json:"fullName"`   // 姓名
	Worksheets int    `json:"worksheets"` // 累计完成习题册数
	StudyDays  int    `json:"studyDays"`  // 累计学习天数
	HighestWS  string `json:"highestWs"`  // 最高完成进度（可为空）
}

// Snapshot 一次导出的学员活动快照
type Snapshot struct {
	Filename     string          `json:"filename"`
	CaptureDate  time.Time       `json:"captureDate"`            // 零值表示文件名中未识别出日期
	Subject      Subject         `json:"subject"`                // 从文件名推断，可为空
	Records      []StudentRecord `json:"records"`                // 保留文件内行序
	DuplicateIDs []string        `json:"duplicateIds,omitempty"` // 文件内重复出现的 Login ID（保留首行，丢弃后续）
}

// FindRecord 按 Login ID 查找记录
func (s *Snapshot) FindRecord(loginID string) (StudentRecord, bool) {
	for _, r := range s.Records {
		if r.LoginID == loginID {
			return r, true
		}
	}
	return StudentRecord{}, false
}
