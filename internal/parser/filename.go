package parser

import (
	"regexp"
	"strings"
	"time"
)

var dateTokenRe = regexp.MustCompile(`\d{8}`)

// ExtractCaptureDate 从文件名中提取快照日期
// 识别文件名中第一个 8 位数字串，按 MMDDYYYY 解析；无法解析时返回零值
func ExtractCaptureDate(filename string) (time.Time, bool) {
	token := dateTokenRe.FindString(filename)
	if token == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("01022006", token)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// InferSubject 从文件名推断科目
// 大小写不敏感的子串匹配，无法识别时返回 SubjectUnknown
func InferSubject(filename string) Subject {
	lower := strings.ToLower(filename)
	if strings.Contains(lower, "math") {
		return SubjectMath
	}
	if strings.Contains(lower, "reading") {
		return SubjectReading
	}
	return SubjectUnknown
}
