package parser

import (
	"fmt"
	"strings"
)

// 快照必需列，缺少任意一列该文件即判定为不可用
const (
	ColLoginID    = "Login ID"
	ColFullName   = "Full Name"
	ColWorksheets = "# of WS"
	ColStudyDays  = "# of Study Days"
	ColHighestWS  = "Highest WS Completed"
)

// RequiredColumns 快照必需列集合
var RequiredColumns = []string{ColLoginID, ColFullName, ColWorksheets, ColStudyDays, ColHighestWS}

// SchemaError 快照缺少必需列
type SchemaError struct {
	Filename string
	Column   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("文件 %s 缺少必需列: %s", e.Filename, e.Column)
}

type columnIndex struct {
	loginID    int
	fullName   int
	worksheets int
	studyDays  int
	highestWS  int
}

// buildColumnIndex 建立表头索引，返回第一个缺失的必需列名
func buildColumnIndex(headers []string) (columnIndex, string) {
	idx := columnIndex{
		loginID:    -1,
		fullName:   -1,
		worksheets: -1,
		studyDays:  -1,
		highestWS:  -1,
	}

	for i, h := range headers {
		switch NormalizeColumnName(h) {
		case ColLoginID:
			if idx.loginID < 0 {
				idx.loginID = i
			}
		case ColFullName:
			if idx.fullName < 0 {
				idx.fullName = i
			}
		case ColWorksheets:
			if idx.worksheets < 0 {
				idx.worksheets = i
			}
		case ColStudyDays:
			if idx.studyDays < 0 {
				idx.studyDays = i
			}
		case ColHighestWS:
			if idx.highestWS < 0 {
				idx.highestWS = i
			}
		}
	}

	switch {
	case idx.loginID < 0:
		return idx, ColLoginID
	case idx.fullName < 0:
		return idx, ColFullName
	case idx.worksheets < 0:
		return idx, ColWorksheets
	case idx.studyDays < 0:
		return idx, ColStudyDays
	case idx.highestWS < 0:
		return idx, ColHighestWS
	}
	return idx, ""
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Normalize 把原始表格整理为规范快照
// 多余列丢弃；Login ID 为空的行跳过；文件内重复的 Login ID 保留首行
func Normalize(rows [][]string, filename string) (*Snapshot, error) {
	if len(rows) < 1 {
		return nil, &SchemaError{Filename: filename, Column: ColLoginID}
	}

	idx, missing := buildColumnIndex(rows[0])
	if missing != "" {
		return nil, &SchemaError{Filename: filename, Column: missing}
	}

	snap := &Snapshot{
		Filename: filename,
		Subject:  InferSubject(filename),
	}
	if date, ok := ExtractCaptureDate(filename); ok {
		snap.CaptureDate = date
	}

	seen := make(map[string]bool)
	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		row := rows[rowIdx]

		id := NormalizeLoginID(cell(row, idx.loginID))
		if id == "" {
			continue
		}
		if seen[id] {
			snap.DuplicateIDs = append(snap.DuplicateIDs, id)
			continue
		}
		seen[id] = true

		snap.Records = append(snap.Records, StudentRecord{
			LoginID:    id,
			FullName:   cell(row, idx.fullName),
			Worksheets: parseCount(cell(row, idx.worksheets)),
			StudyDays:  parseCount(cell(row, idx.studyDays)),
			HighestWS:  cell(row, idx.highestWS),
		})
	}

	return snap, nil
}
