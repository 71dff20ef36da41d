package contacts

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"kumontrack/internal/parser"
)

var sheetURLRe = regexp.MustCompile(`^(https://docs\.google\.com/spreadsheets/d/[^/]+)(/.*)?$`)

// NormalizeSheetURL 把 Google Sheets 页面链接改写为 CSV 导出链接
// 非 Sheets 链接原样返回
func NormalizeSheetURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := sheetURLRe.FindStringSubmatch(raw); m != nil {
		return m[1] + "/export?format=csv"
	}
	return raw
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// FetchDirectory 从 URL 拉取联系表并解析
func FetchDirectory(url string) (*Directory, error) {
	resp, err := httpClient.Get(NormalizeSheetURL(url))
	if err != nil {
		return nil, fmt.Errorf("拉取联系表失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("拉取联系表失败: HTTP %d", resp.StatusCode)
	}
	return LoadDirectoryCSV(resp.Body)
}

// LoadDirectoryCSV 从 CSV 流加载联系表
// 畸形行跳过计数，不中断加载
func LoadDirectoryCSV(r io.Reader) (*Directory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows [][]string
	malformed := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			malformed++
			continue
		}
		rows = append(rows, row)
	}

	dir, err := LoadDirectory(rows)
	if err != nil {
		return nil, err
	}
	if malformed > 0 {
		dir.SkippedRows += malformed
		dir.Warnings = append(dir.Warnings, fmt.Sprintf("跳过 %d 行无法解析的数据", malformed))
	}
	return dir, nil
}

// LoadDirectory 从已读出的表格行构建联系簿
// 缺 Login ID 列为致命错误；缺邮箱列降级为空匹配，不报错
func LoadDirectory(rows [][]string) (*Directory, error) {
	if len(rows) < 1 {
		return nil, ErrNoIdentityColumn
	}
	headers := rows[0]
	body := rows[1:]

	identityCol, ok := ResolveIdentityColumn(headers)
	if !ok {
		return nil, ErrNoIdentityColumn
	}

	dir := &Directory{
		ByID:           make(map[string]Contact),
		IdentityColumn: parser.NormalizeColumnName(headers[identityCol]),
	}

	emailCol, strategy, found := ResolveEmailColumn(headers, body, identityCol)
	if !found {
		dir.Warnings = append(dir.Warnings, "未找到家长邮箱列，所有学员将按无联系方式处理")
		dir.countSkipped(body, identityCol)
		return dir, nil
	}
	dir.EmailColumn = parser.NormalizeColumnName(headers[emailCol])
	dir.EmailStrategy = strategy

	nameCol := ResolveParentNameColumn(headers, identityCol, emailCol)
	if nameCol >= 0 {
		dir.ParentNameColumn = parser.NormalizeColumnName(headers[nameCol])
	}

	for _, row := range body {
		id := parser.NormalizeLoginID(colValue(row, identityCol))
		if id == "" {
			dir.SkippedRows++
			continue
		}
		email := colValue(row, emailCol)
		if email == "" {
			// 无邮箱的条目不进联系簿，后续按未匹配上报
			continue
		}
		if _, exists := dir.ByID[id]; exists {
			continue // 首条记录优先
		}
		dir.ByID[id] = Contact{
			ParentName:  colValue(row, nameCol),
			ParentEmail: email,
		}
	}

	if dir.SkippedRows > 0 {
		dir.Warnings = append(dir.Warnings, fmt.Sprintf("跳过 %d 行缺少 Login ID 的数据", dir.SkippedRows))
	}
	return dir, nil
}

func (d *Directory) countSkipped(body [][]string, identityCol int) {
	for _, row := range body {
		if parser.NormalizeLoginID(colValue(row, identityCol)) == "" {
			d.SkippedRows++
		}
	}
}

func colValue(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
