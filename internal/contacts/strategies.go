package contacts

import (
	"strings"

	"kumontrack/internal/parser"
)

// emailStrategy 邮箱列推断策略
// 纯函数，不做 I/O，按序尝试，首个命中即停
type emailStrategy struct {
	Name string
	Find func(headers []string, rows [][]string, exclude map[int]bool) (int, bool)
}

var emailStrategies = []emailStrategy{
	{Name: "exact-parent-email", Find: findExactParentEmail},
	{Name: "name-contains-email", Find: findNameContainsEmail},
	{Name: "value-majority-at", Find: findValueMajorityAt},
}

// ResolveIdentityColumn 定位 Login ID 列
// 去空格后大小写不敏感的精确匹配；未命中即该联系表不可用
func ResolveIdentityColumn(headers []string) (int, bool) {
	for i, h := range headers {
		if strings.EqualFold(parser.NormalizeColumnName(h), "Login ID") {
			return i, true
		}
	}
	return -1, false
}

// ResolveEmailColumn 按推断链定位家长邮箱列
// 返回列索引与命中的策略名；全部未命中时返回 (-1, "", false)
func ResolveEmailColumn(headers []string, rows [][]string, identityCol int) (int, string, bool) {
	exclude := excludedColumns(headers, identityCol)
	for _, s := range emailStrategies {
		if col, ok := s.Find(headers, rows, exclude); ok {
			return col, s.Name, true
		}
	}
	return -1, "", false
}

// ResolveParentNameColumn 定位家长姓名列（尽力而为，可缺失）
func ResolveParentNameColumn(headers []string, identityCol, emailCol int) int {
	for i, h := range headers {
		if strings.EqualFold(parser.NormalizeColumnName(h), "Parent Name") {
			return i
		}
	}
	for i, h := range headers {
		if i == identityCol || i == emailCol {
			continue
		}
		if strings.Contains(strings.ToLower(parser.NormalizeColumnName(h)), "parent") {
			return i
		}
	}
	return -1
}

// 策略 1: 去空格后大小写不敏感匹配 "Parent Email"
func findExactParentEmail(headers []string, _ [][]string, _ map[int]bool) (int, bool) {
	for i, h := range headers {
		if strings.EqualFold(parser.NormalizeColumnName(h), "Parent Email") {
			return i, true
		}
	}
	return -1, false
}

// 策略 2: 列名（小写后）含 "email" 的第一列
func findNameContainsEmail(headers []string, _ [][]string, _ map[int]bool) (int, bool) {
	for i, h := range headers {
		if strings.Contains(strings.ToLower(parser.NormalizeColumnName(h)), "email") {
			return i, true
		}
	}
	return -1, false
}

// 策略 3: 扫描剩余列（排除标识列与姓名类列），
// 取非空值中严格过半含 "@" 的第一列
func findValueMajorityAt(headers []string, rows [][]string, exclude map[int]bool) (int, bool) {
	for i := range headers {
		if exclude[i] {
			continue
		}
		nonEmpty, withAt := 0, 0
		for _, row := range rows {
			if i >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			nonEmpty++
			if strings.Contains(v, "@") {
				withAt++
			}
		}
		if nonEmpty > 0 && withAt*2 > nonEmpty {
			return i, true
		}
	}
	return -1, false
}

func excludedColumns(headers []string, identityCol int) map[int]bool {
	exclude := make(map[int]bool)
	if identityCol >= 0 {
		exclude[identityCol] = true
	}
	for i, h := range headers {
		if strings.Contains(strings.ToLower(parser.NormalizeColumnName(h)), "name") {
			exclude[i] = true
		}
	}
	return exclude
}
