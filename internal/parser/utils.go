package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var spaceRunRe = regexp.MustCompile(`\s+`)

// NormalizeColumnName 规范化列名：去首尾空格、去换行制表符、压缩连续空格
func NormalizeColumnName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.ReplaceAll(name, "\r", " ")
	name = strings.ReplaceAll(name, "\t", " ")
	return spaceRunRe.ReplaceAllString(name, " ")
}

var floatTailRe = regexp.MustCompile(`^(\d+)\.0+$`)

// NormalizeLoginID 规范化学员标识
// 表格工具可能把数字型 Login ID 渲染成 "102030.0"，需与 "102030" 视为同一标识
func NormalizeLoginID(raw string) string {
	id := strings.TrimSpace(raw)
	if m := floatTailRe.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	return id
}

// parseCount 安全转换为计数值
// 计数为累计值，负数与无法解析的内容都按 0 处理
func parseCount(s string) int {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "") // 移除千分位
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		s = s[:dot] // 表格工具可能带小数尾巴
	}
	i, _ := strconv.Atoi(s)
	if i < 0 {
		return 0
	}
	return i
}
