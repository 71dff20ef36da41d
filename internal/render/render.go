package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// 模板可用的占位符全集
const (
	PlaceholderParent     = "parent"
	PlaceholderStudent    = "student"
	PlaceholderWorksheets = "worksheets"
	PlaceholderDays       = "days"
	PlaceholderHighestWS  = "highest_ws"
	PlaceholderDateRange  = "date_range"
)

// DefaultParentName 家长姓名缺失时的替代称呼
const DefaultParentName = "Parent"

// UnknownPlaceholderError 模板引用了不认识的占位符
// 所有收件人共用一份模板，此错误中止整轮预览/发送
type UnknownPlaceholderError struct {
	Name string
}

func (e *UnknownPlaceholderError) Error() string {
	return fmt.Sprintf("模板包含无法识别的占位符: {%s}", e.Name)
}

// Fields 单个学员的渲染字段
type Fields struct {
	Parent     string // 可为空，渲染时替换为 DefaultParentName
	Student    string
	Worksheets int
	Days       int
	HighestWS  string
	DateRange  string
}

// 字符类放宽到数字，让 {days2} 这类手误落入未知占位符而不是按字面漏出
var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Render 按字段展开模板
// 未闭合的花括号按字面保留；未知占位符返回 *UnknownPlaceholderError
func Render(template string, f Fields) (string, error) {
	parent := f.Parent
	if strings.TrimSpace(parent) == "" {
		parent = DefaultParentName
	}

	values := map[string]string{
		PlaceholderParent:     parent,
		PlaceholderStudent:    f.Student,
		PlaceholderWorksheets: strconv.Itoa(f.Worksheets),
		PlaceholderDays:       strconv.Itoa(f.Days),
		PlaceholderHighestWS:  f.HighestWS,
		PlaceholderDateRange:  f.DateRange,
	}

	var unknown *UnknownPlaceholderError
	out := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok {
			if unknown == nil {
				unknown = &UnknownPlaceholderError{Name: name}
			}
			return m
		}
		return v
	})
	if unknown != nil {
		return "", unknown
	}
	return out, nil
}

// Validate 校验模板是否只引用已知占位符
// 用于保存设置时提前拒绝坏模板
func Validate(template string) error {
	_, err := Render(template, Fields{})
	return err
}
