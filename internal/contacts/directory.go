package contacts

import "errors"

// ErrNoIdentityColumn 联系表缺少 Login ID 列，无法做任何关联
var ErrNoIdentityColumn = errors.New("联系表缺少 Login ID 列")

// Contact 家长联系方式
type Contact struct {
	ParentName  string `json:"parentName"`
	ParentEmail string `json:"parentEmail"`
}

// Directory 家长联系簿
// 外部来源，列名不受本系统控制，由推断链定位关键列
type Directory struct {
	ByID map[string]Contact `json:"-"`

	IdentityColumn   string `json:"identityColumn"`
	EmailColumn      string `json:"emailColumn"`      // 为空表示未找到邮箱列，所有匹配均为空
	EmailStrategy    string `json:"emailStrategy"`    // 命中的推断策略名
	ParentNameColumn string `json:"parentNameColumn"` // 可为空

	SkippedRows int      `json:"skippedRows"` // 跳过的畸形行数
	Warnings    []string `json:"warnings,omitempty"`
}

// HasEmailColumn 是否成功定位到邮箱列
func (d *Directory) HasEmailColumn() bool {
	return d.EmailColumn != ""
}

// Lookup 按学员标识查找联系方式
// 仅返回带有效邮箱的条目
func (d *Directory) Lookup(loginID string) (Contact, bool) {
	c, ok := d.ByID[loginID]
	return c, ok
}
