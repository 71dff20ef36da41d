package api

import (
	"kumontrack/internal/contacts"
	"kumontrack/internal/render"
)

// recipientFields 把收件学员转换为模板字段
func recipientFields(r contacts.Recipient, dateRange string) render.Fields {
	f := render.Fields{
		Student:    r.FullName,
		Worksheets: r.Worksheets,
		Days:       r.StudyDays,
		HighestWS:  r.HighestWS,
		DateRange:  dateRange,
	}
	if r.Contact != nil {
		f.Parent = r.Contact.ParentName
	}
	return f
}

// selectRecipients 按用户勾选过滤收件人，保持原有顺序
// loginIDs 为空表示全选
func selectRecipients(all []contacts.Recipient, loginIDs []string) []contacts.Recipient {
	if len(loginIDs) == 0 {
		return all
	}
	wanted := make(map[string]bool, len(loginIDs))
	for _, id := range loginIDs {
		wanted[id] = true
	}
	var selected []contacts.Recipient
	for _, r := range all {
		if wanted[r.LoginID] {
			selected = append(selected, r)
		}
	}
	return selected
}
