package contacts

import (
	"kumontrack/internal/reconcile"
)

// 未匹配原因标签
const (
	ReasonNoParentEmail    = "no matching parent email"
	ReasonNewNoParentEmail = "new student with no parent email"
)

// Recipient 候选收件学员
// 对账行补充可选的家长联系方式；Contact 为 nil 表示未匹配（可上报，非错误）
type Recipient struct {
	LoginID    string   `json:"loginId"`
	FullName   string   `json:"fullName"`
	Worksheets int      `json:"worksheets"`
	StudyDays  int      `json:"studyDays"`
	HighestWS  string   `json:"highestWs"`
	IsNew      bool     `json:"isNew"`
	Contact    *Contact `json:"contact"`
}

// HasEmail 是否有可投递的家长邮箱
func (r Recipient) HasEmail() bool {
	return r.Contact != nil && r.Contact.ParentEmail != ""
}

// Unmatched 未匹配到家长邮箱的学员
type Unmatched struct {
	LoginID  string `json:"loginId"`
	FullName string `json:"fullName"`
	Reason   string `json:"reason"`
}

// JoinRecipients 把联系簿左外连接到对账报告
// 每个学员都保留；未匹配的联系方式为 nil 并生成原因记录
func JoinRecipients(rep *reconcile.Report, dir *Directory) ([]Recipient, []Unmatched) {
	recipients := make([]Recipient, 0, len(rep.Deltas)+len(rep.NewStudents))
	var unmatched []Unmatched

	for _, d := range rep.Deltas {
		r := Recipient{
			LoginID:    d.LoginID,
			FullName:   d.FullName,
			Worksheets: d.Worksheets,
			StudyDays:  d.StudyDays,
			HighestWS:  d.HighestWS,
		}
		if c, ok := dir.Lookup(d.LoginID); ok {
			contact := c
			r.Contact = &contact
		} else {
			unmatched = append(unmatched, Unmatched{
				LoginID:  d.LoginID,
				FullName: d.FullName,
				Reason:   ReasonNoParentEmail,
			})
		}
		recipients = append(recipients, r)
	}

	for _, n := range rep.NewStudents {
		r := Recipient{
			LoginID:    n.LoginID,
			FullName:   n.FullName,
			Worksheets: n.Worksheets,
			StudyDays:  n.StudyDays,
			HighestWS:  n.HighestWS,
			IsNew:      true,
		}
		if c, ok := dir.Lookup(n.LoginID); ok {
			contact := c
			r.Contact = &contact
		} else {
			unmatched = append(unmatched, Unmatched{
				LoginID:  n.LoginID,
				FullName: n.FullName,
				Reason:   ReasonNewNoParentEmail,
			})
		}
		recipients = append(recipients, r)
	}

	return recipients, unmatched
}
