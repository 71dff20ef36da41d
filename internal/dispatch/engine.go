package dispatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"kumontrack/internal/contacts"
)

// Mode 发送模式
type Mode string

const (
	TestMode Mode = "test" // 只渲染记录，不触碰传输层
	LiveMode Mode = "live" // 真实发送
)

// State 单轮发送的状态机
type State string

const (
	StateIdle        State = "idle"
	StatePreviewing  State = "previewing"
	StateDispatching State = "dispatching"
	StateCompleted   State = "completed"
)

// Outcome 单个收件人的处理结果
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeSentTest    Outcome = "sent_test_mode"
	OutcomeFailed      Outcome = "failed"
	OutcomeSelfPreview Outcome = "self_preview"
)

// LogEntry 发送日志条目，按时间顺序只追加
type LogEntry struct {
	Time     time.Time `json:"time"`
	Outcome  Outcome   `json:"outcome"`
	LoginID  string    `json:"loginId"`
	FullName string    `json:"fullName"`
	To       string    `json:"to"`
	Detail   string    `json:"detail,omitempty"` // 失败原因等附加信息
}

// FailureDetail 失败明细，字段足够用于外部重试
type FailureDetail struct {
	LoginID     string `json:"loginId"`
	FullName    string `json:"fullName"`
	ParentName  string `json:"parentName"`
	ParentEmail string `json:"parentEmail"`
	Reason      string `json:"reason"`
}

// RunResult 一轮发送的完整结果
type RunResult struct {
	RunID      string          `json:"runId"`
	Mode       Mode            `json:"mode"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Attempted  int             `json:"attempted"` // 进入主循环的收件人数（有邮箱者）
	Log        []LogEntry      `json:"log"`
	Failures   []FailureDetail `json:"failures"`
}

// Request 一轮发送的输入
type Request struct {
	// Recipients 已按用户选择过滤的有序收件人列表
	Recipients []contacts.Recipient
	// RenderMessage 渲染单个收件人的主题与正文；
	// 模板错误在任何发送前中止整轮
	RenderMessage func(contacts.Recipient) (subject, body string, err error)
	From          string
	Mode          Mode
	// SendToSelf 主循环前向发件人自己额外发一封，
	// 模板字段取第一个选中收件人的数据
	SendToSelf bool
	// Progress 每个收件人处理完后回调 (已完成, 总数)，仅供 UI 展示
	Progress func(done, total int)
	// OnLog 每条日志生成时回调，供 SSE 流式输出
	OnLog func(LogEntry)
}

// Engine 发送引擎
type Engine struct {
	transport Transport
	state     State
}

// NewEngine 创建发送引擎
// TestMode 下 transport 可为 nil，引擎保证不会触碰它
func NewEngine(t Transport) *Engine {
	return &Engine{transport: t, state: StateIdle}
}

// State 当前状态
func (e *Engine) State() State {
	return e.state
}

// Run 执行一轮发送
// 返回 error 仅限整轮致命错误（模板错误、会话建立失败）；
// 单个收件人的失败记入结果，不中止批次
func (e *Engine) Run(req Request) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.NewString(),
		Mode:      req.Mode,
		StartedAt: time.Now(),
	}

	// 预览阶段：先渲染全部内容，坏模板在任何发送前中止
	e.state = StatePreviewing
	items, self, err := e.renderAll(req)
	if err != nil {
		e.state = StateCompleted
		return nil, err
	}

	total := len(items)
	result.Attempted = total

	e.state = StateDispatching
	if req.Mode == LiveMode {
		if err := e.transport.Open(); err != nil {
			// 零封发送：日志与失败清单保持为空
			e.state = StateCompleted
			return nil, fmt.Errorf("会话建立失败，本轮未发送任何邮件: %w", err)
		}
		defer e.transport.Close()
	}

	if self != nil {
		e.sendSelf(req, *self, result)
	}

	done := 0
	for _, item := range items {
		e.attempt(req, item, result)
		done++
		if req.Progress != nil {
			req.Progress(done, total)
		}
	}

	result.FinishedAt = time.Now()
	e.state = StateCompleted
	return result, nil
}

type renderedItem struct {
	recipient contacts.Recipient
	subject   string
	body      string
}

// renderAll 渲染全部选中收件人的内容
// 无邮箱的收件人在此静默排除（已在匹配阶段上报过）
func (e *Engine) renderAll(req Request) ([]renderedItem, *renderedItem, error) {
	var items []renderedItem
	for _, r := range req.Recipients {
		if !r.HasEmail() {
			continue
		}
		subject, body, err := req.RenderMessage(r)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, renderedItem{recipient: r, subject: subject, body: body})
	}

	var self *renderedItem
	if req.SendToSelf && len(req.Recipients) > 0 {
		// 自发预览固定使用第一个选中收件人的字段
		subject, body, err := req.RenderMessage(req.Recipients[0])
		if err != nil {
			return nil, nil, err
		}
		self = &renderedItem{recipient: req.Recipients[0], subject: subject, body: body}
	}
	return items, self, nil
}

// sendSelf 主循环外的自发预览，结果单独记录，不计入主循环
func (e *Engine) sendSelf(req Request, item renderedItem, result *RunResult) {
	entry := LogEntry{
		Time:    time.Now(),
		Outcome: OutcomeSelfPreview,
		To:      req.From,
	}
	if req.Mode == LiveMode {
		err := e.transport.Send(Message{
			From:    req.From,
			To:      req.From,
			Subject: item.subject,
			Body:    item.body,
		})
		if err != nil {
			entry.Detail = err.Error()
		}
	}
	e.record(req, result, entry)
}

// attempt 主循环内单个收件人恰好一次发送尝试
func (e *Engine) attempt(req Request, item renderedItem, result *RunResult) {
	r := item.recipient
	entry := LogEntry{
		Time:     time.Now(),
		LoginID:  r.LoginID,
		FullName: r.FullName,
		To:       r.Contact.ParentEmail,
	}

	if req.Mode == TestMode {
		// 测试模式定义为恒成功，内容已生成即视为送达
		entry.Outcome = OutcomeSentTest
		e.record(req, result, entry)
		return
	}

	err := e.transport.Send(Message{
		From:    req.From,
		To:      r.Contact.ParentEmail,
		Subject: item.subject,
		Body:    item.body,
	})
	if err != nil {
		entry.Outcome = OutcomeFailed
		entry.Detail = err.Error()
		result.Failures = append(result.Failures, FailureDetail{
			LoginID:     r.LoginID,
			FullName:    r.FullName,
			ParentName:  r.Contact.ParentName,
			ParentEmail: r.Contact.ParentEmail,
			Reason:      err.Error(),
		})
	} else {
		entry.Outcome = OutcomeSent
	}
	e.record(req, result, entry)
}

func (e *Engine) record(req Request, result *RunResult, entry LogEntry) {
	result.Log = append(result.Log, entry)
	if req.OnLog != nil {
		req.OnLog(entry)
	}
}
