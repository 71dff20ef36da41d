package store

import (
	"sync"

	"kumontrack/internal/contacts"
	"kumontrack/internal/dispatch"
	"kumontrack/internal/reconcile"
)

// Settings 运行期可编辑的发送设置
// 只在进程内存活，整体覆盖式保存，不做字段级更新
type Settings struct {
	SenderEmail  string `json:"senderEmail"`
	Subject      string `json:"subject"`
	BodyTemplate string `json:"bodyTemplate"`
	AppPassword  string `json:"appPassword"`
	DirectoryURL string `json:"directoryUrl"`
}

// MemoryStore 进程内会话状态
// 持有设置缓存与各阶段的中间产物，供界面流程串联；进程退出即消失
type MemoryStore struct {
	mu sync.RWMutex

	settings   Settings
	report     *reconcile.Report
	directory  *contacts.Directory
	recipients []contacts.Recipient
	unmatched  []contacts.Unmatched
	lastRun    *dispatch.RunResult
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: Settings{
			Subject:      "Weekly Study Update for {student}",
			BodyTemplate: "Hi {parent},\n\n{student} completed {worksheets} worksheets over {days} study days ({date_range}).\nHighest worksheet completed: {highest_ws}.\n\nKeep up the great work!",
		},
	}
}

// Settings 读取当前设置（副本）
func (s *MemoryStore) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// ReplaceSettings 原子整体覆盖设置
func (s *MemoryStore) ReplaceSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// SetReport 记录新的对账报告
// 新报告使旧的联系匹配结果失效
func (s *MemoryStore) SetReport(rep *reconcile.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = rep
	s.recipients = nil
	s.unmatched = nil
	s.directory = nil
}

// Report 当前对账报告，可能为 nil
func (s *MemoryStore) Report() *reconcile.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}

// SetJoin 记录联系匹配结果
func (s *MemoryStore) SetJoin(dir *contacts.Directory, recipients []contacts.Recipient, unmatched []contacts.Unmatched) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directory = dir
	s.recipients = recipients
	s.unmatched = unmatched
}

// Join 当前联系匹配结果
func (s *MemoryStore) Join() (*contacts.Directory, []contacts.Recipient, []contacts.Unmatched) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.directory, s.recipients, s.unmatched
}

// SetLastRun 记录最近一轮发送结果
func (s *MemoryStore) SetLastRun(result *dispatch.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = result
}

// LastRun 最近一轮发送结果，可能为 nil
func (s *MemoryStore) LastRun() *dispatch.RunResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}
