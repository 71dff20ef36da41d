package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"kumontrack/internal/config"
	"kumontrack/internal/dispatch"
	"kumontrack/internal/store"
)

// stubTransport 可编排失败的假传输，替代真实 SMTP
type stubTransport struct {
	openErr   error
	sendErrTo map[string]error

	opened int
	sent   []dispatch.Message
}

func (s *stubTransport) Open() error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened++
	return nil
}

func (s *stubTransport) Send(msg dispatch.Message) error {
	if err, ok := s.sendErrTo[msg.To]; ok {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubTransport) Close() error { return nil }

func newTestRouter(t *testing.T, transport dispatch.Transport) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewHandler(config.DefaultConfig(), store.NewMemoryStore())
	h.newTransport = func(host string, port int, username, password string) dispatch.Transport {
		return transport
	}
	h.saveConfig = func(cfg *config.AppConfig) error { return nil }

	r := gin.New()
	apiGroup := r.Group("/api")
	h.RegisterRoutes(apiGroup)
	return r, h
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, content := range files {
		// map key 形如 "current:math_01222026.csv"
		parts := strings.SplitN(name, ":", 2)
		fw, err := w.CreateFormFile(parts[0], parts[1])
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, w.FormDataContentType()
}

const priorCSV = `Login ID,Full Name,# of WS,# of Study Days,Highest WS Completed
102030.0,Alice Lee,10,4,B100
102031,Ben Wu,7,3,A50
`

const currentCSV = `Login ID,Full Name,# of WS,# of Study Days,Highest WS Completed
102030,Alice Lee,14,6,B120
102031,Ben Wu,7,3,A50
102032,Cara Ito,3,2,A10
`

const directoryCSV = `Login ID,Parent Name,Parent Email
102030,Mrs. Lee,lee@example.com
102032,Mr. Ito,ito@example.com
`

func uploadPipeline(t *testing.T, r *gin.Engine) {
	t.Helper()

	body, contentType := multipartBody(t,
		map[string]string{"mode": "weekly"},
		map[string]string{
			"prior:math_01152026.csv":   priorCSV,
			"current:math_01222026.csv": currentCSV,
		})
	req := httptest.NewRequest(http.MethodPost, "/api/snapshots", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("snapshots: status %d body=%s", w.Code, w.Body.String())
	}

	body, contentType = multipartBody(t, nil,
		map[string]string{"file:contacts.csv": directoryCSV})
	req = httptest.NewRequest(http.MethodPost, "/api/contacts/load", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("contacts: status %d body=%s", w.Code, w.Body.String())
	}
}

func TestUploadSnapshots_WeeklyReport(t *testing.T) {
	r, h := newTestRouter(t, nil)

	body, contentType := multipartBody(t,
		map[string]string{"mode": "weekly"},
		map[string]string{
			"prior:math_01152026.csv":   priorCSV,
			"current:math_01222026.csv": currentCSV,
		})
	req := httptest.NewRequest(http.MethodPost, "/api/snapshots", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", w.Code, w.Body.String())
	}

	rep := h.store.Report()
	if rep == nil {
		t.Fatalf("report not stored")
	}
	if rep.DateRange != "01/15/2026 - 01/22/2026" {
		t.Fatalf("unexpected date range: %q", rep.DateRange)
	}
	// 102030 进步 +4/+2，102031 无变化仍要出现，102032 为新学员
	if len(rep.Deltas) != 2 {
		t.Fatalf("want 2 deltas, got %d", len(rep.Deltas))
	}
	if len(rep.NewStudents) != 1 || rep.NewStudents[0].LoginID != "102032" {
		t.Fatalf("unexpected new students: %+v", rep.NewStudents)
	}
}

func TestUploadSnapshots_MissingColumn(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	bad := "Login ID,Full Name,# of WS\n102030,Alice Lee,10\n"
	body, contentType := multipartBody(t,
		map[string]string{"mode": "monthly"},
		map[string]string{"current:math_01222026.csv": bad})
	req := httptest.NewRequest(http.MethodPost, "/api/snapshots", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("schema error must map to 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "# of Study Days") {
		t.Fatalf("error must name the missing column: %s", w.Body.String())
	}
}

func TestLoadContacts_ReportsUnmatched(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	body, contentType := multipartBody(t,
		map[string]string{"mode": "weekly"},
		map[string]string{
			"prior:math_01152026.csv":   priorCSV,
			"current:math_01222026.csv": currentCSV,
		})
	req := httptest.NewRequest(http.MethodPost, "/api/snapshots", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("snapshots: %d", w.Code)
	}

	body, contentType = multipartBody(t, nil,
		map[string]string{"file:contacts.csv": directoryCSV})
	req = httptest.NewRequest(http.MethodPost, "/api/contacts/load", body)
	req.Header.Set("Content-Type", contentType)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("contacts: %d body=%s", w.Code, w.Body.String())
	}

	var resp LoadContactsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.IdentityColumn != "Login ID" || resp.EmailColumn != "Parent Email" {
		t.Fatalf("unexpected columns: %+v", resp)
	}
	if resp.EmailStrategy != "exact-parent-email" {
		t.Fatalf("unexpected strategy: %q", resp.EmailStrategy)
	}
	if resp.MatchedCount != 2 {
		t.Fatalf("want 2 matched, got %d", resp.MatchedCount)
	}
	// 102031 无家长邮箱，应出现在未匹配清单
	if len(resp.Unmatched) != 1 || resp.Unmatched[0].LoginID != "102031" {
		t.Fatalf("unexpected unmatched: %+v", resp.Unmatched)
	}
}

func TestSettings_PasswordNeverEchoed(t *testing.T) {
	r, h := newTestRouter(t, nil)

	payload, _ := json.Marshal(store.Settings{
		SenderEmail:  "teacher@example.com",
		Subject:      "Update for {student}",
		BodyTemplate: "Hi {parent}",
		AppPassword:  "super-secret",
	})
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("put settings: %d body=%s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if strings.Contains(w.Body.String(), "super-secret") {
		t.Fatalf("credential leaked: %s", w.Body.String())
	}
	var resp SettingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.HasPassword {
		t.Fatalf("hasPassword must be true after save")
	}
	if h.store.Settings().AppPassword != "super-secret" {
		t.Fatalf("password must survive in store")
	}
}

func TestUpdateSettings_PersistsMailEndpoint(t *testing.T) {
	r, h := newTestRouter(t, nil)

	var saved *config.AppConfig
	h.saveConfig = func(cfg *config.AppConfig) error {
		saved = cfg
		return nil
	}

	payload, _ := json.Marshal(UpdateSettingsRequest{
		Settings: store.Settings{
			Subject:      "Update for {student}",
			BodyTemplate: "Hi {parent}",
		},
		MailHost: "smtp.example.com",
		MailPort: 2525,
	})
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("put settings: %d body=%s", w.Code, w.Body.String())
	}

	if saved == nil {
		t.Fatalf("mail endpoint change must be written back to the config file")
	}
	if saved.Mail.Host != "smtp.example.com" || saved.Mail.Port != 2525 {
		t.Fatalf("unexpected mail endpoint: %+v", saved.Mail)
	}

	// 未给出邮件端点时不写配置文件
	saved = nil
	payload, _ = json.Marshal(store.Settings{
		Subject:      "Update",
		BodyTemplate: "Hi {parent}",
	})
	req = httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("put settings: %d", w.Code)
	}
	if saved != nil {
		t.Fatalf("config must not be rewritten without a mail endpoint change")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp SettingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MailHost != "smtp.example.com" || resp.MailPort != 2525 {
		t.Fatalf("settings must echo the active mail endpoint: %+v", resp)
	}
}

func TestUpdateSettings_RejectsBadTemplate(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	payload, _ := json.Marshal(store.Settings{
		Subject:      "Update",
		BodyTemplate: "Hi {bogus}",
	})
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad template must be rejected on save, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "bogus") {
		t.Fatalf("error must name the unknown placeholder: %s", w.Body.String())
	}
}

func TestPreview_RendersSelectedRecipients(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	uploadPipeline(t, r)

	payload, _ := json.Marshal(PreviewRequest{LoginIDs: []string{"102030"}})
	req := httptest.NewRequest(http.MethodPost, "/api/preview", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("preview: %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Previews []PreviewItem `json:"previews"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Previews) != 1 {
		t.Fatalf("want 1 preview, got %d", len(resp.Previews))
	}
	p := resp.Previews[0]
	if p.To != "lee@example.com" {
		t.Fatalf("unexpected recipient: %+v", p)
	}
	if !strings.Contains(p.Body, "Mrs. Lee") || !strings.Contains(p.Body, "Alice Lee") {
		t.Fatalf("body must carry rendered fields: %s", p.Body)
	}
	if !strings.Contains(p.Body, "01/15/2026 - 01/22/2026") {
		t.Fatalf("body must carry the date range: %s", p.Body)
	}
}

func sseEvents(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(raw, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("decode event %q: %v", line, err)
		}
		events = append(events, evt)
	}
	return events
}

func TestDispatch_TestModeStreamsWithoutTransport(t *testing.T) {
	// transport 为 nil：测试模式碰到它会 panic，从而守住约定
	r, h := newTestRouter(t, nil)
	uploadPipeline(t, r)

	payload, _ := json.Marshal(DispatchRequest{Mode: "test"})
	req := httptest.NewRequest(http.MethodPost, "/api/dispatch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("dispatch: %d body=%s", w.Code, w.Body.String())
	}
	events := sseEvents(t, w.Body.String())
	if len(events) == 0 {
		t.Fatalf("no SSE events")
	}
	if events[0]["type"] != "start" {
		t.Fatalf("first event must be start, got %v", events[0])
	}
	last := events[len(events)-1]
	if last["type"] != "done" {
		t.Fatalf("last event must be done, got %v", last)
	}
	data := last["data"].(map[string]any)
	// 有邮箱的收件人：102030 与 102032
	if data["attempted"].(float64) != 2 || data["failed"].(float64) != 0 {
		t.Fatalf("unexpected summary: %v", data)
	}
	if data["sendLogUrl"] == nil {
		t.Fatalf("done event must carry the send log url")
	}

	if h.store.LastRun() == nil {
		t.Fatalf("run result must be stored")
	}
}

func TestDispatch_LiveModeSessionFailure(t *testing.T) {
	st := &stubTransport{openErr: errors.New("535 auth failed")}
	r, h := newTestRouter(t, st)
	uploadPipeline(t, r)

	payload, _ := json.Marshal(store.Settings{
		SenderEmail:  "teacher@example.com",
		Subject:      "Update for {student}",
		BodyTemplate: "Hi {parent}",
		AppPassword:  "app-pass",
	})
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("put settings: %d", w.Code)
	}

	payload, _ = json.Marshal(DispatchRequest{Mode: "live"})
	req = httptest.NewRequest(http.MethodPost, "/api/dispatch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	events := sseEvents(t, w.Body.String())
	last := events[len(events)-1]
	if last["type"] != "error" {
		t.Fatalf("session failure must end with error event, got %v", last)
	}
	if len(st.sent) != 0 {
		t.Fatalf("zero sends after session failure")
	}
	if h.store.LastRun() != nil {
		t.Fatalf("failed run must not be recorded as last run")
	}
}

func TestDispatch_LiveModeRequiresCredentials(t *testing.T) {
	r, _ := newTestRouter(t, &stubTransport{})
	uploadPipeline(t, r)

	payload, _ := json.Marshal(DispatchRequest{Mode: "live"})
	req := httptest.NewRequest(http.MethodPost, "/api/dispatch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("live without credentials must be rejected, got %d", w.Code)
	}
}

func TestExport_ReportCSV(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	uploadPipeline(t, r)

	req := httptest.NewRequest(http.MethodGet, "/api/export/report", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("export: %d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type: %q", ct)
	}
	if !strings.Contains(w.Body.String(), "102030") {
		t.Fatalf("report csv must contain delta rows: %s", w.Body.String())
	}
}

func TestDownloadExport_TokenIsOneTime(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	uploadPipeline(t, r)

	payload, _ := json.Marshal(DispatchRequest{Mode: "test"})
	req := httptest.NewRequest(http.MethodPost, "/api/dispatch", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	events := sseEvents(t, w.Body.String())
	last := events[len(events)-1]
	url, _ := last["data"].(map[string]any)["sendLogUrl"].(string)
	if url == "" {
		t.Fatalf("missing send log url")
	}

	req = httptest.NewRequest(http.MethodGet, url, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("download: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "sent_test_mode") {
		t.Fatalf("send log must record test mode outcomes: %s", w.Body.String())
	}

	// 令牌一次性：再次下载应 404
	req = httptest.NewRequest(http.MethodGet, url, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("token must be one-time, got %d", w.Code)
	}
}
