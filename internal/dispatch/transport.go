package dispatch

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

// Message 一封待发邮件
type Message struct {
	From    string
	To      string
	Subject string
	Body    string // 纯文本正文
}

// Transport 单次发送会话的最小能力
// 一轮发送共用一个会话：Open 一次，逐收件人 Send，退出路径上 Close
type Transport interface {
	// Open 建立并认证会话，失败即整批中止
	Open() error
	// Send 发送一封邮件，失败只影响该收件人
	Send(msg Message) error
	// Close 关闭会话，必须容忍会话从未建立的情况
	Close() error
}

// SMTPTransport 基于 SMTP 提交端口的传输实现
// 典型配置: smtp.gmail.com:587 + 应用专用密码
type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string

	client *smtp.Client
}

var _ Transport = (*SMTPTransport)(nil)

// NewSMTPTransport 创建 SMTP 传输
func NewSMTPTransport(host string, port int, username, password string) *SMTPTransport {
	return &SMTPTransport{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
	}
}

// Open 连接、STARTTLS、认证
func (t *SMTPTransport) Open() error {
	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))

	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return fmt.Errorf("连接邮件服务器失败: %w", err)
	}

	client, err := smtp.NewClient(conn, t.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("建立 SMTP 会话失败: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: t.Host}); err != nil {
			client.Close()
			return fmt.Errorf("TLS 握手失败: %w", err)
		}
	}

	auth := smtp.PlainAuth("", t.Username, t.Password, t.Host)
	if err := client.Auth(auth); err != nil {
		client.Close()
		return fmt.Errorf("邮箱认证失败: %w", err)
	}

	t.client = client
	return nil
}

// Send 在已建立的会话上发送一封邮件
func (t *SMTPTransport) Send(msg Message) error {
	if t.client == nil {
		return fmt.Errorf("SMTP 会话未建立")
	}

	if err := t.client.Mail(msg.From); err != nil {
		return t.resetAfter(fmt.Errorf("MAIL FROM 被拒绝: %w", err))
	}
	if err := t.client.Rcpt(msg.To); err != nil {
		return t.resetAfter(fmt.Errorf("收件地址被拒绝: %w", err))
	}

	w, err := t.client.Data()
	if err != nil {
		return t.resetAfter(fmt.Errorf("DATA 失败: %w", err))
	}
	if _, err := w.Write(buildMIME(msg)); err != nil {
		w.Close()
		return t.resetAfter(fmt.Errorf("写入正文失败: %w", err))
	}
	if err := w.Close(); err != nil {
		return t.resetAfter(fmt.Errorf("提交邮件失败: %w", err))
	}
	return nil
}

// resetAfter 单封失败后复位会话状态，保证后续收件人可继续
func (t *SMTPTransport) resetAfter(err error) error {
	_ = t.client.Reset()
	return err
}

// Close 结束会话；会话从未建立时直接返回
func (t *SMTPTransport) Close() error {
	if t.client == nil {
		return nil
	}
	err := t.client.Quit()
	t.client = nil
	return err
}

func buildMIME(msg Message) []byte {
	b := make([]byte, 0, len(msg.Body)+256)
	b = append(b, "From: "+msg.From+"\r\n"...)
	b = append(b, "To: "+msg.To+"\r\n"...)
	b = append(b, "Subject: "+msg.Subject+"\r\n"...)
	b = append(b, "Date: "+time.Now().Format(time.RFC1123Z)+"\r\n"...)
	b = append(b, "MIME-Version: 1.0\r\n"...)
	b = append(b, "Content-Type: text/plain; charset=utf-8\r\n"...)
	b = append(b, "\r\n"...)
	b = append(b, msg.Body...)
	b = append(b, "\r\n"...)
	return b
}
