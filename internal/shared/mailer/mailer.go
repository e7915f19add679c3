// Package mailer 封装事务性邮件发送
//
// SMTPMailer 走标准 SMTP；LogMailer 在开发环境把邮件打到日志，
// 避免本地调试误发真实邮件。
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
)

// Mailer 邮件发送接口
type Mailer interface {
	// SendPasswordReset 发送密码重置邮件，resetURL 含一次性明文令牌
	SendPasswordReset(ctx context.Context, to, name, resetURL string) error
}

var resetTmpl = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; max-width: 560px; margin: 0 auto;">
  <h2>密码重置</h2>
  <p>{{.Name}}，你好：</p>
  <p>我们收到了你的密码重置请求。点击下面的链接设置新密码，链接 10 分钟内有效：</p>
  <p><a href="{{.ResetURL}}">{{.ResetURL}}</a></p>
  <p>如果这不是你的操作，请忽略本邮件，你的密码不会被修改。</p>
</body>
</html>`))

func renderReset(name, resetURL string) ([]byte, error) {
	var buf bytes.Buffer
	err := resetTmpl.Execute(&buf, struct {
		Name     string
		ResetURL string
	}{Name: name, ResetURL: resetURL})
	if err != nil {
		return nil, fmt.Errorf("mailer: render template: %w", err)
	}
	return buf.Bytes(), nil
}

// ============================================================================
// SMTPMailer
// ============================================================================

// SMTPConfig SMTP 连接参数
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer 基于 SMTP 的邮件发送
type SMTPMailer struct {
	cfg SMTPConfig
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer 创建 SMTP 发送器
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("mailer: smtp host and from are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// SendPasswordReset 发送密码重置邮件
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	body, err := renderReset(name, resetURL)
	if err != nil {
		return err
	}

	msg := bytes.Buffer{}
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: =?UTF-8?B?5a+G56CB6YeN572u?=\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.Write(body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	return nil
}

// ============================================================================
// LogMailer
// ============================================================================

// LogMailer 把邮件打到日志，开发/测试环境使用
type LogMailer struct{}

var _ Mailer = (*LogMailer)(nil)

// SendPasswordReset 记录而不实际发送
func (LogMailer) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	log.Printf("[mailer] password reset for %s (%s): %s", name, to, resetURL)
	return nil
}
