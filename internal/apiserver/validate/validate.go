// Package validate 请求字段校验
//
// 校验失败收集为 FieldError 列表，handler 统一返回
// 400 {error:"Validation failed", code:"VALIDATION_ERROR", details:[...]}，
// 任何字段失败时不执行写操作。
package validate

import (
	"html"
	"net/mail"
	"regexp"
	"strings"

	"clients-admin/internal/shared/model"
)

// FieldError 单个字段的校验错误
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value"`
}

// Errors 校验错误集合
type Errors []FieldError

// Add 追加一条字段错误
func (e *Errors) Add(field, message, value string) {
	*e = append(*e, FieldError{Field: field, Message: message, Value: value})
}

// OK 是否全部通过
func (e Errors) OK() bool { return len(e) == 0 }

var (
	nameRe    = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	upperRe   = regexp.MustCompile(`[A-Z]`)
	digitRe   = regexp.MustCompile(`\d`)
	specialRe = regexp.MustCompile(`[@$!%*?&]`)
)

// Name 客户名称：2-50 字符，仅字母和空格
func (e *Errors) Name(field, value string) string {
	v := strings.TrimSpace(value)
	if len(v) < 2 || len(v) > 50 {
		e.Add(field, "Name must be between 2 and 50 characters", value)
	} else if !nameRe.MatchString(v) {
		e.Add(field, "Name can only contain letters and spaces", value)
	}
	return v
}

// Email 邮箱格式，规范化为小写
func (e *Errors) Email(field, value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if _, err := mail.ParseAddress(v); err != nil || v == "" {
		e.Add(field, "Please provide a valid email address", value)
	}
	return v
}

// StrongPassword 注册密码：≥8 位且含大写、小写、数字、特殊字符
func (e *Errors) StrongPassword(field, value string) {
	switch {
	case len(value) < 8:
		e.Add(field, "Password must be at least 8 characters long", "")
	case !lowerRe.MatchString(value) || !upperRe.MatchString(value) ||
		!digitRe.MatchString(value) || !specialRe.MatchString(value):
		e.Add(field, "Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character", "")
	}
}

// PasswordsMatch 两次输入一致
func (e *Errors) PasswordsMatch(field, password, confirm string) {
	if password != confirm {
		e.Add(field, "Passwords do not match", "")
	}
}

// NonEmpty 必填字段
func (e *Errors) NonEmpty(field, value, message string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		e.Add(field, message, value)
	}
	return v
}

// Message 消息正文：去空白后 1-1000 字符，HTML 转义防注入
func (e *Errors) Message(field, value string) string {
	v := strings.TrimSpace(value)
	if len(v) < 1 || len(v) > 1000 {
		e.Add(field, "Message must be between 1 and 1000 characters", value)
		return v
	}
	return html.EscapeString(v)
}

// Platform 凭据平台枚举
func (e *Errors) Platform(field, value string) {
	if !model.ValidCredentialPlatform(value) {
		e.Add(field, "Invalid platform selected", value)
	}
}

// CredentialUsername 凭据用户名：3-100 字符
func (e *Errors) CredentialUsername(field, value string) string {
	v := strings.TrimSpace(value)
	if len(v) < 3 || len(v) > 100 {
		e.Add(field, "Username must be between 3 and 100 characters", value)
	}
	return v
}

// CredentialPassword 凭据密码：≥6 位
func (e *Errors) CredentialPassword(field, value string) {
	if len(value) < 6 {
		e.Add(field, "Password must be at least 6 characters long", "")
	}
}

// CampaignName 活动名称：2-100 字符
func (e *Errors) CampaignName(field, value string) string {
	v := strings.TrimSpace(value)
	if len(v) < 2 || len(v) > 100 {
		e.Add(field, "Campaign name must be between 2 and 100 characters", value)
	}
	return v
}

// AutomationType 活动自动化类型枚举
func (e *Errors) AutomationType(field, value string) {
	if !model.ValidAutomationType(value) {
		e.Add(field, "Invalid automation type", value)
	}
}

// Instructions 活动说明：≤5000 字符
func (e *Errors) Instructions(field, value string) string {
	v := strings.TrimSpace(value)
	if len(v) > 5000 {
		e.Add(field, "Instructions must be at most 5000 characters", "")
	}
	return v
}
