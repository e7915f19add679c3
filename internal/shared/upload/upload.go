// Package upload 定义文件上传策略
//
// 集中管理上传限制与安全检查：
//   - 单文件大小上限与单次请求文件数上限
//   - MIME 类型 + 扩展名白名单（两者必须同时命中）
//   - 文本类文件的恶意内容扫描
//   - 存储键生成（按客户隔离、防止覆盖与路径注入）
package upload

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// 上传限制
const (
	MaxFileSize = 10 << 20 // 单文件 10MB
	MaxFiles    = 5        // 单次请求最多 5 个文件
)

// 策略错误，handler 据此映射错误码
var (
	ErrFileTooLarge     = errors.New("upload: file too large")
	ErrTooManyFiles     = errors.New("upload: too many files")
	ErrTypeNotAllowed   = errors.New("upload: file type not allowed")
	ErrMaliciousContent = errors.New("upload: malicious content detected")
)

// allowedTypes MIME 类型 → 允许的扩展名
var allowedTypes = map[string][]string{
	"image/jpeg":               {".jpg", ".jpeg"},
	"image/png":                {".png"},
	"image/gif":                {".gif"},
	"image/webp":               {".webp"},
	"text/csv":                 {".csv"},
	"application/vnd.ms-excel": {".xls", ".csv"},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {".xlsx"},
	"text/plain":       {".txt"},
	"application/pdf":  {".pdf"},
	"application/json": {".json"},
}

// textScanTypes 需要做内容扫描的 MIME 类型
var textScanTypes = map[string]bool{
	"text/csv":         true,
	"text/plain":       true,
	"application/json": true,
}

// maliciousPatterns 文本内容中的危险特征（大小写不敏感）
var maliciousPatterns = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"onload=",
	"onerror=",
	"eval(",
	"exec(",
}

// CheckCount 校验单次请求文件数
func CheckCount(n int) error {
	if n > MaxFiles {
		return fmt.Errorf("%w: %d files (max %d)", ErrTooManyFiles, n, MaxFiles)
	}
	return nil
}

// CheckFile 校验单个文件的大小与类型
//
// MIME 类型与扩展名必须同时在白名单内且互相匹配。
func CheckFile(originalName, mimeType string, size int64) error {
	if size > MaxFileSize {
		return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFileTooLarge, originalName, size, MaxFileSize)
	}

	exts, ok := allowedTypes[strings.ToLower(mimeType)]
	if !ok {
		return fmt.Errorf("%w: mime type %q", ErrTypeNotAllowed, mimeType)
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	for _, allowed := range exts {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: extension %q does not match type %q", ErrTypeNotAllowed, ext, mimeType)
}

// NeedsScan 判断该类型是否需要内容扫描
func NeedsScan(mimeType string) bool {
	return textScanTypes[strings.ToLower(mimeType)]
}

// ScanContent 扫描文本内容中的危险特征
func ScanContent(content []byte) error {
	lower := strings.ToLower(string(content))
	for _, p := range maliciousPatterns {
		if strings.Contains(lower, p) {
			return fmt.Errorf("%w: pattern %q", ErrMaliciousContent, p)
		}
	}
	return nil
}

// unsafeChars 文件名中需要替换的字符
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeName 清洗原始文件名，仅保留安全字符
func SanitizeName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	safe := unsafeChars.ReplaceAllString(base, "_")
	// 清洗后只剩替换符与分隔符时退回占位名
	if strings.Trim(safe, "._-") == "" {
		safe = "file"
	}
	const maxBase = 80
	if len(safe) > maxBase {
		safe = safe[:maxBase]
	}
	return safe
}

// StorageKey 生成对象存储键：<clientId>/<清洗后文件名>-<unix毫秒>-<6位hex><扩展名>
//
// 时间戳 + 随机后缀保证同名文件互不覆盖。
func StorageKey(clientID, originalName string) string {
	buf := make([]byte, 3)
	rand.Read(buf)
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("%s/%s-%d-%s%s",
		clientID, SanitizeName(originalName), time.Now().UnixMilli(), hex.EncodeToString(buf), ext)
}
