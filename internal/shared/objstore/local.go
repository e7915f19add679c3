package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore 基于本地磁盘的对象存储
//
// 存储键直接映射为 baseDir 下的相对路径，客户目录按需创建。
type LocalStore struct {
	baseDir string
}

var _ Store = (*LocalStore)(nil)

// NewLocal 创建本地磁盘存储后端
func NewLocal(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("local storage dir is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{baseDir: abs}, nil
}

// resolve 将存储键映射为磁盘路径，拒绝越出 baseDir 的键
func (s *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// Upload 写入对象文件
func (s *LocalStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create client dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", key, err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return f.Close()
}

// Open 打开对象文件
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Exists 检查对象文件是否存在
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete 删除对象文件，不存在时静默成功
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// PresignedURL 本地磁盘不支持预签名链接
func (s *LocalStore) PresignedURL(ctx context.Context, key, filename string, expiry time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

// Backend 后端标识
func (s *LocalStore) Backend() string { return "local" }

// DeletePrefix 删除某客户的整个存储目录（删除客户时级联清理）
func (s *LocalStore) DeletePrefix(ctx context.Context, prefix string) error {
	path, err := s.resolve(prefix)
	if err != nil {
		return err
	}
	return os.RemoveAll(path)
}
