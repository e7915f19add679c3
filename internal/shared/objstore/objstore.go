// Package objstore 封装文件对象存储
//
// 两种后端实现同一接口：
//   - MinIO：生产环境对象存储，支持预签名下载链接
//   - Local：本地磁盘，开发环境或无对象存储时使用
//
// 存储键约定为 "<clientId>/<文件名>"，按客户隔离。
package objstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("objstore: object not found")

// ErrPresignUnsupported 后端不支持预签名链接（本地磁盘），调用方应改为直接流式输出
var ErrPresignUnsupported = errors.New("objstore: presigned urls not supported")

// Store 对象存储接口
type Store interface {
	// Upload 上传对象，size 为 -1 时表示未知长度
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Open 打开对象读取流，调用方负责关闭；对象不存在返回 ErrNotFound
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// Delete 删除对象，对象不存在时静默成功
	Delete(ctx context.Context, key string) error

	// DeletePrefix 删除某前缀下的全部对象（删除客户时级联清理，
	// 连同文档中没有记录的孤儿对象一并清掉）
	DeletePrefix(ctx context.Context, prefix string) error

	// PresignedURL 生成限时下载链接，filename 用于 Content-Disposition
	// 不支持的后端返回 ErrPresignUnsupported
	PresignedURL(ctx context.Context, key, filename string, expiry time.Duration) (string, error)

	// Backend 返回后端标识（"local" / "minio"），写入文件记录
	Backend() string
}
