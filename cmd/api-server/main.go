// Package main API Server 入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clients-admin/internal/apiserver/auth"
	"clients-admin/internal/apiserver/server"
	"clients-admin/internal/config"
	"clients-admin/internal/shared/mailer"
	"clients-admin/internal/shared/objstore"
	"clients-admin/internal/shared/ratelimit"
	"clients-admin/internal/shared/storage/mongostore"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换 yaml）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	// 初始化 MongoDB（客户与管理员文档）
	store, err := mongostore.NewStore(cfg.Database.URI, cfg.Database.Name)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer store.Close()
	log.Println("Connected to MongoDB")

	// 历史数据迁移：清掉枚举外的日志条目
	if n, err := store.RemoveInvalidActivityLogs(context.Background()); err != nil {
		log.Printf("Activity log cleanup error: %v", err)
	} else if n > 0 {
		log.Printf("Removed invalid activity log entries from %d client(s)", n)
	}

	// 种子管理员（幂等）
	if err := auth.EnsureAdmin(context.Background(), store,
		cfg.Auth.AdminUsername, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("Failed to seed admin account: %v", err)
	}

	// 文件存储后端
	files, err := newObjectStore(cfg)
	if err != nil {
		log.Fatalf("Failed to init file storage: %v", err)
	}
	log.Printf("File storage ready [driver=%s]", files.Backend())

	// 限流计数器：Redis 不可用时退回进程内计数
	limiter := newLimiter(cfg)

	// 邮件发送
	mail, err := newMailer(cfg)
	if err != nil {
		log.Fatalf("Failed to init mailer: %v", err)
	}

	h := server.NewHandler(cfg, store, files, mail, limiter)
	router, err := h.Router()
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// newObjectStore 按配置选择文件存储后端
func newObjectStore(cfg *config.Config) (objstore.Store, error) {
	switch cfg.Storage.Driver {
	case "minio":
		s, err := objstore.NewMinIO(objstore.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "local", "":
		dir := cfg.Storage.LocalDir
		if dir == "" {
			dir = "uploads"
		}
		return objstore.NewLocal(dir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newLimiter Redis 限流器，连接失败时退回进程内实现
func newLimiter(cfg *config.Config) ratelimit.Limiter {
	if cfg.RateLimitDisabled {
		return nil
	}
	rdb, err := ratelimit.NewRedisClient(cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("Redis unavailable (%v), falling back to in-memory rate limiting", err)
		return ratelimit.NewMemoryLimiter()
	}
	log.Println("Connected to Redis")
	return ratelimit.NewRedisLimiter(rdb)
}

// newMailer 按配置选择邮件驱动
func newMailer(cfg *config.Config) (mailer.Mailer, error) {
	if cfg.Mail.Driver == "smtp" {
		return mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	}
	return mailer.LogMailer{}, nil
}
