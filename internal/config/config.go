// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（密码、密钥）和 APP_ENV
//  2. 根据 APP_ENV 加载 configs/common.yaml + configs/{env}.yaml
//  3. 环境变量可覆盖 YAML 配置
//
// 凭据单一数据源：密码/密钥只存在 .env 中，YAML 不存储任何密码。
//
// 环境：
//   - 开发: APP_ENV=dev (默认)
//   - 测试: APP_ENV=test
//   - 生产: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Auth     AuthConfig     `yaml:"auth"`
	Mail     MailConfig     `yaml:"mail"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port    string `yaml:"port"`
	BaseURL string `yaml:"base_url"` // 对外地址，拼接密码重置链接用
}

// DatabaseConfig MongoDB 配置
type DatabaseConfig struct {
	URI  string `yaml:"uri"`  // 如 mongodb://localhost:27017
	Name string `yaml:"name"` // 数据库名
}

// RedisConfig Redis 配置（限流计数）
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // 只从 REDIS_PASSWORD 环境变量读取
}

// StorageConfig 文件存储配置
type StorageConfig struct {
	Driver   string `yaml:"driver"`    // "local" 或 "minio"
	LocalDir string `yaml:"local_dir"` // local 驱动的根目录
}

// MinIOConfig MinIO 对象存储配置
// 注意：AccessKey/SecretKey 只从环境变量读取，不存储在 YAML 中
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000
	AccessKey string `yaml:"-"`        // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// AuthConfig 认证配置
// 注意：JWTSecret/AdminUsername/AdminPassword 只从环境变量读取
type AuthConfig struct {
	JWTSecret      string `yaml:"-"`                // 只从 JWT_SECRET 环境变量读取
	AdminUsername  string `yaml:"-"`                // 只从 ADMIN_USERNAME 环境变量读取
	AdminPassword  string `yaml:"-"`                // 只从 ADMIN_PASSWORD 环境变量读取
	AdminEmail     string `yaml:"-"`                // 只从 ADMIN_EMAIL 环境变量读取
	ClientTokenTTL string `yaml:"client_token_ttl"` // 例如 "168h"
	AdminTokenTTL  string `yaml:"admin_token_ttl"`  // 例如 "8h"
}

// MailConfig 邮件配置
// 注意：SMTP 用户名/密码只从环境变量读取
type MailConfig struct {
	Driver   string `yaml:"driver"` // "smtp" 或 "log"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	From     string `yaml:"from"`
	Username string `yaml:"-"` // 只从 SMTP_USERNAME 环境变量读取
	Password string `yaml:"-"` // 只从 SMTP_PASSWORD 环境变量读取
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env      Environment
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	MinIO    MinIOConfig
	Auth     AuthConfig
	Mail     MailConfig
	CORS     CORSConfig

	// RateLimitDisabled 开发环境或显式设置 DISABLE_RATE_LIMIT=true 时跳过限流
	RateLimitDisabled bool
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/common.yaml + configs/{env}.yaml
// 3. 环境变量覆盖敏感字段
func Load() *Config {
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	env := parseEnv(getEnv("APP_ENV", "dev"))
	yamlCfg := loadYAMLConfig(env)

	cfg := &Config{
		Env:      env,
		Server:   yamlCfg.Server,
		Database: yamlCfg.Database,
		Redis:    yamlCfg.Redis,
		Storage:  yamlCfg.Storage,
		MinIO:    yamlCfg.MinIO,
		Auth:     yamlCfg.Auth,
		Mail:     yamlCfg.Mail,
		CORS:     yamlCfg.CORS,
	}

	// 敏感信息只从环境变量读取
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.MinIO.AccessKey = getEnv("MINIO_ROOT_USER", "")
	cfg.MinIO.SecretKey = getEnv("MINIO_ROOT_PASSWORD", "")
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.Auth.AdminUsername = getEnv("ADMIN_USERNAME", "admin")
	cfg.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", "")
	cfg.Auth.AdminEmail = getEnv("ADMIN_EMAIL", "admin@localhost")
	cfg.Mail.Username = getEnv("SMTP_USERNAME", "")
	cfg.Mail.Password = getEnv("SMTP_PASSWORD", "")

	// 环境变量覆盖非敏感配置
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Database.URI = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}

	cfg.RateLimitDisabled = env == EnvDevelopment ||
		strings.EqualFold(getEnv("DISABLE_RATE_LIMIT", ""), "true")

	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	cfg := &YAMLConfig{
		Server:   ServerConfig{Port: "8080", BaseURL: "http://localhost:8080"},
		Database: DatabaseConfig{URI: "mongodb://localhost:27017", Name: "clients_admin"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Storage:  StorageConfig{Driver: "local", LocalDir: "data/uploads"},
		MinIO:    MinIOConfig{Endpoint: "localhost:9000", Bucket: "clients-admin"},
		Auth:     AuthConfig{ClientTokenTTL: "168h", AdminTokenTTL: "8h"},
		Mail:     MailConfig{Driver: "log", Port: 587},
		CORS:     CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}

	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// RedisAddr 返回 Redis 地址 host:port
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// IsDev 是否为开发环境
func (c *Config) IsDev() bool {
	return c.Env == EnvDevelopment
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（不含任何敏感信息）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Port: %s, DB: %s/%s, Storage: %s}",
		c.Env, c.Server.Port, c.Database.URI, c.Database.Name, c.Storage.Driver)
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
