package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Slots    []string       `mapstructure:"slots"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Session  SessionConfig  `mapstructure:"session"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	Query    QueryConfig    `mapstructure:"query"`
}

// GatewayConfig HTTP 网关配置
type GatewayConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	Mode         string   `mapstructure:"mode"`          // local, production
	AllowOrigins []string `mapstructure:"allow_origins"` // 仪表盘 CORS 来源
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BridgeConfig 通道桥接进程配置
type BridgeConfig struct {
	URL            string        `mapstructure:"url"`            // 桥接 WebSocket 地址
	Token          string        `mapstructure:"token"`          // 桥接鉴权令牌
	StateDir       string        `mapstructure:"state_dir"`      // 凭据 blob 存放目录
	HandshakeWait  time.Duration `mapstructure:"handshake_wait"` // 连接握手超时
	CallTimeout    time.Duration `mapstructure:"call_timeout"`   // 单次 RPC 超时
	EventBufferLen int           `mapstructure:"event_buffer"`   // 每槽位事件队列长度
}

// SessionConfig 会话生命周期配置
type SessionConfig struct {
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"` // 重连最小间隔，防止紧循环
}

// BackfillConfig 历史回填配置
type BackfillConfig struct {
	Concurrency        int           `mapstructure:"concurrency"`          // 每槽位并发会话数 K
	PageSize           int           `mapstructure:"page_size"`            // 每页消息数
	MaxPerConversation int           `mapstructure:"max_per_conversation"` // 每会话硬上限
	ListRetries        int           `mapstructure:"list_retries"`         // 等待会话列表的重试次数
	ListRetryDelay     time.Duration `mapstructure:"list_retry_delay"`     // 重试间隔
}

// QueryConfig 查询限额配置
type QueryConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"` // 硬上限，客户端无法突破
}

// Load 加载配置
//
// 优先级 (低 → 高): 默认值 → 全局 ~/.chatmirror/config.yaml → 项目本地
// config.yaml → 环境变量 (MIRROR_*)
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Layer 1: 全局配置 ~/.chatmirror/config.yaml
	v.AddConfigPath(HomeDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	// Layer 2: 项目本地配置 (覆盖层)
	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break // 只取第一个找到的本地配置
		}
	}

	// 环境变量覆盖
	v.SetEnvPrefix("MIRROR")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Slots) == 0 {
		return nil, fmt.Errorf("no slots configured: set slots in config.yaml")
	}

	return &cfg, nil
}

// Path returns the config file viper actually loaded, falling back to the
// global location. Used by the tuning watcher.
func Path() string {
	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			return localPath
		}
	}
	return filepath.Join(HomeDir(), "config.yaml")
}

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	// Gateway 默认值
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 18790)
	v.SetDefault("gateway.mode", "local")
	v.SetDefault("gateway.allow_origins", []string{"*"})

	// Database 默认值
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(HomeDir(), "mirror.db"))

	// Log 默认值
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Bridge 默认值
	v.SetDefault("bridge.url", "ws://localhost:3001")
	v.SetDefault("bridge.state_dir", filepath.Join(HomeDir(), "credentials"))
	v.SetDefault("bridge.handshake_wait", "15s")
	v.SetDefault("bridge.call_timeout", "30s")
	v.SetDefault("bridge.event_buffer", 256)

	// Session 默认值
	v.SetDefault("session.reconnect_delay", "3s")

	// Backfill 默认值
	v.SetDefault("backfill.concurrency", 3)
	v.SetDefault("backfill.page_size", 50)
	v.SetDefault("backfill.max_per_conversation", 500)
	v.SetDefault("backfill.list_retries", 5)
	v.SetDefault("backfill.list_retry_delay", "2s")

	// Query 默认值
	v.SetDefault("query.default_limit", 50)
	v.SetDefault("query.max_limit", 200)
}
