package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Point    PointConfig    `mapstructure:"point"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	// 为空时不写 outbox，也不推送积分变动事件
	PointChanged string `mapstructure:"point_changed"`
}

// PointConfig 积分核心配置
type PointConfig struct {
	// row | keyed | global | redis
	LockStrategy      string `mapstructure:"lock_strategy"`
	LockWaitTimeoutMs int    `mapstructure:"lock_wait_timeout_ms"`
	WorkerID          int64  `mapstructure:"worker_id"`
}

// LockWaitTimeout 单次变更等待锁的上限
func (c PointConfig) LockWaitTimeout() time.Duration {
	return time.Duration(c.LockWaitTimeoutMs) * time.Millisecond
}

type BusinessConfig struct {
	MaxRetryCount            int `mapstructure:"max_retry_count"`
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds"`
}

// ReconcileInterval 对账任务执行间隔
func (c BusinessConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("server.port", 8080)
	v.SetDefault("point.lock_strategy", "row")
	v.SetDefault("point.lock_wait_timeout_ms", 3000)
	v.SetDefault("point.worker_id", 1)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.reconcile_interval_seconds", 60)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if cfg.Point.LockWaitTimeoutMs <= 0 {
		return nil, fmt.Errorf("point.lock_wait_timeout_ms 必须大于0，当前: %d", cfg.Point.LockWaitTimeoutMs)
	}
	if cfg.Business.ReconcileIntervalSeconds <= 0 {
		return nil, fmt.Errorf("business.reconcile_interval_seconds 必须大于0，当前: %d", cfg.Business.ReconcileIntervalSeconds)
	}
	return cfg, nil
}
