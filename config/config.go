package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	OSS       OSSConfig       `mapstructure:"oss"`
	AI        AIConfig        `mapstructure:"ai"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql 或 sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// RedisConfig 进度推送用，Host 为空时不启用
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// OSSConfig 报告产物存储，Endpoint 为空时落本地目录
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

// AIConfig AI 洞察服务配置，APIKey 为空时 AI 阶段直接降级
type AIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxCodeFiles   int    `mapstructure:"max_code_files"`
	MaxFileChars   int    `mapstructure:"max_file_chars"`
}

// PipelineConfig 流水线调度参数
type PipelineConfig struct {
	WorkspaceDir        string `mapstructure:"workspace_dir"`
	MaxConcurrent       int    `mapstructure:"max_concurrent"`         // 0 表示不限
	JobTimeoutMinutes   int    `mapstructure:"job_timeout_minutes"`    // 整个任务的时间预算
	StageTimeoutSeconds int    `mapstructure:"stage_timeout_seconds"`  // 单阶段默认超时
	CloneTimeoutSeconds int    `mapstructure:"clone_timeout_seconds"`  // 克隆阶段单独超时
	CloneMaxRetries     int    `mapstructure:"clone_max_retries"`
}

type ArtifactsConfig struct {
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// JobTimeout 任务整体时间预算，缺省 30 分钟
func (p PipelineConfig) JobTimeout() time.Duration {
	if p.JobTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(p.JobTimeoutMinutes) * time.Minute
}

// StageTimeout 阶段默认超时，缺省 120 秒
func (p PipelineConfig) StageTimeout() time.Duration {
	if p.StageTimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(p.StageTimeoutSeconds) * time.Second
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
