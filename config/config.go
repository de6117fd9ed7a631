package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	OSS        OSSConfig        `mapstructure:"oss"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Log        LogConfig        `mapstructure:"log"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Capability CapabilityConfig `mapstructure:"capability"`
	Models     ModelsConfig     `mapstructure:"models"`
	Generation GenerationConfig `mapstructure:"generation"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// JWTConfig 编排层调用内部 API 使用的服务令牌
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type QueueConfig struct {
	StepQueue          string `mapstructure:"step_queue"`
	MaxWorkers         int    `mapstructure:"max_workers"`
	PopTimeoutSeconds  int    `mapstructure:"pop_timeout_seconds"`
	MaxAttempts        int    `mapstructure:"max_attempts"`
	RetryBackoffMillis int    `mapstructure:"retry_backoff_millis"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"` // dev, prod
}

type PipelineConfig struct {
	StaleRunMinutes        int `mapstructure:"stale_run_minutes"`
	SweepIntervalSeconds   int `mapstructure:"sweep_interval_seconds"`
	VideoSampleRateSeconds int `mapstructure:"video_sample_rate_seconds"`
	MediaTimeoutSeconds    int `mapstructure:"media_timeout_seconds"`
	LockTimeoutSeconds     int `mapstructure:"lock_timeout_seconds"`
	RetentionDays          int `mapstructure:"retention_days"`
}

type CapabilityConfig struct {
	Provider       string `mapstructure:"provider"` // local_ai, gcp
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	WhisperModel   string `mapstructure:"whisper_model"`
}

type ModelsConfig struct {
	Provider          string `mapstructure:"provider"` // openai, gemini
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	PrimaryModel      string `mapstructure:"primary_model"`
	QualityModel      string `mapstructure:"quality_model"`
	EscalationEnabled bool   `mapstructure:"escalation_enabled"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

type GenerationConfig struct {
	MaxCandidates       int     `mapstructure:"max_candidates"`
	MinCandidates       int     `mapstructure:"min_candidates"`
	Temperature         float64 `mapstructure:"temperature"`
	RetryTemperature    float64 `mapstructure:"retry_temperature"`
	ContextTargetChars  int     `mapstructure:"context_target_chars"`
	ContextHardCapChars int     `mapstructure:"context_hard_cap_chars"`
	ContextTokenLimit   int     `mapstructure:"context_token_limit"`
	MaxOutputTokens     int     `mapstructure:"max_output_tokens"`
	MinOutputTokens     int     `mapstructure:"min_output_tokens"`
	EscalateMinAccepted int     `mapstructure:"escalate_min_accepted"`
	EscalateRejectRatio float64 `mapstructure:"escalate_reject_ratio"`
	EscalateGrounded    float64 `mapstructure:"escalate_grounded_ratio"`
	AutoPostThreshold   float64 `mapstructure:"auto_post_threshold"`
	MinSignalScore      int     `mapstructure:"min_signal_score"`
	HistoryLimit        int     `mapstructure:"history_limit"`
}

type PolicyConfig struct {
	BlockedTerms []string `mapstructure:"blocked_terms"`
	MaxAccepted  int      `mapstructure:"max_accepted"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load 读取配置文件并叠加环境变量
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

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults 填充缺省值并把阈值限制在合法区间
func (c *Config) ApplyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Queue.StepQueue == "" {
		c.Queue.StepQueue = "pipeline_steps"
	}
	if c.Queue.MaxWorkers <= 0 {
		c.Queue.MaxWorkers = 4
	}
	if c.Queue.PopTimeoutSeconds <= 0 {
		c.Queue.PopTimeoutSeconds = 5
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.RetryBackoffMillis <= 0 {
		c.Queue.RetryBackoffMillis = 500
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "dev"
	}

	if c.Pipeline.StaleRunMinutes <= 0 {
		c.Pipeline.StaleRunMinutes = 30
	}
	if c.Pipeline.SweepIntervalSeconds <= 0 {
		c.Pipeline.SweepIntervalSeconds = 60
	}
	if c.Pipeline.VideoSampleRateSeconds <= 0 {
		c.Pipeline.VideoSampleRateSeconds = 2
	}
	if c.Pipeline.MediaTimeoutSeconds <= 0 {
		c.Pipeline.MediaTimeoutSeconds = 30
	}
	if c.Pipeline.LockTimeoutSeconds <= 0 {
		c.Pipeline.LockTimeoutSeconds = 10
	}
	if c.Pipeline.RetentionDays <= 0 {
		c.Pipeline.RetentionDays = 90
	}

	if c.Capability.Provider == "" {
		c.Capability.Provider = "local_ai"
	}
	if c.Capability.BaseURL == "" {
		c.Capability.BaseURL = "http://127.0.0.1:8000"
	}
	if c.Capability.TimeoutSeconds <= 0 {
		c.Capability.TimeoutSeconds = 120
	}

	if c.Models.Provider == "" {
		c.Models.Provider = "openai"
	}
	if c.Models.TimeoutSeconds <= 0 {
		c.Models.TimeoutSeconds = 60
	}

	g := &c.Generation
	if g.MaxCandidates <= 0 {
		g.MaxCandidates = 8
	}
	if g.MinCandidates <= 0 {
		g.MinCandidates = 3
	}
	if g.Temperature <= 0 {
		g.Temperature = 0.7
	}
	if g.RetryTemperature <= 0 {
		g.RetryTemperature = g.Temperature - 0.1
	}
	if g.ContextTargetChars <= 0 {
		g.ContextTargetChars = 1300
	}
	if g.ContextHardCapChars <= 0 {
		g.ContextHardCapChars = 1800
	}
	if g.ContextTokenLimit <= 0 {
		g.ContextTokenLimit = 2048
	}
	if g.MaxOutputTokens <= 0 {
		g.MaxOutputTokens = 420
	}
	if g.MinOutputTokens <= 0 {
		g.MinOutputTokens = 160
	}
	if g.EscalateMinAccepted <= 0 {
		g.EscalateMinAccepted = 5
	}
	if g.EscalateRejectRatio <= 0 {
		g.EscalateRejectRatio = 0.45
	}
	if g.EscalateGrounded <= 0 {
		g.EscalateGrounded = 0.55
	}
	if g.AutoPostThreshold == 0 {
		g.AutoPostThreshold = 2.0
	}
	g.AutoPostThreshold = clampFloat(g.AutoPostThreshold, 0.5, 3.0)
	if g.MinSignalScore <= 0 {
		g.MinSignalScore = 3
	}
	if g.HistoryLimit <= 0 {
		g.HistoryLimit = 40
	}

	if c.Policy.MaxAccepted == 0 {
		c.Policy.MaxAccepted = 8
	}
	c.Policy.MaxAccepted = clampInt(c.Policy.MaxAccepted, 1, 20)

	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Authorization", "Content-Type"}
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "engage_go_server"
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
