package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Storage struct {
		LocalDir string `mapstructure:"local_dir"`
	} `mapstructure:"storage"`
	Upstream struct {
		APIKey         string `mapstructure:"api_key"`
		APIBase        string `mapstructure:"api_base"`
		GenerationPath string `mapstructure:"generation_path"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"upstream"`
	Worker struct {
		Count     int `mapstructure:"count"`
		QueueSize int `mapstructure:"queue_size"`
	} `mapstructure:"worker"`
	Session struct {
		IdleMinutes int    `mapstructure:"idle_minutes"`
		SweepSpec   string `mapstructure:"sweep_spec"`
	} `mapstructure:"session"`
	Gallery struct {
		ThumbnailSize int `mapstructure:"thumbnail_size"`
	} `mapstructure:"gallery"`
}

var GlobalConfig Config

const (
	DefaultAPIBase        = "https://dashscope.aliyuncs.com"
	DefaultGenerationPath = "/api/v1/services/aigc/multimodal-generation/generation"
	DefaultTimeout        = 60 * time.Second
)

// UpstreamTimeout 返回生图请求的超时上限
func (c Config) UpstreamTimeout() time.Duration {
	if c.Upstream.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

// SessionIdle 返回会话空闲多久后被清理
func (c Config) SessionIdle() time.Duration {
	if c.Session.IdleMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Session.IdleMinutes) * time.Minute
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "data.db")
	v.SetDefault("storage.local_dir", "storage")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.api_base", DefaultAPIBase)
	v.SetDefault("upstream.generation_path", DefaultGenerationPath)
	v.SetDefault("upstream.timeout_seconds", int(DefaultTimeout/time.Second))
	v.SetDefault("worker.count", 4)
	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("session.idle_minutes", 120)
	v.SetDefault("session.sweep_spec", "@every 10m")
	v.SetDefault("gallery.thumbnail_size", 256)
}

// Load 读取配置文件与环境变量。configFile 为空时在 configs/ 与当前目录下查找 config.yaml
func Load(configFile string) (Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	// 支持环境变量
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 兼容旧的代理脚本使用的变量名
	_ = v.BindEnv("upstream.api_key", "UPSTREAM_API_KEY", "DASHSCOPE_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		if configFile != "" {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
		slog.Info("未找到配置文件，将使用环境变量或默认值", "error", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.Upstream.APIKey = strings.TrimSpace(cfg.Upstream.APIKey)
	return cfg, nil
}

// InitConfig 加载配置并写入 GlobalConfig
func InitConfig(configFile string) error {
	cfg, err := Load(configFile)
	if err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}
