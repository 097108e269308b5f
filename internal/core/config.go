package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/efalkenberg/simplecrawler/internal/models"
)

// Config 应用程序配置
type Config struct {
	Crawl      models.CrawlConfig `mapstructure:"crawl"`
	Logging    LoggingConfig      `mapstructure:"logging"`
	Output     OutputConfig       `mapstructure:"output"`
	Similarity SimilarityConfig   `mapstructure:"similarity"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir       string `mapstructure:"base_dir"`
	EnableDB      bool   `mapstructure:"enable_db"`
	DatabaseDir   string `mapstructure:"database_dir"`
	AgentConfig   string `mapstructure:"agent_config"`
	ReportEnabled bool   `mapstructure:"report_enabled"`
}

// SimilarityConfig 跨档案差异分析配置
type SimilarityConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Threshold float64 `mapstructure:"threshold"`
	Workers   int     `mapstructure:"workers"`
}

// LoadConfig 加载配置文件
// configPath为空时搜索默认位置,文件不存在时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".simplecrawler"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if configPath != "" {
				return nil, &models.ConfigError{FilePath: configPath, Cause: err}
			}
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 爬取配置默认值
	v.SetDefault("crawl.depth", 3)
	v.SetDefault("crawl.wait_time", 3)
	v.SetDefault("crawl.max_workers", 2)
	v.SetDefault("crawl.tabs", 4)
	v.SetDefault("crawl.headless", true)
	v.SetDefault("crawl.resume", false)
	v.SetDefault("crawl.preferred_host", "www")
	v.SetDefault("crawl.preferred_protocol", "https")
	v.SetDefault("crawl.enabled", true)
	v.SetDefault("crawl.threshold", 0.8)
	v.SetDefault("crawl.workers", 8)
	v.SetDefault("crawl.safety_reserve_memory", 500*1024*1024)
	v.SetDefault("crawl.safety_threshold", 0.85)
	v.SetDefault("crawl.cpu_load_threshold", 200)
	v.SetDefault("crawl.max_tabs_limit", 10)

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 输出配置默认值
	v.SetDefault("output.base_dir", "data")
	v.SetDefault("output.enable_db", true)
	v.SetDefault("output.database_dir", "data")
	v.SetDefault("output.agent_config", "configs/agents.yaml")
	v.SetDefault("output.report_enabled", true)

	// 差异分析默认值
	v.SetDefault("similarity.enabled", true)
	v.SetDefault("similarity.threshold", 0.8)
	v.SetDefault("similarity.workers", 8)
}

// GetCrawlConfig 从配置中提取爬取配置
// similarity独立段的值回填到CrawlConfig,便于整体传递
func (c *Config) GetCrawlConfig() models.CrawlConfig {
	cfg := c.Crawl
	cfg.SimilarityEnabled = c.Similarity.Enabled
	if c.Similarity.Threshold > 0 {
		cfg.SimilarityThreshold = c.Similarity.Threshold
	}
	if c.Similarity.Workers > 0 {
		cfg.SimilarityWorkers = c.Similarity.Workers
	}
	return cfg
}

// MergeCLIFlags 合并命令行参数到配置
// 只合并用户显式传入的参数, 参数默认值不覆盖配置文件
func (c *Config) MergeCLIFlags(flags *pflag.FlagSet) {
	if flags == nil {
		return
	}

	setInt := func(name string, dst *int) {
		if flags.Changed(name) {
			if v, err := flags.GetInt(name); err == nil {
				*dst = v
			}
		}
	}
	setBool := func(name string, dst *bool) {
		if flags.Changed(name) {
			if v, err := flags.GetBool(name); err == nil {
				*dst = v
			}
		}
	}

	setInt("depth", &c.Crawl.Depth)
	setInt("wait", &c.Crawl.WaitTime)
	setInt("threads", &c.Crawl.MaxWorkers)
	setInt("tabs", &c.Crawl.Tabs)
	setBool("headless", &c.Crawl.Headless)
	setBool("resume", &c.Crawl.Resume)
	setBool("similarity", &c.Similarity.Enabled)

	if flags.Changed("similarity-threshold") {
		if v, err := flags.GetFloat64("similarity-threshold"); err == nil && v > 0 {
			c.Similarity.Threshold = v
		}
	}
}
