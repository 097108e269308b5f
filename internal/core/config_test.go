package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/efalkenberg/simplecrawler/internal/models"
)

// newCrawlFlagSet 与cmd注册的爬取参数保持一致
func newCrawlFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("crawl", pflag.ContinueOnError)
	flags.Int("depth", 3, "")
	flags.Int("wait", 3, "")
	flags.Int("threads", 2, "")
	flags.Int("tabs", 4, "")
	flags.Bool("headless", true, "")
	flags.Bool("resume", false, "")
	flags.Bool("similarity", true, "")
	flags.Float64("similarity-threshold", 0.8, "")
	return flags
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Crawl.Depth != 3 {
		t.Errorf("默认深度 = %v, want 3", config.Crawl.Depth)
	}
	if config.Crawl.WaitTime != 3 {
		t.Errorf("默认等待时间 = %v, want 3", config.Crawl.WaitTime)
	}
	if config.Crawl.MaxWorkers != 2 {
		t.Errorf("默认并发数 = %v, want 2", config.Crawl.MaxWorkers)
	}
	if config.Crawl.Tabs != 4 {
		t.Errorf("默认标签页数 = %v, want 4", config.Crawl.Tabs)
	}
	if !config.Crawl.Headless {
		t.Error("默认应启用无头模式")
	}
	if config.Crawl.PreferredHost != "www" {
		t.Errorf("默认主机前缀 = %v, want www", config.Crawl.PreferredHost)
	}
	if config.Crawl.PreferredProtocol != "https" {
		t.Errorf("默认协议 = %v, want https", config.Crawl.PreferredProtocol)
	}
	if !config.Similarity.Enabled {
		t.Error("默认应启用差异分析")
	}
	if config.Similarity.Threshold != 0.8 {
		t.Errorf("默认相似度阈值 = %v, want 0.8", config.Similarity.Threshold)
	}
	if config.Logging.Level != "info" {
		t.Errorf("默认日志级别 = %v, want info", config.Logging.Level)
	}
	if config.Output.BaseDir != "data" {
		t.Errorf("默认输出目录 = %v, want data", config.Output.BaseDir)
	}
	if !config.Output.EnableDB {
		t.Error("默认应启用会话数据库")
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `crawl:
  depth: 5
  wait_time: 1
logging:
  level: debug
output:
  base_dir: custom_out
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Crawl.Depth != 5 {
		t.Errorf("深度 = %v, want 5", config.Crawl.Depth)
	}
	if config.Crawl.WaitTime != 1 {
		t.Errorf("等待时间 = %v, want 1", config.Crawl.WaitTime)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("日志级别 = %v, want debug", config.Logging.Level)
	}
	if config.Output.BaseDir != "custom_out" {
		t.Errorf("输出目录 = %v, want custom_out", config.Output.BaseDir)
	}

	// 未覆盖的项仍使用默认值
	if config.Crawl.MaxWorkers != 2 {
		t.Errorf("未覆盖的并发数 = %v, want 2", config.Crawl.MaxWorkers)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("显式指定的配置文件不存在时应返回错误")
	}

	var configErr *models.ConfigError
	if !errors.As(err, &configErr) {
		t.Errorf("错误类型应为ConfigError, 实际: %T", err)
	}
}

func TestConfig_MergeCLIFlags(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	flags := newCrawlFlagSet()
	for name, value := range map[string]string{
		"depth":                "5",
		"wait":                 "10",
		"threads":              "8",
		"tabs":                 "6",
		"headless":             "false",
		"resume":               "true",
		"similarity":           "false",
		"similarity-threshold": "0.6",
	} {
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("设置参数%s失败: %v", name, err)
		}
	}
	config.MergeCLIFlags(flags)

	if config.Crawl.Depth != 5 {
		t.Errorf("Depth = %v, want 5", config.Crawl.Depth)
	}
	if config.Crawl.WaitTime != 10 {
		t.Errorf("WaitTime = %v, want 10", config.Crawl.WaitTime)
	}
	if config.Crawl.MaxWorkers != 8 {
		t.Errorf("MaxWorkers = %v, want 8", config.Crawl.MaxWorkers)
	}
	if config.Crawl.Tabs != 6 {
		t.Errorf("Tabs = %v, want 6", config.Crawl.Tabs)
	}
	if config.Crawl.Headless {
		t.Error("Headless应被覆盖为false")
	}
	if !config.Crawl.Resume {
		t.Error("Resume应被覆盖为true")
	}
	if config.Similarity.Enabled {
		t.Error("差异分析应被覆盖为禁用")
	}
	if config.Similarity.Threshold != 0.6 {
		t.Errorf("Threshold = %v, want 0.6", config.Similarity.Threshold)
	}
}

func TestConfig_MergeCLIFlags_DefaultsKeepConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `crawl:
  depth: 5
  headless: false
similarity:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	// 用户未显式传参时, 参数默认值不得覆盖配置文件
	config.MergeCLIFlags(newCrawlFlagSet())

	if config.Crawl.Depth != 5 {
		t.Errorf("未传参时Depth = %v, want 5 (配置文件值)", config.Crawl.Depth)
	}
	if config.Crawl.Headless {
		t.Error("未传参时Headless应保留配置文件的false")
	}
	if config.Similarity.Enabled {
		t.Error("未传参时差异分析应保留配置文件的禁用状态")
	}
}

func TestConfig_GetCrawlConfig(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	config.Similarity.Enabled = true
	config.Similarity.Threshold = 0.7
	config.Similarity.Workers = 16

	crawlConfig := config.GetCrawlConfig()

	// similarity段应回填到CrawlConfig
	if !crawlConfig.SimilarityEnabled {
		t.Error("SimilarityEnabled未回填")
	}
	if crawlConfig.SimilarityThreshold != 0.7 {
		t.Errorf("SimilarityThreshold = %v, want 0.7", crawlConfig.SimilarityThreshold)
	}
	if crawlConfig.SimilarityWorkers != 16 {
		t.Errorf("SimilarityWorkers = %v, want 16", crawlConfig.SimilarityWorkers)
	}

	// 回填后的配置应通过验证
	if err := crawlConfig.Validate(); err != nil {
		t.Errorf("默认配置验证失败: %v", err)
	}
}
