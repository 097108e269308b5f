package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"   // 待执行
	TaskStatusRunning   TaskStatus = "running"   // 执行中
	TaskStatusCompleted TaskStatus = "completed" // 已完成
	TaskStatusFailed    TaskStatus = "failed"    // 失败
	TaskStatusCancelled TaskStatus = "cancelled" // 已取消
)

// CrawlMode 爬取模式
type CrawlMode string

const (
	ModeAll     CrawlMode = "all"     // 静态+动态
	ModeStatic  CrawlMode = "static"  // 仅静态
	ModeDynamic CrawlMode = "dynamic" // 仅动态
)

// ParseCrawlMode 解析爬取模式字符串
func ParseCrawlMode(s string) (CrawlMode, error) {
	switch CrawlMode(s) {
	case ModeAll, ModeStatic, ModeDynamic:
		return CrawlMode(s), nil
	default:
		return "", fmt.Errorf("无效的爬取模式: %s (有效值: all, static, dynamic)", s)
	}
}

// TaskStats 任务统计
type TaskStats struct {
	VisitedURLs     int     `json:"visited_urls"`     // 已访问URL数
	SavedPages      int     `json:"saved_pages"`      // 已保存页面数
	SkippedPages    int     `json:"skipped_pages"`    // 跳过页面数(非HTML等)
	FailedPages     int     `json:"failed_pages"`     // 失败页面数
	BlockedPages    int     `json:"blocked_pages"`    // 被防护拦截页面数
	DuplicatePages  int     `json:"duplicate_pages"`  // 内容重复页面数
	RedirectPages   int     `json:"redirect_pages"`   // 重定向页面数(不跟随)
	TotalSize       int64   `json:"total_size"`       // 总大小(字节)
	Duration        float64 `json:"duration"`         // 总耗时(秒)
	BrowserRestarts int     `json:"browser_restarts"` // 浏览器重启次数
}

// Merge 合并另一份统计(多档案汇总时使用)
func (s *TaskStats) Merge(other TaskStats) {
	s.VisitedURLs += other.VisitedURLs
	s.SavedPages += other.SavedPages
	s.SkippedPages += other.SkippedPages
	s.FailedPages += other.FailedPages
	s.BlockedPages += other.BlockedPages
	s.DuplicatePages += other.DuplicatePages
	s.RedirectPages += other.RedirectPages
	s.TotalSize += other.TotalSize
	s.BrowserRestarts += other.BrowserRestarts
}

// CrawlConfig 爬取配置
type CrawlConfig struct {
	Depth               int     `json:"depth" mapstructure:"depth"`                                 // 爬取深度 (默认:3)
	WaitTime            int     `json:"wait_time" mapstructure:"wait_time"`                         // 页面等待时间(秒) (默认:3)
	MaxWorkers          int     `json:"max_workers" mapstructure:"max_workers"`                     // 静态爬取并发数 (默认:2)
	Tabs                int     `json:"tabs" mapstructure:"tabs"`                                   // 浏览器标签页数量 (默认:4)
	Headless            bool    `json:"headless" mapstructure:"headless"`                           // 无头模式 (默认:true)
	Resume              bool    `json:"resume" mapstructure:"-"`                                    // 是否从检查点恢复
	PreferredHost       string  `json:"preferred_host" mapstructure:"preferred_host"`               // 根URL主机前缀 (默认:www)
	PreferredProtocol   string  `json:"preferred_protocol" mapstructure:"preferred_protocol"`       // 根URL协议 (默认:https)
	SimilarityEnabled   bool    `json:"similarity_enabled" mapstructure:"enabled"`                  // 启用跨档案差异分析 (默认:true)
	SimilarityThreshold float64 `json:"similarity_threshold" mapstructure:"threshold"`              // 相似度阈值 (默认:0.8)
	SimilarityWorkers   int     `json:"similarity_workers" mapstructure:"workers"`                  // 差异分析并发数
	SafetyReserveMemory uint64  `json:"safety_reserve_memory" mapstructure:"safety_reserve_memory"` // 内存安全预留(字节)
	SafetyThreshold     float64 `json:"safety_threshold" mapstructure:"safety_threshold"`           // 内存使用率阈值
	CPULoadThreshold    float64 `json:"cpu_load_threshold" mapstructure:"cpu_load_threshold"`       // CPU负载阈值(%)
	MaxTabsLimit        int     `json:"max_tabs_limit" mapstructure:"max_tabs_limit"`               // 标签页硬上限
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.Depth < 1 || c.Depth > 10 {
		return fmt.Errorf("深度必须在1-10之间")
	}
	if c.WaitTime < 0 || c.WaitTime > 60 {
		return fmt.Errorf("等待时间必须在0-60秒之间")
	}
	if c.MaxWorkers < 1 || c.MaxWorkers > 100 {
		return fmt.Errorf("并发数必须在1-100之间")
	}
	if c.Tabs < 1 || c.Tabs > 20 {
		return fmt.Errorf("标签页数必须在1-20之间")
	}
	if c.SimilarityThreshold < 0.0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("相似度阈值必须在0.0-1.0之间")
	}
	if c.PreferredProtocol != "http" && c.PreferredProtocol != "https" {
		return fmt.Errorf("协议必须为http或https: %s", c.PreferredProtocol)
	}
	if c.PreferredHost == "" {
		return fmt.Errorf("主机前缀不能为空")
	}
	return nil
}

// RootURL 根据域名构造爬取入口URL
// 例如 domain="example.com" 返回 "https://www.example.com/"
func (c *CrawlConfig) RootURL(domain string) string {
	return fmt.Sprintf("%s://%s.%s/", c.PreferredProtocol, c.PreferredHost, domain)
}

// CrawlTask 单域名爬取任务
type CrawlTask struct {
	// 基本信息
	ID          string     `json:"id"`                     // 任务唯一ID (UUID)
	Domain      string     `json:"domain"`                 // 目标域名(不含协议和www前缀)
	RootURL     string     `json:"root_url"`               // 爬取入口URL
	CreatedAt   time.Time  `json:"created_at"`             // 创建时间
	StartedAt   *time.Time `json:"started_at,omitempty"`   // 开始时间
	CompletedAt *time.Time `json:"completed_at,omitempty"` // 完成时间

	// 配置参数
	Config CrawlConfig `json:"config"` // 爬取配置

	// 执行状态
	Status   TaskStatus    `json:"status"`   // 任务状态
	Mode     CrawlMode     `json:"mode"`     // 爬取模式
	Profiles []ProfileName `json:"profiles"` // 启用的用户代理档案

	// 统计信息
	Stats TaskStats `json:"stats"` // 任务统计

	// 错误信息
	ErrorMessage string `json:"error_message,omitempty"` // 错误消息
}

// NewCrawlTask 创建新任务
func NewCrawlTask(domain string, config CrawlConfig, profiles []ProfileName) (*CrawlTask, error) {
	if err := ValidateDomain(domain); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("至少需要启用一个用户代理档案")
	}

	return &CrawlTask{
		ID:        generateID(),
		Domain:    domain,
		RootURL:   config.RootURL(domain),
		CreatedAt: time.Now(),
		Config:    config,
		Status:    TaskStatusPending,
		Mode:      ModeStatic,
		Profiles:  profiles,
		Stats:     TaskStats{},
	}, nil
}

// ToJSON 序列化为JSON
func (t *CrawlTask) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// FromJSON 从JSON反序列化
func (t *CrawlTask) FromJSON(data []byte) error {
	return json.Unmarshal(data, t)
}

// BatchCrawlTask 批量爬取任务
type BatchCrawlTask struct {
	// 基本信息
	ID          string     `json:"id"`
	DomainsFile string     `json:"domains_file"` // 域名列表文件路径
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// 配置
	Config          CrawlConfig `json:"config"`            // 爬取配置
	BatchDelay      int         `json:"batch_delay"`       // 域名之间延迟(秒)
	ContinueOnError bool        `json:"continue_on_error"` // 遇到错误继续

	// 状态
	Status TaskStatus `json:"status"`

	// 统计
	TotalDomains      int   `json:"total_domains"`
	SuccessfulDomains int   `json:"successful_domains"`
	FailedDomains     int   `json:"failed_domains"`
	TotalPages        int   `json:"total_pages"`
	TotalSize         int64 `json:"total_size"`

	// 子任务
	SubTasks []string `json:"sub_tasks"` // 子任务ID列表
}

// NewBatchCrawlTask 创建批量任务
func NewBatchCrawlTask(domainsFile string, config CrawlConfig) *BatchCrawlTask {
	return &BatchCrawlTask{
		ID:          generateID(),
		DomainsFile: domainsFile,
		CreatedAt:   time.Now(),
		Config:      config,
		Status:      TaskStatusPending,
	}
}
