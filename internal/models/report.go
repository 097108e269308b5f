package models

import (
	"encoding/json"
	"time"
)

// CrawlReport 爬取报告
type CrawlReport struct {
	// 任务信息
	TaskID   string        `json:"task_id"`
	Domain   string        `json:"domain"`
	RootURL  string        `json:"root_url"`
	Mode     CrawlMode     `json:"mode"`
	Profiles []ProfileName `json:"profiles"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Stats        TaskStats                 `json:"stats"`         // 汇总统计
	ProfileStats map[ProfileName]TaskStats `json:"profile_stats"` // 按档案统计

	// 页面列表
	SavedPages  []PageInfo       `json:"saved_pages"`  // 成功保存的页面
	FailedPages []FailedPageInfo `json:"failed_pages"` // 失败页面

	// 分析结果
	DiffAnalysis *DiffAnalysisResult `json:"diff_analysis,omitempty"`

	// 输出路径
	OutputDir  string `json:"output_dir"`  // 会话输出目录
	ReportPath string `json:"report_path"` // 报告文件路径

	// 配置快照
	Config CrawlConfig `json:"config"`
}

// PageInfo 页面信息
type PageInfo struct {
	URL       string      `json:"url"`
	FilePath  string      `json:"file_path"`
	Size      int64       `json:"size"`
	Hash      string      `json:"hash"`
	Profile   ProfileName `json:"profile"`
	CrawlMode CrawlMode   `json:"crawl_mode"`
	Depth     int         `json:"depth"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// FailedPageInfo 失败页面信息
type FailedPageInfo struct {
	URL        string      `json:"url"`
	Profile    ProfileName `json:"profile"`
	StatusCode int         `json:"status_code,omitempty"`
	ErrorType  string      `json:"error_type"` // timeout, network_error, blocked, http_error等
	ErrorMsg   string      `json:"error_msg"`
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *CrawlReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
