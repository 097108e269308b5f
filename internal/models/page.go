package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// MaxPageSize 最大页面大小 50MB
	MaxPageSize = 50 * 1024 * 1024
)

// Page 已保存的HTML页面
type Page struct {
	// 标识信息
	ID       string `json:"id"`        // 页面唯一ID
	URL      string `json:"url"`       // 页面URL
	FilePath string `json:"file_path"` // 本地存储路径

	// 元数据
	Hash        string `json:"hash"`         // SHA-256哈希值
	Size        int64  `json:"size"`         // 内容大小(字节)
	ContentType string `json:"content_type"` // HTTP Content-Type
	StatusCode  int    `json:"status_code"`  // HTTP状态码

	// 来源信息
	Profile   ProfileName `json:"profile"`    // 使用的用户代理档案
	SourceURL string      `json:"source_url"` // 发现该页面的源页面URL
	CrawlMode CrawlMode   `json:"crawl_mode"` // 爬取模式(static/dynamic)
	Depth     int         `json:"depth"`      // 爬取深度

	// 状态标记
	IsDuplicate bool `json:"is_duplicate"` // 内容是否与已保存页面重复

	// 时间戳
	FetchedAt time.Time `json:"fetched_at"` // 抓取时间
}

// ValidateSize 验证页面大小
func (p *Page) ValidateSize() error {
	if p.Size <= 0 {
		return fmt.Errorf("页面大小必须大于0")
	}
	if p.Size > MaxPageSize {
		return fmt.Errorf("页面大小超过限制: %d > %d", p.Size, MaxPageSize)
	}
	return nil
}

// ToJSON 序列化为JSON
func (p *Page) ToJSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// NewPage 创建页面记录
func NewPage(url string, profile ProfileName, mode CrawlMode, depth int) *Page {
	return &Page{
		ID:        generateID(),
		URL:       url,
		Profile:   profile,
		CrawlMode: mode,
		Depth:     depth,
		FetchedAt: time.Now(),
	}
}
