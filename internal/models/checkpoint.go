package models

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Checkpoint 检查点
// 中断(Ctrl+C)时保存进度, 配合 --resume 恢复
type Checkpoint struct {
	// 任务信息
	TaskID  string `json:"task_id"` // 关联的任务ID
	Domain  string `json:"domain"`  // 目标域名
	RootURL string `json:"root_url"`

	// 进度信息(按档案分别记录)
	VisitedURLs map[string][]string  `json:"visited_urls"` // 档案名 -> 已访问URL列表
	PendingURLs map[string][]URLItem `json:"pending_urls"` // 档案名 -> 待处理URL列表(含深度)
	SavedHashes map[string][]string  `json:"saved_hashes"` // 档案名 -> 已保存内容的哈希(去重用)

	// 统计信息
	Stats TaskStats `json:"stats"` // 当前统计

	// 时间戳
	CreatedAt time.Time `json:"created_at"` // 检查点创建时间
	UpdatedAt time.Time `json:"updated_at"` // 最后更新时间

	// 配置快照
	Config CrawlConfig `json:"config"` // 配置快照
}

// CheckpointFilename 生成检查点文件名
func CheckpointFilename(domain string) string {
	return fmt.Sprintf("checkpoint_%s.json", domain)
}

// ToJSON 序列化为JSON
func (c *Checkpoint) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON 从JSON反序列化
func (c *Checkpoint) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}

// SaveToFile 保存到文件
func (c *Checkpoint) SaveToFile(filepath string) error {
	data, err := c.ToJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadCheckpointFromFile 从文件加载
func LoadCheckpointFromFile(filepath string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := cp.FromJSON(data); err != nil {
		return nil, err
	}

	return &cp, nil
}
