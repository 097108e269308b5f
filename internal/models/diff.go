package models

import "encoding/json"

// DiffAnalysisResult 跨档案内容差异分析结果
// 比较同一URL在不同用户代理档案下抓取到的页面内容
type DiffAnalysisResult struct {
	Enabled          bool    `json:"enabled"`
	Threshold        float64 `json:"threshold"`         // 相似度阈值
	ComparedURLs     int     `json:"compared_urls"`     // 参与比较的URL数
	IdenticalPages   int     `json:"identical_pages"`   // 内容完全一致的URL数
	DivergentCount   int     `json:"divergent_count"`   // 低于阈值的URL数
	AnalysisDuration float64 `json:"analysis_duration"` // 秒

	// 差异明细
	DivergentPages []DivergentPage `json:"divergent_pages"` // 内容差异显著的页面
}

// DivergentPage 跨档案内容差异显著的页面
type DivergentPage struct {
	URL        string      `json:"url"`        // 页面URL
	ProfileA   ProfileName `json:"profile_a"`  // 比较档案A
	ProfileB   ProfileName `json:"profile_b"`  // 比较档案B
	Similarity float64     `json:"similarity"` // Jaccard相似度
	SizeA      int64       `json:"size_a"`     // 档案A内容大小
	SizeB      int64       `json:"size_b"`     // 档案B内容大小
}

// ToJSON 序列化为JSON
func (r *DiffAnalysisResult) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
