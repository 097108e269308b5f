package models

// URLItem 表示队列中的一个URL项
// 用途:
//   - 在channel中传递URL和深度信息
//   - 广度优先遍历时携带来源页面
//   - 写入检查点, 恢复时保留深度
type URLItem struct {
	// URL 完整的URL字符串
	URL string `json:"url"`

	// Depth URL的深度层级
	//   - 1: 入口URL
	//   - 2: 从入口页面发现的链接
	//   - 3: 从深度2页面发现的链接
	//   - 以此类推...
	Depth int `json:"depth"`

	// SourceURL 发现此URL的源页面(可选,用于调试)
	SourceURL string `json:"source_url,omitempty"`
}
