package crawlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/efalkenberg/simplecrawler/internal/models"
)

// URLQueue URL队列管理器
// 职责: 管理待爬取和已访问的URL,支持并发安全的Push/Pop操作
//
// 爬取范围限定在入口URL前缀之内: 只有根相对链接和
// 以入口URL为前缀的绝对链接会被接受
type URLQueue struct {
	// 待处理URL队列
	pendingURLs chan models.URLItem

	// 已访问URL标记集合
	visitedURLs map[string]bool

	// 保护visitedURLs的读写锁
	mu sync.RWMutex

	// 爬取入口URL (形如 https://www.example.com/)
	rootURL string

	// 最大爬取深度
	maxDepth int

	// 队列是否已关闭
	closed bool
}

// NewURLQueue 创建URL队列实例
func NewURLQueue(rootURL string, maxDepth int) *URLQueue {
	return &URLQueue{
		pendingURLs: make(chan models.URLItem, 1000), // buffered channel,容量1000
		visitedURLs: make(map[string]bool),
		rootURL:     rootURL,
		maxDepth:    maxDepth,
		closed:      false,
	}
}

// RootURL 返回入口URL
func (q *URLQueue) RootURL() string {
	return q.rootURL
}

// InScope 判断URL是否在爬取范围内
// 规则: URL必须以入口URL为前缀 (或恰好等于去掉尾斜杠的入口URL)
func (q *URLQueue) InScope(urlStr string) bool {
	if strings.HasPrefix(urlStr, q.rootURL) {
		return true
	}
	return urlStr == strings.TrimSuffix(q.rootURL, "/")
}

// Push 添加URL到待爬队列
// 检查URL有效性、深度限制、范围过滤、已访问检查
func (q *URLQueue) Push(urlStr string, depth int, sourceURL string) error {
	// 检查队列是否已关闭
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("队列已关闭")
	}
	q.mu.RUnlock()

	// 检查URL有效性
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("URL格式无效: %w", err)
	}

	// 检查协议
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("不支持的协议: %s", parsedURL.Scheme)
	}

	// 检查深度限制
	if depth > q.maxDepth {
		return fmt.Errorf("深度超过限制: %d > %d", depth, q.maxDepth)
	}

	// 检查爬取范围
	if !q.InScope(urlStr) {
		return fmt.Errorf("超出爬取范围: %s (入口: %s)", urlStr, q.rootURL)
	}

	// 检查是否已访问
	q.mu.RLock()
	if q.visitedURLs[urlStr] {
		q.mu.RUnlock()
		return fmt.Errorf("URL已访问: %s", urlStr)
	}
	q.mu.RUnlock()

	// 添加到队列
	q.pendingURLs <- models.URLItem{
		URL:       urlStr,
		Depth:     depth,
		SourceURL: sourceURL,
	}

	return nil
}

// Pop 从队列中取出下一个待爬URL
// 从channel读取URL,支持context取消,阻塞等待
func (q *URLQueue) Pop(ctx context.Context) (models.URLItem, bool) {
	select {
	case <-ctx.Done():
		return models.URLItem{}, false
	case item, ok := <-q.pendingURLs:
		if !ok {
			// Channel已关闭
			return models.URLItem{}, false
		}
		return item, true
	}
}

// MarkVisited 标记URL为已访问
func (q *URLQueue) MarkVisited(urlStr string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.visitedURLs[urlStr] = true
}

// IsVisited 检查URL是否已访问
func (q *URLQueue) IsVisited(urlStr string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.visitedURLs[urlStr]
}

// Visited 导出已访问URL列表 (写检查点用)
func (q *URLQueue) Visited() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	result := make([]string, 0, len(q.visitedURLs))
	for u := range q.visitedURLs {
		result = append(result, u)
	}
	return result
}

// RestoreVisited 恢复已访问URL集合 (从检查点恢复用)
func (q *URLQueue) RestoreVisited(urls []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, u := range urls {
		q.visitedURLs[u] = true
	}
}

// PendingCount 返回当前待处理URL数量
func (q *URLQueue) PendingCount() int {
	return len(q.pendingURLs)
}

// DrainPending 取出队列中剩余的待处理URL (写检查点时使用)
// 调用后队列为空, 只应在爬取停止后调用
func (q *URLQueue) DrainPending() []models.URLItem {
	items := make([]models.URLItem, 0, len(q.pendingURLs))
	for {
		select {
		case item, ok := <-q.pendingURLs:
			if !ok {
				return items
			}
			items = append(items, item)
		default:
			return items
		}
	}
}

// Reset 清空队列,重置所有状态
// 为下一个爬取目标准备全新状态
func (q *URLQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	// 清空pending队列 (drain channel)
	for len(q.pendingURLs) > 0 {
		<-q.pendingURLs
	}

	// 清空visited集合
	q.visitedURLs = make(map[string]bool)
}

// Close 关闭队列,释放资源
// 关闭channel,后续Push调用返回错误
func (q *URLQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		close(q.pendingURLs)
		q.closed = true
	}
}
