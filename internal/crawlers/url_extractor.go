package crawlers

import (
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"

	"github.com/efalkenberg/simplecrawler/internal/utils"
)

// URLExtractor URL提取器
// 职责: 从HTML内容或浏览器页面中提取站内链接并推入队列
//
// 链接判定规则基于原始href属性值:
//   - 以"/"开头的根相对链接 → 拼接入口URL
//   - 以入口URL开头的绝对链接 → 直接使用
//   - 其他 (相对路径、外站、javascript:、mailto:等) → 忽略
type URLExtractor struct {
	urlQueue *URLQueue // URL队列引用
	rootURL  string    // 爬取入口URL
	maxDepth int       // 最大深度
}

// NewURLExtractor 创建URL提取器实例
func NewURLExtractor(urlQueue *URLQueue, rootURL string, maxDepth int) *URLExtractor {
	return &URLExtractor{
		urlQueue: urlQueue,
		rootURL:  rootURL,
		maxDepth: maxDepth,
	}
}

// NormalizeHref 根据原始href属性值归一化为站内绝对URL
// 返回空字符串表示链接不在爬取范围内
func (e *URLExtractor) NormalizeHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "/") {
		// 根相对链接, 直接拼到入口URL后面
		return e.rootURL + strings.TrimPrefix(href, "/")
	}
	if strings.HasPrefix(href, e.rootURL) {
		return href
	}
	return ""
}

// ExtractFromHTML 从HTML文本中提取站内链接
// 返回归一化后的候选链接列表 (未去重判定,由调用方决定是否跟进)
func (e *URLExtractor) ExtractFromHTML(htmlContent string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("HTML解析失败: %w", err)
	}

	var links []string
	seen := make(map[string]bool) // 单页面内去重

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				link := e.NormalizeHref(attr.Val)
				if link != "" && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

// ExtractFromPage 从浏览器页面中提取链接并推入队列
// 在页面上下文执行JS收集所有a标签的原始href属性
func (e *URLExtractor) ExtractFromPage(page *rod.Page, currentDepth int, sourceURL string) error {
	// 深度检查: 已达最大深度则不再提取
	if currentDepth >= e.maxDepth {
		utils.Debugf("已达最大深度 %d,跳过链接提取: %s", e.maxDepth, sourceURL)
		return nil
	}

	// 提取原始href属性 (不用a.href,避免浏览器解析相对链接)
	result, err := page.Eval(`() => {
		const links = [];
		document.querySelectorAll('a[href]').forEach(a => {
			links.push(a.getAttribute('href'));
		});
		return links;
	}`)
	if err != nil {
		return fmt.Errorf("页面链接提取失败: %w", err)
	}

	extracted := 0
	for _, v := range result.Value.Arr() {
		link := e.NormalizeHref(v.Str())
		if link == "" {
			continue
		}
		if err := e.urlQueue.Push(link, currentDepth+1, sourceURL); err != nil {
			// 已访问/超范围/深度超限都是正常情况,不算错误
			continue
		}
		extracted++
	}

	if extracted > 0 {
		utils.Debugf("从 %s 提取到 %d 个新链接 (深度 %d)", sourceURL, extracted, currentDepth+1)
	}
	return nil
}

// PushLinks 将已归一化的链接批量推入队列 (静态爬取路径使用)
func (e *URLExtractor) PushLinks(links []string, currentDepth int, sourceURL string) int {
	if currentDepth >= e.maxDepth {
		return 0
	}
	pushed := 0
	for _, link := range links {
		if err := e.urlQueue.Push(link, currentDepth+1, sourceURL); err != nil {
			continue
		}
		pushed++
	}
	return pushed
}
