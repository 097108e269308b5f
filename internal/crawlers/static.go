package crawlers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/efalkenberg/simplecrawler/internal/database"
	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/efalkenberg/simplecrawler/internal/storage"
	"github.com/efalkenberg/simplecrawler/internal/utils"
)

// StaticCrawler 静态爬取器(使用Colly)
// 每个浏览器档案对应一个实例,抓取结果按档案分目录保存
type StaticCrawler struct {
	collector *colly.Collector
	config    models.CrawlConfig
	rootURL   string
	profile   models.Profile

	// HTTP头部提供者 (档案UA + 配置头部 + CLI头部)
	agents models.AgentProvider

	// 页面存储
	store *storage.PageStore

	// 会话数据库 (可为nil, 此时不落库)
	db        *database.CrawlDB
	sessionID string

	// URL队列 (已访问标记 + 检查点导出)
	urlQueue *URLQueue

	// 链接提取器
	extractor *URLExtractor

	// 资源监控器 (跨档案共享)
	resourceMonitor *ResourceMonitor

	mu     sync.RWMutex
	pages  []*models.Page
	failed []models.FailedPageInfo
	stats  models.TaskStats
}

// NewStaticCrawler 创建静态爬取器
// resourceMonitor由调用方创建并在多个爬取器间共享
func NewStaticCrawler(config models.CrawlConfig, rootURL string, profile models.Profile, agents models.AgentProvider, store *storage.PageStore, db *database.CrawlDB, sessionID string, resourceMonitor *ResourceMonitor) *StaticCrawler {
	// HTTP超时时间直接使用配置的wait_time值(秒),最少10秒
	httpTimeout := time.Duration(config.WaitTime) * time.Second
	if httpTimeout < 10*time.Second {
		httpTimeout = 10 * time.Second
	}

	// 自定义HTTP客户端: 禁用TLS证书验证,不跟随重定向
	// 重定向响应原样返回,在OnResponse中按3xx计数
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // 允许自签名/过期证书站点
			},
		},
		Timeout: httpTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// 创建Colly collector
	// ParseHTTPErrorResponse: 非2xx响应也进入OnResponse,以便检查拦截页特征
	// AllowURLRevisit: 去重由urlQueue负责; colly自带的访问记录会在重定向检查时
	// 提前标记跳转目标,导致3xx响应进不了OnResponse
	c := colly.NewCollector(
		colly.Async(true),
		colly.ParseHTTPErrorResponse(),
		colly.AllowURLRevisit(),
	)
	c.SetClient(httpClient)
	c.SetRequestTimeout(30 * time.Second)

	// 不跟随重定向
	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	})

	// 初始并发数
	initialWorkers := config.MaxWorkers
	if initialWorkers < 1 {
		initialWorkers = 1
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: initialWorkers,
		Delay:       0, // 无延迟
	}); err != nil {
		utils.Warnf("设置并发限制失败: %v", err)
	}

	urlQueue := NewURLQueue(rootURL, config.Depth)

	sc := &StaticCrawler{
		collector:       c,
		config:          config,
		rootURL:         rootURL,
		profile:         profile,
		agents:          agents,
		store:           store,
		db:              db,
		sessionID:       sessionID,
		urlQueue:        urlQueue,
		extractor:       NewURLExtractor(urlQueue, rootURL, config.Depth),
		resourceMonitor: resourceMonitor,
		stats:           models.TaskStats{},
	}

	sc.setupCallbacks()
	return sc
}

// setupCallbacks 设置Colly回调
func (sc *StaticCrawler) setupCallbacks() {
	// 访问前: 注入档案头部,计数,调整并发
	sc.collector.OnRequest(func(r *colly.Request) {
		if sc.agents != nil {
			headers, err := sc.agents.HeadersFor(sc.profile)
			if err != nil {
				utils.Warnf("获取HTTP头部失败: %v", err)
			} else {
				for name, values := range headers {
					if len(values) > 0 {
						r.Headers.Set(name, values[0])
					}
				}
			}
		}

		utils.Debugf("[%s] 访问: %s", sc.profile.Name, r.URL.String())
		sc.urlQueue.MarkVisited(r.URL.String())
		sc.mu.Lock()
		sc.stats.VisitedURLs++
		sc.mu.Unlock()

		sc.adjustConcurrency()
	})

	// 响应处理: 状态码分流 + HTML持久化 + 链接提取
	sc.collector.OnResponse(func(r *colly.Response) {
		sc.handleResponse(r)
	})

	// 网络层错误 (超时、DNS失败、连接拒绝)
	// HTTP错误状态码已由ParseHTTPErrorResponse转入OnResponse
	sc.collector.OnError(func(r *colly.Response, err error) {
		utils.Errorf("[%s] 请求失败 [%s]: %v", sc.profile.Name, r.Request.URL, err)
		sc.mu.Lock()
		sc.stats.FailedPages++
		sc.failed = append(sc.failed, models.FailedPageInfo{
			URL:       r.Request.URL.String(),
			Profile:   sc.profile.Name,
			ErrorType: "network",
			ErrorMsg:  err.Error(),
		})
		sc.mu.Unlock()
		sc.recordOutcome(r.Request.URL.String(), r.StatusCode, "", r.Request.Depth)
	})
}

// handleResponse 处理单个HTTP响应
func (sc *StaticCrawler) handleResponse(r *colly.Response) {
	requestURL := r.Request.URL.String()
	depth := r.Request.Depth
	status := r.StatusCode

	switch {
	case status >= 300 && status < 400:
		// 不跟随重定向,只计数记录
		location := r.Headers.Get("Location")
		utils.Warnf("[%s] 重定向未跟随 [%s]: %d -> %s", sc.profile.Name, requestURL, status, location)
		sc.mu.Lock()
		sc.stats.RedirectPages++
		sc.failed = append(sc.failed, models.FailedPageInfo{
			URL:        requestURL,
			Profile:    sc.profile.Name,
			StatusCode: status,
			ErrorType:  "redirect",
			ErrorMsg:   fmt.Sprintf("重定向至 %s", location),
		})
		sc.mu.Unlock()
		sc.recordOutcome(requestURL, status, "", depth)
		return

	case isCloudflareBlocked(status, r.Body):
		utils.Errorf("❌ [%s] Cloudflare拦截 [%s]: HTTP 403", sc.profile.Name, requestURL)
		sc.mu.Lock()
		sc.stats.BlockedPages++
		sc.failed = append(sc.failed, models.FailedPageInfo{
			URL:        requestURL,
			Profile:    sc.profile.Name,
			StatusCode: status,
			ErrorType:  "blocked",
			ErrorMsg:   "Cloudflare拦截页 (响应体含/cdn-cgi/)",
		})
		sc.mu.Unlock()
		sc.recordOutcome(requestURL, status, "", depth)
		return

	case status != 200:
		utils.Errorf("[%s] 无效状态码 [%s]: HTTP %d", sc.profile.Name, requestURL, status)
		sc.mu.Lock()
		sc.stats.FailedPages++
		sc.failed = append(sc.failed, models.FailedPageInfo{
			URL:        requestURL,
			Profile:    sc.profile.Name,
			StatusCode: status,
			ErrorType:  "http_error",
			ErrorMsg:   fmt.Sprintf("HTTP %d", status),
		})
		sc.mu.Unlock()
		sc.recordOutcome(requestURL, status, "", depth)
		return
	}

	// 200: 只持久化HTML页面
	contentType := r.Headers.Get("Content-Type")
	if !isHTMLContent(contentType) {
		utils.Debugf("[%s] 跳过非HTML响应 [%s]: Content-Type=%q", sc.profile.Name, requestURL, contentType)
		sc.mu.Lock()
		sc.stats.SkippedPages++
		sc.mu.Unlock()
		sc.recordOutcome(requestURL, status, contentType, depth)
		return
	}

	// 解压响应体(如果有压缩)
	body := r.Body
	if encoding := r.Headers.Get("Content-Encoding"); encoding != "" {
		decompressed, err := decompressResponse(encoding, r.Body)
		if err != nil {
			utils.Warnf("解压响应失败 [%s] (编码=%s): %v", requestURL, encoding, err)
			// 解压失败,仍然尝试使用原始body
		} else {
			body = decompressed
		}
	}

	sc.savePage(requestURL, body, contentType, status, depth)

	// 提取并跟进站内链接
	links, err := sc.extractor.ExtractFromHTML(string(body))
	if err != nil {
		utils.Warnf("链接提取失败 [%s]: %v", requestURL, err)
		return
	}
	if depth >= sc.config.Depth {
		utils.Debugf("页面深度达到限制: %s (深度=%d, 限制=%d)", requestURL, depth, sc.config.Depth)
		return
	}
	for _, link := range links {
		if sc.urlQueue.IsVisited(link) {
			continue
		}
		if err := r.Request.Visit(link); err != nil {
			// AlreadyVisited等属于正常情况
			utils.Debugf("访问链接失败 [%s]: %v", link, err)
		}
	}
}

// savePage 持久化页面并登记元数据
func (sc *StaticCrawler) savePage(pageURL string, body []byte, contentType string, status int, depth int) {
	page := models.NewPage(pageURL, sc.profile.Name, models.ModeStatic, depth)
	page.ContentType = contentType
	page.StatusCode = status

	if err := sc.store.SavePage(page, body); err != nil {
		utils.Errorf("[%s] 保存页面失败 [%s]: %v", sc.profile.Name, pageURL, err)
		sc.mu.Lock()
		sc.stats.FailedPages++
		sc.failed = append(sc.failed, models.FailedPageInfo{
			URL:        pageURL,
			Profile:    sc.profile.Name,
			StatusCode: status,
			ErrorType:  "save_error",
			ErrorMsg:   err.Error(),
		})
		sc.mu.Unlock()
		sc.recordOutcome(pageURL, status, contentType, depth)
		return
	}

	sc.mu.Lock()
	sc.pages = append(sc.pages, page)
	if page.IsDuplicate {
		sc.stats.DuplicatePages++
	} else {
		sc.stats.SavedPages++
		sc.stats.TotalSize += page.Size
	}
	sc.mu.Unlock()

	if sc.db != nil {
		if err := sc.db.RecordPage(context.Background(), sc.sessionID, page); err != nil {
			utils.Warnf("页面入库失败 [%s]: %v", pageURL, err)
		}
	}

	if page.IsDuplicate {
		utils.Infof("♻️  [%s] 重复内容: %s", sc.profile.Name, pageURL)
	} else {
		utils.Infof("📥 [%s] 保存成功: %s (%d bytes)", sc.profile.Name, page.FilePath, page.Size)
	}
}

// recordOutcome 将未落盘的抓取结果 (重定向/拦截/错误/跳过) 也写入会话数据库
func (sc *StaticCrawler) recordOutcome(pageURL string, status int, contentType string, depth int) {
	if sc.db == nil {
		return
	}
	page := models.NewPage(pageURL, sc.profile.Name, models.ModeStatic, depth)
	page.StatusCode = status
	page.ContentType = contentType
	if err := sc.db.RecordPage(context.Background(), sc.sessionID, page); err != nil {
		utils.Warnf("抓取结果入库失败 [%s]: %v", pageURL, err)
	}
}

// RestoreVisited 恢复已访问URL集合 (断点续爬用)
func (sc *StaticCrawler) RestoreVisited(urls []string) {
	sc.urlQueue.RestoreVisited(urls)
}

// VisitedURLs 导出已访问URL列表 (写检查点用)
func (sc *StaticCrawler) VisitedURLs() []string {
	return sc.urlQueue.Visited()
}

// Crawl 开始爬取
// seeds为入口URL列表: 全新爬取时只有根URL,断点续爬时为检查点中的待爬列表
func (sc *StaticCrawler) Crawl(seeds []string) error {
	startTime := time.Now()

	utils.Infof("🔍 [%s] 静态爬取启动: %s (深度=%d, 并发=%d)",
		sc.profile.Name, sc.rootURL, sc.config.Depth, sc.config.MaxWorkers)

	visited := 0
	for _, seed := range seeds {
		if err := sc.collector.Visit(seed); err != nil {
			utils.Warnf("访问入口URL失败 [%s]: %v", seed, err)
			continue
		}
		visited++
	}
	if visited == 0 {
		return fmt.Errorf("所有入口URL均访问失败")
	}

	// 进度监控goroutine
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sc.mu.RLock()
				visitedCount := sc.stats.VisitedURLs
				savedCount := sc.stats.SavedPages
				failedCount := sc.stats.FailedPages
				sc.mu.RUnlock()

				utils.Infof("[%s] 进度: 已访问 %d 个URL, 已保存 %d 个页面, 失败 %d 个",
					sc.profile.Name, visitedCount, savedCount, failedCount)
			}
		}
	}()

	// 带超时的Wait,避免无限等待
	waitDone := make(chan struct{})
	go func() {
		sc.collector.Wait()
		close(waitDone)
	}()

	globalTimeout := 10 * time.Minute
	select {
	case <-waitDone:
		utils.Debugf("[%s] 静态爬取正常完成", sc.profile.Name)
	case <-time.After(globalTimeout):
		utils.Warnf("[%s] 静态爬取超时(等待%v),强制结束", sc.profile.Name, globalTimeout)
	}

	close(done)

	sc.mu.Lock()
	sc.stats.Duration = time.Since(startTime).Seconds()
	stats := sc.stats
	sc.mu.Unlock()

	utils.Infof("✅ [%s] 静态爬取完成: 访问%d, 保存%d, 跳过%d, 失败%d, 耗时%.2f秒",
		sc.profile.Name, stats.VisitedURLs, stats.SavedPages, stats.SkippedPages,
		stats.FailedPages, stats.Duration)

	return nil
}

// adjustConcurrency 动态调整并发数
// 并发数上限取资源监控计算值与配置MaxWorkers的较小者
func (sc *StaticCrawler) adjustConcurrency() {
	if sc.resourceMonitor == nil {
		return
	}

	maxTabs := sc.resourceMonitor.CalculateMaxTabs()
	optimalWorkers := sc.config.MaxWorkers
	if optimalWorkers < 1 {
		optimalWorkers = 1
	}
	if maxTabs < optimalWorkers {
		optimalWorkers = maxTabs
	}

	if err := sc.collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: optimalWorkers,
		Delay:       0,
	}); err != nil {
		utils.Warnf("更新并发限制失败: %v", err)
	}
}

// GetStats 获取统计信息
func (sc *StaticCrawler) GetStats() models.TaskStats {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.stats
}

// GetPages 获取已保存的页面列表
func (sc *StaticCrawler) GetPages() []*models.Page {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	pages := make([]*models.Page, len(sc.pages))
	copy(pages, sc.pages)
	return pages
}

// GetFailed 获取失败页面列表
func (sc *StaticCrawler) GetFailed() []models.FailedPageInfo {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	failed := make([]models.FailedPageInfo, len(sc.failed))
	copy(failed, sc.failed)
	return failed
}
