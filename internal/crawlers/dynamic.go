package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/efalkenberg/simplecrawler/internal/database"
	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/efalkenberg/simplecrawler/internal/storage"
	"github.com/efalkenberg/simplecrawler/internal/utils"
)

// 浏览器会话错误
var (
	ErrBrowserCrashed    = errors.New("浏览器崩溃")
	ErrMaxRetriesReached = errors.New("已达最大重试次数")
)

// DynamicCrawler 动态爬取器(使用Rod)
// 在真实浏览器中渲染页面后保存DOM,适用于JS渲染的站点
// 每个浏览器档案对应一个实例,标签页按档案注入UA和设备参数
type DynamicCrawler struct {
	browser *rod.Browser
	config  models.CrawlConfig
	rootURL string
	profile models.Profile

	// HTTP头部提供者
	agents models.AgentProvider

	// 页面存储
	store *storage.PageStore

	// 会话数据库 (可为nil)
	db        *database.CrawlDB
	sessionID string

	// 自适应标签页池
	pagePool        *PagePool
	resourceMonitor *ResourceMonitor
	urlQueue        *URLQueue
	extractor       *URLExtractor

	// 断点续爬时待恢复的已访问URL
	restoredVisited []string

	mu     sync.RWMutex
	pages  []*models.Page
	failed []models.FailedPageInfo
	stats  models.TaskStats

	// 浏览器会话管理
	browserRetryCount int
	maxBrowserRetries int

	// Worker活跃计数器(用于检测所有worker空闲)
	activeWorkers int32

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDynamicCrawler 创建动态爬取器
// resourceMonitor由调用方创建并在多个爬取器间共享
func NewDynamicCrawler(config models.CrawlConfig, rootURL string, profile models.Profile, agents models.AgentProvider, store *storage.PageStore, db *database.CrawlDB, sessionID string, resourceMonitor *ResourceMonitor) *DynamicCrawler {
	ctx, cancel := context.WithCancel(context.Background())

	return &DynamicCrawler{
		config:            config,
		rootURL:           rootURL,
		profile:           profile,
		agents:            agents,
		store:             store,
		db:                db,
		sessionID:         sessionID,
		resourceMonitor:   resourceMonitor,
		stats:             models.TaskStats{},
		browserRetryCount: 0,
		maxBrowserRetries: 3,
		ctx:               ctx,
		cancel:            cancel,
	}
}

// RestoreVisited 登记断点续爬时的已访问URL,在Crawl启动时恢复到队列
func (dc *DynamicCrawler) RestoreVisited(urls []string) {
	dc.restoredVisited = urls
}

// VisitedURLs 导出已访问URL列表 (写检查点用)
func (dc *DynamicCrawler) VisitedURLs() []string {
	if dc.urlQueue == nil {
		return nil
	}
	return dc.urlQueue.Visited()
}

// PendingURLs 取出队列中剩余的待爬URL (写检查点用,只应在爬取停止后调用)
func (dc *DynamicCrawler) PendingURLs() []models.URLItem {
	if dc.urlQueue == nil {
		return nil
	}
	return dc.urlQueue.DrainPending()
}

// Stop 取消爬取 (信号处理用)
func (dc *DynamicCrawler) Stop() {
	dc.cancel()
}

// Crawl 开始动态爬取
// seeds为入口URL列表: 全新爬取时只有根URL(深度1),断点续爬时为检查点中的待爬列表
// 浏览器崩溃时自动重启,最多重试3次
func (dc *DynamicCrawler) Crawl(seeds []models.URLItem) error {
	startTime := time.Now()

	if len(seeds) == 0 {
		return fmt.Errorf("入口URL列表为空,无法开始爬取")
	}
	for _, seed := range seeds {
		parsed, err := url.Parse(seed.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("入口URL格式无效: %s", seed.URL)
		}
	}

	utils.Infof("🌐 [%s] 动态爬取启动(自适应标签页池): %s (深度=%d, 等待=%d秒)",
		dc.profile.Name, dc.rootURL, dc.config.Depth, dc.config.WaitTime)

	// 队列在重试循环外创建,浏览器重启时保留已访问状态
	dc.urlQueue = NewURLQueue(dc.rootURL, dc.config.Depth)
	defer dc.urlQueue.Close()
	dc.extractor = NewURLExtractor(dc.urlQueue, dc.rootURL, dc.config.Depth)

	if len(dc.restoredVisited) > 0 {
		dc.urlQueue.RestoreVisited(dc.restoredVisited)
		utils.Infof("[%s] 恢复已访问URL %d 个", dc.profile.Name, len(dc.restoredVisited))
	}

	enqueued := 0
	for _, seed := range seeds {
		depth := seed.Depth
		if depth < 1 {
			depth = 1
		}
		if err := dc.urlQueue.Push(seed.URL, depth, seed.SourceURL); err != nil {
			utils.Warnf("入口URL入队失败 [%s]: %v", seed.URL, err)
			continue
		}
		enqueued++
	}
	if enqueued == 0 {
		return fmt.Errorf("所有入口URL均入队失败")
	}

	// 浏览器崩溃重试循环 (最多3次)
	for dc.browserRetryCount = 0; dc.browserRetryCount <= dc.maxBrowserRetries; dc.browserRetryCount++ {
		if err := dc.launchBrowser(); err != nil {
			utils.Errorf("浏览器启动失败(重试%d/%d): %v", dc.browserRetryCount, dc.maxBrowserRetries, err)
			if dc.browserRetryCount == dc.maxBrowserRetries {
				return fmt.Errorf("浏览器启动失败,已达最大重试次数: %w", err)
			}
			time.Sleep(2 * time.Second)
			continue
		}

		err := dc.crawlWithBrowser()
		dc.closeBrowser()

		if errors.Is(err, ErrBrowserCrashed) {
			dc.mu.Lock()
			dc.stats.BrowserRestarts++
			dc.mu.Unlock()
			utils.Warnf("浏览器崩溃,准备重启(重试%d/%d)", dc.browserRetryCount+1, dc.maxBrowserRetries)

			if dc.browserRetryCount == dc.maxBrowserRetries {
				return fmt.Errorf("浏览器崩溃,已达最大重试次数: %w", ErrMaxRetriesReached)
			}
			time.Sleep(2 * time.Second)
			continue
		}

		if err != nil {
			return err
		}
		break
	}

	dc.mu.Lock()
	dc.stats.Duration = time.Since(startTime).Seconds()
	stats := dc.stats
	dc.mu.Unlock()

	utils.Infof("✅ [%s] 动态爬取完成: 访问%d, 保存%d, 跳过%d, 失败%d, 耗时%.2f秒",
		dc.profile.Name, stats.VisitedURLs, stats.SavedPages, stats.SkippedPages,
		stats.FailedPages, stats.Duration)
	if stats.BrowserRestarts > 0 {
		utils.Infof("[%s] 浏览器重启次数: %d", dc.profile.Name, stats.BrowserRestarts)
	}

	return nil
}

// crawlWithBrowser 在浏览器实例中执行爬取逻辑
// 返回ErrBrowserCrashed表示浏览器崩溃,需要重启
func (dc *DynamicCrawler) crawlWithBrowser() (err error) {
	// 捕获panic,转换为ErrBrowserCrashed
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("浏览器操作panic: %v", r)
			err = ErrBrowserCrashed
		}
	}()

	// 标签页池在每次浏览器重启后重新创建,新标签页注入档案参数
	dc.pagePool = NewPagePool(dc.ctx, dc.browser, dc.resourceMonitor, dc.urlQueue, dc.setupPage)
	defer dc.pagePool.Close()

	// worker数量 = min(配置tabs, 资源限制)
	maxWorkers := dc.config.Tabs
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if limit := dc.resourceMonitor.CalculateMaxTabs(); limit < maxWorkers {
		maxWorkers = limit
	}

	utils.Debugf("[%s] 动态爬取worker启动: 数量=%d", dc.profile.Name, maxWorkers)

	adjustCtx, adjustCancel := context.WithCancel(dc.ctx)
	defer adjustCancel()

	// 每5秒根据队列长度调整标签页池大小
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-adjustCtx.Done():
				return
			case <-ticker.C:
				dc.pagePool.AdjustSize(dc.urlQueue.PendingCount())
			}
		}
	}()

	// 所有worker空闲且队列为空时关闭队列,让worker自然退出
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-adjustCtx.Done():
				return
			case <-ticker.C:
				activeCount := atomic.LoadInt32(&dc.activeWorkers)
				pendingCount := dc.urlQueue.PendingCount()

				if activeCount == 0 && pendingCount == 0 {
					utils.Debugf("检测到所有worker空闲且队列为空,关闭队列")
					dc.urlQueue.Close()
					return
				}
			}
		}
	}()

	var wg sync.WaitGroup
	atomic.StoreInt32(&dc.activeWorkers, int32(maxWorkers))

	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			dc.worker(workerID)
		}(i)
	}

	wg.Wait()
	return nil
}

// worker Worker goroutine,从队列拉取URL并爬取
func (dc *DynamicCrawler) worker(workerID int) {
	for {
		// 进入空闲状态(等待URL)
		atomic.AddInt32(&dc.activeWorkers, -1)

		item, ok := dc.urlQueue.Pop(dc.ctx)
		if !ok {
			// 队列已关闭或context取消
			return
		}

		// 进入工作状态
		atomic.AddInt32(&dc.activeWorkers, 1)

		dc.pagePool.AdjustSize(dc.urlQueue.PendingCount())

		if err := dc.crawlPage(item); err != nil {
			utils.Warnf("Worker %d 爬取失败 [%s]: %v", workerID, item.URL, err)
		}
	}
}

// launchBrowser 启动浏览器
func (dc *DynamicCrawler) launchBrowser() error {
	l := launcher.New().Headless(dc.config.Headless)

	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}

	dc.browser = rod.New().ControlURL(controlURL)
	if err := dc.browser.Connect(); err != nil {
		return fmt.Errorf("连接浏览器失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	return nil
}

// closeBrowser 关闭浏览器
func (dc *DynamicCrawler) closeBrowser() {
	if dc.browser != nil {
		dc.browser.MustClose()
		dc.browser = nil
		utils.Debugf("浏览器已关闭")
	}
}

// setupPage 新标签页初始化: 注入档案UA、设备参数和自定义头部
func (dc *DynamicCrawler) setupPage(page *rod.Page) error {
	// UA覆盖
	if err := (proto.NetworkSetUserAgentOverride{
		UserAgent: dc.profile.UserAgent,
	}).Call(page); err != nil {
		return fmt.Errorf("设置UA失败: %w", err)
	}

	// 设备参数模拟 (视口、缩放、移动端标记)
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             dc.profile.ViewportWidth,
		Height:            dc.profile.ViewportHeight,
		DeviceScaleFactor: dc.profile.DeviceScaleFactor,
		Mobile:            dc.profile.Mobile,
	}).Call(page); err != nil {
		return fmt.Errorf("设置设备参数失败: %w", err)
	}

	// 自定义HTTP头部 (UA已单独覆盖,跳过)
	if dc.agents != nil {
		headers, err := dc.agents.HeadersFor(dc.profile)
		if err != nil {
			utils.Warnf("获取HTTP头部失败: %v", err)
			return nil
		}
		var pairs []string
		for name, values := range headers {
			if strings.EqualFold(name, "User-Agent") || len(values) == 0 {
				continue
			}
			pairs = append(pairs, name, values[0])
		}
		if len(pairs) > 0 {
			if _, err := page.SetExtraHeaders(pairs); err != nil {
				utils.Warnf("设置额外头部失败: %v", err)
			}
		}
	}

	return nil
}

// crawlPage 爬取单个页面: 导航、等待渲染、保存DOM、提取链接
func (dc *DynamicCrawler) crawlPage(item models.URLItem) (err error) {
	pageURL := item.URL
	depth := item.Depth

	// rod的Must系列方法panic时在这里兜底,避免拖垮worker
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("页面爬取panic: %v", r)
			utils.Errorf("捕获panic: URL=%s, 深度=%d, 错误=%v", pageURL, depth, r)
			dc.recordFailure(pageURL, 0, depth, "panic", fmt.Sprintf("%v", r))
		}
	}()

	dc.urlQueue.MarkVisited(pageURL)
	dc.mu.Lock()
	dc.stats.VisitedURLs++
	dc.mu.Unlock()

	utils.Debugf("[%s] 访问页面: %s (深度: %d)", dc.profile.Name, pageURL, depth)

	page, pageErr := dc.pagePool.AcquirePage(dc.ctx)
	if pageErr != nil {
		utils.Errorf("获取标签页失败 [%s]: %v", pageURL, pageErr)
		dc.recordFailure(pageURL, 0, depth, "browser", pageErr.Error())
		return pageErr
	}
	defer dc.pagePool.ReleasePage(page)

	// 监听主文档响应,拿到真实的状态码和MIME类型
	// 浏览器会自动跟随重定向,这里记录的是最终文档的响应
	// 订阅只在本次导航期间有效,标签页是池复用的,残留订阅会堆积goroutine
	respCtx, respCancel := context.WithCancel(dc.ctx)
	defer respCancel()

	var respMu sync.Mutex
	docStatus := 0
	docMIME := ""
	go page.Context(respCtx).EachEvent(func(e *proto.NetworkResponseReceived) {
		if e.Type != proto.NetworkResourceTypeDocument {
			return
		}
		respMu.Lock()
		docStatus = e.Response.Status
		docMIME = e.Response.MIMEType
		respMu.Unlock()
	})()

	if navErr := page.Navigate(pageURL); navErr != nil {
		utils.Errorf("导航失败 [%s]: %v", pageURL, navErr)
		dc.recordFailure(pageURL, 0, depth, "navigation", navErr.Error())
		return navErr
	}

	if loadErr := page.WaitLoad(); loadErr != nil {
		utils.Errorf("等待页面加载失败 [%s]: %v", pageURL, loadErr)
		dc.recordFailure(pageURL, 0, depth, "load", loadErr.Error())
		return loadErr
	}

	// 额外等待时间(等待动态内容渲染)
	time.Sleep(time.Duration(dc.config.WaitTime) * time.Second)

	respCancel()
	respMu.Lock()
	status := docStatus
	mimeType := docMIME
	respMu.Unlock()

	// 未捕获到文档响应时(缓存命中等),按成功的HTML处理
	if status == 0 {
		status = 200
		mimeType = "text/html"
	}

	htmlContent, htmlErr := page.HTML()
	if htmlErr != nil {
		utils.Errorf("获取页面DOM失败 [%s]: %v", pageURL, htmlErr)
		dc.recordFailure(pageURL, status, depth, "dom", htmlErr.Error())
		return htmlErr
	}

	switch {
	case isCloudflareBlocked(status, []byte(htmlContent)):
		utils.Errorf("❌ [%s] Cloudflare拦截 [%s]: HTTP 403", dc.profile.Name, pageURL)
		dc.mu.Lock()
		dc.stats.BlockedPages++
		dc.failed = append(dc.failed, models.FailedPageInfo{
			URL:        pageURL,
			Profile:    dc.profile.Name,
			StatusCode: status,
			ErrorType:  "blocked",
			ErrorMsg:   "Cloudflare拦截页 (响应体含/cdn-cgi/)",
		})
		dc.mu.Unlock()
		dc.recordOutcome(pageURL, status, "", depth)
		return nil

	case status != 200:
		utils.Errorf("[%s] 无效状态码 [%s]: HTTP %d", dc.profile.Name, pageURL, status)
		dc.recordFailure(pageURL, status, depth, "http_error", fmt.Sprintf("HTTP %d", status))
		return nil

	case !isHTMLContent(mimeType):
		utils.Debugf("[%s] 跳过非HTML文档 [%s]: MIME=%q", dc.profile.Name, pageURL, mimeType)
		dc.mu.Lock()
		dc.stats.SkippedPages++
		dc.mu.Unlock()
		dc.recordOutcome(pageURL, status, mimeType, depth)
		return nil
	}

	dc.savePage(pageURL, []byte(htmlContent), mimeType, status, depth, item.SourceURL)

	// 提取页面链接(如果未达到最大深度)
	if depth < dc.config.Depth {
		if extractErr := dc.extractor.ExtractFromPage(page, depth, pageURL); extractErr != nil {
			utils.Warnf("提取链接失败 [%s]: %v", pageURL, extractErr)
		}
	}

	return nil
}

// savePage 持久化页面并登记元数据
func (dc *DynamicCrawler) savePage(pageURL string, content []byte, mimeType string, status int, depth int, sourceURL string) {
	pageModel := models.NewPage(pageURL, dc.profile.Name, models.ModeDynamic, depth)
	pageModel.ContentType = mimeType
	pageModel.StatusCode = status
	pageModel.SourceURL = sourceURL

	if err := dc.store.SavePage(pageModel, content); err != nil {
		utils.Errorf("[%s] 保存页面失败 [%s]: %v", dc.profile.Name, pageURL, err)
		dc.recordFailure(pageURL, status, depth, "save_error", err.Error())
		return
	}

	dc.mu.Lock()
	dc.pages = append(dc.pages, pageModel)
	if pageModel.IsDuplicate {
		dc.stats.DuplicatePages++
	} else {
		dc.stats.SavedPages++
		dc.stats.TotalSize += pageModel.Size
	}
	dc.mu.Unlock()

	if dc.db != nil {
		if err := dc.db.RecordPage(context.Background(), dc.sessionID, pageModel); err != nil {
			utils.Warnf("页面入库失败 [%s]: %v", pageURL, err)
		}
	}

	if pageModel.IsDuplicate {
		utils.Infof("♻️  [%s] 重复内容: %s", dc.profile.Name, pageURL)
	} else {
		utils.Infof("📥 [%s] 保存成功: %s (%d bytes)", dc.profile.Name, pageModel.FilePath, pageModel.Size)
	}
}

// recordFailure 记录失败页面并写入会话数据库
func (dc *DynamicCrawler) recordFailure(pageURL string, status int, depth int, errType, errMsg string) {
	dc.mu.Lock()
	dc.stats.FailedPages++
	dc.failed = append(dc.failed, models.FailedPageInfo{
		URL:        pageURL,
		Profile:    dc.profile.Name,
		StatusCode: status,
		ErrorType:  errType,
		ErrorMsg:   errMsg,
	})
	dc.mu.Unlock()
	dc.recordOutcome(pageURL, status, "", depth)
}

// recordOutcome 将未落盘的抓取结果也写入会话数据库
func (dc *DynamicCrawler) recordOutcome(pageURL string, status int, mimeType string, depth int) {
	if dc.db == nil {
		return
	}
	page := models.NewPage(pageURL, dc.profile.Name, models.ModeDynamic, depth)
	page.StatusCode = status
	page.ContentType = mimeType
	if err := dc.db.RecordPage(context.Background(), dc.sessionID, page); err != nil {
		utils.Warnf("抓取结果入库失败 [%s]: %v", pageURL, err)
	}
}

// GetStats 获取统计信息
func (dc *DynamicCrawler) GetStats() models.TaskStats {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.stats
}

// GetPages 获取已保存的页面列表
func (dc *DynamicCrawler) GetPages() []*models.Page {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	pages := make([]*models.Page, len(dc.pages))
	copy(pages, dc.pages)
	return pages
}

// GetFailed 获取失败页面列表
func (dc *DynamicCrawler) GetFailed() []models.FailedPageInfo {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	failed := make([]models.FailedPageInfo, len(dc.failed))
	copy(failed, dc.failed)
	return failed
}
