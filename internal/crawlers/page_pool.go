package crawlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/efalkenberg/simplecrawler/internal/utils"
)

// PageSetupFunc 标签页初始化回调
// 每个新建标签页都会执行一次,用于注入UA和设备参数模拟
type PageSetupFunc func(page *rod.Page) error

// pageHealth 标签页健康状态
// 跟踪每个标签页的清理失败次数,用于重试和销毁决策
type pageHealth struct {
	cleanFailures   int       // 清理失败次数
	lastSuccessTime time.Time // 最后一次成功使用时间
	dirty           bool      // 清理失败2次后标记为脏
}

// PagePool 标签页池管理器
// 职责: 管理浏览器标签页的生命周期,动态调整数量,协调并发访问
type PagePool struct {
	browser         *rod.Browser
	setup           PageSetupFunc    // 新标签页初始化回调 (可为nil)
	pages           []*rod.Page      // 所有活跃的标签页
	availablePages  chan *rod.Page   // 可用标签页channel
	resourceMonitor *ResourceMonitor // 资源监控器
	urlQueue        *URLQueue        // URL队列引用
	mu              sync.Mutex       // 保护pages切片
	ctx             context.Context
	closed          bool

	health   map[*rod.Page]*pageHealth
	healthMu sync.RWMutex
}

// NewPagePool 创建标签页池实例
// setup在每个新建标签页上执行一次,传nil表示不做额外初始化
func NewPagePool(ctx context.Context, browser *rod.Browser, resourceMonitor *ResourceMonitor, urlQueue *URLQueue, setup PageSetupFunc) *PagePool {
	return &PagePool{
		browser:         browser,
		setup:           setup,
		pages:           make([]*rod.Page, 0),
		availablePages:  make(chan *rod.Page, 32), // buffered channel, 最多缓存32个
		resourceMonitor: resourceMonitor,
		urlQueue:        urlQueue,
		ctx:             ctx,
		closed:          false,
		health:          make(map[*rod.Page]*pageHealth),
	}
}

// createPage 创建并初始化一个新标签页
// 执行setup回调并登记健康状态
func (pp *PagePool) createPage() (*rod.Page, error) {
	page, err := pp.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		// 浏览器可能已崩溃或连接断开
		utils.Error(err, "创建标签页失败,浏览器可能已崩溃")
		return nil, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
	}

	if pp.setup != nil {
		if err := pp.setup(page); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("标签页初始化失败: %w", err)
		}
	}

	pp.mu.Lock()
	pp.pages = append(pp.pages, page)
	pp.mu.Unlock()

	pp.healthMu.Lock()
	pp.health[page] = &pageHealth{lastSuccessTime: time.Now()}
	pp.healthMu.Unlock()

	return page, nil
}

// AcquirePage 获取一个可用的标签页
// 优先复用池中标签页,不足且资源允许时创建新标签页
func (pp *PagePool) AcquirePage(ctx context.Context) (*rod.Page, error) {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil, fmt.Errorf("标签页池已关闭")
	}
	pp.mu.Unlock()

	// 尝试从可用池获取
	select {
	case page := <-pp.availablePages:
		return page, nil
	default:
		// 没有可用标签页,尝试创建新的
	}

	pp.mu.Lock()
	currentSize := len(pp.pages)
	pp.mu.Unlock()
	maxSize := pp.resourceMonitor.CalculateMaxTabs()

	if currentSize >= maxSize {
		// 已达上限,阻塞等待可用标签页
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case page := <-pp.availablePages:
			return page, nil
		}
	}

	// 检查资源可用性
	canCreate, reason := pp.resourceMonitor.CheckResourceAvailability()
	if !canCreate {
		utils.Warnf("资源不足,无法创建新标签页: %s", reason)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case page := <-pp.availablePages:
			return page, nil
		}
	}

	page, err := pp.createPage()
	if err != nil {
		return nil, err
	}

	utils.Debugf("创建新标签页,当前标签页数: %d, 最大限制: %d", pp.CurrentSize(), maxSize)
	return page, nil
}

// ReleasePage 归还标签页到池中
// 清理失败时执行重试策略: 首次重试,两次标脏,三次销毁
func (pp *PagePool) ReleasePage(page *rod.Page) {
	if page == nil {
		return
	}

	pp.healthMu.RLock()
	h, exists := pp.health[page]
	pp.healthMu.RUnlock()

	if !exists {
		// 没有健康记录的页面直接销毁
		utils.Warn("标签页没有健康记录,直接销毁")
		pp.destroyPage(page)
		return
	}

	if err := pp.cleanPage(page); err != nil {
		pp.healthMu.Lock()
		h.cleanFailures++
		failures := h.cleanFailures
		pp.healthMu.Unlock()

		utils.Warnf("清理标签页状态失败 (第%d次失败): %v", failures, err)

		switch failures {
		case 1:
			// 第一次失败: 立即重试一次
			if err := pp.cleanPage(page); err == nil {
				pp.healthMu.Lock()
				h.cleanFailures = 0
				h.lastSuccessTime = time.Now()
				h.dirty = false
				pp.healthMu.Unlock()
			} else {
				pp.healthMu.Lock()
				h.cleanFailures++
				pp.healthMu.Unlock()
				utils.Warnf("重试清理失败: %v", err)
			}
		case 2:
			// 第二次失败: 标记为脏但仍保留
			pp.healthMu.Lock()
			h.dirty = true
			pp.healthMu.Unlock()
			utils.Warn("标签页标记为脏状态(清理失败2次),下次失败将销毁")
		default:
			// 第三次失败: 销毁
			utils.Warn("清理失败超过3次,销毁该标签页")
			pp.destroyPage(page)
			return
		}
	} else {
		pp.healthMu.Lock()
		h.cleanFailures = 0
		h.lastSuccessTime = time.Now()
		h.dirty = false
		pp.healthMu.Unlock()
	}

	pp.mu.Lock()
	currentSize := len(pp.pages)
	pp.mu.Unlock()

	// 队列为空且标签页数>1时缩减
	if pp.urlQueue.PendingCount() == 0 && currentSize > 1 {
		pp.destroyPage(page)
		return
	}

	select {
	case pp.availablePages <- page:
		// 成功归还
	default:
		// channel已满,销毁该标签页
		pp.destroyPage(page)
	}
}

// cleanPage 清理标签页状态 (localStorage/sessionStorage/cookies)
func (pp *PagePool) cleanPage(page *rod.Page) error {
	_, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			if (typeof localStorage !== 'undefined' && localStorage !== null) {
				try { localStorage.clear(); } catch (e) {}
			}
			if (typeof sessionStorage !== 'undefined' && sessionStorage !== null) {
				try { sessionStorage.clear(); } catch (e) {}
			}
			if (typeof document !== 'undefined' && document !== null && document.cookie) {
				try {
					var cookies = document.cookie.split(";");
					for (var i = 0; i < cookies.length; i++) {
						var c = cookies[i];
						var eqPos = c.indexOf("=");
						var name = eqPos > -1 ? c.substr(0, eqPos) : c;
						document.cookie = name.replace(/^ +/, "") + "=;expires=Thu, 01 Jan 1970 00:00:00 UTC;path=/";
					}
				} catch (e) {}
			}
			return true;
		}`,
	})
	if err != nil {
		return fmt.Errorf("清理标签页状态失败: %w", err)
	}
	return nil
}

// destroyPage 销毁标签页
func (pp *PagePool) destroyPage(page *rod.Page) {
	pp.mu.Lock()
	for i, p := range pp.pages {
		if p == page {
			pp.pages = append(pp.pages[:i], pp.pages[i+1:]...)
			break
		}
	}
	remaining := len(pp.pages)
	pp.mu.Unlock()

	pp.healthMu.Lock()
	delete(pp.health, page)
	pp.healthMu.Unlock()

	if err := page.Close(); err != nil {
		utils.Warnf("关闭标签页失败: %v", err)
	}

	utils.Debugf("销毁标签页,当前标签页数: %d", remaining)
}

// AdjustSize 根据待爬URL数量和资源限制调整标签页池大小
func (pp *PagePool) AdjustSize(pendingURLCount int) {
	pp.mu.Lock()
	currentSize := len(pp.pages)
	pp.mu.Unlock()

	maxSize := pp.resourceMonitor.CalculateMaxTabs()

	// 待爬URL多于标签页且未达上限时扩容
	if pendingURLCount > currentSize && currentSize < maxSize {
		targetSize := pendingURLCount
		if targetSize > maxSize {
			targetSize = maxSize
		}

		for i := 0; i < targetSize-currentSize; i++ {
			canCreate, reason := pp.resourceMonitor.CheckResourceAvailability()
			if !canCreate {
				utils.Warnf("资源不足,无法创建更多标签页: %s", reason)
				break
			}

			page, err := pp.createPage()
			if err != nil {
				break
			}
			pp.availablePages <- page

			utils.Infof("当前标签页: %d, 待爬URL数: %d, 最大限制: %d", pp.CurrentSize(), pendingURLCount, maxSize)
		}
	}

	// 待爬URL为0且标签页数>1时缩减到1个
	if pendingURLCount == 0 && currentSize > 1 {
		pp.mu.Lock()
		toDestroy := pp.pages[1:] // 保留第一个
		pp.pages = pp.pages[:1]
		pp.mu.Unlock()

		for _, page := range toDestroy {
			pp.healthMu.Lock()
			delete(pp.health, page)
			pp.healthMu.Unlock()
			if err := page.Close(); err != nil {
				utils.Warnf("关闭标签页失败: %v", err)
			}
		}

		utils.Infof("爬取完成,缩减标签页至1个")
	}
}

// CurrentSize 返回当前标签页池的大小
func (pp *PagePool) CurrentSize() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.pages)
}

// MaxSize 返回当前允许的最大标签页数
func (pp *PagePool) MaxSize() int {
	return pp.resourceMonitor.CalculateMaxTabs()
}

// Close 关闭标签页池,释放所有资源
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pp.closed {
		return nil
	}

	for _, page := range pp.pages {
		if err := page.Close(); err != nil {
			utils.Warnf("关闭标签页失败: %v", err)
		}
	}

	pp.pages = nil
	pp.health = make(map[*rod.Page]*pageHealth)
	close(pp.availablePages)
	pp.closed = true

	utils.Info("标签页池已关闭")
	return nil
}
