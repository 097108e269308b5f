package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/efalkenberg/simplecrawler/internal/crawlers"
	"github.com/efalkenberg/simplecrawler/internal/database"
	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/efalkenberg/simplecrawler/internal/storage"
	"github.com/efalkenberg/simplecrawler/internal/utils"
)

// Crawler 主爬取协调器
// 职责: 会话目录、数据库、检查点、按档案调度静态/动态爬取、差异分析、报告生成
type Crawler struct {
	appConfig *Config
	config    models.CrawlConfig
	task      *models.CrawlTask
	agents    models.AgentProvider

	store   *storage.PageStore
	db      *database.CrawlDB
	monitor *crawlers.ResourceMonitor

	// 断点续爬时加载的检查点
	checkpoint *models.Checkpoint

	mu           sync.Mutex
	profileStats map[models.ProfileName]models.TaskStats
	allPages     []*models.Page
	allFailed    []models.FailedPageInfo

	// 各档案已访问URL和剩余待爬项 (写检查点用)
	visitedByProfile map[string][]string
	pendingByProfile map[string][]models.URLItem

	interrupted bool
}

// NewCrawler 创建主爬取协调器
func NewCrawler(domain string, appConfig *Config, mode models.CrawlMode, profiles []models.ProfileName, agents models.AgentProvider) (*Crawler, error) {
	crawlCfg := appConfig.GetCrawlConfig()

	task, err := models.NewCrawlTask(domain, crawlCfg, profiles)
	if err != nil {
		return nil, err
	}
	task.Mode = mode

	return &Crawler{
		appConfig:        appConfig,
		config:           crawlCfg,
		task:             task,
		agents:           agents,
		profileStats:     make(map[models.ProfileName]models.TaskStats),
		visitedByProfile: make(map[string][]string),
		pendingByProfile: make(map[string][]models.URLItem),
	}, nil
}

// Task 返回当前爬取任务
func (c *Crawler) Task() *models.CrawlTask {
	return c.task
}

// Crawl 执行爬取任务
// 流程: 会话准备 → 数据库登记 → 按档案逐一爬取 → 差异分析 → 报告 → 收尾
func (c *Crawler) Crawl(ctx context.Context) error {
	startTime := time.Now()
	now := startTime
	c.task.StartedAt = &now
	c.task.Status = models.TaskStatusRunning

	utils.Infof("🚀 开始爬取任务: %s", c.task.Domain)
	utils.Infof("入口URL: %s", c.task.RootURL)
	utils.Infof("爬取模式: %s, 档案: %v, 深度: %d", c.task.Mode, c.task.Profiles, c.config.Depth)

	if err := c.setupSession(); err != nil {
		c.fail(err)
		return err
	}
	defer c.teardownSession()

	// 资源监控贯穿整个任务
	c.monitor = crawlers.NewResourceMonitor(c.config)
	c.monitor.StartMonitoring(1 * time.Second)
	defer c.monitor.StopMonitoring()

	// SIGINT/SIGTERM时中断爬取并落检查点
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			utils.Warnf("⚠️  收到中断信号,停止爬取并保存检查点...")
			c.mu.Lock()
			c.interrupted = true
			c.mu.Unlock()
			cancel()
		case <-runCtx.Done():
		}
	}()

	// 按档案逐一爬取
	for _, profileName := range c.task.Profiles {
		if runCtx.Err() != nil {
			break
		}

		profile, err := models.LookupProfile(string(profileName))
		if err != nil {
			utils.Warnf("未知档案 %s, 跳过: %v", profileName, err)
			continue
		}

		if err := c.crawlProfile(runCtx, profile); err != nil {
			utils.Errorf("档案 %s 爬取失败: %v", profileName, err)
		}
	}

	c.task.Stats.Duration = time.Since(startTime).Seconds()

	// 跨档案差异分析
	var diff *models.DiffAnalysisResult
	if c.config.SimilarityEnabled && len(c.task.Profiles) > 1 && !c.isInterrupted() {
		analyzer := NewDiffAnalyzer(c.config.SimilarityThreshold, c.config.SimilarityWorkers)
		result, err := analyzer.Analyze(ctx, c.allPages)
		if err != nil {
			utils.Warnf("差异分析失败: %v", err)
		} else {
			diff = result
		}
	}

	// 生成报告
	if c.appConfig.Output.ReportEnabled {
		reporter := utils.NewReporter(c.store.SessionDir(), c.task.Domain)
		if err := reporter.GenerateReport(c.task, c.profileStats, c.allPages, c.allFailed, diff); err != nil {
			utils.Warnf("生成报告失败: %v", err)
		}
	}

	// 收尾: 中断时保存检查点,正常完成时清除旧检查点
	if c.isInterrupted() {
		if err := c.saveCheckpoint(); err != nil {
			utils.Errorf("保存检查点失败: %v", err)
		}
		c.finish(models.TaskStatusCancelled)
		return fmt.Errorf("爬取被中断,检查点已保存")
	}

	c.removeCheckpoint()
	c.finish(models.TaskStatusCompleted)

	utils.Infof("✅ 爬取任务完成: 访问%d, 保存%d, 跳过%d, 失败%d, 总大小%d bytes, 耗时%.2f秒",
		c.task.Stats.VisitedURLs, c.task.Stats.SavedPages, c.task.Stats.SkippedPages,
		c.task.Stats.FailedPages, c.task.Stats.TotalSize, c.task.Stats.Duration)

	return nil
}

// crawlProfile 用单个档案执行配置的爬取模式
func (c *Crawler) crawlProfile(ctx context.Context, profile models.Profile) error {
	profileKey := string(profile.Name)
	utils.Infof("👤 档案 %s 爬取开始", profile.Name)

	stats := models.TaskStats{}

	// 断点续爬: 该档案的已访问和待爬列表
	var resumeVisited []string
	var resumePending []models.URLItem
	if c.checkpoint != nil {
		resumeVisited = c.checkpoint.VisitedURLs[profileKey]
		resumePending = c.checkpoint.PendingURLs[profileKey]
	}

	runStatic := c.task.Mode == models.ModeStatic || c.task.Mode == models.ModeAll
	runDynamic := c.task.Mode == models.ModeDynamic || c.task.Mode == models.ModeAll

	if runStatic && ctx.Err() == nil {
		sc := crawlers.NewStaticCrawler(c.config, c.task.RootURL, profile, c.agents, c.store, c.db, c.task.ID, c.monitor)
		if len(resumeVisited) > 0 {
			sc.RestoreVisited(resumeVisited)
		}

		// colly的深度从入口重新计数, 恢复的待爬URL按新入口处理
		seeds := []string{c.task.RootURL}
		if len(resumePending) > 0 {
			seeds = seeds[:0]
			for _, item := range resumePending {
				seeds = append(seeds, item.URL)
			}
		}

		if err := sc.Crawl(seeds); err != nil {
			utils.Warnf("[%s] 静态爬取失败: %v", profile.Name, err)
		}

		stats.Merge(sc.GetStats())
		c.collect(profileKey, sc.GetPages(), sc.GetFailed(), sc.VisitedURLs(), nil)
	}

	if runDynamic && ctx.Err() == nil {
		dc := crawlers.NewDynamicCrawler(c.config, c.task.RootURL, profile, c.agents, c.store, c.db, c.task.ID, c.monitor)
		if len(resumeVisited) > 0 {
			dc.RestoreVisited(resumeVisited)
		}

		// 中断信号传导到worker
		stopDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				dc.Stop()
			case <-stopDone:
			}
		}()

		// 检查点里的待爬项保留了原始深度, 恢复后从中断处继续
		seeds := []models.URLItem{{URL: c.task.RootURL, Depth: 1}}
		if len(resumePending) > 0 {
			seeds = resumePending
		}

		err := dc.Crawl(seeds)
		close(stopDone)
		if err != nil {
			utils.Warnf("[%s] 动态爬取失败: %v", profile.Name, err)
		}

		stats.Merge(dc.GetStats())
		c.collect(profileKey, dc.GetPages(), dc.GetFailed(), dc.VisitedURLs(), dc.PendingURLs())
	}

	c.mu.Lock()
	merged := c.profileStats[profile.Name]
	merged.Merge(stats)
	c.profileStats[profile.Name] = merged
	c.mu.Unlock()
	c.task.Stats.Merge(stats)

	utils.Infof("👤 档案 %s 爬取结束: 访问%d, 保存%d, 失败%d",
		profile.Name, stats.VisitedURLs, stats.SavedPages, stats.FailedPages)
	return nil
}

// collect 汇总单次爬取的结果
func (c *Crawler) collect(profileKey string, pages []*models.Page, failed []models.FailedPageInfo, visited []string, pending []models.URLItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.allPages = append(c.allPages, pages...)
	c.allFailed = append(c.allFailed, failed...)
	c.visitedByProfile[profileKey] = append(c.visitedByProfile[profileKey], visited...)
	if len(pending) > 0 {
		c.pendingByProfile[profileKey] = append(c.pendingByProfile[profileKey], pending...)
	}
}

// setupSession 准备会话目录、数据库和检查点
func (c *Crawler) setupSession() error {
	baseDir := c.appConfig.Output.BaseDir

	// 断点续爬: 复用最近一次会话目录并加载检查点
	if c.config.Resume {
		sessionDir, err := storage.LatestSessionDir(baseDir)
		if err != nil {
			utils.Warnf("未找到可恢复的会话,按全新任务开始: %v", err)
		} else {
			cpPath := filepath.Join(sessionDir, models.CheckpointFilename(c.task.Domain))
			cp, err := models.LoadCheckpointFromFile(cpPath)
			if err != nil {
				utils.Warnf("加载检查点失败,按全新任务开始: %v", err)
			} else {
				store, err := storage.OpenPageStore(baseDir, sessionDir)
				if err != nil {
					return fmt.Errorf("打开会话目录失败: %w", err)
				}
				store.RestoreHashes(cp.SavedHashes)
				c.store = store
				c.checkpoint = cp
				c.task.Stats.Merge(cp.Stats)
				utils.Infof("♻️  从检查点恢复: %s (已访问%d个档案的URL)", cpPath, len(cp.VisitedURLs))
			}
		}
	}

	if c.store == nil {
		store, err := storage.NewPageStore(baseDir)
		if err != nil {
			return fmt.Errorf("创建会话目录失败: %w", err)
		}
		c.store = store
	}

	// 会话数据库
	if c.appConfig.Output.EnableDB {
		db, err := database.Open(c.appConfig.Output.DatabaseDir, database.Options{
			CreateIfNotExists: true,
			EnableWAL:         true,
		})
		if err != nil {
			utils.Warnf("打开会话数据库失败,本次任务不落库: %v", err)
		} else {
			c.db = db
			if err := db.InsertSession(context.Background(), c.task, c.store.SessionDir()); err != nil {
				utils.Warnf("会话登记失败: %v", err)
			}
		}
	}

	return nil
}

// teardownSession 关闭会话资源
func (c *Crawler) teardownSession() {
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			utils.Warnf("关闭数据库失败: %v", err)
		}
	}
}

// saveCheckpoint 将当前进度写入检查点文件
func (c *Crawler) saveCheckpoint() error {
	c.mu.Lock()
	cp := &models.Checkpoint{
		TaskID:      c.task.ID,
		Domain:      c.task.Domain,
		RootURL:     c.task.RootURL,
		VisitedURLs: c.visitedByProfile,
		PendingURLs: c.pendingByProfile,
		SavedHashes: c.store.SavedHashes(),
		Stats:       c.task.Stats,
		Config:      c.config,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	c.mu.Unlock()

	path := filepath.Join(c.store.SessionDir(), models.CheckpointFilename(c.task.Domain))
	if err := cp.SaveToFile(path); err != nil {
		return err
	}
	utils.Infof("💾 检查点已保存: %s", path)
	return nil
}

// removeCheckpoint 任务正常完成后清除检查点文件
func (c *Crawler) removeCheckpoint() {
	path := filepath.Join(c.store.SessionDir(), models.CheckpointFilename(c.task.Domain))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		utils.Warnf("清除检查点失败: %v", err)
	}
}

// isInterrupted 判断任务是否已被中断
func (c *Crawler) isInterrupted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupted
}

// finish 标记任务结束状态并更新数据库
func (c *Crawler) finish(status models.TaskStatus) {
	now := time.Now()
	c.task.CompletedAt = &now
	c.task.Status = status

	if c.db != nil {
		if err := c.db.FinishSession(context.Background(), c.task.ID, status, c.task.Stats); err != nil {
			utils.Warnf("更新会话状态失败: %v", err)
		}
	}
}

// fail 标记任务失败
func (c *Crawler) fail(err error) {
	c.task.ErrorMessage = err.Error()
	c.finish(models.TaskStatusFailed)
}

// Stats 返回当前任务的累计统计
func (c *Crawler) Stats() models.TaskStats {
	return c.task.Stats
}

// ProfileStats 返回按档案汇总的统计
func (c *Crawler) ProfileStats() map[models.ProfileName]models.TaskStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make(map[models.ProfileName]models.TaskStats, len(c.profileStats))
	for name, stats := range c.profileStats {
		result[name] = stats
	}
	return result
}
