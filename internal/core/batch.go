package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/efalkenberg/simplecrawler/internal/utils"
)

// BatchCrawler 批量爬取器
// 从域名列表文件逐个执行爬取任务,目标间可配置延迟
type BatchCrawler struct {
	appConfig     *Config
	mode          models.CrawlMode
	profiles      []models.ProfileName
	batchDelay    time.Duration
	continueOnErr bool
	agents        models.AgentProvider
}

// BatchResult 单个域名的爬取结果
type BatchResult struct {
	Domain      string
	Success     bool
	Error       error
	Stats       models.TaskStats
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量爬取摘要
type BatchSummary struct {
	TotalDomains  int
	SuccessCount  int
	FailCount     int
	TotalPages    int
	TotalSize     int64
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchCrawler 创建批量爬取器
func NewBatchCrawler(appConfig *Config, mode models.CrawlMode, profiles []models.ProfileName, batchDelay int, continueOnErr bool, agents models.AgentProvider) *BatchCrawler {
	return &BatchCrawler{
		appConfig:     appConfig,
		mode:          mode,
		profiles:      profiles,
		batchDelay:    time.Duration(batchDelay) * time.Second,
		continueOnErr: continueOnErr,
		agents:        agents,
	}
}

// CrawlBatch 批量爬取域名列表
// SIGINT/SIGTERM取消整个批次, 而不是只中断当前域名
func (bc *BatchCrawler) CrawlBatch(ctx context.Context, domains []string) (*BatchSummary, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	utils.Infof("🚀 开始批量爬取: %d个域名", len(domains))

	summary := &BatchSummary{
		TotalDomains: len(domains),
		Results:      make([]BatchResult, 0, len(domains)),
	}

	bar := utils.NewProgressBar(len(domains), "批量爬取")
	startTime := time.Now()

	for i, domain := range domains {
		if ctx.Err() != nil {
			utils.Warn("批量爬取被取消")
			break
		}

		utils.Infof("\n==================== [%d/%d] ====================", i+1, len(domains))
		utils.Infof("目标域名: %s", domain)

		result := bc.crawlSingleDomain(ctx, domain)
		summary.Results = append(summary.Results, result)
		_ = bar.Add(1)

		if result.Success {
			summary.SuccessCount++
			summary.TotalPages += result.Stats.SavedPages
			summary.TotalSize += result.Stats.TotalSize
		} else {
			summary.FailCount++
			utils.Errorf("❌ 爬取失败 [%s]: %v", domain, result.Error)

			if !bc.continueOnErr {
				utils.Warn("批量爬取中止 (--continue-on-error=false)")
				break
			}
		}

		// 目标间延迟(最后一个不需要), 中断时不等待
		if i < len(domains)-1 && bc.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个域名...", bc.batchDelay.Seconds())
			select {
			case <-ctx.Done():
			case <-time.After(bc.batchDelay):
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()
	bc.printSummary(summary)

	return summary, nil
}

// crawlSingleDomain 爬取单个域名
func (bc *BatchCrawler) crawlSingleDomain(ctx context.Context, domain string) BatchResult {
	result := BatchResult{
		Domain:      domain,
		ProcessedAt: time.Now(),
	}

	startTime := time.Now()

	crawler, err := NewCrawler(domain, bc.appConfig, bc.mode, bc.profiles, bc.agents)
	if err != nil {
		result.Error = fmt.Errorf("创建爬取器失败: %w", err)
		result.Duration = time.Since(startTime).Seconds()
		return result
	}

	if err := crawler.Crawl(ctx); err != nil {
		result.Error = fmt.Errorf("爬取失败: %w", err)
		result.Duration = time.Since(startTime).Seconds()
		return result
	}

	result.Success = true
	result.Stats = crawler.Stats()
	result.Duration = time.Since(startTime).Seconds()
	return result
}

// printSummary 打印批量爬取摘要
func (bc *BatchCrawler) printSummary(summary *BatchSummary) {
	utils.Info("\n==================================================")
	utils.Info("📊 批量爬取摘要")
	utils.Info("==================================================")
	utils.Infof("总域名数: %d", summary.TotalDomains)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("📄 总页面数: %d", summary.TotalPages)
	utils.Infof("📦 总大小: %.2f MB", float64(summary.TotalSize)/(1024*1024))
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("\n失败的域名:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", result.Domain, result.Error)
			}
		}
	}
}
