package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 报告生成器
// 在会话目录下生成 reports/ 子目录, 保存JSON格式的爬取报告
type Reporter struct {
	sessionDir string
	domain     string
}

// NewReporter 创建报告生成器
func NewReporter(sessionDir string, domain string) *Reporter {
	return &Reporter{
		sessionDir: sessionDir,
		domain:     domain,
	}
}

// GenerateReport 生成爬取报告
func (r *Reporter) GenerateReport(
	task *models.CrawlTask,
	profileStats map[models.ProfileName]models.TaskStats,
	savedPages []*models.Page,
	failedPages []models.FailedPageInfo,
	diff *models.DiffAnalysisResult,
) error {
	reportsDir := filepath.Join(r.sessionDir, "reports")
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	// 转换成功页面列表
	pageInfos := make([]models.PageInfo, 0, len(savedPages))
	for _, page := range savedPages {
		if page.IsDuplicate {
			continue
		}
		pageInfos = append(pageInfos, models.PageInfo{
			URL:       page.URL,
			FilePath:  page.FilePath,
			Size:      page.Size,
			Hash:      page.Hash,
			Profile:   page.Profile,
			CrawlMode: page.CrawlMode,
			Depth:     page.Depth,
			FetchedAt: page.FetchedAt,
		})
	}

	startTime := task.CreatedAt
	if task.StartedAt != nil {
		startTime = *task.StartedAt
	}
	endTime := time.Now()
	if task.CompletedAt != nil {
		endTime = *task.CompletedAt
	}

	report := models.CrawlReport{
		TaskID:       task.ID,
		Domain:       task.Domain,
		RootURL:      task.RootURL,
		Mode:         task.Mode,
		Profiles:     task.Profiles,
		StartTime:    startTime,
		EndTime:      endTime,
		Duration:     task.Stats.Duration,
		Stats:        task.Stats,
		ProfileStats: profileStats,
		SavedPages:   pageInfos,
		FailedPages:  failedPages,
		DiffAnalysis: diff,
		OutputDir:    r.sessionDir,
		ReportPath:   filepath.Join(reportsDir, "crawl_report.json"),
		Config:       task.Config,
	}

	// 保存主报告
	if err := r.saveJSONReport(reportsDir, "crawl_report.json", report); err != nil {
		return err
	}

	// 保存成功页面列表
	if err := r.saveJSONReport(reportsDir, "saved_pages.json", pageInfos); err != nil {
		return err
	}

	// 保存失败页面列表
	if err := r.saveJSONReport(reportsDir, "failed_pages.json", failedPages); err != nil {
		return err
	}

	Infof("✅ 报告已生成: %s", reportsDir)
	return nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(dir string, filename string, data interface{}) error {
	path := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
