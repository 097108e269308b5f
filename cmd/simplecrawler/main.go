package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/efalkenberg/simplecrawler/internal/core"
	"github.com/efalkenberg/simplecrawler/internal/models"
	"github.com/efalkenberg/simplecrawler/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件

	// 档案开关
	disableChromeMacos bool
	enableIOS          bool
	enableAndroid      bool

	// 爬取参数
	domainFile          string
	depth               int
	waitTime            int
	mode                string
	maxWorkers          int
	tabs                int
	headless            bool
	resume              bool
	similarityEnabled   bool
	similarityThreshold float64
	outputDir           string

	// 批量处理参数
	batchDelay      int
	continueOnError bool
)

var rootCmd = &cobra.Command{
	Use:   "simplecrawler <domain>",
	Short: "多档案站点镜像爬取工具",
	Long: `SimpleCrawler - 按浏览器档案镜像站点HTML页面的爬取工具

从 https://www.<domain>/ 开始按深度抓取站内页面,支持:
  • 静态(HTTP)和动态(真实浏览器渲染)两种爬取引擎
  • 桌面Chrome/iOS/Android三种浏览器档案,按档案分目录保存
  • 跨档案页面差异分析,发现按设备分化的内容
  • 断点续爬与会话数据库
  • 批量域名处理
  • 自定义HTTP请求头

使用示例:
  # 默认桌面档案静态爬取
  simplecrawler example.com

  # 追加移动端档案并做差异分析
  simplecrawler example.com --enable_ios --enable_android

  # 浏览器渲染模式
  simplecrawler example.com -m dynamic --tabs 4

  # 批量域名
  simplecrawler -f domains.txt --batch-delay 5

版本: ` + Version,
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose && logLevel == "" {
			logConfig.Level = "debug"
		}

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		appConfig, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 显式传入的命令行参数覆盖配置文件
		appConfig.MergeCLIFlags(cmd.Flags())
		if cmd.Flags().Changed("output_dir") {
			appConfig.Output.BaseDir = outputDir
			appConfig.Output.DatabaseDir = outputDir
		}

		// 创建档案管理器
		agentManager, err := core.NewAgentManager(appConfig.Output.AgentConfig, headers)
		if err != nil {
			return fmt.Errorf("创建档案管理器失败: %w", err)
		}

		// 配置验证模式
		if validateConfig {
			utils.Info("🔍 验证HTTP头部配置...")
			if err := agentManager.LoadConfig(); err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			if err := agentManager.Validate(); err != nil {
				return fmt.Errorf("配置验证失败: %w", err)
			}

			profile, _ := models.LookupProfile(string(models.ProfileDefault))
			safeHeaders := agentManager.GetSafeHeaders(profile)
			utils.Info("✅ 配置验证通过!")
			utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
			for name, value := range safeHeaders {
				utils.Infof("  %s: %s", name, value)
			}
			return nil
		}

		// 没有目标时显示帮助
		if len(args) == 0 && domainFile == "" {
			return cmd.Help()
		}

		if err := ValidateFlags(
			appConfig.Crawl.Depth,
			appConfig.Crawl.WaitTime,
			appConfig.Crawl.MaxWorkers,
			appConfig.Crawl.Tabs,
			appConfig.Similarity.Threshold,
			mode,
		); err != nil {
			return err
		}

		crawlMode, err := models.ParseCrawlMode(mode)
		if err != nil {
			return err
		}

		profiles, err := ResolveProfiles(disableChromeMacos, enableIOS, enableAndroid)
		if err != nil {
			return err
		}

		ctx := context.Background()

		// 批量处理模式
		if domainFile != "" {
			domains, err := utils.ReadDomainsFromFile(domainFile)
			if err != nil {
				return fmt.Errorf("读取域名文件失败: %w", err)
			}

			batchCrawler := core.NewBatchCrawler(appConfig, crawlMode, profiles, batchDelay, continueOnError, agentManager)
			if _, err := batchCrawler.CrawlBatch(ctx, domains); err != nil {
				return fmt.Errorf("批量爬取失败: %w", err)
			}

			utils.Info("✨ 批量爬取任务完成!")
			return nil
		}

		// 单域名爬取模式
		domain, err := ResolveDomain(args[0])
		if err != nil {
			return err
		}

		crawler, err := core.NewCrawler(domain, appConfig, crawlMode, profiles, agentManager)
		if err != nil {
			return fmt.Errorf("创建爬取器失败: %w", err)
		}

		if err := crawler.Crawl(ctx); err != nil {
			return fmt.Errorf("爬取失败: %w", err)
		}

		// 显示统计结果
		stats := crawler.Stats()
		fmt.Println("\n==================================================")
		fmt.Println("📊 爬取统计")
		fmt.Println("==================================================")
		fmt.Printf("✅ 访问URL数: %d\n", stats.VisitedURLs)
		fmt.Printf("✅ 保存页面数: %d\n", stats.SavedPages)
		fmt.Printf("⏭️  跳过页面数(非HTML): %d\n", stats.SkippedPages)
		fmt.Printf("🔁 重定向(未跟随): %d\n", stats.RedirectPages)
		fmt.Printf("🛡️  被拦截页面: %d\n", stats.BlockedPages)
		fmt.Printf("♻️  重复页面: %d\n", stats.DuplicatePages)
		fmt.Printf("❌ 失败页面: %d\n", stats.FailedPages)
		fmt.Printf("📦 总大小: %.2f MB\n", float64(stats.TotalSize)/(1024*1024))
		fmt.Printf("⏱️  总耗时: %.2f秒\n", stats.Duration)
		fmt.Println("==================================================")

		utils.Info("✨ 爬取任务完成!")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("SimpleCrawler %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Println("多档案站点镜像爬取工具")
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 档案开关
	rootCmd.Flags().BoolVar(&disableChromeMacos, "disable_chrome_macos", false, "禁用默认的桌面Chrome档案")
	rootCmd.Flags().BoolVar(&enableIOS, "enable_ios", false, "启用iOS Safari档案")
	rootCmd.Flags().BoolVar(&enableAndroid, "enable_android", false, "启用Android Chrome档案")

	// 爬取参数
	rootCmd.Flags().StringVarP(&domainFile, "domain-file", "f", "", "包含域名列表的文件路径")
	rootCmd.Flags().IntVarP(&depth, "depth", "d", 3, "爬取深度 (1-10)")
	rootCmd.Flags().IntVarP(&waitTime, "wait", "w", 3, "页面等待时间(秒)")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "static", "爬取模式 (static|dynamic|all)")
	rootCmd.Flags().IntVar(&maxWorkers, "threads", 2, "静态爬取并发线程数")
	rootCmd.Flags().IntVar(&tabs, "tabs", 4, "浏览器标签页数量")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "从检查点恢复")
	rootCmd.Flags().BoolVar(&similarityEnabled, "similarity", true, "启用跨档案差异分析")
	rootCmd.Flags().Float64Var(&similarityThreshold, "similarity-threshold", 0.8, "相似度阈值 (0.0-1.0)")
	rootCmd.Flags().StringVar(&outputDir, "output_dir", "data", "输出目录")

	// 批量处理参数
	rootCmd.Flags().IntVar(&batchDelay, "batch-delay", 1, "批量处理域名间延迟(秒)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
