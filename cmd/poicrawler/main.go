package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/core"
	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	logLevel   string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 引擎参数
	mode           string
	rateLimit      float64
	maxConcurrency int
	timeout        time.Duration
	retryAttempts  int
	headless       bool
	respectRobots  bool
	allowSynthetic bool
	enrichDetails  bool

	// 运行开关
	dryRun      bool
	noCache     bool
	metricsAddr string

	// crawl 参数
	city      string
	country   string
	types     []string
	startDate string
	endDate   string

	// batch / schedule 参数
	citiesFile      string
	cities          []string
	cityDelay       time.Duration
	continueOnError bool
	reportDir       string
	cronSpec        string
	runNow          bool
)

// appConfig 在 PersistentPreRunE 中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "poicrawler",
	Short: "城市活动与景点抓取工具",
	Long: `poicrawler - 城市活动与景点抓取工具

按城市从公开的活动和景点列表页抓取数据,归一化后写入PostgreSQL:
  • 动态(无头浏览器)和静态(HTTP)两种抓取模式
  • 限速、重试和 robots.txt 检查
  • 基于Redis的抓取缓存
  • 按 (标题, 城市, 类型) 去重写入
  • 批量城市和定时抓取

示例:
  poicrawler crawl --city Mumbai --types event --start 2025-01-01 --end 2025-01-31
  poicrawler batch --cities-file cities.txt --report-dir reports
  poicrawler schedule --cities Mumbai,Delhi --cron "0 */6 * * *"
  poicrawler stats

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := ValidateMode(mode); err != nil {
			return err
		}

		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		config.MergeCLIFlags(cliOverrides(cmd))
		if err := config.Validate(); err != nil {
			return fmt.Errorf("配置无效: %w", err)
		}

		if err := utils.InitLogger(config.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateConfig {
			return runValidateConfig()
		}
		return cmd.Help()
	},
}

// cliOverrides 只收集用户显式指定的参数
func cliOverrides(cmd *cobra.Command) core.CLIOverrides {
	o := core.NewCLIOverrides()
	flags := cmd.Flags()

	o.Mode = mode
	o.RateLimit = rateLimit
	o.MaxConcurrency = maxConcurrency
	o.Timeout = timeout
	o.LogLevel = logLevel
	o.ReportDir = reportDir
	o.MetricsAddr = metricsAddr

	if flags.Changed("retries") {
		o.RetryAttempts = retryAttempts
	}
	if flags.Changed("city-delay") {
		o.CityDelay = cityDelay
	}
	if flags.Changed("headless") {
		o.Headless = &headless
	}
	if flags.Changed("respect-robots") {
		o.RespectRobots = &respectRobots
	}
	if flags.Changed("allow-synthetic") {
		o.AllowSynthetic = &allowSynthetic
	}
	if flags.Changed("enrich") {
		o.EnrichDetails = &enrichDetails
	}
	return o
}

// runValidateConfig 验证头部配置并打印脱敏后的结果
func runValidateConfig() error {
	utils.Info("🔍 验证HTTP头部配置...")
	hm, err := core.NewHeaderManager(appConfig.Crawler.UserAgent, appConfig.Headers, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := hm.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	safeHeaders := hm.GetSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for name, value := range safeHeaders {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "抓取单个城市",
	RunE: func(cmd *cobra.Command, args []string) error {
		if country == "" {
			country = appConfig.Batch.DefaultCountry
		}
		params, err := BuildCrawlParams(city, country, types, startDate, endDate)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, appConfig, headers, appOptions{dryRun: dryRun, noCache: noCache})
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.manager.CrawlAndSave(ctx, params)
		utils.RenderCityResults(os.Stdout, []models.CityResult{result})
		if err != nil {
			return fmt.Errorf("抓取失败: %w", err)
		}

		utils.Info("✨ 抓取任务完成!")
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "批量抓取多个城市",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, placeTypes, err := loadCities()
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, appConfig, headers, appOptions{dryRun: dryRun, noCache: noCache})
		if err != nil {
			return err
		}
		defer a.Close()

		bc := core.NewBatchCrawler(a.manager, appConfig.Crawler, batchOptions(cmd, placeTypes, true))
		if _, err := bc.CrawlBatch(ctx, entries); err != nil {
			return fmt.Errorf("批量抓取失败: %w", err)
		}

		utils.Info("✨ 批量抓取任务完成!")
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "按cron表达式定时批量抓取",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, placeTypes, err := loadCities()
		if err != nil {
			return err
		}

		spec := appConfig.Scheduler.Cron
		if cronSpec != "" {
			spec = cronSpec
		}

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, appConfig, headers, appOptions{dryRun: dryRun, noCache: noCache})
		if err != nil {
			return err
		}
		defer a.Close()

		bc := core.NewBatchCrawler(a.manager, appConfig.Crawler, batchOptions(cmd, placeTypes, false))
		scheduler := core.NewScheduler(bc, entries)
		if err := scheduler.Schedule(spec); err != nil {
			return err
		}

		if runNow {
			scheduler.RunNow(ctx)
		}
		return scheduler.Run(ctx)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "显示已保存数据的统计",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, appConfig, headers, appOptions{noCache: true})
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.manager.GetStatistics(ctx)
		if err != nil {
			return err
		}
		utils.RenderStatistics(os.Stdout, stats)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("poicrawler %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// loadCities 合并 --cities-file 和 --cities
func loadCities() ([]utils.CityEntry, []models.PlaceType, error) {
	defaultCountry := appConfig.Batch.DefaultCountry

	var entries []utils.CityEntry
	if citiesFile != "" {
		fromFile, err := utils.ReadCitiesFromFile(citiesFile, defaultCountry)
		if err != nil {
			return nil, nil, fmt.Errorf("读取城市文件失败: %w", err)
		}
		entries = append(entries, fromFile...)
	}
	entries = append(entries, utils.ParseCityList(cities, defaultCountry)...)
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("必须通过 --cities-file 或 --cities 指定至少一个城市")
	}

	placeTypes, err := ParseTypes(types)
	if err != nil {
		return nil, nil, err
	}
	return entries, placeTypes, nil
}

func batchOptions(cmd *cobra.Command, placeTypes []models.PlaceType, progress bool) core.BatchOptions {
	continueOnErr := appConfig.Batch.ContinueOnError
	if cmd.Flags().Changed("continue-on-error") {
		continueOnErr = continueOnError
	}
	return core.BatchOptions{
		Types:           placeTypes,
		ContinueOnError: continueOnErr,
		ReportDir:       appConfig.Batch.ReportDir,
		ShowProgress:    progress,
	}
}

// signalContext Ctrl+C 或 SIGTERM 时取消,正在进行的抓取会尽快结束
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	// 全局参数
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "配置文件路径")
	pf.StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	pf.StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证HTTP头部配置")

	// 引擎参数
	pf.StringVarP(&mode, "mode", "m", "", "抓取模式 (dynamic|static)")
	pf.Float64Var(&rateLimit, "rate", 0, "每秒最大请求数")
	pf.IntVar(&maxConcurrency, "concurrency", 0, "详情页最大并发数")
	pf.DurationVar(&timeout, "timeout", 0, "页面导航超时")
	pf.IntVar(&retryAttempts, "retries", 3, "导航失败重试次数")
	pf.BoolVar(&headless, "headless", true, "无头浏览器模式")
	pf.BoolVar(&respectRobots, "respect-robots", true, "遵守 robots.txt")
	pf.BoolVar(&allowSynthetic, "allow-synthetic", false, "抓取结果为空时使用内置示例数据")
	pf.BoolVar(&enrichDetails, "enrich", false, "抓取景点详情页补充信息")

	// 运行开关
	pf.BoolVar(&dryRun, "dry-run", false, "不连接数据库,结果只保存在内存中")
	pf.BoolVar(&noCache, "no-cache", false, "禁用抓取缓存")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus指标监听地址,如 :9090")

	// crawl
	crawlCmd.Flags().StringVar(&city, "city", "", "城市名称 (必需)")
	crawlCmd.Flags().StringVar(&country, "country", "", "国家,默认使用配置中的 default_country")
	crawlCmd.Flags().StringSliceVarP(&types, "types", "t", nil, "抓取类型 (event,attraction),默认全部")
	crawlCmd.Flags().StringVar(&startDate, "start", "", "活动开始日期下限 (YYYY-MM-DD)")
	crawlCmd.Flags().StringVar(&endDate, "end", "", "活动开始日期上限 (YYYY-MM-DD)")

	// batch 和 schedule 共用
	for _, c := range []*cobra.Command{batchCmd, scheduleCmd} {
		c.Flags().StringVarP(&citiesFile, "cities-file", "f", "", "城市列表文件,每行 'City' 或 'City, Country'")
		c.Flags().StringSliceVar(&cities, "cities", nil, "逗号分隔的城市列表")
		c.Flags().StringSliceVarP(&types, "types", "t", nil, "抓取类型 (event,attraction),默认全部")
		c.Flags().DurationVar(&cityDelay, "city-delay", 5*time.Second, "城市之间的暂停时间")
		c.Flags().BoolVar(&continueOnError, "continue-on-error", true, "城市失败后继续处理")
		c.Flags().StringVar(&reportDir, "report-dir", "", "JSON报告输出目录")
	}
	scheduleCmd.Flags().StringVar(&cronSpec, "cron", "", "cron表达式,默认使用配置中的 scheduler.cron")
	scheduleCmd.Flags().BoolVar(&runNow, "run-now", false, "启动时立即执行一轮")

	rootCmd.AddCommand(crawlCmd, batchCmd, scheduleCmd, statsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
