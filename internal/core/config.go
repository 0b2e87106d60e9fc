package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/crawlers"
	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Crawler   models.CrawlerConfig `mapstructure:"crawler"`
	Redis     RedisConfig          `mapstructure:"redis"`
	Database  DatabaseConfig       `mapstructure:"database"`
	Logging   LoggingConfig        `mapstructure:"logging"`
	Batch     BatchConfig          `mapstructure:"batch"`
	Scheduler SchedulerConfig      `mapstructure:"scheduler"`
	Resource  ResourceConfig       `mapstructure:"resource"`
	Metrics   MetricsConfig        `mapstructure:"metrics"`
	Headers   map[string]string    `mapstructure:"headers"`
}

// RedisConfig 抓取缓存配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig 持久化存储配置
type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	Format   string         `mapstructure:"format"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// BatchConfig 多城市抓取配置
type BatchConfig struct {
	CityDelay       time.Duration `mapstructure:"city_delay"`
	ContinueOnError bool          `mapstructure:"continue_on_error"`
	ReportDir       string        `mapstructure:"report_dir"`
	DefaultCountry  string        `mapstructure:"default_country"`
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	Cron string `mapstructure:"cron"`
}

// ResourceConfig 资源限制配置,内存单位为MB
type ResourceConfig struct {
	SafetyReserveMemory int64 `mapstructure:"safety_reserve_memory"`
	CPULoadThreshold    int   `mapstructure:"cpu_load_threshold"`
	MaxPagesLimit       int   `mapstructure:"max_pages_limit"`
}

// MetricsConfig 指标服务配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// envBindings 配置项与环境变量的对应关系
var envBindings = map[string]string{
	"crawler.user_agent":      "CRAWLER_USER_AGENT",
	"crawler.rate_limit":      "CRAWLER_RATE_LIMIT",
	"crawler.max_concurrency": "CRAWLER_MAX_CONCURRENCY",
	"crawler.timeout":         "CRAWLER_TIMEOUT",
	"crawler.retry_attempts":  "CRAWLER_RETRY_ATTEMPTS",
	"crawler.retry_delay":     "CRAWLER_RETRY_DELAY",
	"crawler.respect_robots":  "CRAWLER_RESPECT_ROBOTS",
	"crawler.mode":            "CRAWLER_MODE",
	"redis.addr":              "REDIS_ADDR",
	"redis.password":          "REDIS_PASSWORD",
	"redis.db":                "REDIS_DB",
	"database.url":            "DATABASE_URL",
	"logging.level":           "LOG_LEVEL",
	"logging.format":          "LOG_FORMAT",
}

// LoadConfig 加载配置文件
// 优先级: 命令行 > 环境变量(.env) > 配置文件 > 默认值
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		utils.Warnf("加载 .env 失败: %v", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".poicrawler"))
		}
	}

	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	d := models.DefaultCrawlerConfig()

	// 爬虫配置默认值
	v.SetDefault("crawler.user_agent", d.UserAgent)
	v.SetDefault("crawler.rate_limit", d.RequestsPerSecond)
	v.SetDefault("crawler.max_concurrency", d.MaxConcurrency)
	v.SetDefault("crawler.timeout", d.NavigationTimeout)
	v.SetDefault("crawler.retry_attempts", d.RetryAttempts)
	v.SetDefault("crawler.retry_delay", d.RetryDelay)
	v.SetDefault("crawler.respect_robots", d.RespectRobotsTxt)
	v.SetDefault("crawler.settle_delay", d.SettleDelay)
	v.SetDefault("crawler.idle_timeout", d.IdleTimeout)
	v.SetDefault("crawler.max_cards_per_page", d.MaxCardsPerPage)
	v.SetDefault("crawler.event_cache_ttl", d.EventCacheTTL)
	v.SetDefault("crawler.attraction_cache_ttl", d.AttractionCacheTTL)
	v.SetDefault("crawler.allow_synthetic_fallback", d.AllowSyntheticFallback)
	v.SetDefault("crawler.fallback_cities", d.FallbackCities)
	v.SetDefault("crawler.enrich_details", d.EnrichDetails)
	v.SetDefault("crawler.max_detail_pages", d.MaxDetailPages)
	v.SetDefault("crawler.mode", string(d.Mode))
	v.SetDefault("crawler.headless", d.Headless)
	v.SetDefault("crawler.locale", d.Locale)
	v.SetDefault("crawler.timezone", d.Timezone)

	// 缓存与存储
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.url", "postgres://localhost:5432/poicrawler?sslmode=disable")
	v.SetDefault("database.auto_migrate", true)

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", utils.FormatConsole)
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 批量与定时
	v.SetDefault("batch.city_delay", 5*time.Second)
	v.SetDefault("batch.continue_on_error", true)
	v.SetDefault("batch.report_dir", "reports")
	v.SetDefault("batch.default_country", "India")
	v.SetDefault("scheduler.cron", "0 */6 * * *")

	// 资源限制
	v.SetDefault("resource.safety_reserve_memory", 512)
	v.SetDefault("resource.cpu_load_threshold", 85)
	v.SetDefault("resource.max_pages_limit", 8)
}

// CLIOverrides 命令行覆盖项,零值(或负数)表示未指定
type CLIOverrides struct {
	Mode           string
	RateLimit      float64
	MaxConcurrency int
	Timeout        time.Duration
	RetryAttempts  int
	CityDelay      time.Duration
	Headless       *bool
	RespectRobots  *bool
	AllowSynthetic *bool
	EnrichDetails  *bool
	LogLevel       string
	ReportDir      string
	MetricsAddr    string
}

// NewCLIOverrides 返回全部未指定的覆盖项
func NewCLIOverrides() CLIOverrides {
	return CLIOverrides{RetryAttempts: -1, CityDelay: -1}
}

// MergeCLIFlags 合并命令行参数到配置
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	// 命令行参数优先于配置文件
	if o.Mode != "" {
		c.Crawler.Mode = models.BrowserMode(o.Mode)
	}
	if o.RateLimit > 0 {
		c.Crawler.RequestsPerSecond = o.RateLimit
	}
	if o.MaxConcurrency > 0 {
		c.Crawler.MaxConcurrency = o.MaxConcurrency
	}
	if o.Timeout > 0 {
		c.Crawler.NavigationTimeout = o.Timeout
	}
	if o.RetryAttempts >= 0 {
		c.Crawler.RetryAttempts = o.RetryAttempts
	}
	if o.CityDelay >= 0 {
		c.Batch.CityDelay = o.CityDelay
	}
	if o.Headless != nil {
		c.Crawler.Headless = *o.Headless
	}
	if o.RespectRobots != nil {
		c.Crawler.RespectRobotsTxt = *o.RespectRobots
	}
	if o.AllowSynthetic != nil {
		c.Crawler.AllowSyntheticFallback = *o.AllowSynthetic
	}
	if o.EnrichDetails != nil {
		c.Crawler.EnrichDetails = *o.EnrichDetails
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.ReportDir != "" {
		c.Batch.ReportDir = o.ReportDir
	}
	if o.MetricsAddr != "" {
		c.Metrics.Addr = o.MetricsAddr
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Crawler.Validate(); err != nil {
		return err
	}
	if c.Batch.CityDelay < 0 {
		return fmt.Errorf("城市间隔不能为负数")
	}
	return nil
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// ResourceMonitorConfig 转换为资源监控配置
func (c *Config) ResourceMonitorConfig() crawlers.ResourceMonitorConfig {
	cfg := crawlers.DefaultResourceMonitorConfig()
	if c.Resource.SafetyReserveMemory > 0 {
		cfg.SafetyReserveMemory = c.Resource.SafetyReserveMemory * 1024 * 1024
	}
	if c.Resource.CPULoadThreshold > 0 {
		cfg.CPULoadThreshold = c.Resource.CPULoadThreshold
	}
	if c.Resource.MaxPagesLimit > 0 {
		cfg.MaxPagesLimit = c.Resource.MaxPagesLimit
	}
	return cfg
}
