package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	d := models.DefaultCrawlerConfig()
	if cfg.Crawler.RequestsPerSecond != d.RequestsPerSecond {
		t.Errorf("期望速率 %v, 得到 %v", d.RequestsPerSecond, cfg.Crawler.RequestsPerSecond)
	}
	if cfg.Crawler.NavigationTimeout != 30*time.Second {
		t.Errorf("期望超时 30s, 得到 %v", cfg.Crawler.NavigationTimeout)
	}
	if cfg.Crawler.Mode != models.ModeDynamic {
		t.Errorf("期望模式 dynamic, 得到 %s", cfg.Crawler.Mode)
	}
	if cfg.Crawler.AllowSyntheticFallback {
		t.Error("期望默认关闭示例数据回退")
	}
	if len(cfg.Crawler.FallbackCities) != 4 {
		t.Errorf("期望 4 个回退城市, 得到 %v", cfg.Crawler.FallbackCities)
	}
	if cfg.Batch.CityDelay != 5*time.Second {
		t.Errorf("期望城市间隔 5s, 得到 %v", cfg.Batch.CityDelay)
	}
	if cfg.Scheduler.Cron != "0 */6 * * *" {
		t.Errorf("期望默认cron, 得到 %q", cfg.Scheduler.Cron)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("期望默认配置有效, 得到 %v", err)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
crawler:
  rate_limit: 2.5
  max_concurrency: 6
  mode: static
  allow_synthetic_fallback: true
redis:
  addr: cache:6379
batch:
  city_delay: 10s
headers:
  X-Api-Key: secret
`)
	t.Setenv("CRAWLER_MAX_CONCURRENCY", "2")
	t.Setenv("CRAWLER_TIMEOUT", "45s")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Crawler.RequestsPerSecond != 2.5 {
		t.Errorf("期望速率 2.5, 得到 %v", cfg.Crawler.RequestsPerSecond)
	}
	if cfg.Crawler.MaxConcurrency != 2 {
		t.Errorf("期望环境变量覆盖并发为 2, 得到 %d", cfg.Crawler.MaxConcurrency)
	}
	if cfg.Crawler.NavigationTimeout != 45*time.Second {
		t.Errorf("期望超时 45s, 得到 %v", cfg.Crawler.NavigationTimeout)
	}
	if cfg.Crawler.Mode != models.ModeStatic {
		t.Errorf("期望模式 static, 得到 %s", cfg.Crawler.Mode)
	}
	if !cfg.Crawler.AllowSyntheticFallback {
		t.Error("期望开启示例数据回退")
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("期望环境变量覆盖Redis地址, 得到 %s", cfg.Redis.Addr)
	}
	if cfg.Batch.CityDelay != 10*time.Second {
		t.Errorf("期望城市间隔 10s, 得到 %v", cfg.Batch.CityDelay)
	}
	if cfg.Headers["x-api-key"] != "secret" {
		t.Errorf("期望读取headers段, 得到 %v", cfg.Headers)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("期望指定的配置文件不存在时返回错误")
	}
}

func TestConfig_MergeCLIFlags(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name  string
		o     func() CLIOverrides
		check func(t *testing.T, c *Config)
	}{
		{
			name: "未指定时保持原值",
			o:    NewCLIOverrides,
			check: func(t *testing.T, c *Config) {
				if c.Crawler.RetryAttempts != 3 || c.Batch.CityDelay != 5*time.Second {
					t.Errorf("期望保持默认值, 得到 retries=%d delay=%v", c.Crawler.RetryAttempts, c.Batch.CityDelay)
				}
			},
		},
		{
			name: "零值也能覆盖重试和间隔",
			o: func() CLIOverrides {
				o := NewCLIOverrides()
				o.RetryAttempts = 0
				o.CityDelay = 0
				return o
			},
			check: func(t *testing.T, c *Config) {
				if c.Crawler.RetryAttempts != 0 || c.Batch.CityDelay != 0 {
					t.Errorf("期望覆盖为 0, 得到 retries=%d delay=%v", c.Crawler.RetryAttempts, c.Batch.CityDelay)
				}
			},
		},
		{
			name: "布尔开关",
			o: func() CLIOverrides {
				o := NewCLIOverrides()
				o.Headless = &no
				o.AllowSynthetic = &yes
				o.RespectRobots = &no
				return o
			},
			check: func(t *testing.T, c *Config) {
				if c.Crawler.Headless || !c.Crawler.AllowSyntheticFallback || c.Crawler.RespectRobotsTxt {
					t.Errorf("期望布尔开关生效, 得到 %+v", c.Crawler)
				}
			},
		},
		{
			name: "字符串和数值",
			o: func() CLIOverrides {
				o := NewCLIOverrides()
				o.Mode = "static"
				o.RateLimit = 4
				o.LogLevel = "debug"
				o.MetricsAddr = ":9100"
				return o
			},
			check: func(t *testing.T, c *Config) {
				if c.Crawler.Mode != models.ModeStatic || c.Crawler.RequestsPerSecond != 4 {
					t.Errorf("期望 static/4, 得到 %s/%v", c.Crawler.Mode, c.Crawler.RequestsPerSecond)
				}
				if c.Logging.Level != "debug" || c.Metrics.Addr != ":9100" {
					t.Errorf("期望 debug/:9100, 得到 %s/%s", c.Logging.Level, c.Metrics.Addr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Crawler: models.DefaultCrawlerConfig(), Batch: BatchConfig{CityDelay: 5 * time.Second}}
			c.MergeCLIFlags(tt.o())
			tt.check(t, c)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	c := &Config{Crawler: models.DefaultCrawlerConfig()}
	c.Crawler.Mode = "headful"
	if err := c.Validate(); err == nil {
		t.Error("期望无效模式返回错误")
	}

	c = &Config{Crawler: models.DefaultCrawlerConfig(), Batch: BatchConfig{CityDelay: -time.Second}}
	if err := c.Validate(); err == nil {
		t.Error("期望负数城市间隔返回错误")
	}
}

func TestConfig_ResourceMonitorConfig(t *testing.T) {
	c := &Config{Resource: ResourceConfig{SafetyReserveMemory: 256, MaxPagesLimit: 4}}
	rm := c.ResourceMonitorConfig()

	if rm.SafetyReserveMemory != 256*1024*1024 {
		t.Errorf("期望保留内存 256MB, 得到 %d", rm.SafetyReserveMemory)
	}
	if rm.MaxPagesLimit != 4 {
		t.Errorf("期望页面上限 4, 得到 %d", rm.MaxPagesLimit)
	}
	if rm.CPULoadThreshold != 85 {
		t.Errorf("期望未设置时使用默认CPU阈值 85, 得到 %d", rm.CPULoadThreshold)
	}
}
