package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/NewsWatch/internal/collector"
	"github.com/LJTian/NewsWatch/internal/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidInterval 轮询间隔不是正整数分钟
var ErrInvalidInterval = errors.New("config: invalid poll interval")

const DefaultIntervalMinutes = 1

// 水位线存储后端
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// DefaultSourceURLs 默认轮询的 kabutan 市场新闻分类，顺序即轮询顺序
var DefaultSourceURLs = []string{
	"https://kabutan.jp/news/marketnews/?category=3",
	"https://kabutan.jp/news/marketnews/?category=10",
	"https://kabutan.jp/news/marketnews/?category=2",
	"https://kabutan.jp/news/marketnews/?category=8",
	"https://kabutan.jp/news/marketnews/?category=9",
}

type Config struct {
	AppPort  string
	LogLevel string

	PollInterval time.Duration
	CronSpec     string
	PollTick     time.Duration

	FetchTimeout time.Duration
	UserAgent    string

	DataDir          string
	WorkbookFile     string
	WatermarkBackend string
	IdentityMode     string

	PostgresDSN string
	RedisAddr   string
	RedisPrefix string

	NotifyEnabled bool
	FeedCapacity  int

	BasicAuthUser string
	BasicAuthPass string

	SourcesFile string
	Sources     []collector.Source
}

// sourcesFile SOURCES_FILE 指向的 YAML 文件格式
type sourcesFile struct {
	Sources []collector.Source `yaml:"sources"`
}

// Load 先加载可选的 .env，再读取环境变量。
// 轮询间隔非法只记警告并退回默认值；数据源文件读不出来则返回错误。
func Load(log logger.Logger) (*Config, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	interval, err := ParseIntervalMinutes(os.Getenv("POLL_INTERVAL_MINUTES"))
	if err != nil && os.Getenv("POLL_INTERVAL_MINUTES") != "" {
		log.Warn("invalid poll interval, using default",
			logger.String("value", os.Getenv("POLL_INTERVAL_MINUTES")),
			logger.Int("default_minutes", DefaultIntervalMinutes),
		)
	}

	dataDir := getEnv("DATA_DIR", ".")
	cfg := &Config{
		AppPort:          getEnv("APP_PORT", "9000"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		PollInterval:     interval,
		CronSpec:         strings.TrimSpace(os.Getenv("CRON_SPEC")),
		PollTick:         getDuration(log, "POLL_TICK", time.Second),
		FetchTimeout:     getDuration(log, "FETCH_TIMEOUT", 10*time.Second),
		UserAgent:        getEnv("USER_AGENT", "NewsWatchBot/1.0"),
		DataDir:          dataDir,
		WorkbookFile:     getEnv("WORKBOOK_FILE", filepath.Join(dataDir, "articles.xlsx")),
		WatermarkBackend: strings.ToLower(getEnv("WATERMARK_BACKEND", BackendFile)),
		IdentityMode:     getEnv("IDENTITY_MODE", "title"),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPrefix:      getEnv("REDIS_PREFIX", "newswatch"),
		NotifyEnabled:    getBool(log, "NOTIFY_ENABLED", true),
		FeedCapacity:     getInt(log, "FEED_CAPACITY", 500),
		BasicAuthUser:    os.Getenv("APP_BASIC_USER"),
		BasicAuthPass:    os.Getenv("APP_BASIC_PASS"),
		SourcesFile:      os.Getenv("SOURCES_FILE"),
	}

	switch cfg.WatermarkBackend {
	case BackendFile, BackendRedis, BackendPostgres:
	default:
		return nil, fmt.Errorf("config: unknown WATERMARK_BACKEND %q", cfg.WatermarkBackend)
	}
	if cfg.WatermarkBackend == BackendRedis && cfg.RedisAddr == "" {
		return nil, errors.New("config: WATERMARK_BACKEND=redis requires REDIS_ADDR")
	}
	if cfg.WatermarkBackend == BackendPostgres && cfg.PostgresDSN == "" {
		return nil, errors.New("config: WATERMARK_BACKEND=postgres requires POSTGRES_DSN")
	}

	if cfg.SourcesFile != "" {
		sources, err := LoadSources(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
		cfg.Sources = sources
	} else {
		cfg.Sources = DefaultSources()
	}

	log.Info("config loaded",
		logger.String("port", cfg.AppPort),
		logger.Duration("interval", cfg.PollInterval),
		logger.String("cron", cfg.CronSpec),
		logger.String("watermark_backend", cfg.WatermarkBackend),
		logger.Int("sources", len(cfg.Sources)),
	)
	return cfg, nil
}

// ParseIntervalMinutes 解析以分钟为单位的轮询间隔。
// 空串、非整数或非正数都返回默认的 1 分钟以及 ErrInvalidInterval。
func ParseIntervalMinutes(s string) (time.Duration, error) {
	def := DefaultIntervalMinutes * time.Minute
	s = strings.TrimSpace(s)
	if s == "" {
		return def, fmt.Errorf("%w: empty", ErrInvalidInterval)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("%w: %q is not an integer", ErrInvalidInterval, s)
	}
	if n <= 0 {
		return def, fmt.Errorf("%w: %d is not positive", ErrInvalidInterval, n)
	}
	return time.Duration(n) * time.Minute, nil
}

// DefaultSources 由 DefaultSourceURLs 生成数据源，ID 取 category 参数
func DefaultSources() []collector.Source {
	out := make([]collector.Source, 0, len(DefaultSourceURLs))
	for _, u := range DefaultSourceURLs {
		id := collector.SourceIDFromURL(u)
		out = append(out, collector.Source{ID: id, Name: "kabutan/" + id, URL: u})
	}
	return out
}

// LoadSources 读取 YAML 数据源列表；缺省的 ID 从 URL 推导，ID 不能重复
func LoadSources(path string) ([]collector.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	if len(f.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s: no sources defined", path)
	}

	seen := make(map[string]bool, len(f.Sources))
	for i := range f.Sources {
		src := &f.Sources[i]
		src.URL = strings.TrimSpace(src.URL)
		if src.URL == "" {
			return nil, fmt.Errorf("sources file %s: source #%d has no url", path, i+1)
		}
		if src.ID == "" {
			src.ID = collector.SourceIDFromURL(src.URL)
		}
		if src.Name == "" {
			src.Name = src.ID
		}
		if seen[src.ID] {
			return nil, fmt.Errorf("sources file %s: duplicate source id %q", path, src.ID)
		}
		seen[src.ID] = true
	}
	return f.Sources, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(log logger.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn("invalid duration, using default", logger.String("key", key), logger.String("value", v))
		return def
	}
	return d
}

func getInt(log logger.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn("invalid integer, using default", logger.String("key", key), logger.String("value", v))
		return def
	}
	return n
}

func getBool(log logger.Logger, key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn("invalid bool, using default", logger.String("key", key), logger.String("value", v))
		return def
	}
	return b
}
