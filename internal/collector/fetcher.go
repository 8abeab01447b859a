package collector

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ErrEmptyPage 表示列表页没有解析出任何有效文章（网络失败或页面结构变化都可能导致）
var ErrEmptyPage = errors.New("collector: no articles on listing page")

// ArticleRecord 列表页中的一条文章记录
type ArticleRecord struct {
	// PublishedAt 为站点给出的展示用时间字符串，不保证可解析
	PublishedAt string
	Category    string
	// Title 在同一数据源内作为文章的身份标识
	Title string
	URL   string
}

// Valid 标题和链接都不为空才算有效记录
func (r ArticleRecord) Valid() bool {
	return strings.TrimSpace(r.Title) != "" && strings.TrimSpace(r.URL) != ""
}

// Source 描述一个被轮询的列表页，运行期间不可变
type Source struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// Fetcher 抽象每一个数据源的抓取，返回按时间从新到旧排列的记录
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, src Source) ([]ArticleRecord, error)
}

// SourceIDFromURL 从 category 查询参数推导数据源 ID，没有该参数时退回到路径
func SourceIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return sanitizeID(raw)
	}
	if cat := u.Query().Get("category"); cat != "" {
		return sanitizeID(cat)
	}
	return sanitizeID(strings.Trim(u.Host+u.Path, "/"))
}

// sanitizeID 只保留适合做文件名 / Redis key 的字符
func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
