package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	kabutanRowSelector      = "table.s_news_list tr"
	kabutanTimeSelector     = "td.news_time time"
	kabutanCategorySelector = "td > div.newslist_ctg"
	kabutanLinkSelector     = "td > a"

	defaultUserAgent    = "NewsWatchBot/1.0"
	defaultFetchTimeout = 10 * time.Second
)

// KabutanFetcher 抓取 kabutan 市场新闻列表页（table.s_news_list）
type KabutanFetcher struct {
	UserAgent string
	Timeout   time.Duration
	// AllowedDomains 为空时不限制域名，测试中指向 httptest 服务器
	AllowedDomains []string
}

// NewKabutanFetcher 使用默认 UA 与超时创建 fetcher
func NewKabutanFetcher(userAgent string, timeout time.Duration) *KabutanFetcher {
	return &KabutanFetcher{
		UserAgent:      userAgent,
		Timeout:        timeout,
		AllowedDomains: []string{"kabutan.jp", "www.kabutan.jp"},
	}
}

func (k *KabutanFetcher) Name() string {
	return "kabutan"
}

func (k *KabutanFetcher) Fetch(ctx context.Context, src Source) ([]ArticleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ua := k.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	opts := []colly.CollectorOption{colly.UserAgent(ua)}
	if len(k.AllowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(k.AllowedDomains...))
	}
	c := colly.NewCollector(opts...)

	timeout := k.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	c.SetRequestTimeout(timeout)

	results := make([]ArticleRecord, 0, 32)
	c.OnHTML(kabutanRowSelector, func(e *colly.HTMLElement) {
		title := strings.TrimSpace(e.ChildText(kabutanLinkSelector))
		href := strings.TrimSpace(e.ChildAttr(kabutanLinkSelector, "href"))
		if title == "" || href == "" {
			// 表头行或广告行没有链接，直接跳过
			return
		}
		rec := ArticleRecord{
			PublishedAt: strings.TrimSpace(e.ChildText(kabutanTimeSelector)),
			Category:    strings.TrimSpace(e.ChildText(kabutanCategorySelector)),
			Title:       title,
			URL:         e.Request.AbsoluteURL(href),
		}
		if !rec.Valid() {
			return
		}
		results = append(results, rec)
	})

	if err := c.Visit(src.URL); err != nil {
		return nil, fmt.Errorf("kabutan: visit %s: %w", src.URL, err)
	}
	return results, nil
}
