package collector

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const defaultBodySelector = ".body"

// 正文中以 <7203> 形式出现的四位证券代码
var stockCodePattern = regexp.MustCompile(`<(\d{4})>`)

// Body 文章正文及从中识别出的证券代码
type Body struct {
	URL   string   `json:"url"`
	Text  string   `json:"text"`
	Lines []string `json:"lines"`
	Codes []string `json:"codes"`
}

// BodyReader 读取单篇文章的正文
type BodyReader interface {
	Read(ctx context.Context, url string) (Body, error)
}

// CollyBodyReader 直接请求文章页，取 selector 对应元素的文本
type CollyBodyReader struct {
	UserAgent string
	Timeout   time.Duration
	Selector  string
}

func (r *CollyBodyReader) Read(ctx context.Context, url string) (Body, error) {
	if err := ctx.Err(); err != nil {
		return Body{}, err
	}

	ua := r.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	c := colly.NewCollector(colly.UserAgent(ua))
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	c.SetRequestTimeout(timeout)

	sel := r.Selector
	if sel == "" {
		sel = defaultBodySelector
	}

	var text string
	found := false
	c.OnHTML(sel, func(e *colly.HTMLElement) {
		if found {
			return
		}
		found = true
		text = selectionText(e.DOM)
	})

	if err := c.Visit(url); err != nil {
		return Body{}, fmt.Errorf("body: visit %s: %w", url, err)
	}
	if !found {
		return Body{}, fmt.Errorf("body: %q not found on %s", sel, url)
	}
	return NewBody(url, text), nil
}

// selectionText 取元素文本，<br> 视为换行
func selectionText(s *goquery.Selection) string {
	s.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithHtml("\n")
	})
	return strings.TrimSpace(s.Text())
}

// NewBody 在句号「。」后断行，并提取证券代码
func NewBody(url, text string) Body {
	text = strings.TrimSpace(text)
	split := strings.ReplaceAll(text, "。", "。\n")

	lines := make([]string, 0, 16)
	for _, l := range strings.Split(split, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}

	return Body{
		URL:   url,
		Text:  text,
		Lines: lines,
		Codes: ExtractStockCodes(text),
	}
}

// ExtractStockCodes 按出现顺序返回去重后的证券代码
func ExtractStockCodes(text string) []string {
	matches := stockCodePattern.FindAllStringSubmatch(text, -1)
	codes := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		codes = append(codes, m[1])
	}
	return codes
}
