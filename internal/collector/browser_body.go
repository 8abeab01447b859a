package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserBodyReader 用 headless Chrome 渲染页面后再取正文，适合依赖 JS 渲染的文章页。
// 整个进程复用同一个浏览器实例，用完需调用 Close。
type BrowserBodyReader struct {
	browserCtx context.Context
	cancel     context.CancelFunc
	timeout    time.Duration
	selector   string
}

func NewBrowserBodyReader(timeout time.Duration, selector string) (*BrowserBodyReader, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// 预热浏览器，避免首个请求耗时过长
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}

	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if selector == "" {
		selector = defaultBodySelector
	}
	return &BrowserBodyReader{
		browserCtx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
		timeout:  timeout,
		selector: selector,
	}, nil
}

func (r *BrowserBodyReader) Read(ctx context.Context, url string) (Body, error) {
	// 每个请求用独立的超时上下文，复用同一个 browserCtx
	runCtx, cancel := context.WithTimeout(r.browserCtx, r.timeout)
	defer cancel()

	// 调用方取消时同步取消浏览器操作
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var text string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(r.selector, chromedp.ByQuery),
		chromedp.Text(r.selector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return Body{}, fmt.Errorf("browser: extract %s: %w", url, err)
	}
	return NewBody(url, text), nil
}

func (r *BrowserBodyReader) Close() {
	r.cancel()
}
