package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/LJTian/NewsWatch/internal/collector"
)

// IdentityMode 决定用什么作为文章在数据源内的身份
type IdentityMode string

const (
	// IdentityTitle 直接用标题（默认）
	IdentityTitle IdentityMode = "title"
	// IdentityHash 用 标题+URL 的 sha1，标题可能重复时更稳妥
	IdentityHash IdentityMode = "hash"
)

// ParseIdentityMode 无法识别时退回到 IdentityTitle
func ParseIdentityMode(s string) IdentityMode {
	if IdentityMode(strings.ToLower(strings.TrimSpace(s))) == IdentityHash {
		return IdentityHash
	}
	return IdentityTitle
}

// Processor 做最基础的数据清洗与身份计算
type Processor struct {
	mode IdentityMode
}

func New(mode IdentityMode) *Processor {
	if mode != IdentityHash {
		mode = IdentityTitle
	}
	return &Processor{mode: mode}
}

func (p *Processor) Mode() IdentityMode {
	return p.mode
}

// Identity 返回记录的身份标识，也就是水位线里保存的值
func (p *Processor) Identity(rec collector.ArticleRecord) string {
	if p.mode == IdentityHash {
		return hashKey(strings.TrimSpace(rec.Title) + "\n" + strings.TrimSpace(rec.URL))
	}
	return strings.TrimSpace(rec.Title)
}

// Normalize 去掉首尾空白、过滤无效记录，并按身份去重（保留最先出现的，也就是最新的）。
// 输入输出都保持从新到旧的顺序。
func (p *Processor) Normalize(items []collector.ArticleRecord) []collector.ArticleRecord {
	out := make([]collector.ArticleRecord, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, it := range items {
		it.Title = strings.TrimSpace(it.Title)
		it.URL = strings.TrimSpace(it.URL)
		it.Category = strings.TrimSpace(it.Category)
		it.PublishedAt = strings.TrimSpace(it.PublishedAt)
		if !it.Valid() {
			continue
		}

		id := p.Identity(it)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, it)
	}

	return out
}

func hashKey(s string) string {
	h := sha1.New()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
