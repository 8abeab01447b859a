package processor

import (
	"testing"

	"github.com/LJTian/NewsWatch/internal/collector"
)

func TestHashKeyDeterministicAndDistinct(t *testing.T) {
	h1a := hashKey("a\nhttps://example.com/a")
	h1b := hashKey("a\nhttps://example.com/a")
	h2 := hashKey("a\nhttps://example.com/b")

	if h1a != h1b {
		t.Fatalf("hashKey not deterministic: %q vs %q", h1a, h1b)
	}
	if h1a == h2 {
		t.Fatalf("hashKey should differ for different inputs: %q", h1a)
	}
}

func TestNormalizeDeduplicatesAndDropsInvalid(t *testing.T) {
	p := New(IdentityTitle)

	items := []collector.ArticleRecord{
		{Title: " Title 1 ", URL: "https://example.com/1", Category: " 決算 "},
		{Title: "Title 1", URL: "https://example.com/1-dup"},
		{Title: "", URL: "https://example.com/empty"},
		{Title: "No URL"},
		{Title: "Title 2", URL: "https://example.com/2"},
	}

	out := p.Normalize(items)
	if len(out) != 2 {
		t.Fatalf("expected 2 records after normalize, got %d: %+v", len(out), out)
	}
	// 同标题保留第一条（最新）
	if out[0].URL != "https://example.com/1" {
		t.Fatalf("first record should keep newest duplicate, got %q", out[0].URL)
	}
	if out[0].Title != "Title 1" || out[0].Category != "決算" {
		t.Fatalf("fields should be trimmed: %+v", out[0])
	}
	if out[1].Title != "Title 2" {
		t.Fatalf("unexpected second record: %+v", out[1])
	}
}

func TestHashIdentityKeepsSameTitleDifferentURL(t *testing.T) {
	p := New(IdentityHash)

	items := []collector.ArticleRecord{
		{Title: "決算速報", URL: "https://example.com/1"},
		{Title: "決算速報", URL: "https://example.com/2"},
	}
	out := p.Normalize(items)
	if len(out) != 2 {
		t.Fatalf("hash identity should keep both records, got %d", len(out))
	}
	if p.Identity(out[0]) == p.Identity(out[1]) {
		t.Fatalf("identities should differ")
	}
	if len(p.Identity(out[0])) != 40 {
		t.Fatalf("hash identity should be a sha1 hex string: %q", p.Identity(out[0]))
	}
}

func TestParseIdentityMode(t *testing.T) {
	if ParseIdentityMode(" HASH ") != IdentityHash {
		t.Fatalf("expected hash mode")
	}
	if ParseIdentityMode("whatever") != IdentityTitle {
		t.Fatalf("unknown mode should fall back to title")
	}
}
