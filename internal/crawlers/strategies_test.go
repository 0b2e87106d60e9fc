package crawlers

import (
	"fmt"
	"strings"
	"testing"
)

const testIDFixture = `<html><body>
<div data-testid="event-card-1"><a href="/e/1"><h3>Jazz Night</h3></a></div>
<div data-testid="event-card-2"><a href="/e/2"><h3>Food Walk</h3></a></div>
<article><a href="/e/3"><h3>Ignored Article</h3></a></article>
</body></html>`

const classNameFixture = `<html><body>
<ul>
  <li class="event-card">
    <div class="event-card__title"><a href="/e/1">Comedy Night Live</a></div>
    <div class="event-card__date">Sat, 15 Mar</div>
  </li>
  <li class="event-card">
    <div class="event-card__title"><a href="/e/2">Sunday Brunch</a></div>
  </li>
</ul>
</body></html>`

const linkHeuristicFixture = `<html><body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<a href="/p/1"><img src="/i/1.jpg"><h4>Gateway of India</h4></a>
<a href="/p/2"><img src="/i/2.jpg"><h4>Marine Drive</h4></a>
<a href="/p/3"><img src="/i/3.jpg"></a>
</body></html>`

func TestFindCards(t *testing.T) {
	tests := []struct {
		name         string
		html         string
		strategies   []CardStrategy
		wantStrategy string
		wantCards    int
	}{
		{"test-id 优先", testIDFixture, eventStrategies(), "test-id", 2},
		{"class 子元素不重复计入", classNameFixture, eventStrategies(), "class-name", 2},
		{"链接启发式", linkHeuristicFixture, attractionStrategies(), "link-heuristic", 2},
		{"无卡片", `<html><body><p>nothing</p></body></html>`, eventStrategies(), "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cards, strategy := FindCards(mustDocument(t, tt.html), tt.strategies, 15)
			if strategy != tt.wantStrategy {
				t.Errorf("期望策略 %q, 得到 %q", tt.wantStrategy, strategy)
			}
			if len(cards) != tt.wantCards {
				t.Errorf("期望 %d 张卡片, 得到 %d", tt.wantCards, len(cards))
			}
		})
	}
}

func TestFindCards_Cap(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, `<article><a href="/e/%d"><h3>Event %d</h3></a></article>`, i, i)
	}
	b.WriteString("</body></html>")

	cards, strategy := FindCards(mustDocument(t, b.String()), eventStrategies(), 15)
	if strategy != "generic" {
		t.Errorf("期望 generic, 得到 %s", strategy)
	}
	if len(cards) != 15 {
		t.Errorf("期望截断为 15 张, 得到 %d", len(cards))
	}
}

func TestExtractRawCard(t *testing.T) {
	doc := mustDocument(t, `<div class="event-card">
  <a href="/mumbai/jazz-night"><img src="data:image/gif;base64,R0l" data-src="/img/jazz.jpg"></a>
  <h3 class="title">Jazz Night</h3>
  <p class="desc">Live quartet</p>
  <time datetime="2025-03-15T19:00:00+05:30">Sat, 15 Mar</time>
  <span class="price">₹799</span>
</div>`)

	raw := extractRawCard(doc.Find(".event-card"))

	if raw.Title != "Jazz Night" {
		t.Errorf("标题错误: %q", raw.Title)
	}
	if raw.Description != "Live quartet" {
		t.Errorf("描述错误: %q", raw.Description)
	}
	if raw.DateText != "2025-03-15T19:00:00+05:30" {
		t.Errorf("应优先使用 datetime 属性, 得到 %q", raw.DateText)
	}
	if raw.Link != "/mumbai/jazz-night" {
		t.Errorf("链接错误: %q", raw.Link)
	}
	if raw.Image != "/img/jazz.jpg" {
		t.Errorf("懒加载图片应使用 data-src, 得到 %q", raw.Image)
	}
	if raw.PriceText != "₹799" {
		t.Errorf("价格错误: %q", raw.PriceText)
	}
}

func TestExtractRawCard_ImageAltTitle(t *testing.T) {
	doc := mustDocument(t, `<a class="tile" href="/p/1"><img src="/i/1.jpg" alt="Baga Beach"></a>`)

	raw := extractRawCard(doc.Find(".tile"))
	if raw.Title != "Baga Beach" {
		t.Errorf("无标题时应使用图片alt, 得到 %q", raw.Title)
	}
	if raw.Link != "/p/1" {
		t.Errorf("卡片本身为链接时应读取自身 href, 得到 %q", raw.Link)
	}
}
