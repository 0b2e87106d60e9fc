package crawlers

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CardStrategy 列表页卡片定位策略
type CardStrategy interface {
	Name() string
	// Find 返回是否命中以及命中的卡片
	Find(doc *goquery.Document) (bool, []*goquery.Selection)
}

// selectorStrategy 按CSS选择器定位卡片
type selectorStrategy struct {
	name     string
	selector string
}

// SelectorStrategy 创建选择器策略
func SelectorStrategy(name, selector string) CardStrategy {
	return selectorStrategy{name: name, selector: selector}
}

func (s selectorStrategy) Name() string { return s.name }

func (s selectorStrategy) Find(doc *goquery.Document) (bool, []*goquery.Selection) {
	var cards []*goquery.Selection
	doc.Find(s.selector).Each(func(_ int, card *goquery.Selection) {
		// 只保留最外层,避免 event-card__title 之类的子元素重复计入
		if card.ParentsFiltered(s.selector).Length() > 0 {
			return
		}
		if isCardLike(card) {
			cards = append(cards, card)
		}
	})
	return len(cards) > 0, cards
}

// linkHeuristicStrategy 同时包含图片和标题的链接视为卡片
type linkHeuristicStrategy struct{}

// LinkHeuristicStrategy 兜底的链接启发式策略
func LinkHeuristicStrategy() CardStrategy {
	return linkHeuristicStrategy{}
}

func (linkHeuristicStrategy) Name() string { return "link-heuristic" }

func (linkHeuristicStrategy) Find(doc *goquery.Document) (bool, []*goquery.Selection) {
	var cards []*goquery.Selection
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		if link.Find("img").Length() > 0 && link.Find(headingSelector).Length() > 0 {
			cards = append(cards, link)
		}
	})
	return len(cards) > 0, cards
}

const headingSelector = "h1, h2, h3, h4, h5"

// isCardLike 卡片至少要有链接和可读文本
func isCardLike(card *goquery.Selection) bool {
	hasLink := goquery.NodeName(card) == "a" || card.Find("a[href]").Length() > 0
	return hasLink && len(collapseSpace(card.Text())) >= 3
}

// FindCards 依次尝试策略,返回第一个命中策略的前 max 张卡片
func FindCards(doc *goquery.Document, strategies []CardStrategy, max int) ([]*goquery.Selection, string) {
	for _, strategy := range strategies {
		matched, cards := strategy.Find(doc)
		if !matched {
			continue
		}
		if max > 0 && len(cards) > max {
			cards = cards[:max]
		}
		return cards, strategy.Name()
	}
	return nil, ""
}

// eventStrategies 活动列表页的卡片策略
func eventStrategies() []CardStrategy {
	return []CardStrategy{
		SelectorStrategy("test-id", `[data-testid*="event-card"], [data-testid*="search-event"]`),
		SelectorStrategy("class-name", `[class*="event-card"], [class*="eventCard"], [class*="event-item"], [class*="event-listing"]`),
		SelectorStrategy("generic", `article, li[class*="event"]`),
		LinkHeuristicStrategy(),
	}
}

// attractionStrategies 景点列表页的卡片策略
func attractionStrategies() []CardStrategy {
	return []CardStrategy{
		SelectorStrategy("test-id", `[data-testid*="attraction"], [data-testid*="poi-card"]`),
		SelectorStrategy("class-name", `[class*="card-content"], [class*="attraction"], [class*="place-card"], [class*="things-to-do"]`),
		SelectorStrategy("generic", `article, li[class*="place"]`),
		LinkHeuristicStrategy(),
	}
}

// rawCard 卡片中提取的原始字段
type rawCard struct {
	Title       string
	Description string
	DateText    string
	Link        string
	Image       string
	PriceText   string
	RatingText  string
}

// extractRawCard 从卡片中尽力提取原始字段
func extractRawCard(card *goquery.Selection) rawCard {
	raw := rawCard{
		Title:       SafeExtractText(card, `h1, h2, h3, h4, h5, [class*="title"], [class*="name"]`, ""),
		Description: SafeExtractText(card, `p, [class*="desc"], [class*="summary"]`, ""),
		DateText:    SafeExtractText(card, `time, [class*="date"], [class*="time"]`, ""),
		PriceText:   SafeExtractText(card, `[class*="price"], [class*="cost"], [class*="fee"]`, ""),
		RatingText:  SafeExtractText(card, `[class*="rating"], [class*="score"]`, ""),
	}

	if raw.Title == "" {
		raw.Title = SafeExtractAttribute(card, "img[alt]", "alt", "")
	}
	if datetime := SafeExtractAttribute(card, "time[datetime]", "datetime", ""); datetime != "" {
		raw.DateText = datetime
	}

	if goquery.NodeName(card) == "a" {
		raw.Link = SafeExtractAttribute(card, "", "href", "")
	} else {
		raw.Link = SafeExtractAttribute(card, "a[href]", "href", "")
	}

	raw.Image = SafeExtractAttribute(card, "img", "src", "")
	if raw.Image == "" || strings.HasPrefix(raw.Image, "data:") {
		raw.Image = SafeExtractAttribute(card, "img", "data-src", raw.Image)
	}
	if raw.Description == raw.Title {
		raw.Description = ""
	}
	return raw
}
