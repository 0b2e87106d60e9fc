package crawlers

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
)

// CategoryGeneral 未匹配任何关键词时的分类
const CategoryGeneral = "general"

// MaxTags 单条结果的标签上限
const MaxTags = 5

// categoryKeywords 分类关键词,按优先级排列,先匹配者胜出
var categoryKeywords = []struct {
	Category string
	Keywords []string
}{
	{"food", []string{"food", "foodie", "cuisine", "culinary", "restaurant", "dining", "cafe", "brunch", "street food", "wine", "beer", "tasting", "cooking", "baking", "chef"}},
	{"music", []string{"music", "concert", "jazz", "live band", "gig", "dj", "orchestra", "singer", "karaoke", "rock", "edm", "hip hop", "symphony"}},
	{"art", []string{"art", "arts", "gallery", "exhibition", "museum", "theatre", "theater", "painting", "craft", "photography", "dance", "heritage", "monument", "palace", "fort", "temple", "culture", "cultural"}},
	{"sports", []string{"sport", "sports", "marathon", "run", "cricket", "football", "cycling", "tournament", "match", "stadium", "kabaddi", "badminton"}},
	{"nightlife", []string{"nightlife", "party", "club", "pub", "bar", "night", "lounge", "comedy", "stand-up", "standup"}},
	{"outdoor", []string{"outdoor", "trek", "trekking", "hike", "hiking", "camping", "beach", "park", "garden", "lake", "nature", "waterfall", "wildlife", "safari"}},
	{"shopping", []string{"shopping", "market", "bazaar", "mall", "flea", "sale", "expo", "pop-up"}},
	{"family", []string{"family", "kids", "children", "zoo", "amusement", "theme park", "water park", "aquarium", "puppet"}},
	{"wellness", []string{"wellness", "yoga", "meditation", "spa", "fitness", "health", "mindfulness", "retreat"}},
}

// InferCategory 根据标题和描述推断分类
func InferCategory(title, description string) string {
	matched := matchCategories(title + " " + description)
	if len(matched) == 0 {
		return CategoryGeneral
	}
	return matched[0]
}

// BuildTags 由分类和标题生成去重标签,最多 MaxTags 个
func BuildTags(category, title string, placeType models.PlaceType) []string {
	var tags []string
	seen := make(map[string]bool)
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] || len(tags) >= MaxTags {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	add(category)
	add(string(placeType))
	for _, c := range matchCategories(title) {
		add(c)
	}
	for _, kw := range matchKeywords(title) {
		add(kw)
	}
	return tags
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+(?:-[a-z0-9]+)*`)

// matchCategories 按优先级返回文本命中的所有分类
func matchCategories(text string) []string {
	words, lower := tokenize(text)
	var out []string
	for _, entry := range categoryKeywords {
		for _, kw := range entry.Keywords {
			if keywordIn(kw, words, lower) {
				out = append(out, entry.Category)
				break
			}
		}
	}
	return out
}

// matchKeywords 返回文本命中的关键词
func matchKeywords(text string) []string {
	words, lower := tokenize(text)
	var out []string
	for _, entry := range categoryKeywords {
		for _, kw := range entry.Keywords {
			if keywordIn(kw, words, lower) {
				out = append(out, kw)
			}
		}
	}
	return out
}

func tokenize(text string) (map[string]bool, string) {
	lower := strings.ToLower(text)
	words := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(lower, -1) {
		words[w] = true
	}
	return words, " " + strings.Join(wordPattern.FindAllString(lower, -1), " ") + " "
}

// keywordIn 单词关键词按整词匹配,多词关键词按短语匹配
func keywordIn(kw string, words map[string]bool, normalized string) bool {
	if !strings.Contains(kw, " ") {
		return words[kw]
	}
	return strings.Contains(normalized, " "+kw+" ")
}

var pricePattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ParsePrice 解析价格文本: 包含 free 为0,否则取第一个数字,无数字返回nil
func ParsePrice(text string) *float64 {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}
	if strings.Contains(lower, "free") {
		zero := 0.0
		return &zero
	}

	match := pricePattern.FindString(lower)
	if match == "" {
		return nil
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &value
}

var ratingPattern = regexp.MustCompile(`\d(?:\.\d+)?`)

// ParseRating 解析0到5之间的评分
func ParseRating(text string) *float64 {
	match := ratingPattern.FindString(text)
	if match == "" {
		return nil
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil || value < 0 || value > 5 {
		return nil
	}
	return &value
}

// dateLayouts 带年份的日期格式,按顺序尝试
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Mon, 02 Jan 2006 15:04",
	"Mon, 02 Jan 2006",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"2 Jan, 2006",
	"02/01/2006",
}

// yearlessLayouts 不带年份的格式,年份取当前年
var yearlessLayouts = []string{
	"Mon, 02 Jan",
	"Mon, 2 Jan",
	"Mon, Jan 2",
	"2 Jan",
	"02 Jan",
	"2 January",
	"Jan 2",
	"January 2",
}

var (
	ordinalPattern = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)\b`)
	// 文本中的日期片段
	dateFragments = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:T\d{2}:\d{2}(?::\d{2})?(?:Z|[+-]\d{2}:\d{2})?)?`),
		regexp.MustCompile(`\d{1,2} [A-Za-z]{3,9},? \d{4}`),
		regexp.MustCompile(`[A-Za-z]{3,9} \d{1,2},? \d{4}`),
		regexp.MustCompile(`\d{1,2} [A-Za-z]{3,9}`),
		regexp.MustCompile(`[A-Za-z]{3,9} \d{1,2}`),
	}
)

// ParseDate 解析日期文本
// 依次尝试固定格式、去除序数词和时间后的格式、文本中的日期片段,全部失败返回nil
func ParseDate(text string, now time.Time) *time.Time {
	cleaned := collapseSpace(text)
	if cleaned == "" {
		return nil
	}
	if t, ok := parseLayouts(cleaned, now); ok {
		return &t
	}

	cleaned = ordinalPattern.ReplaceAllString(cleaned, "$1")
	// 日期范围只取起始日期
	for _, sep := range []string{" - ", " – ", " to ", " | ", " onwards"} {
		if idx := strings.Index(cleaned, sep); idx > 0 {
			cleaned = strings.TrimSpace(cleaned[:idx])
		}
	}
	if t, ok := parseLayouts(cleaned, now); ok {
		return &t
	}

	for _, pattern := range dateFragments {
		for _, fragment := range pattern.FindAllString(cleaned, -1) {
			if t, ok := parseLayouts(fragment, now); ok {
				return &t
			}
		}
	}
	return nil
}

func parseLayouts(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSuffix(strings.TrimSpace(text), ",")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	for _, layout := range yearlessLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
