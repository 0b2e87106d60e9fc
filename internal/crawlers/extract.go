package crawlers

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
)

// ExtractStructuredData 解析页面中所有 ld+json 脚本
// 数组和 @graph 会被展开,无法解析的脚本被跳过
func ExtractStructuredData(doc *goquery.Document) []map[string]any {
	if doc == nil {
		return nil
	}

	var nodes []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			utils.Debugf("跳过无效的ld+json: %v", err)
			return
		}
		nodes = appendStructured(nodes, parsed)
	})
	return nodes
}

func appendStructured(nodes []map[string]any, v any) []map[string]any {
	switch value := v.(type) {
	case []any:
		for _, item := range value {
			nodes = appendStructured(nodes, item)
		}
	case map[string]any:
		if graph, ok := value["@graph"]; ok {
			return appendStructured(nodes, graph)
		}
		nodes = append(nodes, value)
	}
	return nodes
}

// SafeExtractText 提取选择器首个匹配元素的文本,失败或为空时返回默认值
// selector 为空时取 sel 自身文本
func SafeExtractText(sel *goquery.Selection, selector, def string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = def
		}
	}()

	if sel == nil {
		return def
	}
	target := sel
	if selector != "" {
		target = sel.Find(selector)
	}
	text = collapseSpace(target.First().Text())
	if text == "" {
		return def
	}
	return text
}

// SafeExtractAttribute 提取选择器首个匹配元素的属性,失败或为空时返回默认值
func SafeExtractAttribute(sel *goquery.Selection, selector, attr, def string) (value string) {
	defer func() {
		if r := recover(); r != nil {
			value = def
		}
	}()

	if sel == nil {
		return def
	}
	target := sel
	if selector != "" {
		target = sel.Find(selector)
	}
	value = strings.TrimSpace(target.First().AttrOr(attr, ""))
	if value == "" {
		return def
	}
	return value
}

// collapseSpace 合并连续空白
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// resolveURL 将相对链接解析为绝对URL,无法解析时返回空串
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// stringValue 从结构化数据中读取字符串或数字字段
func stringValue(node map[string]any, key string) string {
	switch v := node[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// objectValue 读取嵌套对象,数组时取第一个对象
func objectValue(node map[string]any, key string) map[string]any {
	switch v := node[key].(type) {
	case map[string]any:
		return v
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// typeMatches 判断节点的 @type 是否在给定集合中
func typeMatches(node map[string]any, types ...string) bool {
	var found []string
	switch v := node["@type"].(type) {
	case string:
		found = []string{v}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				found = append(found, s)
			}
		}
	}
	for _, f := range found {
		for _, t := range types {
			if strings.EqualFold(f, t) {
				return true
			}
		}
	}
	return false
}
