package crawlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/poicrawler/internal/browser"
	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/RecoveryAshes/poicrawler/internal/utils"
)

// SourceSampleAttractions 内置示例景点的来源标记
const SourceSampleAttractions = "sample-attractions"

// AttractionSources 景点列表页来源
var AttractionSources = []ListingSource{
	{
		Name: "holidify",
		URL: func(city, _ string) string {
			return fmt.Sprintf("https://www.holidify.com/places/%s/sightseeing-and-things-to-do.html", city)
		},
	},
	{
		Name: "thrillophilia",
		URL: func(city, _ string) string {
			return fmt.Sprintf("https://www.thrillophilia.com/cities/%s/things-to-do", city)
		},
	},
}

// placeSchemaTypes 详情页中描述景点的 schema.org 类型
var placeSchemaTypes = []string{
	"TouristAttraction", "LandmarksOrHistoricalBuildings", "Museum", "Park",
	"Place", "LocalBusiness", "PlaceOfWorship", "Zoo", "Aquarium", "Beach",
	"AmusementPark", "Landform", "CivicStructure",
}

// AttractionCrawler 城市景点提取器
type AttractionCrawler struct {
	*listingCrawler
}

// NewAttractionCrawler 创建景点提取器,sources 为空时使用 AttractionSources
func NewAttractionCrawler(engine *Engine, sources ...ListingSource) *AttractionCrawler {
	if len(sources) == 0 {
		sources = AttractionSources
	}
	c := &AttractionCrawler{}
	c.listingCrawler = &listingCrawler{
		Engine:     engine,
		placeType:  models.PlaceTypeAttraction,
		sources:    sources,
		strategies: attractionStrategies(),
		cacheTTL:   engine.config.AttractionCacheTTL,
		samples:    sampleAttractions,
	}
	c.normalize = c.normalizeAttraction
	c.enrich = c.enrichDetails
	return c
}

// normalizeAttraction 将卡片字段转为景点结果
func (c *AttractionCrawler) normalizeAttraction(raw rawCard, src ListingSource, params models.CrawlParams) (models.CrawlResult, bool) {
	category := InferCategory(raw.Title, raw.Description)

	result := models.CrawlResult{
		Source: src.Name,
		URL:    raw.Link,
		Data: models.PlaceData{
			Name:        raw.Title,
			Description: raw.Description,
			Type:        models.PlaceTypeAttraction,
			Category:    category,
			City:        params.City,
			Country:     params.Country,
			Price:       ParsePrice(raw.PriceText),
			ImageURL:    raw.Image,
			Rating:      ParseRating(raw.RatingText),
			Tags:        BuildTags(category, raw.Title, models.PlaceTypeAttraction),
		},
	}
	result.SetExtra(models.ExtraPriceText, raw.PriceText)
	return result, result.Validate() == nil
}

// placeDetail 详情页中提取的补充信息
type placeDetail struct {
	URL  string
	Node map[string]any
	Doc  *goquery.Document
}

// enrichDetails 并发打开详情页,用结构化数据补全评分、坐标、地址等字段
func (c *AttractionCrawler) enrichDetails(ctx context.Context, results []models.CrawlResult) []models.CrawlResult {
	var urls []string
	seen := make(map[string]bool)
	for _, r := range results {
		if r.IsSynthetic() || seen[r.URL] {
			continue
		}
		if c.config.MaxDetailPages > 0 && len(urls) >= c.config.MaxDetailPages {
			break
		}
		seen[r.URL] = true
		urls = append(urls, r.URL)
	}
	if len(urls) == 0 {
		return results
	}

	utils.Infof("📄 [%s] 补充 %d 个详情页", c.Name(), len(urls))
	details := BatchProcess(ctx, c.Engine, urls, c.config.MaxConcurrency,
		func(ctx context.Context, page browser.Page, url string) (placeDetail, error) {
			if err := c.NavigateWithRetry(ctx, page, url); err != nil {
				return placeDetail{}, err
			}
			doc, err := documentFromPage(page)
			if err != nil {
				return placeDetail{}, err
			}
			return placeDetail{URL: url, Node: findPlaceNode(ExtractStructuredData(doc)), Doc: doc}, nil
		})

	byURL := make(map[string]placeDetail, len(details))
	for _, d := range details {
		byURL[d.URL] = d
	}
	for i := range results {
		if d, ok := byURL[results[i].URL]; ok {
			applyDetail(&results[i].Data, d)
		}
	}
	return results
}

// findPlaceNode 选出描述地点的结构化节点
func findPlaceNode(nodes []map[string]any) map[string]any {
	for _, node := range nodes {
		if typeMatches(node, placeSchemaTypes...) {
			return node
		}
	}
	for _, node := range nodes {
		if _, ok := node["geo"]; ok {
			return node
		}
		if _, ok := node["aggregateRating"]; ok {
			return node
		}
	}
	return nil
}

// applyDetail 只填充卡片上缺失的字段
func applyDetail(data *models.PlaceData, d placeDetail) {
	if d.Node != nil {
		applyStructured(data, d.Node)
	}
	if d.Doc != nil && data.Description == "" {
		data.Description = SafeExtractAttribute(d.Doc.Selection, `meta[name="description"]`, "content", "")
	}
}

func applyStructured(data *models.PlaceData, node map[string]any) {
	if data.Description == "" {
		data.Description = stringValue(node, "description")
	}
	if data.ImageURL == "" {
		data.ImageURL = stringValue(node, "image")
	}

	if rating := objectValue(node, "aggregateRating"); rating != nil {
		if data.Rating == nil {
			data.Rating = ParseRating(stringValue(rating, "ratingValue"))
		}
		if data.ReviewCount == nil {
			count := stringValue(rating, "reviewCount")
			if count == "" {
				count = stringValue(rating, "ratingCount")
			}
			if n, err := strconv.Atoi(count); err == nil {
				data.ReviewCount = &n
			}
		}
	}

	if geo := objectValue(node, "geo"); geo != nil && data.Location == nil {
		lat, errLat := strconv.ParseFloat(stringValue(geo, "latitude"), 64)
		lng, errLng := strconv.ParseFloat(stringValue(geo, "longitude"), 64)
		if errLat == nil && errLng == nil {
			data.Location = &models.GeoPoint{Lat: lat, Lng: lng}
		}
	}

	if data.Address == "" {
		data.Address = addressValue(node)
	}
	if data.Phone == "" {
		data.Phone = stringValue(node, "telephone")
	}
	if data.Website == "" {
		data.Website = stringValue(node, "sameAs")
		if data.Website == "" {
			data.Website = stringValue(node, "url")
		}
	}
	if data.OpeningHours == "" {
		data.OpeningHours = openingHoursValue(node)
	}
	if data.Price == nil && isTrue(node["isAccessibleForFree"]) {
		zero := 0.0
		data.Price = &zero
	}

	for _, feature := range namedList(node, "amenityFeature") {
		data.Features = appendUnique(data.Features, feature)
		if strings.Contains(strings.ToLower(feature), "wheelchair") {
			data.Accessibility = appendUnique(data.Accessibility, feature)
		}
	}
	for _, feature := range namedList(node, "accessibilityFeature") {
		data.Accessibility = appendUnique(data.Accessibility, feature)
	}
}

// addressValue 地址可能是字符串或 PostalAddress 对象
func addressValue(node map[string]any) string {
	if s := stringValue(node, "address"); s != "" {
		return s
	}
	addr := objectValue(node, "address")
	if addr == nil {
		return ""
	}
	var parts []string
	for _, key := range []string{"streetAddress", "addressLocality", "addressRegion", "postalCode"} {
		if v := stringValue(addr, key); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

func openingHoursValue(node map[string]any) string {
	switch v := node["openingHours"].(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		var parts []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

// namedList 读取字符串数组或带 name 字段的对象数组
func namedList(node map[string]any, key string) []string {
	var out []string
	switch v := node[key].(type) {
	case string:
		out = append(out, v)
	case []any:
		for _, item := range v {
			switch entry := item.(type) {
			case string:
				out = append(out, entry)
			case map[string]any:
				if name := stringValue(entry, "name"); name != "" {
					out = append(out, name)
				}
			}
		}
	}
	return out
}

func isTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}

func appendUnique(list []string, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, value) {
			return list
		}
	}
	return append(list, value)
}
