package crawlers

import (
	"fmt"

	"github.com/RecoveryAshes/poicrawler/internal/models"
)

// SourceSampleEvents 内置示例活动的来源标记
const SourceSampleEvents = "sample-events"

// EventSources 活动列表页来源
var EventSources = []ListingSource{
	{
		Name: "allevents",
		URL: func(city, _ string) string {
			return fmt.Sprintf("https://allevents.in/%s/all", city)
		},
	},
	{
		Name: "insider",
		URL: func(city, _ string) string {
			return fmt.Sprintf("https://insider.in/all-events-in-%s", city)
		},
	},
	{
		Name: "eventbrite",
		URL: func(city, country string) string {
			if country == "" {
				country = "india"
			}
			return fmt.Sprintf("https://www.eventbrite.com/d/%s--%s/events/", country, city)
		},
	},
}

// EventCrawler 城市活动提取器
type EventCrawler struct {
	*listingCrawler
}

// NewEventCrawler 创建活动提取器,sources 为空时使用 EventSources
func NewEventCrawler(engine *Engine, sources ...ListingSource) *EventCrawler {
	if len(sources) == 0 {
		sources = EventSources
	}
	c := &EventCrawler{}
	c.listingCrawler = &listingCrawler{
		Engine:      engine,
		placeType:   models.PlaceTypeEvent,
		sources:     sources,
		strategies:  eventStrategies(),
		cacheTTL:    engine.config.EventCacheTTL,
		samples:     sampleEvents,
		filterDates: true,
	}
	c.normalize = c.normalizeEvent
	return c
}

// normalizeEvent 将卡片字段转为活动结果
func (c *EventCrawler) normalizeEvent(raw rawCard, src ListingSource, params models.CrawlParams) (models.CrawlResult, bool) {
	category := InferCategory(raw.Title, raw.Description)

	result := models.CrawlResult{
		Source: src.Name,
		URL:    raw.Link,
		Data: models.PlaceData{
			Name:        raw.Title,
			Description: raw.Description,
			Type:        models.PlaceTypeEvent,
			Category:    category,
			City:        params.City,
			Country:     params.Country,
			StartDate:   ParseDate(raw.DateText, c.now()),
			Price:       ParsePrice(raw.PriceText),
			ImageURL:    raw.Image,
			Tags:        BuildTags(category, raw.Title, models.PlaceTypeEvent),
		},
	}
	result.SetExtra(models.ExtraDateText, raw.DateText)
	result.SetExtra(models.ExtraPriceText, raw.PriceText)
	return result, result.Validate() == nil
}
