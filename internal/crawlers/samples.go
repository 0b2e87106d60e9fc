package crawlers

import (
	"fmt"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
)

// sampleBaseURL 示例数据的占位地址
const sampleBaseURL = "https://poicrawler.local/samples"

type sampleEvent struct {
	title       string
	description string
	daysAhead   int
	price       float64
}

// 示例活动模板,标题前会加上城市名
var sampleEventTemplates = []sampleEvent{
	{"Live Jazz Night", "An evening of live jazz with local musicians.", 3, 799},
	{"Street Food Festival", "Regional street food stalls, chefs and tasting sessions.", 5, 0},
	{"Contemporary Art Exhibition", "Works from emerging artists at a city gallery.", 7, 300},
	{"Sunrise Yoga in the Park", "Guided yoga and meditation session for all levels.", 9, 0},
	{"Weekend Flea Market", "Vintage finds, handmade crafts and local brands.", 12, 0},
	{"City Half Marathon", "Timed 21k run through the city centre.", 20, 1500},
}

type sampleAttraction struct {
	name        string
	description string
	rating      float64
}

// 常用城市的示例景点
var sampleAttractionsByCity = map[string][]sampleAttraction{
	"mumbai": {
		{"Gateway of India", "Historic arch monument overlooking the Arabian Sea.", 4.6},
		{"Marine Drive", "Seafront promenade along the bay, popular at sunset.", 4.7},
		{"Chhatrapati Shivaji Maharaj Vastu Sangrahalaya", "Museum of art, archaeology and natural history.", 4.6},
		{"Sanjay Gandhi National Park", "Large protected park with trails and the Kanheri Caves.", 4.4},
	},
	"delhi": {
		{"Red Fort", "Mughal fort and UNESCO World Heritage Site.", 4.5},
		{"Qutub Minar", "Heritage minaret complex from the 12th century.", 4.6},
		{"India Gate", "War memorial surrounded by lawns and gardens.", 4.6},
		{"Lodhi Garden", "City park with 15th century tombs.", 4.6},
	},
	"bangalore": {
		{"Lalbagh Botanical Garden", "Historic botanical garden with a glass house.", 4.5},
		{"Cubbon Park", "Green park in the heart of the city.", 4.6},
		{"Bangalore Palace", "Tudor style palace with guided tours.", 4.2},
	},
	"goa": {
		{"Baga Beach", "Lively beach known for water sports and shacks.", 4.3},
		{"Basilica of Bom Jesus", "Baroque church and UNESCO heritage monument.", 4.6},
		{"Dudhsagar Falls", "Four-tiered waterfall in the Western Ghats.", 4.6},
		{"Anjuna Flea Market", "Weekly market for clothes, crafts and souvenirs.", 4.1},
	},
}

// 没有专属示例的城市使用通用景点
var genericSampleAttractions = []sampleAttraction{
	{"City Museum", "Museum covering the history and culture of the city.", 4.3},
	{"Central Park", "Large public park with walking trails.", 4.4},
	{"Old Town Market", "Traditional market with local food and crafts.", 4.2},
}

// sampleEvents 生成以 now 为基准的示例活动
func sampleEvents(city, country string, now time.Time) []models.CrawlResult {
	base := time.Date(now.Year(), now.Month(), now.Day(), 18, 0, 0, 0, time.UTC)
	citySlug := models.Slugify(city)

	results := make([]models.CrawlResult, 0, len(sampleEventTemplates))
	for _, tpl := range sampleEventTemplates {
		title := fmt.Sprintf("%s %s", city, tpl.title)
		start := base.AddDate(0, 0, tpl.daysAhead)
		price := tpl.price
		category := InferCategory(tpl.title, tpl.description)

		r := models.CrawlResult{
			Source: SourceSampleEvents,
			URL:    fmt.Sprintf("%s/%s/events/%s", sampleBaseURL, citySlug, models.Slugify(tpl.title)),
			Data: models.PlaceData{
				Name:        title,
				Description: tpl.description,
				Type:        models.PlaceTypeEvent,
				Category:    category,
				City:        city,
				Country:     country,
				StartDate:   &start,
				Price:       &price,
				Tags:        BuildTags(category, tpl.title, models.PlaceTypeEvent),
			},
		}
		r.SetExtra(models.ExtraSynthetic, "true")
		results = append(results, r)
	}
	return results
}

// sampleAttractions 返回城市的示例景点
func sampleAttractions(city, country string, _ time.Time) []models.CrawlResult {
	citySlug := models.Slugify(city)
	templates, ok := sampleAttractionsByCity[citySlug]
	if !ok {
		templates = genericSampleAttractions
	}

	results := make([]models.CrawlResult, 0, len(templates))
	for _, tpl := range templates {
		name := tpl.name
		if !ok {
			name = fmt.Sprintf("%s %s", city, tpl.name)
		}
		rating := tpl.rating
		category := InferCategory(tpl.name, tpl.description)

		r := models.CrawlResult{
			Source: SourceSampleAttractions,
			URL:    fmt.Sprintf("%s/%s/attractions/%s", sampleBaseURL, citySlug, models.Slugify(tpl.name)),
			Data: models.PlaceData{
				Name:        name,
				Description: tpl.description,
				Type:        models.PlaceTypeAttraction,
				Category:    category,
				City:        city,
				Country:     country,
				Rating:      &rating,
				Tags:        BuildTags(category, tpl.name, models.PlaceTypeAttraction),
			},
		}
		r.SetExtra(models.ExtraSynthetic, "true")
		results = append(results, r)
	}
	return results
}
