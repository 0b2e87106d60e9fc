package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// NaturalKey 地点的自然键: (标题, 城市, 类型)
type NaturalKey struct {
	Title string
	City  string
	Type  PlaceType
}

// String 返回可读形式,用于日志和内存索引
func (k NaturalKey) String() string {
	return k.Title + "|" + k.City + "|" + string(k.Type)
}

// Place 持久化的地点记录
type Place struct {
	ID            string         `db:"id" json:"id"`
	Title         string         `db:"title" json:"title"`
	Description   string         `db:"description" json:"description"`
	Type          PlaceType      `db:"type" json:"type"`
	Category      string         `db:"category" json:"category"`
	City          string         `db:"city" json:"city"`
	Country       string         `db:"country" json:"country"`
	StartDate     *time.Time     `db:"start_date" json:"start_date,omitempty"`
	EndDate       *time.Time     `db:"end_date" json:"end_date,omitempty"`
	Price         *float64       `db:"price" json:"price,omitempty"`
	ImageURL      string         `db:"image_url" json:"image_url"`
	SourceURL     string         `db:"source_url" json:"source_url"`
	Source        string         `db:"source" json:"source"`
	Tags          pq.StringArray `db:"tags" json:"tags"`
	Rating        *float64       `db:"rating" json:"rating,omitempty"`
	ReviewCount   *int           `db:"review_count" json:"review_count,omitempty"`
	Latitude      *float64       `db:"latitude" json:"latitude,omitempty"`
	Longitude     *float64       `db:"longitude" json:"longitude,omitempty"`
	Address       string         `db:"address" json:"address"`
	Website       string         `db:"website" json:"website"`
	Phone         string         `db:"phone" json:"phone"`
	OpeningHours  string         `db:"opening_hours" json:"opening_hours"`
	Features      pq.StringArray `db:"features" json:"features"`
	Accessibility pq.StringArray `db:"accessibility" json:"accessibility"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Key 返回自然键
func (p *Place) Key() NaturalKey {
	return NaturalKey{Title: p.Title, City: p.City, Type: p.Type}
}

// NewPlaceFromResult 把抓取结果转换成待写入的记录
func NewPlaceFromResult(r CrawlResult) *Place {
	d := r.Data
	p := &Place{
		ID:            NewID(),
		Title:         strings.TrimSpace(d.Name),
		Description:   d.Description,
		Type:          d.Type,
		Category:      d.Category,
		City:          strings.TrimSpace(d.City),
		Country:       d.Country,
		StartDate:     d.StartDate,
		EndDate:       d.EndDate,
		Price:         d.Price,
		ImageURL:      d.ImageURL,
		SourceURL:     r.URL,
		Source:        r.Source,
		Tags:          pq.StringArray(d.Tags),
		Rating:        d.Rating,
		ReviewCount:   d.ReviewCount,
		Address:       d.Address,
		Website:       d.Website,
		Phone:         d.Phone,
		OpeningHours:  d.OpeningHours,
		Features:      pq.StringArray(d.Features),
		Accessibility: pq.StringArray(d.Accessibility),
	}
	if d.Location != nil {
		lat, lng := d.Location.Lat, d.Location.Lng
		p.Latitude = &lat
		p.Longitude = &lng
	}
	return p
}
