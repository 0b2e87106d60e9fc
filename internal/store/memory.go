package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
)

// MemoryStore 进程内存储,用于 --dry-run 和测试
type MemoryStore struct {
	mu     sync.RWMutex
	places map[string]*models.Place
	now    func() time.Time

	// FailOn 返回非nil时该记录写入失败,测试用
	FailOn func(key models.NaturalKey) error
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		places: make(map[string]*models.Place),
		now:    time.Now,
	}
}

// SetClock 替换时间源
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FindOrUpsert 实现 PlaceStore 接口
func (s *MemoryStore) FindOrUpsert(ctx context.Context, key models.NaturalKey, place *models.Place) (UpsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeUpdated, err
	}
	if s.FailOn != nil {
		if err := s.FailOn(key); err != nil {
			return OutcomeUpdated, fmt.Errorf("写入地点失败 [%s]: %w", key.String(), err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applyKey(key, place)
	now := s.now()
	k := key.String()

	existing, ok := s.places[k]
	if !ok {
		stored := *place
		if stored.ID == "" {
			stored.ID = models.NewID()
		}
		if stored.Category == "" {
			stored.Category = "general"
		}
		stored.CreatedAt = now
		stored.UpdatedAt = now
		s.places[k] = &stored
		place.ID = stored.ID
		return OutcomeInserted, nil
	}

	mergePlace(existing, place)
	existing.UpdatedAt = now
	place.ID = existing.ID
	return OutcomeUpdated, nil
}

// mergePlace 与 PostgresStore 的 ON CONFLICT 规则保持一致
func mergePlace(dst, src *models.Place) {
	setString := func(d *string, v string) {
		if v != "" {
			*d = v
		}
	}
	setString(&dst.Description, src.Description)
	setString(&dst.Country, src.Country)
	setString(&dst.ImageURL, src.ImageURL)
	setString(&dst.Address, src.Address)
	setString(&dst.Website, src.Website)
	setString(&dst.Phone, src.Phone)
	setString(&dst.OpeningHours, src.OpeningHours)
	if src.Category != "" {
		dst.Category = src.Category
	}
	if src.StartDate != nil {
		dst.StartDate = src.StartDate
	}
	if src.EndDate != nil {
		dst.EndDate = src.EndDate
	}
	if src.Price != nil {
		dst.Price = src.Price
	}
	if src.Rating != nil {
		dst.Rating = src.Rating
	}
	if src.ReviewCount != nil {
		dst.ReviewCount = src.ReviewCount
	}
	if src.Latitude != nil {
		dst.Latitude = src.Latitude
	}
	if src.Longitude != nil {
		dst.Longitude = src.Longitude
	}
	dst.SourceURL = src.SourceURL
	dst.Source = src.Source
	dst.Tags = src.Tags
	dst.Features = src.Features
	dst.Accessibility = src.Accessibility
}

// Count 实现 PlaceStore 接口
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.places)), nil
}

// GroupBy 实现 PlaceStore 接口
func (s *MemoryStore) GroupBy(ctx context.Context, field string) (map[string]int64, error) {
	if !groupableFields[field] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedField, field)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int64)
	for _, p := range s.places {
		var v string
		switch field {
		case "type":
			v = string(p.Type)
		case "city":
			v = p.City
		case "source":
			v = p.Source
		case "category":
			v = p.Category
		}
		result[v]++
	}
	return result, nil
}

// CountSince 实现 PlaceStore 接口
func (s *MemoryStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, p := range s.places {
		if !p.UpdatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Get 按自然键读取副本
func (s *MemoryStore) Get(key models.NaturalKey) (models.Place, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.places[key.String()]
	if !ok {
		return models.Place{}, false
	}
	return *p, true
}
