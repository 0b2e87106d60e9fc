// Package store 持久化抓取到的地点,按 (标题, 城市, 类型) 去重
package store

import (
	"context"
	"errors"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
)

// UpsertOutcome 写入结果
type UpsertOutcome int

const (
	OutcomeInserted UpsertOutcome = iota // 新增
	OutcomeUpdated                       // 更新已有记录
)

// String 返回结果名称
func (o UpsertOutcome) String() string {
	if o == OutcomeInserted {
		return "inserted"
	}
	return "updated"
}

// ErrUnsupportedField 分组字段不在白名单内
var ErrUnsupportedField = errors.New("不支持的分组字段")

// groupableFields 允许分组统计的字段
var groupableFields = map[string]bool{
	"type":     true,
	"city":     true,
	"source":   true,
	"category": true,
}

// PlaceStore 地点存储
type PlaceStore interface {
	// FindOrUpsert 按自然键查找,存在则更新,否则插入
	FindOrUpsert(ctx context.Context, key models.NaturalKey, place *models.Place) (UpsertOutcome, error)
	// Count 记录总数
	Count(ctx context.Context) (int64, error)
	// GroupBy 按字段分组计数
	GroupBy(ctx context.Context, field string) (map[string]int64, error)
	// CountSince 指定时间之后新增或更新过的记录数
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

// applyKey 以自然键为准覆盖记录的对应字段
func applyKey(key models.NaturalKey, place *models.Place) {
	place.Title = key.Title
	place.City = key.City
	place.Type = key.Type
}
