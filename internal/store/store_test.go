package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("创建sqlmock失败: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	s := NewPostgresStore(sqlx.NewDb(mockDB, "postgres"))
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	return s, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("存在未满足的SQL期望: %v", err)
	}
}

func samplePlace() (models.NaturalKey, *models.Place) {
	key := models.NaturalKey{Title: "Jazz Night", City: "Mumbai", Type: models.PlaceTypeEvent}
	return key, &models.Place{
		ID:        "7f1c1c7e-0000-4000-8000-000000000001",
		SourceURL: "https://allevents.in/mumbai/jazz-night",
		Source:    "allevents",
		Category:  "music",
	}
}

func TestPostgresStore_FindOrUpsert(t *testing.T) {
	tests := []struct {
		name     string
		inserted bool
		want     UpsertOutcome
	}{
		{"新记录插入", true, OutcomeInserted},
		{"已有记录更新", false, OutcomeUpdated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			key, place := samplePlace()

			mock.ExpectQuery("INSERT INTO places").
				WithArgs(anyArgs(26)...).
				WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow("existing-id", tt.inserted))

			got, err := s.FindOrUpsert(context.Background(), key, place)
			if err != nil {
				t.Fatalf("写入失败: %v", err)
			}
			if got != tt.want {
				t.Errorf("期望 %s, 得到 %s", tt.want, got)
			}
			if place.ID != "existing-id" {
				t.Errorf("应回填数据库返回的ID, 得到 %s", place.ID)
			}
			if place.Title != "Jazz Night" || place.City != "Mumbai" {
				t.Errorf("自然键字段未写入记录: %+v", place)
			}
			expectationsMet(t, mock)
		})
	}
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func TestPostgresStore_FindOrUpsertError(t *testing.T) {
	s, mock := newMockStore(t)
	key, place := samplePlace()

	mock.ExpectQuery("INSERT INTO places").
		WithArgs(anyArgs(26)...).
		WillReturnError(errors.New("connection reset"))

	if _, err := s.FindOrUpsert(context.Background(), key, place); err == nil {
		t.Error("数据库错误应返回")
	}
	expectationsMet(t, mock)
}

func TestPostgresStore_Count(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM places`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if n != 42 {
		t.Errorf("期望 42, 得到 %d", n)
	}
	expectationsMet(t, mock)
}

func TestPostgresStore_GroupBy(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT city AS key, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).
			AddRow("Mumbai", 10).
			AddRow("Delhi", 4))

	got, err := s.GroupBy(context.Background(), "city")
	if err != nil {
		t.Fatalf("分组统计失败: %v", err)
	}
	if got["Mumbai"] != 10 || got["Delhi"] != 4 {
		t.Errorf("分组结果错误: %v", got)
	}
	expectationsMet(t, mock)
}

func TestPostgresStore_GroupByUnsupportedField(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.GroupBy(context.Background(), "title; DROP TABLE places")
	if !errors.Is(err, ErrUnsupportedField) {
		t.Errorf("期望 ErrUnsupportedField, 得到 %v", err)
	}
	expectationsMet(t, mock)
}

func TestPostgresStore_CountSince(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT.+WHERE updated_at").
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountSince(context.Background(), since)
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if n != 7 {
		t.Errorf("期望 7, 得到 %d", n)
	}
	expectationsMet(t, mock)
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS places").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("初始化表结构失败: %v", err)
	}
	expectationsMet(t, mock)
}

func TestMemoryStore_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key, _ := samplePlace()

	first, err := s.FindOrUpsert(ctx, key, &models.Place{Source: "allevents", SourceURL: "https://a/1"})
	if err != nil || first != OutcomeInserted {
		t.Fatalf("首次写入应为插入: %v %v", first, err)
	}

	price := 300.0
	second, err := s.FindOrUpsert(ctx, key, &models.Place{Source: "insider", SourceURL: "https://b/2", Price: &price})
	if err != nil || second != OutcomeUpdated {
		t.Fatalf("第二次写入应为更新: %v %v", second, err)
	}

	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("同一自然键只应有1条记录, 得到 %d", n)
	}

	got, ok := s.Get(key)
	if !ok {
		t.Fatal("记录不存在")
	}
	if got.Source != "insider" || got.Price == nil || *got.Price != 300 {
		t.Errorf("更新未生效: %+v", got)
	}
}

func TestMemoryStore_MergeKeepsExisting(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key, _ := samplePlace()

	rating := 4.5
	_, _ = s.FindOrUpsert(ctx, key, &models.Place{Description: "原始描述", Rating: &rating})
	_, _ = s.FindOrUpsert(ctx, key, &models.Place{Description: ""})

	got, _ := s.Get(key)
	if got.Description != "原始描述" {
		t.Errorf("空描述不应覆盖已有值, 得到 %q", got.Description)
	}
	if got.Rating == nil || *got.Rating != 4.5 {
		t.Error("缺失评分不应覆盖已有值")
	}
}

func TestMemoryStore_Aggregates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	_, _ = s.FindOrUpsert(ctx, models.NaturalKey{Title: "Old Fort", City: "Delhi", Type: models.PlaceTypeAttraction},
		&models.Place{Source: "holidify"})

	s.SetClock(func() time.Time { return base.Add(48 * time.Hour) })
	_, _ = s.FindOrUpsert(ctx, models.NaturalKey{Title: "Jazz Night", City: "Mumbai", Type: models.PlaceTypeEvent},
		&models.Place{Source: "allevents"})
	_, _ = s.FindOrUpsert(ctx, models.NaturalKey{Title: "Food Fair", City: "Mumbai", Type: models.PlaceTypeEvent},
		&models.Place{Source: "allevents"})

	byType, err := s.GroupBy(ctx, "type")
	if err != nil {
		t.Fatalf("分组失败: %v", err)
	}
	if byType["event"] != 2 || byType["attraction"] != 1 {
		t.Errorf("按类型分组错误: %v", byType)
	}

	recent, _ := s.CountSince(ctx, base.Add(24*time.Hour))
	if recent != 2 {
		t.Errorf("期望最近写入 2, 得到 %d", recent)
	}

	// 重新抓取到的旧记录也计入最近写入
	outcome, _ := s.FindOrUpsert(ctx, models.NaturalKey{Title: "Old Fort", City: "Delhi", Type: models.PlaceTypeAttraction},
		&models.Place{Source: "holidify"})
	if outcome != OutcomeUpdated {
		t.Fatalf("期望更新已有记录, 得到 %s", outcome)
	}
	recent, _ = s.CountSince(ctx, base.Add(24*time.Hour))
	if recent != 3 {
		t.Errorf("更新后期望最近写入 3, 得到 %d", recent)
	}

	if _, err := s.GroupBy(ctx, "price"); !errors.Is(err, ErrUnsupportedField) {
		t.Errorf("期望 ErrUnsupportedField, 得到 %v", err)
	}
}

func TestPostgresStore_UpsertKeepsCategory(t *testing.T) {
	s, mock := newMockStore(t)
	key, place := samplePlace()
	place.Category = ""

	// 空分类插入时默认 general,更新时保留已有分类
	mock.ExpectQuery(`VALUES \(\s*\$1, \$2, \$3, \$4, COALESCE\(NULLIF\(\$5::text, ''\), 'general'\)(.|\n)+category\s+= COALESCE\(NULLIF\(\$5::text, ''\), places\.category\)`).
		WithArgs(anyArgs(26)...).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow("existing-id", false))

	got, err := s.FindOrUpsert(context.Background(), key, place)
	if err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if got != OutcomeUpdated {
		t.Errorf("期望 %s, 得到 %s", OutcomeUpdated, got)
	}
	expectationsMet(t, mock)
}

func TestMemoryStore_KeepsCategory(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		want     string
	}{
		{"空分类保留已有值", "", "music"},
		{"新分类覆盖", "food", "food"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			ctx := context.Background()
			key := models.NaturalKey{Title: "Jazz Night", City: "Mumbai", Type: models.PlaceTypeEvent}

			_, _ = s.FindOrUpsert(ctx, key, &models.Place{Category: "music", Source: "allevents"})
			_, _ = s.FindOrUpsert(ctx, key, &models.Place{Category: tt.incoming, Source: "insider"})

			got, _ := s.Get(key)
			if got.Category != tt.want {
				t.Errorf("期望分类 %s, 得到 %s", tt.want, got.Category)
			}
		})
	}
}
