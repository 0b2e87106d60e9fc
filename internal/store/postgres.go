package store

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS places (
	id            UUID PRIMARY KEY,
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT 'general',
	city          TEXT NOT NULL,
	country       TEXT NOT NULL DEFAULT '',
	start_date    TIMESTAMPTZ,
	end_date      TIMESTAMPTZ,
	price         DOUBLE PRECISION,
	image_url     TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL,
	source        TEXT NOT NULL,
	tags          TEXT[] NOT NULL DEFAULT '{}',
	rating        DOUBLE PRECISION,
	review_count  INTEGER,
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	address       TEXT NOT NULL DEFAULT '',
	website       TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	opening_hours TEXT NOT NULL DEFAULT '',
	features      TEXT[] NOT NULL DEFAULT '{}',
	accessibility TEXT[] NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (title, city, type)
);
CREATE INDEX IF NOT EXISTS idx_places_city ON places (city);
CREATE INDEX IF NOT EXISTS idx_places_updated_at ON places (updated_at);
`

// 可空字段仅在新值非空时覆盖
const upsertPlaceSQL = `
INSERT INTO places (
	id, title, description, type, category, city, country,
	start_date, end_date, price, image_url, source_url, source, tags,
	rating, review_count, latitude, longitude, address, website, phone,
	opening_hours, features, accessibility, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, COALESCE(NULLIF($5::text, ''), 'general'), $6, $7, $8, $9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
)
ON CONFLICT (title, city, type) DO UPDATE SET
	description   = COALESCE(NULLIF(EXCLUDED.description, ''), places.description),
	category      = COALESCE(NULLIF($5::text, ''), places.category),
	country       = COALESCE(NULLIF(EXCLUDED.country, ''), places.country),
	start_date    = COALESCE(EXCLUDED.start_date, places.start_date),
	end_date      = COALESCE(EXCLUDED.end_date, places.end_date),
	price         = COALESCE(EXCLUDED.price, places.price),
	image_url     = COALESCE(NULLIF(EXCLUDED.image_url, ''), places.image_url),
	source_url    = EXCLUDED.source_url,
	source        = EXCLUDED.source,
	tags          = EXCLUDED.tags,
	rating        = COALESCE(EXCLUDED.rating, places.rating),
	review_count  = COALESCE(EXCLUDED.review_count, places.review_count),
	latitude      = COALESCE(EXCLUDED.latitude, places.latitude),
	longitude     = COALESCE(EXCLUDED.longitude, places.longitude),
	address       = COALESCE(NULLIF(EXCLUDED.address, ''), places.address),
	website       = COALESCE(NULLIF(EXCLUDED.website, ''), places.website),
	phone         = COALESCE(NULLIF(EXCLUDED.phone, ''), places.phone),
	opening_hours = COALESCE(NULLIF(EXCLUDED.opening_hours, ''), places.opening_hours),
	features      = EXCLUDED.features,
	accessibility = EXCLUDED.accessibility,
	updated_at    = EXCLUDED.updated_at
RETURNING id, (xmax = 0) AS inserted
`

// PostgresStore 基于PostgreSQL的地点存储
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresStore 包装已有连接
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// OpenPostgres 连接数据库并配置连接池
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return NewPostgresStore(db), nil
}

// EnsureSchema 创建表和索引(幂等)
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("初始化表结构失败: %w", err)
	}
	return nil
}

// FindOrUpsert 实现 PlaceStore 接口
func (s *PostgresStore) FindOrUpsert(ctx context.Context, key models.NaturalKey, place *models.Place) (UpsertOutcome, error) {
	applyKey(key, place)
	if place.ID == "" {
		place.ID = models.NewID()
	}
	place.Tags = nonNilArray(place.Tags)
	place.Features = nonNilArray(place.Features)
	place.Accessibility = nonNilArray(place.Accessibility)
	now := s.now()
	place.CreatedAt = now
	place.UpdatedAt = now

	var (
		returnedID string
		inserted   bool
	)
	err := s.db.QueryRowContext(ctx, upsertPlaceSQL,
		place.ID,
		place.Title,
		place.Description,
		string(place.Type),
		place.Category,
		place.City,
		place.Country,
		place.StartDate,
		place.EndDate,
		place.Price,
		place.ImageURL,
		place.SourceURL,
		place.Source,
		place.Tags,
		place.Rating,
		place.ReviewCount,
		place.Latitude,
		place.Longitude,
		place.Address,
		place.Website,
		place.Phone,
		place.OpeningHours,
		place.Features,
		place.Accessibility,
		place.CreatedAt,
		place.UpdatedAt,
	).Scan(&returnedID, &inserted)
	if err != nil {
		return OutcomeUpdated, fmt.Errorf("写入地点失败 [%s]: %w", key.String(), err)
	}

	place.ID = returnedID
	if inserted {
		return OutcomeInserted, nil
	}
	return OutcomeUpdated, nil
}

func nonNilArray(a pq.StringArray) pq.StringArray {
	if a == nil {
		return pq.StringArray{}
	}
	return a
}

// Count 实现 PlaceStore 接口
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM places`); err != nil {
		return 0, fmt.Errorf("统计地点总数失败: %w", err)
	}
	return n, nil
}

type groupRow struct {
	Key   string `db:"key"`
	Count int64  `db:"count"`
}

// GroupBy 实现 PlaceStore 接口,field 必须在白名单内
func (s *PostgresStore) GroupBy(ctx context.Context, field string) (map[string]int64, error) {
	if !groupableFields[field] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedField, field)
	}

	query := fmt.Sprintf(`SELECT %s AS key, COUNT(*) AS count FROM places GROUP BY %s`, field, field)
	var rows []groupRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("按 %s 分组统计失败: %w", field, err)
	}

	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.Key] = r.Count
	}
	return result, nil
}

// CountSince 实现 PlaceStore 接口
func (s *PostgresStore) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM places WHERE updated_at >= $1`, since); err != nil {
		return 0, fmt.Errorf("统计新增地点失败: %w", err)
	}
	return n, nil
}

// Close 关闭数据库连接
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
