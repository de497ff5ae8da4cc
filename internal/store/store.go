// Package store persists Address, Building, Street, and Bucket
// records to Postgres through typed repositories built on sqlx. There
// is no ORM layer: each repository owns its own SQL. Bulk inserts send
// batchSize rows per statement; bulk updates issue one statement per
// record. Batches are not wrapped in transactions.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/citygrid/geoindex/internal/model"
)

// batchSize bounds how many rows a single INSERT statement touches,
// keeping parameter counts and statement size reasonable for
// Postgres's placeholder limit.
const batchSize = 100

// Open connects to Postgres and verifies the connection with a ping.
func Open(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return db, nil
}

func chunk[T any](items []T, size int) [][]T {
	var chunks [][]T
	for size < len(items) {
		items, chunks = items[size:], append(chunks, items[:size:size])
	}
	if len(items) > 0 {
		chunks = append(chunks, items)
	}
	return chunks
}

// AddressRepository persists Address records.
type AddressRepository struct{ db *sqlx.DB }

func NewAddressRepository(db *sqlx.DB) *AddressRepository { return &AddressRepository{db: db} }

// BulkCreate inserts addresses in batches of batchSize, using sqlx's
// named-parameter binding so the struct's db tags drive the column
// list directly.
func (r *AddressRepository) BulkCreate(ctx context.Context, addresses []*model.Address) error {
	const insert = `
		INSERT INTO addresses (
			idx, region, building_type, address_1, address_2, predirective,
			postdirective, street_name, post_type, unit_type, unit_identifier,
			full_address, lon, lat, bucket_idx, building_idx, street_idx
		) VALUES (
			:idx, :region, :building_type, :address_1, :address_2, :predirective,
			:postdirective, :street_name, :post_type, :unit_type, :unit_identifier,
			:full_address, :lon, :lat, :bucket_idx, :building_idx, :street_idx
		)`
	for _, batch := range chunk(addresses, batchSize) {
		if _, err := r.db.NamedExecContext(ctx, insert, batch); err != nil {
			return fmt.Errorf("store: bulk create addresses: %w", err)
		}
	}
	return nil
}

// BulkUpdate rewrites the given fields (bucket_idx, building_idx,
// street_idx after consolidation) for the given addresses, keyed by
// idx+region, with one UPDATE statement per address.
func (r *AddressRepository) BulkUpdate(ctx context.Context, addresses []*model.Address, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	setClauses := make([]string, len(fields))
	for i, f := range fields {
		setClauses[i] = fmt.Sprintf("%s = :%s", f, f)
	}
	query := fmt.Sprintf(
		"UPDATE addresses SET %s WHERE idx = :idx AND region = :region",
		strings.Join(setClauses, ", "),
	)
	for _, batch := range chunk(addresses, batchSize) {
		for _, a := range batch {
			if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
				return fmt.Errorf("store: bulk update addresses: %w", err)
			}
		}
	}
	return nil
}

// SelectByRegion loads every address for a region, ordered by idx so
// the returned slice is positionally aligned with the dense idx values
// query.Engine and spatialindex use as direct slice indices.
func (r *AddressRepository) SelectByRegion(ctx context.Context, region string) ([]*model.Address, error) {
	var addresses []*model.Address
	err := r.db.SelectContext(ctx, &addresses, `SELECT * FROM addresses WHERE region = $1 ORDER BY idx`, region)
	if err != nil {
		return nil, fmt.Errorf("store: select addresses: %w", err)
	}
	return addresses, nil
}

// SelectByIdxs loads addresses by (region, idx) pairs' idx list,
// scoped to a region, using sqlx.In to expand the IN clause.
func (r *AddressRepository) SelectByIdxs(ctx context.Context, region string, idxs []int) ([]*model.Address, error) {
	if len(idxs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM addresses WHERE region = ? AND idx IN (?)`, region, idxs)
	if err != nil {
		return nil, fmt.Errorf("store: build select-by-idxs query: %w", err)
	}
	query = r.db.Rebind(query)

	var addresses []*model.Address
	if err := r.db.SelectContext(ctx, &addresses, query, args...); err != nil {
		return nil, fmt.Errorf("store: select addresses by idx: %w", err)
	}
	return addresses, nil
}

// BuildingRepository persists Building records, including the
// footprint ring: Polygon is a model.PolygonRing, which implements
// driver.Valuer/sql.Scanner to round-trip as a jsonb column, so the
// same INSERT/SELECT covers it with no separate statement.
// AddressIdxs stays `db:"-"`: it is a query-time-only back-reference,
// never read from the store directly.
type BuildingRepository struct{ db *sqlx.DB }

func NewBuildingRepository(db *sqlx.DB) *BuildingRepository { return &BuildingRepository{db: db} }

func (r *BuildingRepository) BulkCreate(ctx context.Context, buildings []*model.Building) error {
	const insert = `
		INSERT INTO buildings (
			idx, region, height, ground_elevation, building_type, polygon, bucket_idx
		) VALUES (
			:idx, :region, :height, :ground_elevation, :building_type, :polygon, :bucket_idx
		)`
	for _, batch := range chunk(buildings, batchSize) {
		if _, err := r.db.NamedExecContext(ctx, insert, batch); err != nil {
			return fmt.Errorf("store: bulk create buildings: %w", err)
		}
	}
	return nil
}

func (r *BuildingRepository) BulkUpdate(ctx context.Context, buildings []*model.Building, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	setClauses := make([]string, len(fields))
	for i, f := range fields {
		setClauses[i] = fmt.Sprintf("%s = :%s", f, f)
	}
	query := fmt.Sprintf(
		"UPDATE buildings SET %s WHERE idx = :idx AND region = :region",
		strings.Join(setClauses, ", "),
	)
	for _, batch := range chunk(buildings, batchSize) {
		for _, b := range batch {
			if _, err := r.db.NamedExecContext(ctx, query, b); err != nil {
				return fmt.Errorf("store: bulk update buildings: %w", err)
			}
		}
	}
	return nil
}

// SelectByRegion loads every building for a region, ordered by idx for
// the same positional-alignment reason as AddressRepository.SelectByRegion.
func (r *BuildingRepository) SelectByRegion(ctx context.Context, region string) ([]*model.Building, error) {
	var buildings []*model.Building
	err := r.db.SelectContext(ctx, &buildings, `SELECT * FROM buildings WHERE region = $1 ORDER BY idx`, region)
	if err != nil {
		return nil, fmt.Errorf("store: select buildings: %w", err)
	}
	return buildings, nil
}

func (r *BuildingRepository) SelectByIdxs(ctx context.Context, region string, idxs []int) ([]*model.Building, error) {
	if len(idxs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM buildings WHERE region = ? AND idx IN (?)`, region, idxs)
	if err != nil {
		return nil, fmt.Errorf("store: build select-by-idxs query: %w", err)
	}
	query = r.db.Rebind(query)

	var buildings []*model.Building
	if err := r.db.SelectContext(ctx, &buildings, query, args...); err != nil {
		return nil, fmt.Errorf("store: select buildings by idx: %w", err)
	}
	return buildings, nil
}

// StreetRepository persists Street records.
type StreetRepository struct{ db *sqlx.DB }

func NewStreetRepository(db *sqlx.DB) *StreetRepository { return &StreetRepository{db: db} }

func (r *StreetRepository) BulkCreate(ctx context.Context, streets []*model.Street) error {
	const insert = `
		INSERT INTO streets (
			idx, region, l_min_addr, l_max_addr, r_min_addr, r_max_addr,
			prefix, name, street_type, suffix, full_name
		) VALUES (
			:idx, :region, :l_min_addr, :l_max_addr, :r_min_addr, :r_max_addr,
			:prefix, :name, :street_type, :suffix, :full_name
		)`
	for _, batch := range chunk(streets, batchSize) {
		if _, err := r.db.NamedExecContext(ctx, insert, batch); err != nil {
			return fmt.Errorf("store: bulk create streets: %w", err)
		}
	}
	return nil
}

func (r *StreetRepository) SelectByRegion(ctx context.Context, region string) ([]*model.Street, error) {
	var streets []*model.Street
	err := r.db.SelectContext(ctx, &streets, `SELECT * FROM streets WHERE region = $1`, region)
	if err != nil {
		return nil, fmt.Errorf("store: select streets: %w", err)
	}
	return streets, nil
}

// BucketRepository persists the single Bucket record (grid extent +
// resolution) per region.
type BucketRepository struct{ db *sqlx.DB }

func NewBucketRepository(db *sqlx.DB) *BucketRepository { return &BucketRepository{db: db} }

func (r *BucketRepository) Upsert(ctx context.Context, b *model.Bucket) error {
	const upsert = `
		INSERT INTO buckets (region, min_x, min_y, max_x, max_y, n_grid)
		VALUES (:region, :min_x, :min_y, :max_x, :max_y, :n_grid)
		ON CONFLICT (region) DO UPDATE SET
			min_x = EXCLUDED.min_x, min_y = EXCLUDED.min_y,
			max_x = EXCLUDED.max_x, max_y = EXCLUDED.max_y,
			n_grid = EXCLUDED.n_grid`
	if _, err := r.db.NamedExecContext(ctx, upsert, b); err != nil {
		return fmt.Errorf("store: upsert bucket: %w", err)
	}
	return nil
}

func (r *BucketRepository) Get(ctx context.Context, region string) (*model.Bucket, error) {
	var b model.Bucket
	err := r.db.GetContext(ctx, &b, `SELECT * FROM buckets WHERE region = $1`, region)
	if err != nil {
		return nil, fmt.Errorf("store: get bucket: %w", err)
	}
	return &b, nil
}
