package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citygrid/geoindex/internal/model"
)

func TestChunkSplitsIntoBoundedBatches(t *testing.T) {
	items := make([]int, 250)
	for i := range items {
		items[i] = i
	}
	batches := chunk(items, batchSize)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 100)
	assert.Len(t, batches[1], 100)
	assert.Len(t, batches[2], 50)
}

func TestChunkEmptyInputYieldsNoBatches(t *testing.T) {
	var items []int
	assert.Empty(t, chunk(items, batchSize))
}

// testDB connects to a real Postgres instance if TEST_DATABASE_URL is
// set, mirroring the pack's container-or-skip integration test shape.
// Without it, these tests are skipped rather than faked: a repository
// whose only job is SQL shouldn't be exercised against a mock dialect.
func testDB(t *testing.T) *AddressRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set - requires a live Postgres instance")
	}
	db, err := Open(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAddressRepository(db)
}

func testBuildingDB(t *testing.T) *BuildingRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set - requires a live Postgres instance")
	}
	db, err := Open(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBuildingRepository(db)
}

func TestAddressRepositoryBulkCreateAndSelectByRegion(t *testing.T) {
	repo := testDB(t)
	ctx := context.Background()

	house := 1437
	addr := &model.Address{Idx: 0, Region: "test_region", FullAddress: "1437 BANNOCK ST", Address1: &house, Lon: -104.99, Lat: 39.74}
	require.NoError(t, repo.BulkCreate(ctx, []*model.Address{addr}))

	got, err := repo.SelectByRegion(ctx, "test_region")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1437 BANNOCK ST", got[0].FullAddress)
}

// TestBuildingRepositoryRoundTripsPolygon guards against the footprint
// ring silently dropping out on the way to/from Postgres: every query
// downstream (bbox, center, MBR edges) depends on it surviving intact.
func TestBuildingRepositoryRoundTripsPolygon(t *testing.T) {
	repo := testBuildingDB(t)
	ctx := context.Background()

	ring := model.PolygonRing{
		{X: -104.991, Y: 39.741},
		{X: -104.990, Y: 39.741},
		{X: -104.990, Y: 39.742},
		{X: -104.991, Y: 39.742},
	}
	b := &model.Building{Idx: 0, Region: "test_region_polygon", Polygon: ring}
	require.NoError(t, repo.BulkCreate(ctx, []*model.Building{b}))

	got, err := repo.SelectByRegion(ctx, "test_region_polygon")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Polygon, 4)
	assert.Equal(t, ring[0], got[0].Polygon[0])
}
