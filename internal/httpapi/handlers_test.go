package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/citygrid/geoindex/internal/geometry"
	"github.com/citygrid/geoindex/internal/model"
	"github.com/citygrid/geoindex/internal/query"
	"github.com/citygrid/geoindex/internal/spatialindex"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testEngine() *query.Engine {
	addresses := []*model.Address{
		{Idx: 0, FullAddress: "100 MAIN ST", Region: "denver", Lon: 0, Lat: 0},
	}
	buildings := []*model.Building{
		{Idx: 0, Polygon: []geometry.Point{
			{X: -0.001, Y: -0.001}, {X: 0.001, Y: -0.001},
			{X: 0.001, Y: 0.001}, {X: -0.001, Y: 0.001},
		}},
	}

	addressItems := make([]spatialindex.Centered, len(addresses))
	addressPoints := make([]geometry.Point, len(addresses))
	addressIDs := make([]int, len(addresses))
	for i, a := range addresses {
		addressItems[i] = a
		addressPoints[i] = a.Center()
		addressIDs[i] = i
	}
	addressTree := spatialindex.NewRTreeFromPoints(addressIDs, addressPoints)

	buildingIDs := make([]int, len(buildings))
	buildingPoints := make([]geometry.Point, len(buildings))
	for i, b := range buildings {
		buildingIDs[i] = i
		buildingPoints[i] = b.Center()
	}
	buildingTree := spatialindex.NewRTreeFromPoints(buildingIDs, buildingPoints)

	return &query.Engine{
		Buildings:      buildings,
		Addresses:      addresses,
		BuildingFinder: query.NewRTreeFinder(buildingTree),
		AddressFinder:  query.NewRTreeFinder(addressTree),
	}
}

func testServer() (*Server, *query.Engine) {
	engine := testEngine()
	lookup := func(region string) (*query.Engine, bool) {
		if region != "denver" {
			return nil, false
		}
		return engine, true
	}
	return NewServer(lookup, nil, zap.NewNop()), engine
}

func TestGetAddressesReturnsNearest(t *testing.T) {
	s, _ := testServer()
	r := s.Router(DefaultConfig, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/addresses?region=denver&lat=0&lon=0", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "100 MAIN ST")
}

func TestGetAddressesUnknownRegionIs404(t *testing.T) {
	s, _ := testServer()
	r := s.Router(DefaultConfig, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/addresses?region=nowhere&lat=0&lon=0", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAddressesInvalidLatitudeIs400(t *testing.T) {
	s, _ := testServer()
	r := s.Router(DefaultConfig, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/addresses?region=denver&lat=999&lon=0", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetIntersectFindsBuilding(t *testing.T) {
	s, _ := testServer()
	r := s.Router(DefaultConfig, zap.NewNop())

	// Viewer south of the building looking north, so the ray enters and
	// exits the footprint (two edge hits).
	req := httptest.NewRequest(http.MethodGet, "/intersect?region=denver&lat=-0.01&lon=0&heading=0", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestQueryTokenAuthRejectsMismatch(t *testing.T) {
	s, _ := testServer()
	cfg := DefaultConfig
	cfg.APIKey = "secret"
	r := s.Router(cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/addresses?region=denver&lat=0&lon=0&token=wrong", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestQueryTokenAuthAcceptsMatch(t *testing.T) {
	s, _ := testServer()
	cfg := DefaultConfig
	cfg.APIKey = "secret"
	r := s.Router(cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/addresses?region=denver&lat=0&lon=0&token=secret", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthReportsMemoryUsageWithoutCache(t *testing.T) {
	s, _ := testServer()
	r := s.Router(DefaultConfig, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "memory_used_percent")
}
