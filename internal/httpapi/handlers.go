package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/citygrid/geoindex/internal/cache"
	"github.com/citygrid/geoindex/internal/geometry"
	"github.com/citygrid/geoindex/internal/metrics"
	"github.com/citygrid/geoindex/internal/query"
)

var validate = validator.New()

// EngineLookup resolves a region name to its loaded query engine. The
// server holds one Engine per ingested region, built once at startup.
type EngineLookup func(region string) (*query.Engine, bool)

// Server wires the query engines, optional response cache, and
// metrics into a gin.Engine exposing the API surface.
type Server struct {
	engines EngineLookup
	cache   *cache.ResponseCache
	logger  *zap.Logger
	ttl     time.Duration
}

// NewServer builds a Server. cache may be nil to run without response
// caching (e.g. in tests or when REDIS_ADDR is unreachable).
func NewServer(engines EngineLookup, responseCache *cache.ResponseCache, logger *zap.Logger) *Server {
	return &Server{engines: engines, cache: responseCache, logger: logger, ttl: 5 * time.Minute}
}

type coordQuery struct {
	Region string  `form:"region" validate:"required"`
	Lat    float64 `form:"lat" validate:"gte=-90,lte=90"`
	Lon    float64 `form:"lon" validate:"gte=-180,lte=180"`
}

type intersectQuery struct {
	coordQuery
	Heading float64 `form:"heading" validate:"gte=0,lt=360"`
}

func (s *Server) bindCoordQuery(c *gin.Context) (coordQuery, *APIError) {
	var q coordQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return q, errBadRequest(err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return q, errBadRequest(err.Error())
	}
	return q, nil
}

func (s *Server) engineFor(region string) (*query.Engine, *APIError) {
	e, ok := s.engines(region)
	if !ok {
		return nil, errNotFound(fmt.Sprintf("unknown region %q", region))
	}
	return e, nil
}

func writeError(c *gin.Context, err *APIError) {
	c.AbortWithStatusJSON(err.Status, err)
}

// addressesResponse mirrors the original's AddressOut model.
type addressesResponse struct {
	Count  int                    `json:"count"`
	Result []query.AddressResult `json:"result"`
}

// GetAddresses handles GET /addresses?region=&lat=&lon=.
func (s *Server) GetAddresses(c *gin.Context) {
	start := time.Now()
	q, apiErr := s.bindCoordQuery(c)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	engine, apiErr := s.engineFor(q.Region)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	key := fmt.Sprintf("addresses:%s:%f:%f", q.Region, q.Lat, q.Lon)
	var resp addressesResponse
	if s.cache != nil {
		if hit, err := s.cache.Get(c.Request.Context(), key, &resp); err == nil && hit {
			RecordCacheResult("addresses", true)
			c.JSON(http.StatusOK, resp)
			return
		}
		RecordCacheResult("addresses", false)
	}

	results := engine.NearestAddresses(geometry.Point{X: q.Lon, Y: q.Lat}, query.DefaultNearestCount)
	resp = addressesResponse{Count: len(results), Result: results}

	if s.cache != nil {
		if err := s.cache.Set(c.Request.Context(), key, resp, s.ttl); err != nil {
			s.logger.Warn("cache set failed", zap.Error(err))
		}
	}
	metrics.ObserveQuery("addresses", q.Region, start, len(results))
	c.JSON(http.StatusOK, resp)
}

type buildingsResponse struct {
	Count  int                    `json:"count"`
	Result []query.BuildingResult `json:"result"`
}

// GetBuildings handles GET /buildings?region=&lat=&lon=.
func (s *Server) GetBuildings(c *gin.Context) {
	start := time.Now()
	q, apiErr := s.bindCoordQuery(c)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	engine, apiErr := s.engineFor(q.Region)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	key := fmt.Sprintf("buildings:%s:%f:%f", q.Region, q.Lat, q.Lon)
	var resp buildingsResponse
	if s.cache != nil {
		if hit, err := s.cache.Get(c.Request.Context(), key, &resp); err == nil && hit {
			RecordCacheResult("buildings", true)
			c.JSON(http.StatusOK, resp)
			return
		}
		RecordCacheResult("buildings", false)
	}

	results := engine.NearestBuildings(geometry.Point{X: q.Lon, Y: q.Lat}, query.DefaultNearestCount)
	resp = buildingsResponse{Count: len(results), Result: results}

	if s.cache != nil {
		if err := s.cache.Set(c.Request.Context(), key, resp, s.ttl); err != nil {
			s.logger.Warn("cache set failed", zap.Error(err))
		}
	}
	metrics.ObserveQuery("buildings", q.Region, start, len(results))
	c.JSON(http.StatusOK, resp)
}

type intersectResponse struct {
	Count  int                       `json:"count"`
	Result []query.IntersectionResult `json:"result"`
}

// GetIntersect handles GET /intersect?region=&lat=&lon=&heading=. Not
// cached: a ray sweep is cheap relative to proximity lookups and the
// heading parameter gives it a much larger cardinality.
func (s *Server) GetIntersect(c *gin.Context) {
	start := time.Now()
	var q intersectQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, errBadRequest(err.Error()))
		return
	}
	if err := validate.Struct(q); err != nil {
		writeError(c, errBadRequest(err.Error()))
		return
	}
	engine, apiErr := s.engineFor(q.Region)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	results := engine.Intersect(geometry.Point{X: q.Lon, Y: q.Lat}, q.Heading)
	metrics.ObserveQuery("intersect", q.Region, start, len(results))
	c.JSON(http.StatusOK, intersectResponse{Count: len(results), Result: results})
}

// Health reports liveness of the server, host memory pressure, and, if
// wired, the response cache's backing Redis.
func (s *Server) Health(c *gin.Context) {
	status := gin.H{"status": "healthy"}

	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_used_percent"] = vm.UsedPercent
		if vm.UsedPercent > 90 {
			status["status"] = "critical"
		} else if vm.UsedPercent > 80 && status["status"] == "healthy" {
			status["status"] = "warning"
		}
	}

	if s.cache != nil {
		if err := s.cache.HealthCheck(c.Request.Context()); err != nil {
			status["status"] = "degraded"
			status["cache_error"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, status)
}
