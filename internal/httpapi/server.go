package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds the knobs Router needs beyond the engine lookup and
// cache. cmd/server starts from DefaultConfig and sets APIKey from
// internal/config.Config; the rate limits keep their default values.
type Config struct {
	APIKey      string
	RateRPS     float64
	RateBurst   int
}

// DefaultConfig mirrors a permissive but non-trivial rate limit, used
// when the caller doesn't need to tune it.
var DefaultConfig = Config{RateRPS: 20, RateBurst: 40}

// Router builds the full gin.Engine: middleware chain, then routes.
func (s *Server) Router(cfg Config, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ZapLogger(logger))
	r.Use(CORS())
	r.Use(NewIPRateLimiter(cfg.RateRPS, cfg.RateBurst).Middleware())
	r.Use(QueryTokenAuth(cfg.APIKey))

	r.GET("/addresses", s.GetAddresses)
	r.GET("/buildings", s.GetBuildings)
	r.GET("/intersect", s.GetIntersect)
	r.GET("/health", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
