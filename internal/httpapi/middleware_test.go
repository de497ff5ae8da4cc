package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiterAllowsBurstThenRejects(t *testing.T) {
	l := NewIPRateLimiter(1, 2)
	assert.True(t, l.allow("1.2.3.4"))
	assert.True(t, l.allow("1.2.3.4"))
	assert.False(t, l.allow("1.2.3.4"))
}

func TestIPRateLimiterTracksIPsIndependently(t *testing.T) {
	l := NewIPRateLimiter(1, 1)
	assert.True(t, l.allow("1.1.1.1"))
	assert.True(t, l.allow("2.2.2.2"))
}

func TestQueryTokenAuthNoOpWhenAPIKeyEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(QueryTokenAuth(""))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
