package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterStoreAllow(t *testing.T) {
	s := NewLimiterStore(5, 5, time.Minute)
	defer s.Stop()

	for i := 0; i < 5; i++ {
		require.True(t, s.Allow("k"), "expected allow at iteration %d", i)
	}
	assert.False(t, s.Allow("k"))
	// Independent keys have independent budgets.
	assert.True(t, s.Allow("other"))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewLimiterStore(1, 1, time.Minute)
	defer s.Stop()

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", int64(7)) }, RateLimit(s))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
