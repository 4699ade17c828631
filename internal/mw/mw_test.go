package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCache_KeyedPerViewer(t *testing.T) {
	calls := 0
	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute))
	r.GET("/who", func(c *gin.Context) {
		calls++
		c.String(http.StatusOK, "hello %s", c.GetHeader(IdentityHeader))
	})

	get := func(email string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/who", nil)
		req.Header.Set(IdentityHeader, email)
		r.ServeHTTP(w, req)
		return w
	}

	first := get("a@example.com")
	second := get("a@example.com")
	other := get("b@example.com")

	assert.Equal(t, "hello a@example.com", first.Body.String())
	assert.Equal(t, "hello a@example.com", second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "hello b@example.com", other.Body.String())
	assert.Equal(t, 2, calls)
}

func TestCache_KeyedPerPath(t *testing.T) {
	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute))
	r.GET("/logs/:id", func(c *gin.Context) {
		if c.Param("id") == "nope" {
			c.String(http.StatusNotFound, "missing")
			return
		}
		c.String(http.StatusOK, "log %s?%s", c.Param("id"), c.Request.URL.RawQuery)
	})

	// http.NewRequest leaves Request.RequestURI empty.
	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, target, nil)
		req.Header.Set(IdentityHeader, "a@example.com")
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, "log 1?", get("/logs/1").Body.String())
	assert.Equal(t, "log 1?", get("/logs/1").Body.String())

	w := get("/logs/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))

	assert.Equal(t, "log 2?v=x", get("/logs/2?v=x").Body.String())
	assert.Equal(t, "log 2?v=y", get("/logs/2?v=y").Body.String())
}

func TestCache_SkipsErrorsAndWrites(t *testing.T) {
	calls := 0
	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute))
	r.GET("/missing", func(c *gin.Context) {
		calls++
		c.Status(http.StatusNotFound)
	})
	r.POST("/missing", func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})

	for _, method := range []string{http.MethodGet, http.MethodGet, http.MethodPost, http.MethodPost} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(method, "/missing", nil)
		r.ServeHTTP(w, req)
	}
	assert.Equal(t, 4, calls)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2, "X-Forwarded-For"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("1.1.1.1"))
	assert.Equal(t, http.StatusOK, do("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("1.1.1.1"))
	assert.Equal(t, http.StatusOK, do("2.2.2.2"), "limits are per client")
}

func TestIPRateLimiter_ReusesLimiter(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	a := l.GetLimiter("1.1.1.1")
	assert.Same(t, a, l.GetLimiter("1.1.1.1"))
	assert.NotSame(t, a, l.GetLimiter("2.2.2.2"))
	assert.Equal(t, 2, l.Len())
}
