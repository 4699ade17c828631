package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// IdentityHeader carries the acting user's email. Cached responses are keyed
// on it because the same URL renders differently per viewer.
const IdentityHeader = "X-User-Email"

// page is one stored GET response.
type page struct {
	status int
	header http.Header
	body   []byte
}

func (p page) replay(c *gin.Context) {
	h := c.Writer.Header()
	for k, v := range p.header {
		h[k] = v
	}
	h.Set("X-Cache", "HIT")
	c.Writer.WriteHeader(p.status)
	_, _ = c.Writer.Write(p.body)
}

// teeWriter copies everything the handler writes into buf.
type teeWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *teeWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *teeWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// pageKey identifies a response by viewer, path and query. URL.RequestURI is
// used because Request.RequestURI is only set for requests read off the wire.
func pageKey(c *gin.Context) string {
	return c.GetHeader(IdentityHeader) + " " + c.Request.URL.RequestURI()
}

// Cache serves repeated GETs from store for ttl. Only 200 responses are kept.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := pageKey(c)
		if v, ok := store.Get(key); ok {
			v.(page).replay(c)
			c.Abort()
			return
		}

		tee := &teeWriter{ResponseWriter: c.Writer}
		c.Writer = tee
		c.Next()

		if tee.Status() != http.StatusOK {
			return
		}
		store.Set(key, page{
			status: tee.Status(),
			header: tee.Header().Clone(),
			body:   bytes.Clone(tee.buf.Bytes()),
		}, ttl)
	}
}
