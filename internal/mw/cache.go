package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GET requests for the same URI from store for
// duration. A request with "Cache-Control: no-cache" bypasses the lookup
// and refreshes the entry. Responses carry X-Cache: HIT or MISS.
func Cache(store *cache.Cache, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || duration <= 0 {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if c.GetHeader("Cache-Control") != "no-cache" {
			if resp, found := store.Get(key); found {
				cached := resp.(cachedResponse)
				for k, v := range cached.headers {
					c.Writer.Header()[k] = v
				}
				c.Writer.Header().Set("X-Cache", "HIT")
				c.Writer.WriteHeader(cached.status)
				_, _ = c.Writer.Write(cached.body)
				c.Abort()
				return
			}
		}

		c.Writer.Header().Set("X-Cache", "MISS")
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		// Only cache successful responses
		if blw.Status() >= 200 && blw.Status() < 300 {
			headers := blw.Header().Clone()
			headers.Del("X-Cache")
			store.Set(key, cachedResponse{
				status:  blw.Status(),
				headers: headers,
				body:    blw.body.Bytes(),
			}, duration)
		}
	}
}

// Invalidate empties store after every successful non-GET request, so
// cached reads never outlive a write they depend on.
func Invalidate(store *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return
		}
		if status := c.Writer.Status(); status >= 200 && status < 400 {
			store.Flush()
		}
	}
}
