package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/document-access-gate/internal/config"
)

// bodyRecorder copies what the handler writes, up to limit bytes.
type bodyRecorder struct {
	http.ResponseWriter
	code      int
	body      bytes.Buffer
	limit     int
	truncated bool
}

func (w *bodyRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bodyRecorder) Write(p []byte) (int, error) {
	switch {
	case w.truncated:
	case w.limit > 0 && w.body.Len()+len(p) > w.limit:
		w.truncated = true
		w.body.Reset()
	default:
		w.body.Write(p)
	}
	return w.ResponseWriter.Write(p)
}

func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	id := r.URL.Path + "?" + r.URL.RawQuery
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		id = c.Path()
	case "method_route":
		id = r.Method + " " + c.Path()
	}
	sum := sha1.Sum([]byte(id))
	return cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// NewRedisCache caches 200 responses of the public document metadata route
// as a Redis hash {code, type, body}.  Requests carrying an Authorization
// header or a hash bypass it.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if r.Method != http.MethodGet || r.Header.Get(echo.HeaderAuthorization) != "" || r.URL.Query().Has("hash") {
				return next(c)
			}
			ctx := r.Context()
			key := cacheKey(cfg, c)

			if hit, err := rdb.HGetAll(ctx, key).Result(); err == nil && hit["code"] != "" {
				if code, err := strconv.Atoi(hit["code"]); err == nil {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(code, hit["type"], []byte(hit["body"]))
				}
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, code: http.StatusOK, limit: cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.code != http.StatusOK || rec.truncated {
				return nil
			}
			// The request context may already be done once the client has its bytes.
			store := context.WithoutCancel(ctx)
			_, err := rdb.TxPipelined(store, func(p redis.Pipeliner) error {
				p.HSet(store, key, "code", rec.code, "type", c.Response().Header().Get(echo.HeaderContentType), "body", rec.body.String())
				p.Expire(store, key, cfg.TTL)
				return nil
			})
			if err != nil {
				c.Logger().Warnf("cache store %s: %v", key, err)
			}
			return nil
		}
	}
}
