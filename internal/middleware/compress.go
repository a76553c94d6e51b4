package middleware

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// compressWriter holds the whole body so the encoding can be chosen once
// its size is known. Only used on bounded JSON endpoints.
type compressWriter struct {
	gin.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *compressWriter) WriteHeader(code int) { w.status = code }

func (w *compressWriter) WriteHeaderNow() {}

func (w *compressWriter) Write(data []byte) (int, error) { return w.buf.Write(data) }

func (w *compressWriter) WriteString(s string) (int, error) { return w.buf.WriteString(s) }

func (w *compressWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *compressWriter) Size() int { return w.buf.Len() }

func (w *compressWriter) Written() bool { return w.buf.Len() > 0 || w.status != 0 }

// Brotli compresses responses of at least minLength bytes for clients that
// accept "br". WebSocket upgrades and event streams pass through untouched.
func Brotli(quality, minLength int) gin.HandlerFunc {
	if quality < 0 || quality > brotli.BestCompression {
		quality = brotli.DefaultCompression
	}

	return func(c *gin.Context) {
		if shouldSkipCompression(c.Request) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		orig := c.Writer
		cw := &compressWriter{ResponseWriter: orig}
		c.Writer = cw
		c.Next()
		c.Writer = orig

		orig.Header().Add("Vary", "Accept-Encoding")
		body := cw.buf.Bytes()
		if len(body) < minLength || cw.Status() == http.StatusNoContent {
			orig.WriteHeader(cw.Status())
			_, _ = orig.Write(body)
			return
		}

		var out bytes.Buffer
		bw := brotli.NewWriterLevel(&out, quality)
		if _, err := bw.Write(body); err != nil || bw.Close() != nil {
			orig.WriteHeader(cw.Status())
			_, _ = orig.Write(body)
			return
		}

		orig.Header().Set("Content-Encoding", "br")
		orig.Header().Set("Content-Length", strconv.Itoa(out.Len()))
		orig.WriteHeader(cw.Status())
		_, _ = orig.Write(out.Bytes())
	}
}

func shouldSkipCompression(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "br") {
			return true
		}
	}
	return false
}
