package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// Responses below this size ship uncompressed. Error envelopes and small
// acknowledgements fit in one packet anyway; only exam papers and result
// views are large enough for compression to pay off.
const brotliMinLength = 1024

// Brotli compresses response bodies for clients that accept the br encoding.
// Compression starts lazily once the body crosses the size threshold, so the
// Content-Encoding header is only set when bytes were actually encoded.
func Brotli() gin.HandlerFunc {
	return func(c *gin.Context) {
		if passthrough(c) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		bw := &brotliWriter{
			ResponseWriter: c.Writer,
			br:             brotli.NewWriterLevel(c.Writer, brotli.DefaultCompression),
		}
		defer bw.finish(c)

		c.Writer = bw
		c.Next()
	}
}

type brotliWriter struct {
	gin.ResponseWriter
	br         *brotli.Writer
	buf        []byte
	once       sync.Once
	compressed bool
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	bw.buf = append(bw.buf, data...)
	if len(bw.buf) < brotliMinLength {
		return len(data), nil
	}

	bw.once.Do(func() {
		bw.compressed = true
		bw.ResponseWriter.Header().Set("Content-Encoding", "br")
		bw.ResponseWriter.Header().Del("Content-Length")
	})
	n, err := bw.br.Write(bw.buf)
	bw.buf = bw.buf[:0]
	return n, err
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// Flush satisfies http.Flusher for streaming handlers. Anything still below
// the threshold goes out as plain text.
func (bw *brotliWriter) Flush() {
	if len(bw.buf) > 0 {
		_, _ = bw.ResponseWriter.Write(bw.buf)
		bw.buf = bw.buf[:0]
	}
	bw.ResponseWriter.Flush()
}

// finish drains whatever never crossed the threshold and closes the encoder
// if it was opened.
func (bw *brotliWriter) finish(c *gin.Context) {
	if len(bw.buf) > 0 {
		if _, err := bw.ResponseWriter.Write(bw.buf); err != nil {
			_ = c.Error(err)
		}
		bw.buf = bw.buf[:0]
	}
	if bw.compressed {
		bw.br.Close()
	}
}

// passthrough reports protocols that buffered compression would break.
func passthrough(c *gin.Context) bool {
	// SSE needs every event on the wire immediately.
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	// A WebSocket handshake fails if the 101 response is wrapped.
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return true
	}
	return false
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.ToLower(enc)) == "br" {
			return true
		}
	}
	return false
}
