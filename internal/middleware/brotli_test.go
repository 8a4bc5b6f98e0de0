package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func newBrotliRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli())
	return r
}

func doBrotliRequest(r *gin.Engine, path string, acceptBr bool) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if acceptBr {
		req.Header.Set("Accept-Encoding", "br")
	}
	r.ServeHTTP(w, req)
	return w
}

// A handler that writes in multiple chunks, with the threshold crossed by
// the first chunk and the last chunk staying below it, must still produce
// one valid brotli stream.
func TestBrotliCompressesChunkedResponses(t *testing.T) {
	head := strings.Repeat("a", 2048)
	tail := "tail-after-threshold"

	r := newBrotliRouter()
	r.GET("/chunked", func(c *gin.Context) {
		c.Status(http.StatusOK)
		if _, err := c.Writer.Write([]byte(head)); err != nil {
			t.Errorf("write head: %v", err)
		}
		if _, err := c.Writer.Write([]byte(tail)); err != nil {
			t.Errorf("write tail: %v", err)
		}
	})

	w := doBrotliRequest(r, "/chunked", true)
	if got := w.Header().Get("Content-Encoding"); got != "br" {
		t.Fatalf("Content-Encoding = %q, want br", got)
	}

	decoded, err := io.ReadAll(brotli.NewReader(w.Body))
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if string(decoded) != head+tail {
		t.Fatalf("decoded %d bytes, want %d; tail must not bypass the compressor",
			len(decoded), len(head)+len(tail))
	}
}

func TestBrotliLeavesSmallResponsesPlain(t *testing.T) {
	r := newBrotliRouter()
	r.GET("/small", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := doBrotliRequest(r, "/small", true)
	if got := w.Header().Get("Content-Encoding"); got != "" {
		t.Fatalf("Content-Encoding = %q, want none below the threshold", got)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("body = %q, want plain ok", w.Body.String())
	}
}

func TestBrotliSkippedWithoutAcceptHeader(t *testing.T) {
	payload := strings.Repeat("b", 2048)

	r := newBrotliRouter()
	r.GET("/plain", func(c *gin.Context) {
		c.String(http.StatusOK, payload)
	})

	w := doBrotliRequest(r, "/plain", false)
	if got := w.Header().Get("Content-Encoding"); got != "" {
		t.Fatalf("Content-Encoding = %q, want none without Accept-Encoding", got)
	}
	if w.Body.String() != payload {
		t.Fatal("body must pass through untouched")
	}
}
