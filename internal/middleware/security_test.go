package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func serveWithHeaders(mw ...gin.HandlerFunc) http.Header {
	r := gin.New()
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w.Header()
}

func TestSecurityHeadersMiddleware_API(t *testing.T) {
	h := serveWithHeaders(SecurityHeadersMiddleware(APISecurityHeadersConfig(false)))

	want := map[string]string{
		"X-Frame-Options":              "DENY",
		"X-Content-Type-Options":       "nosniff",
		"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":              "no-referrer",
		"Cross-Origin-Resource-Policy": "same-origin",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if h.Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set without TLS")
	}
}

func TestSecurityHeadersMiddleware_HSTSWithTLS(t *testing.T) {
	h := serveWithHeaders(SecurityHeadersMiddleware(APISecurityHeadersConfig(true)))
	if got := h.Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("Strict-Transport-Security = %q", got)
	}
}

func TestSecurityHeadersMiddleware_DocsOverridesAPI(t *testing.T) {
	h := serveWithHeaders(
		SecurityHeadersMiddleware(APISecurityHeadersConfig(false)),
		SecurityHeadersMiddleware(DocsSecurityHeadersConfig(false)),
	)
	if got := h.Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q, want SAMEORIGIN", got)
	}
	if h.Get("Cross-Origin-Embedder-Policy") != "" {
		t.Error("COEP should be removed for docs")
	}
	if got := h.Get("Content-Security-Policy"); got == "default-src 'none'; frame-ancestors 'none'" {
		t.Error("docs CSP did not override the API CSP")
	}
}
