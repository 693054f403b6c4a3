// security.go provides Gin middleware that injects protective HTTP response headers.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig holds configuration for security headers
type SecurityHeadersConfig struct {
	// EnableHSTS enables HTTP Strict Transport Security
	EnableHSTS bool
	// HSTSMaxAge is the max-age value for HSTS in seconds
	HSTSMaxAge int
	// HSTSIncludeSubdomains includes subdomains in HSTS
	HSTSIncludeSubdomains bool
	// FrameOptionsValue is the value for X-Frame-Options (DENY, SAMEORIGIN); empty disables it
	FrameOptionsValue string
	// ContentSecurityPolicy is the CSP header value
	ContentSecurityPolicy string
	// ReferrerPolicy is the Referrer-Policy header value
	ReferrerPolicy string
	// CrossOriginIsolation sets the COEP/COOP/CORP headers
	CrossOriginIsolation bool
}

// APISecurityHeadersConfig returns security headers suitable for JSON endpoints
func APISecurityHeadersConfig(tls bool) SecurityHeadersConfig {
	return SecurityHeadersConfig{
		EnableHSTS:            tls,
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		FrameOptionsValue:     "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		CrossOriginIsolation:  true,
	}
}

// DocsSecurityHeadersConfig relaxes the CSP so the Swagger UI can load its
// bundled scripts and styles.
func DocsSecurityHeadersConfig(tls bool) SecurityHeadersConfig {
	cfg := APISecurityHeadersConfig(tls)
	cfg.FrameOptionsValue = "SAMEORIGIN"
	cfg.ContentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
		"style-src 'self' 'unsafe-inline'; img-src 'self' data:"
	cfg.CrossOriginIsolation = false
	return cfg
}

// SecurityHeadersMiddleware adds security headers to all responses. A later
// instance overrides the headers set by an earlier one.
func SecurityHeadersMiddleware(config SecurityHeadersConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.EnableHSTS {
			hsts := "max-age=" + strconv.Itoa(config.HSTSMaxAge)
			if config.HSTSIncludeSubdomains {
				hsts += "; includeSubDomains"
			}
			c.Header("Strict-Transport-Security", hsts)
		}

		if config.FrameOptionsValue != "" {
			c.Header("X-Frame-Options", config.FrameOptionsValue)
		}
		c.Header("X-Content-Type-Options", "nosniff")

		if config.ContentSecurityPolicy != "" {
			c.Header("Content-Security-Policy", config.ContentSecurityPolicy)
		}
		if config.ReferrerPolicy != "" {
			c.Header("Referrer-Policy", config.ReferrerPolicy)
		}

		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		if config.CrossOriginIsolation {
			c.Header("Cross-Origin-Embedder-Policy", "require-corp")
			c.Header("Cross-Origin-Opener-Policy", "same-origin")
			c.Header("Cross-Origin-Resource-Policy", "same-origin")
		} else {
			c.Header("Cross-Origin-Embedder-Policy", "")
			c.Header("Cross-Origin-Opener-Policy", "")
			c.Header("Cross-Origin-Resource-Policy", "")
		}

		c.Next()
	}
}
