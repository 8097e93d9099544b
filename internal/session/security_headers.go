package session

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersMiddleware adds security headers to all responses.
// imageOrigins are extra origins the browser may load images from (the image host).
func SecurityHeadersMiddleware(imageOrigins ...string) gin.HandlerFunc {
	imgSrc := "'self' data: blob:"
	for _, raw := range imageOrigins {
		if origin := extractOrigin(raw); origin != "" {
			imgSrc += " " + origin
		}
	}
	// Cloudinary serves delivered images from its CDN host, not the API host
	imgSrc += " https://res.cloudinary.com"

	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		formAction := "'self'"
		if host := c.Request.Host; host != "" {
			formAction = "'self' https://" + host
		}

		// 'unsafe-eval' is needed for htmx hx-on attributes
		c.Header("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline'; "+
				"img-src "+imgSrc+"; "+
				"font-src 'self'; "+
				"connect-src 'self'; "+
				"frame-ancestors 'none'; "+
				"form-action "+formAction)

		c.Header("Permissions-Policy",
			"accelerometer=(), "+
				"camera=(), "+
				"geolocation=(), "+
				"gyroscope=(), "+
				"magnetometer=(), "+
				"microphone=(), "+
				"payment=(), "+
				"usb=()")

		c.Next()
	}
}

// extractOrigin extracts the origin (scheme + host) from a URL for CSP
func extractOrigin(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}

	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}

	return scheme + "://" + parsed.Host
}

// StrictTransportSecurityMiddleware adds the HSTS header to requests that
// arrived over HTTPS.
func StrictTransportSecurityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
