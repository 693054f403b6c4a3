// audit.go provides Gin middleware that records organization lifecycle and
// admin login requests to the audit trail.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/org-management/org-service/internal/audit"
	"github.com/org-management/org-service/internal/safego"
)

const (
	auditOrganizationKey = "audit_organization"
	auditEmailKey        = "audit_email"
	auditMetadataKey     = "audit_metadata"

	auditShipTimeout = 5 * time.Second
)

// auditActions maps "METHOD route" to the recorded action. Routes not listed
// are not audited.
var auditActions = map[string]string{
	http.MethodPost + " /org/create":   "organization.create",
	http.MethodPut + " /org/update":    "organization.update",
	http.MethodDelete + " /org/delete": "organization.delete",
	http.MethodPost + " /admin/login":  "admin.login",
}

// SetAuditSubject records the organization and admin email a handler acted
// on. Empty values are ignored.
func SetAuditSubject(c *gin.Context, organization, email string) {
	if organization != "" {
		c.Set(auditOrganizationKey, organization)
	}
	if email != "" {
		c.Set(auditEmailKey, email)
	}
}

// AddAuditMetadata attaches a key/value pair to the request's audit entry.
func AddAuditMetadata(c *gin.Context, key string, value any) {
	md, _ := c.Get(auditMetadataKey)
	m, ok := md.(map[string]any)
	if !ok {
		m = make(map[string]any)
		c.Set(auditMetadataKey, m)
	}
	m[key] = value
}

// AuditMiddleware ships an entry for every audited route once the handler
// has finished. Requests answered with 4xx/5xx are only recorded when
// logFailed is set. Shipping runs off the request goroutine.
func AuditMiddleware(shipper audit.Shipper, logFailed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		action, ok := auditActions[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}
		status := c.Writer.Status()
		if status >= http.StatusBadRequest && !logFailed {
			return
		}

		entry := &audit.LogEntry{
			Timestamp:        time.Now().UTC(),
			Action:           action,
			OrganizationName: c.GetString(auditOrganizationKey),
			AdminEmail:       c.GetString(auditEmailKey),
			IPAddress:        c.ClientIP(),
			RequestID:        c.GetString(RequestIDKey),
			StatusCode:       status,
		}
		if p, ok := GetPrincipal(c); ok {
			entry.AdminID = p.AdminID
			entry.OrganizationID = p.OrganizationID
			if entry.AdminEmail == "" {
				entry.AdminEmail = p.Email
			}
		}
		if md, ok := c.Get(auditMetadataKey); ok {
			entry.Metadata, _ = md.(map[string]any)
		}

		safego.Go("audit-ship", func() {
			ctx, cancel := context.WithTimeout(context.Background(), auditShipTimeout)
			defer cancel()
			if err := shipper.Ship(ctx, entry); err != nil {
				slog.Warn("failed to ship audit entry", "action", entry.Action, "error", err)
			}
		})
	}
}
