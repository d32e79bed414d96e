package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nextmind-ai/app-verification/internal/utils"
)

const auditEventKey = "audit_event"

// AuditEvent is what a handler reports for the audit trail
type AuditEvent struct {
	Action     string
	Email      string
	ResourceID string
	AccountID  string
	Outcome    string
	Metadata   map[string]string
}

// SetAuditEvent records the audit event of the current request
func SetAuditEvent(c *gin.Context, event AuditEvent) {
	c.Set(auditEventKey, event)
}

// AuditMiddleware queues the event reported by the handler once the request
// completes. Requests that report nothing are not audited.
func AuditMiddleware(worker *utils.AuditWorker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if worker == nil {
			return
		}
		value, ok := c.Get(auditEventKey)
		if !ok {
			return
		}
		event, ok := value.(AuditEvent)
		if !ok {
			return
		}

		metadata := map[string]string{
			"endpoint": c.FullPath(),
			"method":   c.Request.Method,
			"status":   strconv.Itoa(c.Writer.Status()),
		}
		for k, v := range event.Metadata {
			metadata[k] = v
		}

		auditCtx := utils.GetAuditContextFromGin(c)
		if event.AccountID != "" {
			auditCtx.UserID = event.AccountID
		}
		worker.LogEvent(auditCtx, event.Action, event.Email, event.ResourceID, event.Outcome, metadata)
	}
}
