package bot

import (
	"context"

	"github.com/google/uuid"

	"github.com/tgdesk/tgdesk/pkg/commands"
	"github.com/tgdesk/tgdesk/pkg/logger"
	"github.com/tgdesk/tgdesk/pkg/middleware"
	"github.com/tgdesk/tgdesk/pkg/store"
)

// AuditMiddleware stamps each dispatch with a trace ID and records it in
// the audit log. Audit failures are logged and never block the update.
func AuditMiddleware(st *store.Store) middleware.Definition[*Context] {
	return middleware.Definition[*Context]{
		Name:     "audit",
		Priority: -20,
		Handler: func(ctx context.Context, c *Context, next middleware.Next) error {
			c.TraceID = uuid.NewString()
			cmd, _ := commands.ExtractCommand(c.Update.Text)
			err := st.Audit(&store.AuditEntry{
				TraceID:  c.TraceID,
				Channel:  c.Update.Channel,
				SenderID: c.Update.SenderID,
				Event:    c.Update.Event,
				Command:  cmd,
			})
			if err != nil {
				logger.WarnCF("audit", "Audit write failed", map[string]interface{}{
					"trace_id": c.TraceID,
					"error":    err.Error(),
				})
			}
			return next()
		},
	}
}
