package bot

import (
	"context"
	"errors"

	"github.com/tgdesk/tgdesk/pkg/logger"
	"github.com/tgdesk/tgdesk/pkg/middleware"
	"github.com/tgdesk/tgdesk/pkg/store"
)

// SessionMiddleware loads the conversation session before the rest of the
// pipeline runs and persists it on the way out, so Session.Data mutations
// made by handlers stick. A store failure degrades to a session-less
// dispatch instead of dropping the update.
func SessionMiddleware(st *store.Store) middleware.Definition[*Context] {
	return middleware.Definition[*Context]{
		Name:     "session",
		Priority: -30,
		Handler: func(ctx context.Context, c *Context, next middleware.Next) error {
			key := c.Update.SessionKey
			if key == "" {
				key = c.Update.Channel + ":" + c.Update.ChatID + ":" + c.Update.SenderID
			}

			sess, err := st.GetSession(key)
			switch {
			case errors.Is(err, store.ErrNotFound):
				sess = &store.Session{
					Key:      key,
					Channel:  c.Update.Channel,
					ChatID:   c.Update.ChatID,
					SenderID: c.Update.SenderID,
					Data:     map[string]string{},
				}
			case err != nil:
				logger.WarnCF("session", "Session load failed", map[string]interface{}{
					"key":   key,
					"error": err.Error(),
				})
				return next()
			}
			c.Session = sess

			err = next()

			if perr := st.PutSession(sess); perr != nil {
				logger.WarnCF("session", "Session save failed", map[string]interface{}{
					"key":   key,
					"error": perr.Error(),
				})
			}
			return err
		},
	}
}
