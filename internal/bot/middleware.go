package bot

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"snake-market/internal/config"
)

// access decides which chats the bot answers. Group chats must be on the
// whitelist. Private chats are open to admins and to users already seen in
// an allowed group. An empty whitelist opens every chat.
type access struct {
	cfg func() *config.Config

	mu   sync.RWMutex
	seen map[int64]struct{}
}

func newAccess(cfg func() *config.Config) *access {
	return &access{cfg: cfg, seen: make(map[int64]struct{})}
}

func (a *access) allowed(chat *tele.Chat, userID int64) bool {
	cfg := a.cfg()
	if chat.Type != tele.ChatPrivate {
		if !cfg.IsChatAllowed(chat.ID) {
			return false
		}
		a.mu.Lock()
		a.seen[userID] = struct{}{}
		a.mu.Unlock()
		return true
	}

	if len(cfg.Whitelist.Chats) == 0 || cfg.IsAdmin(userID) {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.seen[userID]
	return ok
}

// middleware drops updates from chats the bot does not serve.
func (a *access) middleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat, sender := c.Chat(), c.Sender()
			if chat == nil || sender == nil {
				return nil
			}
			if !a.allowed(chat, sender.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Int64("user_id", sender.ID).
					Msg("Ignoring update from chat outside the whitelist")
				return nil
			}
			return next(c)
		}
	}
}

// adminOnly rejects senders missing from admin.ids.
func adminOnly(cfg func() *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			if cfg().IsAdmin(sender.ID) {
				return next(c)
			}
			log.Warn().
				Int64("user_id", sender.ID).
				Str("command", commandOf(c)).
				Msg("Non-admin attempted admin command")
			return c.Reply("❌ Permission denied: admin only")
		}
	}
}

// logUpdates logs the command or callback of every update at debug level.
// Arguments are left out since admin commands carry player ids and amounts.
func logUpdates() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ev := log.Debug().Str("command", commandOf(c))
			if sender := c.Sender(); sender != nil {
				ev = ev.Int64("user_id", sender.ID).Str("username", sender.Username)
			}
			if chat := c.Chat(); chat != nil {
				ev = ev.Int64("chat_id", chat.ID).Str("chat_type", string(chat.Type))
			}
			ev.Msg("Telegram update")
			return next(c)
		}
	}
}

// recoverPanics turns a handler panic into a logged error and a short reply.
func recoverPanics() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("command", commandOf(c)).
						Msg("Recovered from panic in Telegram handler")
					if c.Callback() != nil {
						err = c.Respond(&tele.CallbackResponse{Text: "❌ Internal error", ShowAlert: true})
						return
					}
					err = c.Reply("❌ Internal error, please try again later")
				}
			}()
			return next(c)
		}
	}
}

// commandOf names an update: the command word of a message, or the
// callback data without its telebot prefix.
func commandOf(c tele.Context) string {
	if cb := c.Callback(); cb != nil {
		return "callback:" + strings.TrimPrefix(cb.Data, "\f")
	}
	text := c.Text()
	if i := strings.IndexByte(text, ' '); i >= 0 {
		text = text[:i]
	}
	return text
}
