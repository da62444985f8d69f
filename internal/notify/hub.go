// Package notify implements the real-time notification hub: persistent
// notifications backed by the repo layer plus best-effort push over live
// connections.
//
// Semantics:
//   - Persistence is the source of truth. Notify writes the row first and
//     only then attempts a push; a dead or absent connection never loses a
//     notification, it simply stays unread until the next list call.
//   - One live connection per user. A second Register for the same user
//     displaces the first; the displaced connection is closed so its reader
//     observes the hand-over instead of silently going stale.
//   - Unread counts are cached in Redis when a cache is configured and
//     re-pushed to the live connection after every mutation.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/cache"
	"github.com/uslugibg/chat-backend/internal/domain"
	"github.com/uslugibg/chat-backend/internal/repo"
	"github.com/uslugibg/chat-backend/internal/services"
)

// unreadCacheTTL bounds staleness of the cached unread counter; every
// mutation invalidates it anyway.
const unreadCacheTTL = 5 * time.Minute

// Conn is the minimal surface the hub needs from a live connection.
// *websocket.Conn satisfies it; tests substitute fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Envelope is the wire frame pushed to live connections.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NotificationPayload is the data body of a "notification" envelope.
type NotificationPayload struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// client wraps a live connection with its own write lock, so a stalled
// socket only blocks writes to itself and never the hub registry.
type client struct {
	conn Conn
	wmu  sync.Mutex
}

// Hub owns the live connection registry and the notification read/write API.
type Hub struct {
	DB     *gorm.DB
	Cache  *cache.Redis
	Logger zerolog.Logger

	// Locale selects the notification copy language. The zero value means
	// DefaultLocale.
	Locale language.Tag

	mu    sync.Mutex
	conns map[string]*client
}

// NewHub returns a Hub ready for Register/Notify. cache may be nil.
func NewHub(db *gorm.DB, c *cache.Redis, logger zerolog.Logger) *Hub {
	return &Hub{
		DB:     db,
		Cache:  c,
		Logger: logger.With().Str("component", "notify").Logger(),
		conns:  make(map[string]*client),
	}
}

// Register installs conn as the live connection for userID, displacing and
// closing any previous one, and pushes the current unread count.
func (h *Hub) Register(ctx context.Context, userID string, conn Conn) {
	h.mu.Lock()
	prev := h.conns[userID]
	h.conns[userID] = &client{conn: conn}
	h.mu.Unlock()

	if prev != nil {
		_ = prev.conn.Close()
	} else {
		liveConnections.Inc()
	}

	count, err := h.UnreadCount(ctx, userID)
	if err != nil {
		h.Logger.Warn().Err(err).Str("user_id", userID).Msg("unread count on register")
		return
	}
	h.pushUnread(userID, count)
}

// Unregister removes conn for userID. A connection displaced by a later
// Register is not removed; only the current one is.
func (h *Hub) Unregister(userID string, conn Conn) {
	h.mu.Lock()
	cur, ok := h.conns[userID]
	if ok && cur.conn == conn {
		delete(h.conns, userID)
	} else {
		ok = false
	}
	h.mu.Unlock()

	if ok {
		liveConnections.Dec()
	}
}

// Notify persists a notification for userID and then pushes it, plus a fresh
// unread count, to the user's live connection if any. Persistence errors are
// returned; push failures are logged and swallowed.
func (h *Hub) Notify(ctx context.Context, userID, typ, title, message string, data map[string]any) (*domain.Notification, error) {
	payload := ""
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		payload = string(raw)
	}

	n, err := repo.CreateNotification(ctx, h.DB, userID, typ, title, message, payload)
	if err != nil {
		return nil, err
	}

	if h.Cache != nil {
		h.Cache.InvalidateUnreadCount(ctx, userID)
	}

	body := NotificationPayload{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
	if payload != "" {
		body.Data = json.RawMessage(payload)
	}
	h.push(userID, Envelope{Type: "notification", Data: body})

	if count, cerr := h.UnreadCount(ctx, userID); cerr == nil {
		h.pushUnread(userID, count)
	}
	return n, nil
}

// ListNotifications returns one page of notifications for userID, newest
// first, together with the total count.
func (h *Hub) ListNotifications(ctx context.Context, userID string, offset, limit int) ([]domain.Notification, int64, error) {
	items, err := repo.ListNotificationsPage(ctx, h.DB, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.CountNotifications(ctx, h.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// MarkRead marks a single notification as read for userID and re-pushes the
// unread count. Returns services.ErrNotificationNotFound when the id does not
// exist or belongs to another user.
func (h *Hub) MarkRead(ctx context.Context, id, userID string) error {
	if err := repo.MarkNotificationRead(ctx, h.DB, id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.ErrNotificationNotFound
		}
		return err
	}
	h.refreshUnread(ctx, userID)
	return nil
}

// MarkAllRead marks every unread notification for userID as read and returns
// how many rows changed.
func (h *Hub) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := repo.MarkAllNotificationsRead(ctx, h.DB, userID)
	if err != nil {
		return 0, err
	}
	h.refreshUnread(ctx, userID)
	return n, nil
}

// UnreadCount returns the number of unread notifications for userID,
// consulting the cache first when one is configured.
func (h *Hub) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if h.Cache != nil {
		if count, hit, err := h.Cache.UnreadCount(ctx, userID); err == nil && hit {
			return count, nil
		}
	}
	count, err := repo.CountUnread(ctx, h.DB, userID)
	if err != nil {
		return 0, err
	}
	if h.Cache != nil {
		if cerr := h.Cache.SetUnreadCount(ctx, userID, count, unreadCacheTTL); cerr != nil {
			h.Logger.Debug().Err(cerr).Str("user_id", userID).Msg("unread count not cached")
		}
	}
	return count, nil
}

func (h *Hub) refreshUnread(ctx context.Context, userID string) {
	if h.Cache != nil {
		h.Cache.InvalidateUnreadCount(ctx, userID)
	}
	count, err := h.UnreadCount(ctx, userID)
	if err != nil {
		h.Logger.Warn().Err(err).Str("user_id", userID).Msg("unread count refresh")
		return
	}
	h.pushUnread(userID, count)
}

func (h *Hub) pushUnread(userID string, count int64) {
	h.push(userID, Envelope{Type: "unread_count", Data: map[string]int64{"count": count}})
}

// push writes an envelope to the user's live connection, if any. Writes are
// serialized per connection, not under the hub mutex, so one stalled socket
// never blocks pushes to other users. Failures close and drop the connection.
func (h *Hub) push(userID string, env Envelope) {
	h.mu.Lock()
	cl, ok := h.conns[userID]
	h.mu.Unlock()
	if !ok {
		pushesTotal.WithLabelValues(env.Type, "no_conn").Inc()
		return
	}

	cl.wmu.Lock()
	err := cl.conn.WriteJSON(env)
	cl.wmu.Unlock()

	if err != nil {
		// The entry may have been displaced or unregistered while the write
		// was in flight; only drop it if it is still ours.
		h.mu.Lock()
		dropped := h.conns[userID] == cl
		if dropped {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
		if dropped {
			liveConnections.Dec()
		}
		_ = cl.conn.Close()
		pushesTotal.WithLabelValues(env.Type, "error").Inc()
		h.Logger.Debug().Err(err).Str("user_id", userID).Msg("push failed, connection dropped")
		return
	}
	pushesTotal.WithLabelValues(env.Type, "ok").Inc()
}
