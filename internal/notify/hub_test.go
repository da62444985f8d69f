package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/uslugibg/chat-backend/internal/domain"
	"github.com/uslugibg/chat-backend/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notify_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Notification{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeConn records every envelope written to it.
type fakeConn struct {
	frames   []Envelope
	writeErr error
	closed   bool
}

func (f *fakeConn) WriteJSON(v any) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.frames = append(f.frames, v.(Envelope))
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func (f *fakeConn) lastOfType(typ string) (Envelope, bool) {
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].Type == typ {
			return f.frames[i], true
		}
	}
	return Envelope{}, false
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(newTestDB(t), nil, zerolog.Nop())
}

func TestRegister_PushesUnreadCount(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := hub.Notify(ctx, "u1", TypeNewConversation, "t", "m", nil); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}

	conn := &fakeConn{}
	hub.Register(ctx, "u1", conn)

	env, ok := conn.lastOfType("unread_count")
	if !ok {
		t.Fatalf("no unread_count frame after register")
	}
	if got := env.Data.(map[string]int64)["count"]; got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}
}

func TestNotify_PersistsThenPushes(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	conn := &fakeConn{}
	hub.Register(ctx, "u1", conn)
	conn.frames = nil

	n, err := hub.Notify(ctx, "u1", TypeCaseAssigned, "Нов случай", "Възложен ви е случай", map[string]any{"case_id": "c-1"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n.ID == "" || n.UserID != "u1" || n.Read {
		t.Fatalf("persisted row: %+v", n)
	}

	env, ok := conn.lastOfType("notification")
	if !ok {
		t.Fatalf("no notification frame")
	}
	body := env.Data.(NotificationPayload)
	if body.ID != n.ID || body.Title != "Нов случай" {
		t.Fatalf("pushed body: %+v", body)
	}
	if string(body.Data) != `{"case_id":"c-1"}` {
		t.Fatalf("pushed data: %s", body.Data)
	}

	if env, ok := conn.lastOfType("unread_count"); !ok {
		t.Fatalf("no unread_count frame after notify")
	} else if got := env.Data.(map[string]int64)["count"]; got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
}

func TestNotify_NoConnectionStillPersists(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	if _, err := hub.Notify(ctx, "offline-user", TypeCaseAccepted, "t", "m", nil); err != nil {
		t.Fatalf("notify: %v", err)
	}

	count, err := hub.UnreadCount(ctx, "offline-user")
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestRegister_DisplacesPreviousConnection(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	first := &fakeConn{}
	second := &fakeConn{}
	hub.Register(ctx, "u1", first)
	hub.Register(ctx, "u1", second)

	if !first.closed {
		t.Fatalf("displaced connection not closed")
	}

	// The displaced reader's Unregister must not remove the new connection.
	hub.Unregister("u1", first)
	second.frames = nil
	if _, err := hub.Notify(ctx, "u1", TypeNewConversation, "t", "m", nil); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if _, ok := second.lastOfType("notification"); !ok {
		t.Fatalf("current connection no longer receives pushes")
	}
}

func TestPush_WriteFailureDropsConnection(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	conn := &fakeConn{}
	hub.Register(ctx, "u1", conn)
	conn.writeErr = errors.New("broken pipe")

	if _, err := hub.Notify(ctx, "u1", TypeNewConversation, "t", "m", nil); err != nil {
		t.Fatalf("notify must not fail on push errors: %v", err)
	}
	if !conn.closed {
		t.Fatalf("broken connection not closed")
	}
}

// stallConn blocks writes once stall is set, until release is closed.
type stallConn struct {
	stall   bool
	writing chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stallConn) WriteJSON(v any) error {
	if !s.stall {
		return nil
	}
	s.once.Do(func() { close(s.writing) })
	<-s.release
	return nil
}

func (s *stallConn) Close() error { return nil }

func TestPush_StalledConnectionDoesNotBlockOtherUsers(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	stalled := &stallConn{writing: make(chan struct{}), release: make(chan struct{})}
	defer close(stalled.release)
	healthy := &fakeConn{}
	hub.Register(ctx, "u1", stalled)
	hub.Register(ctx, "u2", healthy)
	stalled.stall = true
	healthy.frames = nil

	go hub.push("u1", Envelope{Type: "notification"})
	<-stalled.writing

	done := make(chan struct{})
	go func() {
		hub.push("u2", Envelope{Type: "notification"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("push to another user blocked behind a stalled write")
	}
	if _, ok := healthy.lastOfType("notification"); !ok {
		t.Fatalf("healthy connection received no frame")
	}
}

func TestMarkRead(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	n, _ := hub.Notify(ctx, "u1", TypeNewConversation, "t", "m", nil)

	conn := &fakeConn{}
	hub.Register(ctx, "u1", conn)
	conn.frames = nil

	if err := hub.MarkRead(ctx, n.ID, "u1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	env, ok := conn.lastOfType("unread_count")
	if !ok {
		t.Fatalf("no unread_count re-push after mark read")
	}
	if got := env.Data.(map[string]int64)["count"]; got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}

func TestMarkRead_CrossUserAndMissing(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	n, _ := hub.Notify(ctx, "u1", TypeNewConversation, "t", "m", nil)

	// Another user cannot read someone else's notification.
	if err := hub.MarkRead(ctx, n.ID, "u2"); !errors.Is(err, services.ErrNotificationNotFound) {
		t.Fatalf("cross user: got %v", err)
	}
	if err := hub.MarkRead(ctx, uuid.NewString(), "u1"); !errors.Is(err, services.ErrNotificationNotFound) {
		t.Fatalf("missing id: got %v", err)
	}

	count, _ := hub.UnreadCount(ctx, "u1")
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestMarkAllRead(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		hub.Notify(ctx, "u1", TypeNewConversation, "t", "m", nil)
	}
	hub.Notify(ctx, "u2", TypeNewConversation, "t", "m", nil)

	updated, err := hub.MarkAllRead(ctx, "u1")
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if updated != 4 {
		t.Fatalf("updated = %d, want 4", updated)
	}

	// Idempotent: nothing left to flip.
	updated, err = hub.MarkAllRead(ctx, "u1")
	if err != nil || updated != 0 {
		t.Fatalf("second pass: updated=%d err=%v", updated, err)
	}

	// The other user's notification is untouched.
	count, _ := hub.UnreadCount(ctx, "u2")
	if count != 1 {
		t.Fatalf("u2 count = %d, want 1", count)
	}
}

func TestListNotifications_Pagination(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		hub.Notify(ctx, "u1", TypeNewConversation, fmt.Sprintf("t%d", i), "m", nil)
	}

	items, total, err := hub.ListNotifications(ctx, "u1", 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", total, len(items))
	}

	rest, _, err := hub.ListNotifications(ctx, "u1", 4, 2)
	if err != nil {
		t.Fatalf("list tail: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("tail len = %d, want 1", len(rest))
	}
}

func TestBroadcastNewCase_PartialDelivery(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	delivered, err := hub.BroadcastNewCase(ctx, []string{"p1", "p2", "p3"}, "plumbing", "case-1")
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if delivered != 3 {
		t.Fatalf("delivered = %d, want 3", delivered)
	}

	for _, uid := range []string{"p1", "p2", "p3"} {
		count, _ := hub.UnreadCount(ctx, uid)
		if count != 1 {
			t.Fatalf("%s count = %d, want 1", uid, count)
		}
	}
}

func TestNotifyNewConversation_RendersBulgarianCopy(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	conn := &fakeConn{}
	hub.Register(ctx, "provider-1", conn)

	if _, err := hub.NotifyNewConversation(ctx, "provider-1", "Мария Иванова", "conv-1"); err != nil {
		t.Fatalf("notify new conversation: %v", err)
	}

	env, ok := conn.lastOfType("notification")
	if !ok {
		t.Fatalf("no notification frame")
	}
	body := env.Data.(NotificationPayload)
	if body.Type != TypeNewConversation {
		t.Fatalf("type = %q", body.Type)
	}
	if body.Title == "" || body.Message == "" {
		t.Fatalf("empty copy: %+v", body)
	}
}

func TestNotify_LocaleSelectsCopy(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	conn := &fakeConn{}
	hub.Register(ctx, "provider-1", conn)

	hub.Locale = language.English
	if _, err := hub.NotifyCaseAssigned(ctx, "provider-1", "Maria Ivanova", "case-1"); err != nil {
		t.Fatalf("notify case assigned: %v", err)
	}
	env, _ := conn.lastOfType("notification")
	if got := env.Data.(NotificationPayload).Title; got != "New case" {
		t.Fatalf("title = %q, want English copy", got)
	}

	// Tags without their own copy fall back to the default locale.
	hub.Locale = language.German
	if _, err := hub.NotifyCaseAssigned(ctx, "provider-1", "Мария Иванова", "case-2"); err != nil {
		t.Fatalf("notify case assigned: %v", err)
	}
	env, _ = conn.lastOfType("notification")
	if got := env.Data.(NotificationPayload).Title; got != "Нова заявка" {
		t.Fatalf("title = %q, want default-locale copy", got)
	}
}
