package notify

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"github.com/uslugibg/chat-backend/internal/domain"
)

// Notification type tags carried in the Type field and in push envelopes.
const (
	TypeNewConversation  = "new_conversation"
	TypeCaseAssigned     = "case_assigned"
	TypeCaseAccepted     = "case_accepted"
	TypeCaseCompleted    = "case_completed"
	TypeNewCaseAvailable = "new_case_available"
	TypeReviewRequested  = "review_requested"
)

// DefaultLocale is the locale notification copy falls back to when the hub
// has no locale configured or the configured one has no copy of its own.
var DefaultLocale = language.Bulgarian

type template struct {
	title   string
	message string
}

// copyByLocale holds the notification copy per supported locale. Lookup
// falls back to DefaultLocale for tags without their own copy.
var copyByLocale = map[language.Tag]map[string]template{
	language.Bulgarian: {
		TypeNewConversation:  {"Нов разговор", "Клиент %s започна разговор с вас."},
		TypeCaseAssigned:     {"Нова заявка", "Имате нова заявка от %s."},
		TypeCaseAccepted:     {"Заявката е приета", "Специалист %s прие вашата заявка."},
		TypeCaseCompleted:    {"Заявката е завършена", "Заявка %s е отбелязана като завършена."},
		TypeNewCaseAvailable: {"Нова заявка в района", "Нова заявка за %s очаква оферти."},
		TypeReviewRequested:  {"Оценете услугата", "Моля, оценете работата на %s."},
	},
	language.English: {
		TypeNewConversation:  {"New conversation", "Customer %s started a conversation with you."},
		TypeCaseAssigned:     {"New case", "You have a new case from %s."},
		TypeCaseAccepted:     {"Case accepted", "Specialist %s accepted your case."},
		TypeCaseCompleted:    {"Case completed", "Case %s has been marked as completed."},
		TypeNewCaseAvailable: {"New case in your area", "A new %s case is awaiting offers."},
		TypeReviewRequested:  {"Rate the service", "Please rate the work done by %s."},
	},
}

// locale resolves the hub's configured copy locale. An unset Locale means
// DefaultLocale.
func (h *Hub) locale() language.Tag {
	if h.Locale == language.Und {
		return DefaultLocale
	}
	return h.Locale
}

func render(locale language.Tag, typ string, arg string) (string, string) {
	tpls, ok := copyByLocale[locale]
	if !ok {
		tpls = copyByLocale[DefaultLocale]
	}
	t := tpls[typ]
	return t.title, fmt.Sprintf(t.message, arg)
}

// NotifyNewConversation tells a provider that customerName opened a chat.
func (h *Hub) NotifyNewConversation(ctx context.Context, providerID, customerName, conversationID string) (*domain.Notification, error) {
	title, msg := render(h.locale(), TypeNewConversation, customerName)
	return h.Notify(ctx, providerID, TypeNewConversation, title, msg, map[string]any{
		"conversation_id": conversationID,
	})
}

// NotifyCaseAssigned tells a provider a case was assigned to them.
func (h *Hub) NotifyCaseAssigned(ctx context.Context, providerID, customerName, caseID string) (*domain.Notification, error) {
	title, msg := render(h.locale(), TypeCaseAssigned, customerName)
	return h.Notify(ctx, providerID, TypeCaseAssigned, title, msg, map[string]any{
		"case_id": caseID,
	})
}

// NotifyCaseAccepted tells a customer their case was accepted by a provider.
func (h *Hub) NotifyCaseAccepted(ctx context.Context, customerID, providerName, caseID string) (*domain.Notification, error) {
	title, msg := render(h.locale(), TypeCaseAccepted, providerName)
	return h.Notify(ctx, customerID, TypeCaseAccepted, title, msg, map[string]any{
		"case_id": caseID,
	})
}

// NotifyCaseCompleted tells a customer their case was marked completed.
func (h *Hub) NotifyCaseCompleted(ctx context.Context, customerID, caseID string) (*domain.Notification, error) {
	title, msg := render(h.locale(), TypeCaseCompleted, caseID)
	return h.Notify(ctx, customerID, TypeCaseCompleted, title, msg, map[string]any{
		"case_id": caseID,
	})
}

// NotifyReviewRequested asks a customer to review providerName's work.
func (h *Hub) NotifyReviewRequested(ctx context.Context, customerID, providerName, caseID string) (*domain.Notification, error) {
	title, msg := render(h.locale(), TypeReviewRequested, providerName)
	return h.Notify(ctx, customerID, TypeReviewRequested, title, msg, map[string]any{
		"case_id": caseID,
	})
}

// BroadcastNewCase fans a new-case notification out to every provider in
// providerIDs. One failing recipient does not abort the rest; the number of
// successful deliveries is returned along with the last error seen.
func (h *Hub) BroadcastNewCase(ctx context.Context, providerIDs []string, category, caseID string) (int, error) {
	title, msg := render(h.locale(), TypeNewCaseAvailable, category)
	data := map[string]any{"case_id": caseID, "category": category}

	delivered := 0
	var lastErr error
	for _, pid := range providerIDs {
		if _, err := h.Notify(ctx, pid, TypeNewCaseAvailable, title, msg, data); err != nil {
			lastErr = err
			h.Logger.Warn().Err(err).Str("user_id", pid).Str("case_id", caseID).Msg("broadcast recipient failed")
			continue
		}
		delivered++
	}
	return delivered, lastErr
}
