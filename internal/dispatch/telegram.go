// Package dispatch: Telegram adapter.
//
// Talks to the Bot API. Telegram differs from the other platforms in two
// ways this adapter has to absorb: it provides no delivery or read
// receipts, so every accepted send reports "sent" forever; and it cannot
// address users by phone number, so the adapter keeps a phone→chat binding
// learned from contact shares on incoming updates.
package dispatch

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/uslugibg/chat-backend/internal/sysutil"
)

// PlatformTelegram is the platform tag for the Telegram adapter.
const PlatformTelegram = "telegram"

const defaultTelegramBaseURL = "https://api.telegram.org"

// TelegramConfig holds Bot API credentials.
type TelegramConfig struct {
	BotToken string
	// SecretToken authenticates webhook calls via the
	// X-Telegram-Bot-Api-Secret-Token header.
	SecretToken string
	// BaseURL overrides the Bot API endpoint (tests point it at a local server).
	BaseURL string
}

// TelegramAdapter implements Platform for Telegram.
type TelegramAdapter struct {
	cfg    TelegramConfig
	client *http.Client

	mu    sync.RWMutex
	chats map[string]int64 // normalized phone -> chat id
}

// NewTelegramAdapter constructs a Telegram adapter.
func NewTelegramAdapter(cfg TelegramConfig) *TelegramAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTelegramBaseURL
	}
	return &TelegramAdapter{cfg: cfg, client: newHTTPClient(), chats: make(map[string]int64)}
}

// Name implements Platform.
func (a *TelegramAdapter) Name() string { return PlatformTelegram }

// Configured implements Platform.
func (a *TelegramAdapter) Configured() bool { return a.cfg.BotToken != "" }

// Limits implements Platform.
func (a *TelegramAdapter) Limits() MessageLimits {
	return MessageLimits{MaxLength: 4096, SupportsFormatting: true, SupportsMedia: false}
}

// BindChat records the chat id bound to a normalized phone number. Exposed
// for wiring imported bindings; incoming contact shares call it internally.
func (a *TelegramAdapter) BindChat(phone string, chatID int64) {
	a.mu.Lock()
	a.chats[phone] = chatID
	a.mu.Unlock()
}

func (a *TelegramAdapter) chatFor(phone string) (int64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.chats[phone]
	return id, ok
}

// CanSendToNumber implements Platform. Telegram cannot address users by
// phone number, so delivery is only possible once a contact share has
// bound the number to a chat id.
func (a *TelegramAdapter) CanSendToNumber(phone string) bool {
	_, ok := a.chatFor(phone)
	return ok
}

// Send implements Platform.
func (a *TelegramAdapter) Send(ctx context.Context, req SendRequest) SendResponse {
	chatID, ok := a.chatFor(req.To)
	if !ok {
		return SendResponse{
			Platform: PlatformTelegram,
			Status:   StatusFailed,
			Error:    fmt.Sprintf("no telegram chat bound to %s", req.To),
		}
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", a.cfg.BaseURL, a.cfg.BotToken)
	body := map[string]any{"chat_id": chatID, "text": req.Text}

	code, data, retryHeader, err := postJSON(ctx, a.client, url, nil, body)
	if err != nil {
		return SendResponse{Platform: PlatformTelegram, Status: StatusFailed, Error: err.Error()}
	}
	if code == http.StatusTooManyRequests {
		// The Bot API carries the hint in parameters.retry_after (seconds)
		// in addition to the Retry-After header.
		var out struct {
			Parameters struct {
				RetryAfter int `json:"retry_after"`
			} `json:"parameters"`
		}
		retry := retryAfterMS(retryHeader)
		if json.Unmarshal(data, &out) == nil && out.Parameters.RetryAfter > 0 {
			retry = int64(out.Parameters.RetryAfter) * 1000
		}
		return SendResponse{
			Platform:     PlatformTelegram,
			Status:       StatusFailed,
			Error:        "rate limited",
			RetryAfterMS: retry,
		}
	}
	if code < 200 || code >= 300 {
		return SendResponse{
			Platform: PlatformTelegram,
			Status:   StatusFailed,
			Error:    fmt.Sprintf("bot api status %d: %s", code, truncateBody(data)),
		}
	}

	var out struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &out); err != nil || !out.OK {
		return SendResponse{Platform: PlatformTelegram, Status: StatusFailed, Error: "malformed bot api response"}
	}
	return SendResponse{
		Platform:  PlatformTelegram,
		Status:    StatusSent,
		MessageID: strconv.FormatInt(out.Result.MessageID, 10),
	}
}

// DeliveryStatus implements Platform. Telegram provides no receipts, so an
// accepted message always reports "sent".
func (a *TelegramAdapter) DeliveryStatus(string) Status { return StatusSent }

// ValidateWebhook implements Platform. signature is the value of the
// X-Telegram-Bot-Api-Secret-Token header; Telegram does not sign payload
// bytes, it echoes the secret configured at setWebhook time.
func (a *TelegramAdapter) ValidateWebhook(_ []byte, signature string) bool {
	if a.cfg.SecretToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.cfg.SecretToken), []byte(signature)) == 1
}

// telegramUpdate mirrors the Bot API update envelope.
type telegramUpdate struct {
	Message struct {
		Date int64  `json:"date"`
		Text string `json:"text"`
		From struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Contact struct {
			PhoneNumber string `json:"phone_number"`
		} `json:"contact"`
	} `json:"message"`
}

// HandleIncoming implements Platform. A shared contact binds the sender's
// phone number to the chat so later sends can be addressed by phone.
func (a *TelegramAdapter) HandleIncoming(payload []byte) (*InboundMessage, error) {
	var upd telegramUpdate
	if err := json.Unmarshal(payload, &upd); err != nil {
		return nil, err
	}
	if upd.Message.Chat.ID == 0 {
		return nil, nil
	}
	from := strconv.FormatInt(upd.Message.From.ID, 10)
	if phone := upd.Message.Contact.PhoneNumber; phone != "" {
		if phone[0] != '+' {
			phone = "+" + phone
		}
		a.BindChat(phone, upd.Message.Chat.ID)
		from = phone
	}
	if upd.Message.Text == "" && upd.Message.Contact.PhoneNumber == "" {
		return nil, nil
	}
	return &InboundMessage{
		Platform:   PlatformTelegram,
		From:       from,
		SenderName: sysutil.FirstNonEmpty(upd.Message.From.FirstName, upd.Message.From.Username),
		Text:       upd.Message.Text,
		Timestamp:  unixSeconds(upd.Message.Date),
	}, nil
}

// ParseDeliveryReport implements Platform. Telegram emits no delivery
// receipts; there is never a report to parse.
func (a *TelegramAdapter) ParseDeliveryReport([]byte) (*DeliveryReport, error) {
	return nil, nil
}

// unixSeconds converts Bot API second timestamps, falling back to now.
func unixSeconds(secs int64) time.Time {
	if secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return time.Now().UTC()
}
