// Package dispatch: Viber adapter.
//
// Talks to the Viber Chat API: token auth via X-Viber-Auth-Token, status
// codes in the JSON body (0 = ok, 12 = rate limited), HMAC-SHA256 webhook
// signatures keyed with the auth token, and event-based receipts
// (delivered/seen/failed).
package dispatch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PlatformViber is the platform tag for the Viber adapter.
const PlatformViber = "viber"

const defaultViberBaseURL = "https://chatapi.viber.com"

// viberStatusRateLimited is Viber's "too many requests" body status.
const viberStatusRateLimited = 12

// ViberConfig holds Chat API credentials.
type ViberConfig struct {
	AuthToken string
	// SenderName is shown to the customer as the message author.
	SenderName string
	// BaseURL overrides the Chat API endpoint (tests point it at a local server).
	BaseURL string
}

// ViberAdapter implements Platform for Viber.
type ViberAdapter struct {
	cfg      ViberConfig
	client   *http.Client
	receipts *receiptLog
}

// NewViberAdapter constructs a Viber adapter.
func NewViberAdapter(cfg ViberConfig) *ViberAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultViberBaseURL
	}
	if cfg.SenderName == "" {
		cfg.SenderName = "Chat"
	}
	return &ViberAdapter{cfg: cfg, client: newHTTPClient(), receipts: newReceiptLog()}
}

// Name implements Platform.
func (a *ViberAdapter) Name() string { return PlatformViber }

// Configured implements Platform.
func (a *ViberAdapter) Configured() bool { return a.cfg.AuthToken != "" }

// Limits implements Platform.
func (a *ViberAdapter) Limits() MessageLimits {
	return MessageLimits{MaxLength: 7000, SupportsFormatting: false, SupportsMedia: true}
}

// CanSendToNumber implements Platform. Viber addresses any country-coded
// number directly.
func (a *ViberAdapter) CanSendToNumber(phone string) bool {
	return e164RE.MatchString(phone)
}

// Send implements Platform.
func (a *ViberAdapter) Send(ctx context.Context, req SendRequest) SendResponse {
	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/pa/send_message"
	body := map[string]any{
		"receiver": req.To,
		"type":     "text",
		"text":     req.Text,
		"sender":   map[string]string{"name": a.cfg.SenderName},
	}
	headers := map[string]string{"X-Viber-Auth-Token": a.cfg.AuthToken}

	code, data, retryHeader, err := postJSON(ctx, a.client, url, headers, body)
	if err != nil {
		return SendResponse{Platform: PlatformViber, Status: StatusFailed, Error: err.Error()}
	}
	if code == http.StatusTooManyRequests {
		return SendResponse{
			Platform:     PlatformViber,
			Status:       StatusFailed,
			Error:        "rate limited",
			RetryAfterMS: retryAfterMS(retryHeader),
		}
	}
	if code < 200 || code >= 300 {
		return SendResponse{
			Platform: PlatformViber,
			Status:   StatusFailed,
			Error:    fmt.Sprintf("viber api status %d: %s", code, truncateBody(data)),
		}
	}

	var out struct {
		Status        int    `json:"status"`
		StatusMessage string `json:"status_message"`
		MessageToken  int64  `json:"message_token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return SendResponse{Platform: PlatformViber, Status: StatusFailed, Error: "malformed viber response"}
	}
	if out.Status == viberStatusRateLimited {
		return SendResponse{
			Platform:     PlatformViber,
			Status:       StatusFailed,
			Error:        "rate limited: " + out.StatusMessage,
			RetryAfterMS: retryAfterMS(retryHeader),
		}
	}
	if out.Status != 0 {
		return SendResponse{
			Platform: PlatformViber,
			Status:   StatusFailed,
			Error:    fmt.Sprintf("viber status %d: %s", out.Status, out.StatusMessage),
		}
	}

	id := strconv.FormatInt(out.MessageToken, 10)
	a.receipts.record(id, StatusSent)
	return SendResponse{Platform: PlatformViber, Status: StatusSent, MessageID: id}
}

// DeliveryStatus implements Platform.
func (a *ViberAdapter) DeliveryStatus(messageID string) Status {
	return a.receipts.get(messageID)
}

// ValidateWebhook implements Platform. signature is the value of
// X-Viber-Content-Signature: hex HMAC-SHA256 of the raw payload keyed with
// the auth token.
func (a *ViberAdapter) ValidateWebhook(payload []byte, signature string) bool {
	if a.cfg.AuthToken == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.AuthToken))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// viberCallback mirrors the common envelope of Viber callbacks.
type viberCallback struct {
	Event        string `json:"event"`
	Timestamp    int64  `json:"timestamp"`
	MessageToken int64  `json:"message_token"`
	Sender       struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"sender"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// HandleIncoming implements Platform.
func (a *ViberAdapter) HandleIncoming(payload []byte) (*InboundMessage, error) {
	var cb viberCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, err
	}
	if cb.Event != "message" || cb.Message.Type != "text" {
		return nil, nil
	}
	return &InboundMessage{
		Platform:   PlatformViber,
		From:       cb.Sender.ID,
		SenderName: cb.Sender.Name,
		Text:       cb.Message.Text,
		Timestamp:  unixMillis(cb.Timestamp),
	}, nil
}

// ParseDeliveryReport implements Platform, mapping Viber's event names onto
// the shared enum.
func (a *ViberAdapter) ParseDeliveryReport(payload []byte) (*DeliveryReport, error) {
	var cb viberCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, err
	}
	var mapped Status
	switch cb.Event {
	case "delivered":
		mapped = StatusDelivered
	case "seen":
		mapped = StatusRead
	case "failed":
		mapped = StatusFailed
	default:
		return nil, nil
	}
	id := strconv.FormatInt(cb.MessageToken, 10)
	a.receipts.record(id, mapped)
	return &DeliveryReport{
		Platform:  PlatformViber,
		MessageID: id,
		Status:    mapped,
		Timestamp: unixMillis(cb.Timestamp),
	}, nil
}

// unixMillis converts Viber's millisecond timestamps, falling back to now.
func unixMillis(ms int64) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Now().UTC()
}
