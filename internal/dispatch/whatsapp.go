// Package dispatch: WhatsApp adapter.
//
// Talks to the WhatsApp Business Cloud API: Bearer-token auth against the
// Graph endpoint, HMAC-SHA256 webhook signatures (X-Hub-Signature-256), and
// the statuses[] receipt vocabulary (sent/delivered/read/failed).
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

// PlatformWhatsApp is the platform tag for the WhatsApp adapter.
const PlatformWhatsApp = "whatsapp"

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// WhatsAppConfig holds Cloud API credentials.
type WhatsAppConfig struct {
	PhoneNumberID string
	AccessToken   string
	// AppSecret signs webhook payloads.
	AppSecret string
	// BaseURL overrides the Graph endpoint (tests point it at a local server).
	BaseURL string
}

// WhatsAppAdapter implements Platform for WhatsApp.
type WhatsAppAdapter struct {
	cfg      WhatsAppConfig
	client   *http.Client
	receipts *receiptLog
}

// NewWhatsAppAdapter constructs a WhatsApp adapter.
func NewWhatsAppAdapter(cfg WhatsAppConfig) *WhatsAppAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGraphBaseURL
	}
	return &WhatsAppAdapter{cfg: cfg, client: newHTTPClient(), receipts: newReceiptLog()}
}

// Name implements Platform.
func (a *WhatsAppAdapter) Name() string { return PlatformWhatsApp }

// Configured implements Platform.
func (a *WhatsAppAdapter) Configured() bool {
	return a.cfg.PhoneNumberID != "" && a.cfg.AccessToken != ""
}

// Limits implements Platform.
func (a *WhatsAppAdapter) Limits() MessageLimits {
	return MessageLimits{MaxLength: 4096, SupportsFormatting: true, SupportsMedia: true}
}

// CanSendToNumber implements Platform. The Cloud API reaches any
// country-coded number.
func (a *WhatsAppAdapter) CanSendToNumber(phone string) bool {
	return e164RE.MatchString(phone)
}

// Send implements Platform. The Cloud API wants the recipient without the
// leading "+".
func (a *WhatsAppAdapter) Send(ctx context.Context, req SendRequest) SendResponse {
	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.PhoneNumberID)
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(req.To, "+"),
		"type":              "text",
		"text":              map[string]string{"body": req.Text},
	}
	headers := map[string]string{"Authorization": "Bearer " + a.cfg.AccessToken}

	code, data, retryHeader, err := postJSON(ctx, a.client, url, headers, body)
	if err != nil {
		return SendResponse{Platform: PlatformWhatsApp, Status: StatusFailed, Error: err.Error()}
	}
	if code == http.StatusTooManyRequests {
		return SendResponse{
			Platform:     PlatformWhatsApp,
			Status:       StatusFailed,
			Error:        "rate limited",
			RetryAfterMS: retryAfterMS(retryHeader),
		}
	}
	if code < 200 || code >= 300 {
		return SendResponse{
			Platform: PlatformWhatsApp,
			Status:   StatusFailed,
			Error:    fmt.Sprintf("graph api status %d: %s", code, truncateBody(data)),
		}
	}

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &out); err != nil || len(out.Messages) == 0 {
		return SendResponse{Platform: PlatformWhatsApp, Status: StatusFailed, Error: "malformed graph api response"}
	}
	a.receipts.record(out.Messages[0].ID, StatusSent)
	return SendResponse{Platform: PlatformWhatsApp, Status: StatusSent, MessageID: out.Messages[0].ID}
}

// DeliveryStatus implements Platform.
func (a *WhatsAppAdapter) DeliveryStatus(messageID string) Status {
	return a.receipts.get(messageID)
}

// ValidateWebhook implements Platform. signature is the value of
// X-Hub-Signature-256 ("sha256=<hex>"); the digest is HMAC-SHA256 of the
// raw payload keyed with the app secret.
func (a *WhatsAppAdapter) ValidateWebhook(payload []byte, signature string) bool {
	if a.cfg.AppSecret == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")
	mac := hmac.New(sha256.New, []byte(a.cfg.AppSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// whatsappWebhook mirrors the common envelope of Cloud API webhooks.
type whatsappWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
				Statuses []struct {
					ID        string `json:"id"`
					Status    string `json:"status"`
					Timestamp string `json:"timestamp"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// HandleIncoming implements Platform.
func (a *WhatsAppAdapter) HandleIncoming(payload []byte) (*InboundMessage, error) {
	var hook whatsappWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, err
	}
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			v := change.Value
			if len(v.Messages) == 0 {
				continue
			}
			msg := v.Messages[0]
			name := ""
			if len(v.Contacts) > 0 {
				name = v.Contacts[0].Profile.Name
			}
			return &InboundMessage{
				Platform:   PlatformWhatsApp,
				From:       "+" + strings.TrimPrefix(msg.From, "+"),
				SenderName: name,
				Text:       msg.Text.Body,
				Timestamp:  unixSecondsString(msg.Timestamp),
			}, nil
		}
	}
	return nil, nil
}

// ParseDeliveryReport implements Platform, mapping the Cloud API status
// vocabulary onto the shared enum and recording the reconciled state.
func (a *WhatsAppAdapter) ParseDeliveryReport(payload []byte) (*DeliveryReport, error) {
	var hook whatsappWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, err
	}
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				mapped := mapWhatsAppStatus(st.Status)
				report := &DeliveryReport{
					Platform:  PlatformWhatsApp,
					MessageID: st.ID,
					Status:    mapped,
					Timestamp: unixSecondsString(st.Timestamp),
				}
				a.receipts.record(st.ID, mapped)
				return report, nil
			}
		}
	}
	return nil, nil
}

// mapWhatsAppStatus maps Cloud API statuses onto the shared enum.
func mapWhatsAppStatus(s string) Status {
	switch strings.ToLower(s) {
	case "sent":
		return StatusSent
	case "delivered":
		return StatusDelivered
	case "read":
		return StatusRead
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

// unixSecondsString parses the string-encoded unix timestamps the Cloud API
// emits, falling back to now on garbage.
func unixSecondsString(s string) time.Time {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return time.Now().UTC()
}

// truncateBody clips an error body for inclusion in a response message.
func truncateBody(b []byte) string {
	const max = 256
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
