// Package dispatch delivers outbound messages across heterogeneous chat
// platforms behind a uniform capability set. One adapter exists per
// platform (WhatsApp, Viber, Telegram); they differ only in endpoint/auth
// scheme, payload shapes, and receipt vocabulary. Shared behavior (phone
// normalization, recipient validation, response construction, rate-limit
// handling) is implemented once here.
//
// Error policy: adapters never return Go errors from Send. Every failure is
// folded into a SendResponse with Status "failed" and a human-readable
// Error, so one broken platform cannot abort a batch dispatch. Rate-limit
// rejections additionally carry RetryAfterMS as an advisory re-enqueue hint.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/uslugibg/chat-backend/internal/cache"
)

// Status is the shared delivery-status vocabulary every adapter maps its
// platform's native webhook statuses onto. Transitions are forward-only;
// "failed" and "expired" are terminal.
type Status string

// Delivery statuses.
const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// rank orders statuses for the forward-only transition rule.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	case StatusFailed, StatusExpired:
		return 4
	}
	return -1
}

// defaultRetryAfterMS is applied when a rate-limit response carries no hint.
const defaultRetryAfterMS = 60_000

// SendRequest describes one outbound message.
type SendRequest struct {
	// To is the recipient phone number; normalized by the dispatcher
	// before any adapter sees it.
	To string `json:"to"`
	// Text is the message content. Adapters clip or reject per their
	// MessageLimits.
	Text string `json:"text"`
}

// SendResponse is the uniform outcome of a send attempt on any platform.
//
// Success responses carry {platform, status, message_id, delivered_at?};
// error responses carry {platform, status:"failed", error, retry_after_ms?}.
type SendResponse struct {
	Platform     string     `json:"platform"`
	Status       Status     `json:"status"`
	MessageID    string     `json:"message_id,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	RetryAfterMS int64      `json:"retry_after_ms,omitempty"`
}

// DeliveryReport is a platform-reported status update for a previously sent
// message, decoded from a delivery webhook.
type DeliveryReport struct {
	Platform  string    `json:"platform"`
	MessageID string    `json:"message_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundMessage is a customer message decoded from a platform webhook.
type InboundMessage struct {
	Platform   string    `json:"platform"`
	From       string    `json:"from"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// MessageLimits describes a platform's outbound constraints.
type MessageLimits struct {
	MaxLength          int  `json:"max_length"`
	SupportsFormatting bool `json:"supports_formatting"`
	SupportsMedia      bool `json:"supports_media"`
}

// Platform is the capability set every chat-platform adapter implements.
// Adapters must be safe for concurrent use.
type Platform interface {
	// Name returns the platform tag ("whatsapp", "viber", "telegram").
	Name() string
	// Configured reports whether credentials are present; the dispatcher
	// refuses to route to unconfigured adapters.
	Configured() bool
	// CanSendToNumber reports whether this platform can deliver to the
	// normalized phone number right now. Most platforms accept any valid
	// number; Telegram needs a learned phone-to-chat binding first.
	CanSendToNumber(phone string) bool
	// Send delivers one message. Failures are returned as a failed
	// SendResponse, never as a Go error.
	Send(ctx context.Context, req SendRequest) SendResponse
	// DeliveryStatus returns the last reconciled status for a message id.
	DeliveryStatus(messageID string) Status
	// HandleIncoming decodes a customer message from a webhook payload.
	// Returns (nil, nil) when the payload is not an inbound message.
	HandleIncoming(payload []byte) (*InboundMessage, error)
	// ValidateWebhook verifies a webhook payload against its signature.
	ValidateWebhook(payload []byte, signature string) bool
	// ParseDeliveryReport decodes a delivery/read receipt from a webhook
	// payload. Returns (nil, nil) when the payload carries no receipt.
	ParseDeliveryReport(payload []byte) (*DeliveryReport, error)
	// Limits describes the platform's outbound constraints.
	Limits() MessageLimits
}

// Dispatcher routes send requests to the adapter bound to a conversation's
// platform tag and applies the shared pre-send checks. It never prefers one
// platform over another; selection is always by tag.
type Dispatcher struct {
	logger   zerolog.Logger
	phones   *PhoneNormalizer
	cache    *cache.Redis
	adapters map[string]Platform
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewDispatcher constructs a Dispatcher over the given adapters. cache may
// be nil; backoff hints are then kept in-process only.
func NewDispatcher(logger zerolog.Logger, phones *PhoneNormalizer, c *cache.Redis, adapters ...Platform) *Dispatcher {
	m := make(map[string]Platform, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Dispatcher{
		logger:   logger.With().Str("component", "dispatch").Logger(),
		phones:   phones,
		cache:    c,
		adapters: m,
		statuses: make(map[string]Status),
	}
}

// Adapter returns the adapter for a platform tag, or nil when unknown.
func (d *Dispatcher) Adapter(platform string) Platform {
	return d.adapters[platform]
}

// Platforms lists the registered platform tags, sorted.
func (d *Dispatcher) Platforms() []string {
	out := make([]string, 0, len(d.adapters))
	for name := range d.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Send normalizes and validates the recipient, asks the adapter whether it
// can deliver to that number, then delegates. A malformed or undeliverable
// recipient is rejected locally without a network call; an unknown or
// unconfigured platform yields a failed response. Rate-limit hints returned
// by the adapter are recorded as a per-platform backoff.
func (d *Dispatcher) Send(ctx context.Context, platform string, req SendRequest) SendResponse {
	a, ok := d.adapters[platform]
	if !ok {
		return SendResponse{Platform: platform, Status: StatusFailed, Error: "unknown platform"}
	}
	if !a.Configured() {
		return SendResponse{Platform: platform, Status: StatusFailed, Error: "platform not configured"}
	}

	normalized, err := d.phones.Normalize(req.To)
	if err != nil || !d.phones.IsValidMobile(normalized) {
		return SendResponse{
			Platform: platform,
			Status:   StatusFailed,
			Error:    fmt.Sprintf("invalid recipient %q", req.To),
		}
	}
	req.To = normalized

	if !a.CanSendToNumber(req.To) {
		return SendResponse{
			Platform: platform,
			Status:   StatusFailed,
			Error:    fmt.Sprintf("%s cannot deliver to %s", platform, req.To),
		}
	}

	if lim := a.Limits(); lim.MaxLength > 0 && len([]rune(req.Text)) > lim.MaxLength {
		req.Text = string([]rune(req.Text)[:lim.MaxLength])
	}

	resp := a.Send(ctx, req)
	if resp.Status == StatusFailed && resp.RetryAfterMS > 0 {
		d.recordBackoff(ctx, platform, time.Duration(resp.RetryAfterMS)*time.Millisecond)
	}
	if resp.Status != StatusFailed && resp.MessageID != "" {
		d.recordStatus(resp.MessageID, resp.Status)
	}
	observeSend(platform, string(resp.Status))
	return resp
}

// RecordDelivery reconciles a delivery report into the tracked statuses.
// Backward transitions are ignored (statuses are forward-only).
func (d *Dispatcher) RecordDelivery(report *DeliveryReport) {
	if report == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.statuses[report.MessageID]; ok && cur.rank() >= report.Status.rank() {
		return
	}
	d.statuses[report.MessageID] = report.Status
	observeDelivery(report.Platform, string(report.Status))
}

// DeliveryStatus returns the last reconciled status for a message id,
// falling back to the adapter's own answer when nothing was tracked.
func (d *Dispatcher) DeliveryStatus(platform, messageID string) Status {
	d.mu.RLock()
	st, ok := d.statuses[messageID]
	d.mu.RUnlock()
	if ok {
		return st
	}
	if a := d.adapters[platform]; a != nil {
		return a.DeliveryStatus(messageID)
	}
	return StatusPending
}

// Backoff returns the remaining rate-limit backoff for a platform, zero
// when clear to send. Redis-backed when a cache is configured.
func (d *Dispatcher) Backoff(ctx context.Context, platform string) time.Duration {
	if d.cache == nil {
		return 0
	}
	ttl, err := d.cache.Backoff(ctx, platform)
	if err != nil {
		d.logger.Warn().Err(err).Str("platform", platform).Msg("read backoff hint failed")
		return 0
	}
	return ttl
}

func (d *Dispatcher) recordBackoff(ctx context.Context, platform string, dur time.Duration) {
	if d.cache == nil {
		return
	}
	if err := d.cache.SetBackoff(ctx, platform, dur); err != nil {
		d.logger.Warn().Err(err).Str("platform", platform).Msg("store backoff hint failed")
	}
}

func (d *Dispatcher) recordStatus(messageID string, st Status) {
	d.mu.Lock()
	d.statuses[messageID] = st
	d.mu.Unlock()
}

// retryAfterMS extracts a retry hint in milliseconds from a Retry-After
// header value (delta seconds), falling back to the 60s default.
func retryAfterMS(header string) int64 {
	if header == "" {
		return defaultRetryAfterMS
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return int64(secs) * 1000
	}
	return defaultRetryAfterMS
}
