package dispatch

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// fakePlatform is a scriptable Platform adapter. The zero value is a
// configured adapter named "fake" that reports every send as sent.
type fakePlatform struct {
	name          string
	unconfigured  bool
	undeliverable bool
	limits        MessageLimits
	resp          *SendResponse
	lastReq       SendRequest
	sends         int
}

func (f *fakePlatform) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakePlatform) Configured() bool { return !f.unconfigured }

func (f *fakePlatform) CanSendToNumber(phone string) bool { return !f.undeliverable }

func (f *fakePlatform) Send(ctx context.Context, req SendRequest) SendResponse {
	f.sends++
	f.lastReq = req
	if f.resp != nil {
		return *f.resp
	}
	return SendResponse{Platform: f.Name(), Status: StatusSent, MessageID: "m-1"}
}

func (f *fakePlatform) DeliveryStatus(messageID string) Status { return StatusSent }

func (f *fakePlatform) HandleIncoming(payload []byte) (*InboundMessage, error) { return nil, nil }

func (f *fakePlatform) ValidateWebhook(payload []byte, signature string) bool { return true }

func (f *fakePlatform) ParseDeliveryReport(payload []byte) (*DeliveryReport, error) {
	return nil, nil
}

func (f *fakePlatform) Limits() MessageLimits { return f.limits }

func newTestDispatcher(t *testing.T, adapters ...Platform) *Dispatcher {
	t.Helper()
	phones, err := NewPhoneNormalizer("", "")
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	return NewDispatcher(zerolog.Nop(), phones, nil, adapters...)
}

func TestSend_RoutesByPlatformTag(t *testing.T) {
	fake := &fakePlatform{}
	d := newTestDispatcher(t, fake)

	resp := d.Send(context.Background(), "fake", SendRequest{To: "0888123456", Text: "здравейте"})
	if resp.Status != StatusSent {
		t.Fatalf("status = %q, want sent", resp.Status)
	}
	if fake.lastReq.To != "+359888123456" {
		t.Fatalf("adapter saw recipient %q, want normalized +359888123456", fake.lastReq.To)
	}
}

func TestSend_UnknownPlatformFails(t *testing.T) {
	d := newTestDispatcher(t, &fakePlatform{})

	resp := d.Send(context.Background(), "smoke-signals", SendRequest{To: "0888123456", Text: "x"})
	if resp.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", resp.Status)
	}
	if resp.Error != "unknown platform" {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestSend_UnconfiguredPlatformFails(t *testing.T) {
	fake := &fakePlatform{unconfigured: true}
	d := newTestDispatcher(t, fake)

	resp := d.Send(context.Background(), "fake", SendRequest{To: "0888123456", Text: "x"})
	if resp.Status != StatusFailed || resp.Error != "platform not configured" {
		t.Fatalf("got %+v", resp)
	}
	if fake.sends != 0 {
		t.Fatalf("adapter invoked for unconfigured platform")
	}
}

func TestSend_InvalidRecipientRejectedBeforeAdapter(t *testing.T) {
	fake := &fakePlatform{}
	d := newTestDispatcher(t, fake)

	for _, to := range []string{"", "abc", "+359861234567"} {
		resp := d.Send(context.Background(), "fake", SendRequest{To: to, Text: "x"})
		if resp.Status != StatusFailed {
			t.Fatalf("To=%q: status = %q, want failed", to, resp.Status)
		}
		if !strings.Contains(resp.Error, "invalid recipient") {
			t.Fatalf("To=%q: error = %q", to, resp.Error)
		}
	}
	if fake.sends != 0 {
		t.Fatalf("adapter invoked %d times for invalid recipients", fake.sends)
	}
}

func TestSend_UndeliverableRecipientRejectedBeforeAdapter(t *testing.T) {
	fake := &fakePlatform{undeliverable: true}
	d := newTestDispatcher(t, fake)

	resp := d.Send(context.Background(), "fake", SendRequest{To: "0888123456", Text: "x"})
	if resp.Status != StatusFailed || resp.Error != `fake cannot deliver to +359888123456` {
		t.Fatalf("got %+v", resp)
	}
	if fake.sends != 0 {
		t.Fatalf("adapter invoked for undeliverable recipient")
	}
}

func TestSend_ClipsToPlatformLimit(t *testing.T) {
	fake := &fakePlatform{limits: MessageLimits{MaxLength: 5}}
	d := newTestDispatcher(t, fake)

	d.Send(context.Background(), "fake", SendRequest{To: "0888123456", Text: "здравейте, как сте"})
	if got := fake.lastReq.Text; got != "здрав" {
		t.Fatalf("clipped text = %q, want %q", got, "здрав")
	}
}

func TestRecordDelivery_ForwardOnly(t *testing.T) {
	fake := &fakePlatform{}
	d := newTestDispatcher(t, fake)

	d.Send(context.Background(), "fake", SendRequest{To: "0888123456", Text: "x"})
	if got := d.DeliveryStatus("fake", "m-1"); got != StatusSent {
		t.Fatalf("initial status = %q, want sent", got)
	}

	d.RecordDelivery(&DeliveryReport{Platform: "fake", MessageID: "m-1", Status: StatusRead})
	if got := d.DeliveryStatus("fake", "m-1"); got != StatusRead {
		t.Fatalf("after read receipt: %q, want read", got)
	}

	// A late "delivered" must not regress the tracked "read".
	d.RecordDelivery(&DeliveryReport{Platform: "fake", MessageID: "m-1", Status: StatusDelivered})
	if got := d.DeliveryStatus("fake", "m-1"); got != StatusRead {
		t.Fatalf("after stale receipt: %q, want read", got)
	}

	d.RecordDelivery(nil) // must not panic
}

func TestDeliveryStatus_FallsBackToAdapter(t *testing.T) {
	d := newTestDispatcher(t, &fakePlatform{})

	if got := d.DeliveryStatus("fake", "never-sent"); got != StatusSent {
		t.Fatalf("adapter fallback = %q, want sent", got)
	}
	if got := d.DeliveryStatus("smoke-signals", "never-sent"); got != StatusPending {
		t.Fatalf("unknown platform fallback = %q, want pending", got)
	}
}

func TestPlatforms_Sorted(t *testing.T) {
	d := newTestDispatcher(t,
		&fakePlatform{name: "viber"},
		&fakePlatform{name: "telegram"},
		&fakePlatform{name: "whatsapp"},
	)

	got := d.Platforms()
	want := []string{"telegram", "viber", "whatsapp"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBackoff_NilCacheIsZero(t *testing.T) {
	d := newTestDispatcher(t, &fakePlatform{})

	if got := d.Backoff(context.Background(), "fake"); got != 0 {
		t.Fatalf("backoff = %v, want 0", got)
	}
}

func TestRetryAfterMS(t *testing.T) {
	cases := []struct {
		header string
		want   int64
	}{
		{"30", 30_000},
		{"1", 1_000},
		{"", defaultRetryAfterMS},
		{"soon", defaultRetryAfterMS},
		{"-5", defaultRetryAfterMS},
	}
	for _, tc := range cases {
		if got := retryAfterMS(tc.header); got != tc.want {
			t.Fatalf("retryAfterMS(%q) = %d, want %d", tc.header, got, tc.want)
		}
	}
}

func TestSend_RateLimitHintWithoutCache(t *testing.T) {
	fake := &fakePlatform{resp: &SendResponse{
		Platform:     "fake",
		Status:       StatusFailed,
		Error:        "rate limited",
		RetryAfterMS: 30_000,
	}}
	d := newTestDispatcher(t, fake)

	resp := d.Send(context.Background(), "fake", SendRequest{To: "0888123456", Text: "x"})
	if resp.Status != StatusFailed || resp.RetryAfterMS != 30_000 {
		t.Fatalf("got %+v", resp)
	}
	// No cache configured: the hint is advisory only.
	if got := d.Backoff(context.Background(), "fake"); got != 0 {
		t.Fatalf("backoff = %v, want 0", got)
	}
}
