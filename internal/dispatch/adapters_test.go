package dispatch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWhatsAppSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"wamid.123"}]}`))
	}))
	defer srv.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{
		PhoneNumberID: "pn-1",
		AccessToken:   "tok",
		BaseURL:       srv.URL,
	})

	resp := a.Send(context.Background(), SendRequest{To: "+359888123456", Text: "здравейте"})
	if resp.Status != StatusSent || resp.MessageID != "wamid.123" {
		t.Fatalf("got %+v", resp)
	}
	if gotPath != "/pn-1/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth = %q", gotAuth)
	}
	// The Cloud API wants the recipient without the "+".
	if gotBody["to"] != "359888123456" {
		t.Fatalf("to = %v", gotBody["to"])
	}
	if a.DeliveryStatus("wamid.123") != StatusSent {
		t.Fatalf("receipt not recorded")
	}
}

func TestWhatsAppSend_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{PhoneNumberID: "pn", AccessToken: "tok", BaseURL: srv.URL})

	resp := a.Send(context.Background(), SendRequest{To: "+359888123456", Text: "x"})
	if resp.Status != StatusFailed || resp.RetryAfterMS != 30_000 {
		t.Fatalf("got %+v", resp)
	}
}

func TestWhatsAppSend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewWhatsAppAdapter(WhatsAppConfig{PhoneNumberID: "pn", AccessToken: "tok", BaseURL: srv.URL})

	resp := a.Send(context.Background(), SendRequest{To: "+359888123456", Text: "x"})
	if resp.Status != StatusFailed || resp.Error == "" {
		t.Fatalf("got %+v", resp)
	}
}

func TestWhatsAppValidateWebhook(t *testing.T) {
	a := NewWhatsAppAdapter(WhatsAppConfig{PhoneNumberID: "pn", AccessToken: "tok", AppSecret: "s3cret"})

	payload := []byte(`{"object":"whatsapp_business_account"}`)
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(payload)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !a.ValidateWebhook(payload, sig) {
		t.Fatalf("valid signature rejected")
	}
	if a.ValidateWebhook(payload, "sha256=deadbeef") {
		t.Fatalf("forged signature accepted")
	}
	if a.ValidateWebhook([]byte("tampered"), sig) {
		t.Fatalf("tampered payload accepted")
	}

	noSecret := NewWhatsAppAdapter(WhatsAppConfig{PhoneNumberID: "pn", AccessToken: "tok"})
	if noSecret.ValidateWebhook(payload, sig) {
		t.Fatalf("accepted without an app secret")
	}
}

func TestWhatsAppHandleIncoming(t *testing.T) {
	a := NewWhatsAppAdapter(WhatsAppConfig{})
	payload := []byte(`{"entry":[{"changes":[{"value":{
		"contacts":[{"profile":{"name":"Мария"}}],
		"messages":[{"from":"359888123456","timestamp":"1735689600","text":{"body":"Тече ми кранът"}}]
	}}]}]}`)

	msg, err := a.HandleIncoming(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil {
		t.Fatalf("no message decoded")
	}
	if msg.From != "+359888123456" || msg.SenderName != "Мария" || msg.Text != "Тече ми кранът" {
		t.Fatalf("got %+v", msg)
	}
	if msg.Timestamp != time.Unix(1735689600, 0).UTC() {
		t.Fatalf("timestamp = %v", msg.Timestamp)
	}

	// A statuses-only webhook is not an inbound message.
	statuses := []byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1","status":"delivered"}]}}]}]}`)
	if msg, err := a.HandleIncoming(statuses); err != nil || msg != nil {
		t.Fatalf("statuses payload: msg=%v err=%v", msg, err)
	}
}

func TestWhatsAppParseDeliveryReport(t *testing.T) {
	a := NewWhatsAppAdapter(WhatsAppConfig{})
	payload := []byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1","status":"read","timestamp":"1735689600"}]}}]}]}`)

	report, err := a.ParseDeliveryReport(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report == nil || report.MessageID != "wamid.1" || report.Status != StatusRead {
		t.Fatalf("got %+v", report)
	}
	if a.DeliveryStatus("wamid.1") != StatusRead {
		t.Fatalf("receipt not reconciled")
	}

	// Message-only payloads carry no receipt.
	if report, err := a.ParseDeliveryReport([]byte(`{"entry":[]}`)); err != nil || report != nil {
		t.Fatalf("got report=%v err=%v", report, err)
	}
}

func TestViberSend(t *testing.T) {
	var gotToken string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Viber-Auth-Token")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status":0,"status_message":"ok","message_token":5098034272017990000}`))
	}))
	defer srv.Close()

	a := NewViberAdapter(ViberConfig{AuthToken: "vtok", SenderName: "Услуги", BaseURL: srv.URL})

	resp := a.Send(context.Background(), SendRequest{To: "+359888123456", Text: "здравейте"})
	if resp.Status != StatusSent || resp.MessageID != "5098034272017990000" {
		t.Fatalf("got %+v", resp)
	}
	if gotToken != "vtok" {
		t.Fatalf("auth token = %q", gotToken)
	}
	sender, _ := gotBody["sender"].(map[string]any)
	if sender["name"] != "Услуги" {
		t.Fatalf("sender = %v", gotBody["sender"])
	}
}

func TestViberSend_BodyStatusRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Viber reports rate limiting with HTTP 200 and status 12 in the body.
		w.Write([]byte(`{"status":12,"status_message":"tooManyRequests"}`))
	}))
	defer srv.Close()

	a := NewViberAdapter(ViberConfig{AuthToken: "vtok", BaseURL: srv.URL})

	resp := a.Send(context.Background(), SendRequest{To: "+359888123456", Text: "x"})
	if resp.Status != StatusFailed {
		t.Fatalf("got %+v", resp)
	}
	if resp.RetryAfterMS != defaultRetryAfterMS {
		t.Fatalf("retry hint = %d, want default %d", resp.RetryAfterMS, defaultRetryAfterMS)
	}
}

func TestViberSend_NonZeroStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":2,"status_message":"invalidAuthToken"}`))
	}))
	defer srv.Close()

	a := NewViberAdapter(ViberConfig{AuthToken: "vtok", BaseURL: srv.URL})

	resp := a.Send(context.Background(), SendRequest{To: "+359888123456", Text: "x"})
	if resp.Status != StatusFailed || resp.RetryAfterMS != 0 {
		t.Fatalf("got %+v", resp)
	}
}

func TestViberValidateWebhook(t *testing.T) {
	a := NewViberAdapter(ViberConfig{AuthToken: "vtok"})

	payload := []byte(`{"event":"message"}`)
	mac := hmac.New(sha256.New, []byte("vtok"))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !a.ValidateWebhook(payload, sig) {
		t.Fatalf("valid signature rejected")
	}
	if a.ValidateWebhook(payload, "deadbeef") {
		t.Fatalf("forged signature accepted")
	}
}

func TestViberHandleIncoming(t *testing.T) {
	a := NewViberAdapter(ViberConfig{AuthToken: "vtok"})
	payload := []byte(`{"event":"message","timestamp":1735689600000,
		"sender":{"id":"viber-uid-1","name":"Мария"},
		"message":{"type":"text","text":"Тече ми кранът"}}`)

	msg, err := a.HandleIncoming(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.From != "viber-uid-1" || msg.Text != "Тече ми кранът" {
		t.Fatalf("got %+v", msg)
	}

	// Non-message events are ignored.
	for _, ev := range []string{"delivered", "seen", "subscribed", "webhook"} {
		payload := []byte(`{"event":"` + ev + `","message_token":7}`)
		if msg, err := a.HandleIncoming(payload); err != nil || msg != nil {
			t.Fatalf("event %q: msg=%v err=%v", ev, msg, err)
		}
	}
}

func TestViberParseDeliveryReport(t *testing.T) {
	a := NewViberAdapter(ViberConfig{AuthToken: "vtok"})

	report, err := a.ParseDeliveryReport([]byte(`{"event":"seen","message_token":42,"timestamp":1735689600000}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report == nil || report.MessageID != "42" || report.Status != StatusRead {
		t.Fatalf("got %+v", report)
	}

	if report, err := a.ParseDeliveryReport([]byte(`{"event":"message"}`)); err != nil || report != nil {
		t.Fatalf("message event: report=%v err=%v", report, err)
	}
}

func TestTelegramSend_RequiresChatBinding(t *testing.T) {
	sends := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sends++
		w.Write([]byte(`{"ok":true,"result":{"message_id":77}}`))
	}))
	defer srv.Close()

	a := NewTelegramAdapter(TelegramConfig{BotToken: "bot-tok", BaseURL: srv.URL})

	// Unbound phone: rejected locally, no network call.
	resp := a.Send(context.Background(), SendRequest{To: "+359888123456", Text: "x"})
	if resp.Status != StatusFailed || sends != 0 {
		t.Fatalf("got %+v after %d sends", resp, sends)
	}

	a.BindChat("+359888123456", 123456789)
	resp = a.Send(context.Background(), SendRequest{To: "+359888123456", Text: "x"})
	if resp.Status != StatusSent || resp.MessageID != "77" {
		t.Fatalf("got %+v", resp)
	}
}

func TestTelegramSend_RetryAfterFromBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"ok":false,"parameters":{"retry_after":17}}`))
	}))
	defer srv.Close()

	a := NewTelegramAdapter(TelegramConfig{BotToken: "bot-tok", BaseURL: srv.URL})
	a.BindChat("+359888123456", 1)

	resp := a.Send(context.Background(), SendRequest{To: "+359888123456", Text: "x"})
	if resp.Status != StatusFailed || resp.RetryAfterMS != 17_000 {
		t.Fatalf("got %+v", resp)
	}
}

func TestTelegramValidateWebhook(t *testing.T) {
	a := NewTelegramAdapter(TelegramConfig{BotToken: "bot-tok", SecretToken: "hook-secret"})

	if !a.ValidateWebhook(nil, "hook-secret") {
		t.Fatalf("correct secret rejected")
	}
	if a.ValidateWebhook(nil, "wrong") {
		t.Fatalf("wrong secret accepted")
	}

	noSecret := NewTelegramAdapter(TelegramConfig{BotToken: "bot-tok"})
	if noSecret.ValidateWebhook(nil, "") {
		t.Fatalf("accepted without a configured secret")
	}
}

func TestTelegramHandleIncoming_ContactShareBindsChat(t *testing.T) {
	a := NewTelegramAdapter(TelegramConfig{BotToken: "bot-tok"})

	share := []byte(`{"message":{"date":1735689600,
		"from":{"id":42,"first_name":"Мария"},
		"chat":{"id":987654},
		"contact":{"phone_number":"359888123456"}}}`)
	msg, err := a.HandleIncoming(share)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.From != "+359888123456" {
		t.Fatalf("got %+v", msg)
	}

	if id, ok := a.chatFor("+359888123456"); !ok || id != 987654 {
		t.Fatalf("binding not learned: id=%d ok=%v", id, ok)
	}

	text := []byte(`{"message":{"date":1735689600,
		"from":{"id":42,"first_name":"Мария"},
		"chat":{"id":987654},
		"text":"Тече ми кранът"}}`)
	msg, err = a.HandleIncoming(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.Text != "Тече ми кранът" || msg.From != "42" {
		t.Fatalf("got %+v", msg)
	}
}

func TestTelegramNoReceipts(t *testing.T) {
	a := NewTelegramAdapter(TelegramConfig{BotToken: "bot-tok"})

	if report, err := a.ParseDeliveryReport([]byte(`{}`)); err != nil || report != nil {
		t.Fatalf("got report=%v err=%v", report, err)
	}
	if a.DeliveryStatus("anything") != StatusSent {
		t.Fatalf("telegram status must always be sent")
	}
}

func TestCanSendToNumber_PerPlatform(t *testing.T) {
	wa := NewWhatsAppAdapter(WhatsAppConfig{PhoneNumberID: "pn-1", AccessToken: "tok"})
	vb := NewViberAdapter(ViberConfig{AuthToken: "vb-tok"})
	tg := NewTelegramAdapter(TelegramConfig{BotToken: "bot-tok"})

	// WhatsApp and Viber deliver to any country-coded number.
	for _, a := range []Platform{wa, vb} {
		if !a.CanSendToNumber("+359888123456") {
			t.Fatalf("%s must deliver to a normalized number", a.Name())
		}
		if a.CanSendToNumber("0888123456") || a.CanSendToNumber("") {
			t.Fatalf("%s must refuse un-normalized recipients", a.Name())
		}
	}

	// Telegram needs the phone-to-chat binding first.
	if tg.CanSendToNumber("+359888123456") {
		t.Fatalf("telegram must refuse a number with no chat binding")
	}
	tg.BindChat("+359888123456", 42)
	if !tg.CanSendToNumber("+359888123456") {
		t.Fatalf("telegram must deliver once the chat is bound")
	}
	if tg.CanSendToNumber("+359888999999") {
		t.Fatalf("binding one number must not open another")
	}
}
